package dispatcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jmehdipour/realestate-billing/internal/config"
	"github.com/jmehdipour/realestate-billing/internal/model"
)

// Endpoint is one notification delivery target guarded by a breaker.
type Endpoint interface {
	Name() string
	Ready() bool
	Acquire() bool
	State() string
	Send(ctx context.Context, n model.Notification) error
}

// sendRequest is the body the notification function expects.
type sendRequest struct {
	UserID   string         `json:"userId"`
	Type     string         `json:"type"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type HTTPEndpoint struct {
	name   string
	url    string
	client *http.Client
	br     *MicroBreaker
}

func NewHTTPEndpoint(name, baseURL, path string, timeoutMs, failThreshold, openForMs int) *HTTPEndpoint {
	if timeoutMs <= 0 {
		timeoutMs = 3000
	}

	if failThreshold <= 0 {
		failThreshold = 3
	}

	if openForMs <= 0 {
		openForMs = 15000
	}

	return &HTTPEndpoint{
		name:   name,
		url:    baseURL + path,
		client: &http.Client{Timeout: time.Duration(timeoutMs) * time.Millisecond},
		br:     NewMicroBreaker(failThreshold, time.Duration(openForMs)*time.Millisecond),
	}
}

// EndpointsFromConfig builds the enabled endpoints; disabled or blank ones are skipped.
func EndpointsFromConfig(cfgs []config.EndpointConfig) []Endpoint {
	var out []Endpoint
	for _, c := range cfgs {
		if !c.Enabled || strings.TrimSpace(c.BaseURL) == "" {
			continue
		}
		out = append(out, NewHTTPEndpoint(
			c.Name,
			strings.TrimRight(c.BaseURL, "/"),
			c.Path,
			c.TimeoutMs,
			c.Breaker.FailThreshold,
			c.Breaker.OpenForMs,
		))
	}
	return out
}

func (e *HTTPEndpoint) Name() string  { return e.name }
func (e *HTTPEndpoint) Ready() bool   { return e.br.Ready() }
func (e *HTTPEndpoint) Acquire() bool { return e.br.TryAcquire() }
func (e *HTTPEndpoint) State() string { return e.br.State() }

func (e *HTTPEndpoint) Send(ctx context.Context, n model.Notification) error {
	if err := e.post(ctx, n); err != nil {
		e.br.OnFailure()
		return err
	}

	e.br.OnSuccess()
	return nil
}

func (e *HTTPEndpoint) post(ctx context.Context, n model.Notification) error {
	b, err := json.Marshal(sendRequest{UserID: n.UserID, Type: n.Type.String(), Metadata: n.Metadata})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(b))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", n.ID)

	res, err := e.client.Do(req)
	if err != nil {
		return err
	}

	defer res.Body.Close()

	if res.StatusCode/100 != 2 {
		return fmt.Errorf("endpoint=%s status=%d", e.name, res.StatusCode)
	}

	return nil
}
