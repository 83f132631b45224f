package main

import "github.com/jmehdipour/realestate-billing/cmd"

func main() {
	cmd.Execute()
}
