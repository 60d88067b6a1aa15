package main

import (
	"github.com/devpilot-ai/devpilot/internal/cmd"
)

func main() {
	cmd.Execute()
}
