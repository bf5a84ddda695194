package main

import (
	"os"

	"github.com/gordyrad/chat-kpi-tracker/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
