package main

import (
	"os"

	"github.com/bianoble/repo-guardian/cmd/repo-guardian/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
