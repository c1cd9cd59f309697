package main

import (
	"os"

	"github.com/chordialapp/metronome/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
