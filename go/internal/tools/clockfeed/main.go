package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/mcdev12/wordclock/go/internal/config"
)

func main() {
	// A missing .env is fine; flags and the environment still apply.
	_ = godotenv.Load()

	settings, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}

	if err := newRootCmd(settings, openPublisher).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}
