package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/mortar-ai/mortar/internal/adapters/driving/cli"
)

func main() {
	// A .env file is optional; environment variables take precedence.
	_ = godotenv.Load()

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
