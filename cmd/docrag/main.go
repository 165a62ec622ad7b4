package main

import (
	"github.com/joho/godotenv"

	"docrag/internal/cli"
)

func main() {
	// API keys for remote embedders may live in .env
	_ = godotenv.Load()
	cli.Execute()
}
