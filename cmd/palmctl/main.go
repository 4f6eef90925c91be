package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/anime-shed/palm-oracle-go/internal/cli"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// a missing .env is fine; the environment may already be set
	_ = godotenv.Load()

	cmd := cli.NewRootCommand(version, commit, date)
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
