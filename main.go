package main

import (
	"context"
	"fmt"
	"github.com/joho/godotenv"
	"github.com/lefinal/pairs-server/app"
	"os"
	"os/signal"
	"syscall"
)

// configPathEnv is the environment variable for the config file path.
const configPathEnv = "PAIRS_CONFIG"

// defaultConfigPath is the config file path that is used if configPathEnv is
// not set.
const defaultConfigPath = "config.json"

func main() {
	// Environment variables from .env are optional.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}
	configPath := os.Getenv(configPathEnv)
	if configPath == "" {
		configPath = defaultConfigPath
	}
	config, err := app.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	err = app.NewApp(config).Boot(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "boot: %v\n", err)
		cancel()
		os.Exit(1)
	}
}
