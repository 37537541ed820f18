package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/nfrund/hexarena/internal/app"
	"github.com/nfrund/hexarena/internal/config"
	"github.com/nfrund/hexarena/internal/logging"
	"github.com/nfrund/hexarena/internal/server"
)

func main() {
	logging.New()

	cfg, err := config.New()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	s, err := server.New(context.Background(), cfg, app.NewModules())
	if err != nil {
		slog.Error("Failed to start", "error", err)
		os.Exit(1)
	}

	if err := s.Start(); err != nil {
		slog.Error("Server exited with error", "error", err)
		os.Exit(1)
	}
}
