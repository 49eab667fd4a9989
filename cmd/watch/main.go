package main

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/shubham-shewale/ticker-feed/cmd/watch/internal/feedclient"
	"github.com/shubham-shewale/ticker-feed/cmd/watch/internal/tui"
	"github.com/shubham-shewale/ticker-feed/pkg/config"
	"github.com/shubham-shewale/ticker-feed/pkg/models"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}
	if cfg.Watch.Token == "" {
		fmt.Fprintln(os.Stderr, "WATCH_TOKEN is required")
		os.Exit(1)
	}

	// The TUI owns the terminal; logs would corrupt it
	logger := zap.NewNop()

	client := feedclient.New(cfg.Watch.URL, cfg.Watch.Token, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn, err := client.Dial(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "connect error:", err)
		os.Exit(1)
	}

	events := make(chan models.PriceUpdate, 64)
	go func() {
		defer close(events)
		if err := client.Run(ctx, conn, events); err != nil {
			// Surfaced by the model when the channel closes
			_ = err
		}
	}()

	program := tea.NewProgram(tui.NewModel(events), tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "tui error:", err)
		os.Exit(1)
	}
}
