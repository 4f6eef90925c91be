package server

import (
	"context"
	"testing"
	"time"

	"github.com/anime-shed/palm-oracle-go/internal/config"
	"github.com/anime-shed/palm-oracle-go/internal/container"
	"github.com/anime-shed/palm-oracle-go/internal/oracle"
)

func TestRun_ShutsDownOnCancel(t *testing.T) {
	cfg := config.Default()
	cfg.APIKey = "test-key"
	cfg.Host = "127.0.0.1"
	cfg.Port = "0"

	fake := oracle.Func(func(ctx context.Context, req oracle.Request) (string, error) {
		return "ok", nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, cfg, container.WithOracle(fake)) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected clean shutdown, got %v", err)
		}
	case <-time.After(ShutdownTimeout):
		t.Fatal("Expected Run to return after cancel")
	}
}
