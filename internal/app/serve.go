package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	transporthttp "narrativeradar/internal/transport/http"
)

// Serve runs the HTTP API until ctx is cancelled, then shuts down gracefully.
func (a *App) Serve(ctx context.Context) error {
	var runs transporthttp.RunStore
	if a.Store != nil {
		runs = a.Store
	}
	server := transporthttp.NewServer(a.Pipeline, runs, a.Ingest, a.Logger)

	httpServer := &http.Server{
		Addr:         a.Config.ListenAddr,
		Handler:      server.Routes(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 4 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go a.pruneIngest(ctx, time.Hour)

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("radar API listening", "addr", a.Config.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.Logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		a.Logger.Error("graceful shutdown failed", "error", err)
		return err
	}
	return nil
}

// pruneIngest drops submitted headlines older than both windows.
func (a *App) pruneIngest(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			a.PruneIngest(now)
		}
	}
}

// PruneIngest removes headlines that can no longer fall into either window.
func (a *App) PruneIngest(now time.Time) int {
	if a.Ingest == nil {
		return 0
	}
	removed := a.Ingest.PruneOlderThan(now.Add(-2 * a.Pipeline.WindowLength))
	if removed > 0 {
		a.Logger.Debug("pruned ingested headlines", "removed", removed)
	}
	return removed
}
