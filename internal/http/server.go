// Package http expone el servidor de la API pública.
package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dropDatabas3/ipvote/internal/observability/logger"
)

// Start levanta el servidor y bloquea hasta que ctx se cancele o el listener
// falle. Al cancelar, drena conexiones en vuelo hasta 15 segundos.
func Start(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	log := logger.L()
	log.Info("http server listening", logger.String("addr", addr))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		log.Info("http server draining")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
