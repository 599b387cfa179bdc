// Package app wires the application together: configuration, logging,
// tracing, storage, the gateway client, and the assistant.
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inkwell-ai/inkwell/internal/artifact"
	"github.com/inkwell-ai/inkwell/internal/assist"
	"github.com/inkwell-ai/inkwell/internal/config"
)

// App is the application container. Construct with Setup, release with
// Close.
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	Genkit    *genkit.Genkit
	DBPool    *pgxpool.Pool
	Artifacts *artifact.Store
	Assistant *assist.Assistant

	otelCleanup func()
}

// Close releases all resources in reverse construction order.
func (a *App) Close() error {
	a.logger().Info("shutting down")

	if a.DBPool != nil {
		a.DBPool.Close()
		a.logger().Debug("database pool closed")
	}
	if a.otelCleanup != nil {
		a.otelCleanup()
	}
	return nil
}

func (a *App) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}

// shutdownTimeout bounds teardown work such as trace flushing.
const shutdownTimeout = 5 * time.Second

func shutdownContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), shutdownTimeout)
}
