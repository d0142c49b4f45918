// Command api-server runs the grocery ordering and delivery API.
package main

import (
	"context"

	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	grocer "github.com/islandgrocer/islandgrocer/internal/app"
)

func main() {
	app.Run(func(ctx context.Context, lg *zap.Logger, m *app.Telemetry) error {
		cfg, err := grocer.LoadConfig()
		if err != nil {
			return err
		}
		return grocer.Run(ctx, lg, m, cfg)
	})
}
