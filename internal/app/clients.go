package app

import (
	"fmt"

	"github.com/feastline/feastline-backend/internal/clients/openai"
	redisclient "github.com/feastline/feastline-backend/internal/clients/redis"
	"github.com/feastline/feastline-backend/internal/clients/spoonacular"
	"github.com/feastline/feastline-backend/internal/platform/logger"
)

type Clients struct {
	Gateway openai.Client
	Catalog spoonacular.Client

	// ProgressBus is nil when Redis is not configured; progress events
	// then stay instance-local.
	ProgressBus redisclient.ProgressBus
}

func wireClients(log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")

	gateway, err := openai.NewClient(log, openai.ConfigFromEnv())
	if err != nil {
		return Clients{}, fmt.Errorf("init openai client: %w", err)
	}
	catalog, err := spoonacular.NewClient(log, spoonacular.ConfigFromEnv())
	if err != nil {
		return Clients{}, fmt.Errorf("init spoonacular client: %w", err)
	}

	clients := Clients{Gateway: gateway, Catalog: catalog}
	if cfg.RedisEnabled {
		bus, err := redisclient.NewProgressBus(log)
		if err != nil {
			return Clients{}, fmt.Errorf("init redis progress bus: %w", err)
		}
		clients.ProgressBus = bus
	}
	return clients, nil
}
