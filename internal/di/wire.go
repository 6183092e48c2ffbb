//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"sidbot/pkg/config"
	"sidbot/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application together with a
// cleanup that releases every infrastructure client.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvidePostgresClient,
		ProvideRedisCache,
		ProvideCache,
		ProvideJobQueue,
		ProvideBroker,
		ProvideMailer,

		// Repositories
		ProvideBarStore,
		ProvideSignalStore,
		ProvideReferenceData,
		ProvideEventHub,
		ProvideEventPublisher,

		// Use cases
		ProvideEnv,
		ProvideReporter,
		ProvideStages,
		ProvideOrchestrator,
		ProvideQueries,

		// Transport
		ProvideSignalsHandler,
		ProvideHTTPServer,
		ProvideApp,
	)
	return nil, nil, nil
}
