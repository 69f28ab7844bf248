package handlers

import (
	"log/slog"

	"NetCollect/internal/scheduler/dependencies"
	"NetCollect/internal/scheduler/services"
	"NetCollect/internal/scheduler/storage"
)

type Handlers struct {
	servers    storage.ServerStore
	tasks      storage.TaskStore
	results    storage.ResultStore
	sessions   storage.SessionStore
	placement  *services.PlacementService
	dispatcher *services.DispatcherService
	logger     *slog.Logger
}

func NewHandlers(container *dependencies.Container) *Handlers {
	return &Handlers{
		servers:    container.ServerStore,
		tasks:      container.TaskStore,
		results:    container.ResultStore,
		sessions:   container.SessionStore,
		placement:  container.Placement,
		dispatcher: container.Dispatcher,
		logger:     slog.Default(),
	}
}
