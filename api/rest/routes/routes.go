package routes

import (
	"vm-migrator/api/rest/handlers"
	"vm-migrator/core/checkpoint"
	"vm-migrator/core/orchestrator"

	"github.com/gorilla/mux"
)

// SetupRoutes configures all API routes.
func SetupRoutes(r *mux.Router, store checkpoint.Store, manager *orchestrator.Manager) {
	migrationHandler := handlers.NewMigrationHandler(store, manager)

	api := r.PathPrefix("/v1").Subrouter()

	api.HandleFunc("/migrations", migrationHandler.SubmitMigration).Methods("POST")
	api.HandleFunc("/migrations", migrationHandler.ListMigrations).Methods("GET")
	api.HandleFunc("/migrations/{id}", migrationHandler.GetMigration).Methods("GET")
	api.HandleFunc("/migrations/{id}/abort", migrationHandler.AbortMigration).Methods("POST")
	api.HandleFunc("/migrations/{id}/events", migrationHandler.GetMigrationEvents).Methods("GET")
}
