package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"vm-migrator/api/rest/routes"
	"vm-migrator/config"
	"vm-migrator/core/orchestrator"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the migration API server",
	Long: `Serve exposes the migration pipeline over HTTP: submit jobs, poll
their checkpointed progress, and abort running jobs. Each submitted job
runs in its own goroutine with its own checkpoint.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		store, err := newStore(cfg)
		if err != nil {
			return err
		}
		manager := orchestrator.NewManager(newBuilder(cfg, store))

		r := mux.NewRouter()
		routes.SetupRoutes(r, store, manager)
		r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("OK"))
		}).Methods("GET")

		server := &http.Server{
			Addr:    ":" + cfg.ServerPort,
			Handler: r,
		}

		go func() {
			log.Printf("Starting server on port %s", cfg.ServerPort)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("Server failed to start: %v", err)
			}
		}()

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		log.Println("Shutting down server...")
		if err := server.Shutdown(context.Background()); err != nil {
			return err
		}
		log.Println("Server exited")
		return nil
	},
}
