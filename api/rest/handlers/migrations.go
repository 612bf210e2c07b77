package handlers

import (
	"encoding/json"
	"net/http"

	"vm-migrator/core/checkpoint"
	"vm-migrator/core/models"
	"vm-migrator/core/orchestrator"
	"vm-migrator/core/spec"

	"github.com/gorilla/mux"
)

// MigrationHandler handles migration-related HTTP requests.
type MigrationHandler struct {
	store   checkpoint.Store
	manager *orchestrator.Manager
}

// NewMigrationHandler creates a new migration handler.
func NewMigrationHandler(store checkpoint.Store, manager *orchestrator.Manager) *MigrationHandler {
	return &MigrationHandler{store: store, manager: manager}
}

// SubmitMigrationRequest is the request to start a migration.
type SubmitMigrationRequest struct {
	SpecYAML string `json:"spec_yaml"`
}

// SubmitMigration handles POST /v1/migrations. The migration runs in
// the background; poll GET /v1/migrations/{id} for progress.
func (h *MigrationHandler) SubmitMigration(w http.ResponseWriter, r *http.Request) {
	var req SubmitMigrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	parsed, err := spec.Parse(req.SpecYAML)
	if err != nil {
		http.Error(w, "Invalid migration spec: "+err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.manager.Start(r.Context(), &parsed.Migration); err != nil {
		http.Error(w, "Failed to start migration: "+err.Error(), http.StatusConflict)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"instance_id": parsed.Migration.InstanceID,
		"status":      models.JobStatusRunning,
	})
}

// GetMigration handles GET /v1/migrations/{id}.
func (h *MigrationHandler) GetMigration(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	instanceID := vars["id"]

	job, err := h.store.Load(instanceID)
	if err == checkpoint.ErrNotFound {
		http.Error(w, "Migration not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Failed to load migration: "+err.Error(), http.StatusInternalServerError)
		return
	}

	response := map[string]interface{}{
		"instance_id":   job.InstanceID,
		"run_id":        job.RunID,
		"current_stage": job.CurrentStage,
		"status":        job.Status,
		"artifacts":     job.Artifacts,
		"active":        h.manager.Running(instanceID),
		"timestamps": map[string]interface{}{
			"created_at": job.CreatedAt,
			"updated_at": job.UpdatedAt,
		},
	}
	if job.FailedStage != "" {
		response["failure"] = map[string]interface{}{
			"stage":  job.FailedStage,
			"kind":   job.ErrorKind,
			"detail": job.ErrorDetail,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// ListMigrations handles GET /v1/migrations.
func (h *MigrationHandler) ListMigrations(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.store.List()
	if err != nil {
		http.Error(w, "Failed to list migrations: "+err.Error(), http.StatusInternalServerError)
		return
	}

	statusFilter := r.URL.Query().Get("status")
	items := make([]map[string]interface{}, 0, len(jobs))
	for _, job := range jobs {
		if statusFilter != "" && string(job.Status) != statusFilter {
			continue
		}
		items = append(items, map[string]interface{}{
			"instance_id":   job.InstanceID,
			"current_stage": job.CurrentStage,
			"status":        job.Status,
			"updated_at":    job.UpdatedAt,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"items": items,
	})
}

// AbortMigration handles POST /v1/migrations/{id}/abort. The job still
// runs compensation and cleanup before reaching its terminal status.
func (h *MigrationHandler) AbortMigration(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	instanceID := vars["id"]

	if !h.manager.Abort(instanceID) {
		http.Error(w, "No running migration for instance", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"instance_id": instanceID,
		"status":      "aborting",
	})
}

// eventLister is satisfied by stores that keep a queryable audit trail.
type eventLister interface {
	Events(instanceID string, limit int) ([]models.JobEvent, error)
}

// GetMigrationEvents handles GET /v1/migrations/{id}/events.
func (h *MigrationHandler) GetMigrationEvents(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	instanceID := vars["id"]

	lister, ok := h.store.(eventLister)
	if !ok {
		http.Error(w, "Event history not supported by this store", http.StatusNotImplemented)
		return
	}
	events, err := lister.Events(instanceID, 100)
	if err != nil {
		http.Error(w, "Failed to fetch events: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"items": events,
	})
}
