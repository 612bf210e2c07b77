package orchestrator

import (
	"context"
	"fmt"
	"log"
	"sync"

	"vm-migrator/core/spec"
)

// Builder assembles an orchestrator for one parsed migration spec. The
// server wires providers and staging here so the manager stays free of
// SDK dependencies.
type Builder func(m *spec.MigrationSection) (*Orchestrator, error)

// Manager runs many independent migration jobs concurrently, one
// goroutine per job. Jobs share no mutable state; the manager only
// tracks cancellation handles so an operator can abort a running job.
type Manager struct {
	build Builder

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

// NewManager creates a manager using the given builder.
func NewManager(build Builder) *Manager {
	return &Manager{build: build, running: map[string]context.CancelFunc{}}
}

// Start launches a migration in the background. It fails fast when a
// job for the same instance is already running in this process.
func (m *Manager) Start(ctx context.Context, ms *spec.MigrationSection) error {
	orch, err := m.build(ms)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if _, ok := m.running[ms.InstanceID]; ok {
		m.mu.Unlock()
		return fmt.Errorf("migration for %s already running", ms.InstanceID)
	}
	// The job outlives the request that submitted it. Detach from the
	// caller's cancellation; only Abort or process exit stops the job.
	jobCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.running[ms.InstanceID] = cancel
	m.mu.Unlock()

	go func() {
		defer func() {
			cancel()
			m.mu.Lock()
			delete(m.running, ms.InstanceID)
			m.mu.Unlock()
		}()
		if report, err := orch.Run(jobCtx, ms.InstanceID); err != nil {
			log.Printf("[%s] %v", ms.InstanceID, err)
		} else {
			log.Printf("[%s] %s", ms.InstanceID, report.Summary())
		}
	}()
	return nil
}

// Abort cancels a running job's context. The orchestrator still runs
// compensation and cleanup before the job reaches its terminal status.
func (m *Manager) Abort(instanceID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	cancel, ok := m.running[instanceID]
	if ok {
		cancel()
	}
	return ok
}

// Running reports whether a job for the instance is active in-process.
func (m *Manager) Running(instanceID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.running[instanceID]
	return ok
}
