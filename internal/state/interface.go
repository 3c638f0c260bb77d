// Package state provides SQLite-based persistence for foreman.
package state

import (
	"io"

	"github.com/mwhitten/foreman/pkg/models"
)

// PlanStore handles plan persistence.
type PlanStore interface {
	CreatePlan(p *models.Plan) error
	GetPlan(id string) (*models.Plan, error)
	UpdatePlan(p *models.Plan) error
	ListPlans() ([]models.Plan, error)
}

// TaskStore handles task persistence.
type TaskStore interface {
	CreateTask(t *models.Task) error
	GetTask(id string) (*models.Task, error)
	UpdateTask(t *models.Task) error
	ListTasksByPlan(planID string) ([]models.Task, error)
}

// WorkerStore handles worker record persistence.
type WorkerStore interface {
	SaveWorker(w *models.WorkerState) error
	GetWorker(id string) (*models.WorkerState, error)
	ListWorkersByTask(taskID string) ([]models.WorkerState, error)
	ListWorkers() ([]models.WorkerState, error)
}

// AuditStore handles the audit trail.
type AuditStore interface {
	RecordAudit(ev AuditEvent) error
	QueryAudit(filter AuditFilter) ([]AuditEvent, error)
	ExportAudit(w io.Writer, filter AuditFilter, format ExportFormat) error
}

// Migrator applies pending schema migrations.
type Migrator interface {
	Migrate() error
}

// Store is the full persistence surface the orchestrator depends on.
// A nil store disables persistence; all orchestrator writes are
// best-effort.
type Store interface {
	io.Closer
	Migrator
	PlanStore
	TaskStore
	WorkerStore
	AuditStore
}

// Compile-time verification that DB implements all interfaces.
var (
	_ Store       = (*DB)(nil)
	_ Migrator    = (*DB)(nil)
	_ PlanStore   = (*DB)(nil)
	_ TaskStore   = (*DB)(nil)
	_ WorkerStore = (*DB)(nil)
	_ AuditStore  = (*DB)(nil)
)
