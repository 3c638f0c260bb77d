package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/mwhitten/foreman/internal/subtask"
	"github.com/mwhitten/foreman/pkg/models"
)

// Typed operation variants. Each category routes through exactly one
// switch, so an unknown variant fails loudly instead of falling through
// string comparisons scattered across call sites.

// PlanOpKind enumerates plan operations.
type PlanOpKind int

const (
	// PlanOpStart activates a plan and deploys its ready tasks.
	PlanOpStart PlanOpKind = iota
	// PlanOpPause suspends an active plan.
	PlanOpPause
)

// PlanOp is one plan-level operation.
type PlanOp struct {
	Kind   PlanOpKind
	PlanID string
}

// ApplyPlanOp dispatches a plan operation.
func (s *Service) ApplyPlanOp(ctx context.Context, op PlanOp) error {
	switch op.Kind {
	case PlanOpStart:
		return s.StartPlan(ctx, op.PlanID)
	case PlanOpPause:
		return s.PausePlan(op.PlanID)
	default:
		return fmt.Errorf("unknown plan operation: %d", op.Kind)
	}
}

// TaskOpKind enumerates task operations.
type TaskOpKind int

const (
	// TaskOpDeploy provisions and dispatches a ready task.
	TaskOpDeploy TaskOpKind = iota
	// TaskOpComplete marks a running task completed.
	TaskOpComplete
	// TaskOpCancel cancels a task, optionally removing it.
	TaskOpCancel
	// TaskOpRetry resets a failed task and deploys it again.
	TaskOpRetry
)

// TaskOp is one task-level operation.
type TaskOp struct {
	Kind   TaskOpKind
	TaskID string
	// Remove applies to TaskOpCancel only.
	Remove bool
}

// ApplyTaskOp dispatches a task operation.
func (s *Service) ApplyTaskOp(ctx context.Context, op TaskOp) error {
	switch op.Kind {
	case TaskOpDeploy:
		_, err := s.Deploy(ctx, op.TaskID)
		return err
	case TaskOpComplete:
		return s.CompleteTask(ctx, op.TaskID)
	case TaskOpCancel:
		return s.CancelTask(op.TaskID, op.Remove)
	case TaskOpRetry:
		_, err := s.RetryTask(ctx, op.TaskID)
		return err
	default:
		return fmt.Errorf("unknown task operation: %d", op.Kind)
	}
}

// SubTaskOpKind enumerates sub-task operations.
type SubTaskOpKind int

const (
	// SubTaskOpSpawn registers a new sub-task for a parent worker.
	SubTaskOpSpawn SubTaskOpKind = iota
	// SubTaskOpExecute runs a pending sub-task to completion.
	SubTaskOpExecute
	// SubTaskOpAwait blocks for results with a deadline.
	SubTaskOpAwait
	// SubTaskOpCancel cancels a non-terminal sub-task.
	SubTaskOpCancel
)

// SubTaskOp is one sub-task operation.
type SubTaskOp struct {
	Kind SubTaskOpKind
	// Spawn applies to SubTaskOpSpawn.
	Spawn subtask.SpawnRequest
	// SubTaskID applies to execute and cancel.
	SubTaskID string
	// AwaitIDs and Timeout apply to SubTaskOpAwait.
	AwaitIDs []string
	Timeout  time.Duration
}

// SubTaskOpResult carries the outcome of a sub-task operation.
type SubTaskOpResult struct {
	// SubTask is set for spawn operations.
	SubTask *models.SubTask
	// Result is set for execute operations.
	Result *models.SubTaskResult
	// Results is set for await operations.
	Results map[string]*models.SubTaskResult
}

// ApplySubTaskOp dispatches a sub-task operation.
func (s *Service) ApplySubTaskOp(ctx context.Context, op SubTaskOp) (SubTaskOpResult, error) {
	switch op.Kind {
	case SubTaskOpSpawn:
		st, err := s.SpawnSubTask(op.Spawn)
		if err != nil {
			return SubTaskOpResult{}, err
		}
		return SubTaskOpResult{SubTask: &st}, nil
	case SubTaskOpExecute:
		result, err := s.ExecuteSubTask(ctx, op.SubTaskID)
		if err != nil {
			return SubTaskOpResult{}, err
		}
		return SubTaskOpResult{Result: result}, nil
	case SubTaskOpAwait:
		return SubTaskOpResult{Results: s.AwaitSubTasks(ctx, op.AwaitIDs, op.Timeout)}, nil
	case SubTaskOpCancel:
		return SubTaskOpResult{}, s.subtasks.Cancel(op.SubTaskID)
	default:
		return SubTaskOpResult{}, fmt.Errorf("unknown sub-task operation: %d", op.Kind)
	}
}
