package stage

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/scan-io-git/scanio-hub/internal/task"
)

// validateStageArgs validates the arguments provided to the stage command.
func validateStageArgs(opts *RunOptionsStage) (uuid.UUID, error) {
	if opts.TaskID == "" {
		return uuid.Nil, fmt.Errorf("the 'task' flag must be specified")
	}
	taskID, err := uuid.Parse(opts.TaskID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("the 'task' flag must be a valid task id: %v", err)
	}

	if opts.Type != "" && task.StageOrder(task.StageType(opts.Type)) < 0 {
		return uuid.Nil, fmt.Errorf("unknown stage type %q", opts.Type)
	}
	if opts.Tenant == "" {
		return uuid.Nil, fmt.Errorf("the 'tenant' flag must not be empty")
	}
	return taskID, nil
}
