package questflow

import (
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/workflow"
)

// Registry is satisfied by worker.Worker and the SDK test environment.
type Registry interface {
	RegisterWorkflowWithOptions(w interface{}, options workflow.RegisterOptions)
	RegisterActivityWithOptions(a interface{}, options activity.RegisterOptions)
}

func Register(r Registry, acts *Activities) {
	r.RegisterWorkflowWithOptions(Workflow, workflow.RegisterOptions{Name: WorkflowName})
	r.RegisterActivityWithOptions(acts.SelectStops, activity.RegisterOptions{Name: ActivitySelectStops})
	r.RegisterActivityWithOptions(acts.SelectMotifs, activity.RegisterOptions{Name: ActivitySelectMotifs})
	r.RegisterActivityWithOptions(acts.BuildPlot, activity.RegisterOptions{Name: ActivityBuildPlot})
	r.RegisterActivityWithOptions(acts.GeneratePuzzle, activity.RegisterOptions{Name: ActivityGeneratePuzzle})
	r.RegisterActivityWithOptions(acts.GenerateMeta, activity.RegisterOptions{Name: ActivityGenerateMeta})
	r.RegisterActivityWithOptions(acts.GenerateTitle, activity.RegisterOptions{Name: ActivityGenerateTitle})
}
