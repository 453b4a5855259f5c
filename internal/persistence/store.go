package persistence

import (
	"github.com/hboehmer-IW/prefect/pkg/api"
)

// Stores report the api package's lookup sentinels so that errors.Is works
// the same whether a caller hits the engine or a store directly.
var (
	// ErrFlowNotFound is returned when a flow definition is not found.
	ErrFlowNotFound = api.ErrFlowNotFound

	// ErrRunNotFound is returned when a flow run is not found.
	ErrRunNotFound = api.ErrRunNotFound
)

// FlowStore handles storage of flow definitions.
//
// Definitions contain function values and are therefore always kept
// in-memory; only runs are durable.
type FlowStore interface {
	SaveFlow(def api.FlowDefinition) error
	GetFlow(name string) (api.FlowDefinition, error)
	ListFlows() ([]api.FlowDefinition, error)
}

// RunFilter is used to select runs from the store.
// Empty string / zero state mean "no filter" for that field.
type RunFilter struct {
	FlowName  string
	StateType api.StateType
}

// RunStore handles storage of flow runs.
type RunStore interface {
	SaveRun(run *api.FlowRun) error
	UpdateRun(run *api.FlowRun) error
	GetRun(id string) (*api.FlowRun, error)
	ListRuns(filter RunFilter) ([]*api.FlowRun, error)
}

// Persistence bundles the stores an engine needs.
type Persistence struct {
	Flows FlowStore
	Runs  RunStore
}
