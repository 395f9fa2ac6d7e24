package train

// State tracks the orchestrator through a single run. Transitions are
// strictly forward; the three FITTING outcomes converge on checkpoint
// restore regardless of how fitting ended.
type State int

const (
	StateInit State = iota
	StateDataLoaded
	StateModelBuilt
	StateTrackingStarted
	StateFitting
	StateConverged
	StateEarlyStopped
	StateInterrupted
	StateBestCheckpointRestored
	StateEvaluated
	StatePublished
	StateDone
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateDataLoaded:
		return "DATA_LOADED"
	case StateModelBuilt:
		return "MODEL_BUILT"
	case StateTrackingStarted:
		return "TRACKING_STARTED"
	case StateFitting:
		return "FITTING"
	case StateConverged:
		return "CONVERGED"
	case StateEarlyStopped:
		return "EARLY_STOPPED"
	case StateInterrupted:
		return "INTERRUPTED"
	case StateBestCheckpointRestored:
		return "BEST_CHECKPOINT_RESTORED"
	case StateEvaluated:
		return "EVALUATED"
	case StatePublished:
		return "PUBLISHED"
	case StateDone:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}
