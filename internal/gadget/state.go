package gadget

// State tracks how far a composition run has progressed. Transitions are
// one-way; a failed run stops at the last state it reached and teardown
// walks the same ladder in reverse.
type State int

const (
	Unconfigured State = iota
	ModuleLoaded
	NodesCreated
	FunctionsLinked
	Bound
)

var stateNames = map[State]string{
	Unconfigured:    "unconfigured",
	ModuleLoaded:    "module_loaded",
	NodesCreated:    "nodes_created",
	FunctionsLinked: "functions_linked",
	Bound:           "bound",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}
