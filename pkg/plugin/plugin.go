package plugin

import "github.com/avanrossum/diffract/pkg/core"

// DimAny is the sentinel for a plugin data dimensionality that is either
// "same as the input" or not known until the input shape is resolved.
const DimAny = -1

// Kwargs carries auxiliary key-value state alongside the data as it flows
// through a plugin chain.
type Kwargs map[string]any

// Copy returns a shallow, independent copy of the kwargs map.
func (k Kwargs) Copy() Kwargs {
	out := make(Kwargs, len(k))
	for key, v := range k {
		out[key] = v
	}
	return out
}

// Plugin is the unit of computation wrapped by a workflow node. A plugin
// instance is owned by exactly one node and is never shared between
// workers; implementations may keep per-instance state between calls.
//
// CalculateResultShape receives the node's resolved input shape as supplied
// by its parent (nil when unknown) and returns the output shape, using
// core.WildcardDim for dimensions that cannot be determined yet.
type Plugin interface {
	// Name returns the registry key of the plugin type.
	Name() string
	// InputDataDim returns the expected input dimensionality, or DimAny.
	InputDataDim() int
	// OutputDataDim returns the produced output dimensionality, or DimAny.
	OutputDataDim() int
	// PreExecute performs one-time setup before the first Execute call.
	PreExecute() error
	// Execute processes one frame's data and returns the result together
	// with the kwargs to pass to downstream plugins.
	Execute(data *core.Dataset, kw Kwargs) (*core.Dataset, Kwargs, error)
	// CalculateResultShape resolves the output shape from the input shape.
	CalculateResultShape(input core.Shape) (core.Shape, error)
}

// Params is the string-keyed parameter set a plugin type is constructed
// from. It is the serializable form used by workflow persistence and by
// worker-side reconstruction.
type Params map[string]string
