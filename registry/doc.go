// Package registry holds the static mapping from model identifiers to backend
// and capacity metadata. Descriptors are immutable values: a ModelDescriptor
// is compared by full value equality to detect a configuration change that
// requires the backend pool to reload a model.
//
// A Registry is constructed once at process start (typically from a YAML, TOML
// or JSON file via LoadFile) and passed explicitly to the pool, the agents and
// the management tools.
package registry
