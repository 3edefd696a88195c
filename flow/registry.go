package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// ParamType enumerates the editor-facing parameter kinds a node can declare.
type ParamType string

const (
	ParamString         ParamType = "string"
	ParamNumber         ParamType = "number"
	ParamBoolean        ParamType = "boolean"
	ParamJSON           ParamType = "json"
	ParamPromptTemplate ParamType = "prompt_template"
	ParamSelect         ParamType = "select"
)

// Param describes one configurable parameter of a node type. Params are
// ordered; editors render them in declaration order.
type Param struct {
	Name        string    `json:"name"`
	Label       string    `json:"label"`
	Type        ParamType `json:"type"`
	Default     any       `json:"default,omitempty"`
	Min         *float64  `json:"min,omitempty"`
	Max         *float64  `json:"max,omitempty"`
	Options     []string  `json:"options,omitempty"`
	Required    bool      `json:"required,omitempty"`
	Group       string    `json:"group,omitempty"`
	Description string    `json:"description,omitempty"`
}

// Port describes one output port of a node type.
type Port struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
}

// DefaultPort is the implicit single output port of non-routing nodes, and
// the sourcePort an edge gets when none is specified.
const DefaultPort = "default"

// Config holds the user-bound parameter values of one node instance.
// Values come from JSON, so numbers arrive as float64; the accessors
// normalize types and fall back to the given default.
type Config map[string]any

// Str returns the string value for key, or def when absent or not a string.
func (c Config) Str(key, def string) string {
	if v, ok := c[key].(string); ok {
		return v
	}
	return def
}

// Int returns the integer value for key, accepting JSON float64.
func (c Config) Int(key string, def int) int {
	switch v := c[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

// Float returns the float value for key.
func (c Config) Float(key string, def float64) float64 {
	switch v := c[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return def
}

// Bool returns the boolean value for key.
func (c Config) Bool(key string, def bool) bool {
	if v, ok := c[key].(bool); ok {
		return v
	}
	return def
}

// Map returns the object value for key, decoding JSON strings if needed.
func (c Config) Map(key string) map[string]any {
	switch v := c[key].(type) {
	case map[string]any:
		return v
	case string:
		var m map[string]any
		if err := json.Unmarshal([]byte(v), &m); err == nil {
			return m
		}
	}
	return nil
}

// Node is the capability every node type implements.
//
// Execute receives the current state read-only and returns a Delta; it must
// not retain or mutate state slices. Blocking work must honor ctx.
type Node interface {
	Execute(ctx context.Context, st State, ec *ExecContext, cfg Config) (Delta, error)
}

// RoutingNode is implemented by node types that select an output port after
// execution. The returned router is a pure function of state.
type RoutingNode interface {
	Node
	Router(cfg Config) func(State) string
}

// DynamicPortNode is implemented by node types whose output ports depend on
// instance configuration (e.g. a router's configured route map).
type DynamicPortNode interface {
	Node
	DynamicPorts(cfg Config) []Port
}

// Spec is the full registry entry for one node type: identity and editor
// metadata, the ordered parameter descriptors, the static output ports, and
// the node capability itself.
type Spec struct {
	Type        string  `json:"type"`
	Label       string  `json:"label"`
	Description string  `json:"description,omitempty"`
	Category    string  `json:"category,omitempty"`
	Icon        string  `json:"icon,omitempty"`
	Color       string  `json:"color,omitempty"`
	Params      []Param `json:"params,omitempty"`
	Ports       []Port  `json:"ports,omitempty"`
	Node        Node    `json:"-"`
}

// PortsFor resolves the instance's output ports: dynamic ports when the node
// supports them and the config yields any, otherwise the static ports,
// otherwise the single default port.
func (s *Spec) PortsFor(cfg Config) []Port {
	if dp, ok := s.Node.(DynamicPortNode); ok {
		if ports := dp.DynamicPorts(cfg); len(ports) > 0 {
			return ports
		}
	}
	if len(s.Ports) > 0 {
		return s.Ports
	}
	return []Port{{ID: DefaultPort, Label: "Default"}}
}

// Registry maps node type names to their specs. Registration is append-only;
// re-registering a type is an error. Lookup is O(1) and safe for concurrent
// use.
type Registry struct {
	mu    sync.RWMutex
	specs map[string]*Spec
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{specs: make(map[string]*Spec)}
}

// Register adds a spec. The spec must have a type name and a node capability
// (pseudo-types start/end register with a nil-op node).
func (r *Registry) Register(spec *Spec) error {
	if spec == nil || spec.Type == "" {
		return &FlowError{Message: "spec must have a type", Code: CodeRegistry}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.specs[spec.Type]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateNodeType, spec.Type)
	}
	r.specs[spec.Type] = spec
	return nil
}

// MustRegister registers or panics. For package-level built-in registration.
func (r *Registry) MustRegister(spec *Spec) {
	if err := r.Register(spec); err != nil {
		panic(err)
	}
}

// Get returns the spec for a node type.
func (r *Registry) Get(nodeType string) (*Spec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.specs[nodeType]
	return s, ok
}

// Types returns all registered type names, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.specs))
	for t := range r.specs {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Specs returns all registered specs ordered by type name.
func (r *Registry) Specs() []*Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.specs))
	for t := range r.specs {
		types = append(types, t)
	}
	sort.Strings(types)
	out := make([]*Spec, 0, len(types))
	for _, t := range types {
		out = append(out, r.specs[t])
	}
	return out
}
