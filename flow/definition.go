package flow

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Position is a node's location on the editor canvas.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NodeInstance is one node placed in a workflow: a registry type plus the
// user-bound parameter values.
type NodeInstance struct {
	ID       string   `json:"id"`
	Type     string   `json:"node_type"`
	Label    string   `json:"label,omitempty"`
	Config   Config   `json:"config,omitempty"`
	Position Position `json:"position"`
}

// DisplayLabel returns the label, falling back to the node type.
func (n NodeInstance) DisplayLabel() string {
	if n.Label != "" {
		return n.Label
	}
	return n.Type
}

// Edge connects a source node's output port to a target node.
// SourcePort defaults to "default" when empty.
type Edge struct {
	ID         string `json:"id"`
	Source     string `json:"source"`
	Target     string `json:"target"`
	SourcePort string `json:"source_port,omitempty"`
	Label      string `json:"label,omitempty"`
}

// Port returns the edge's source port, defaulting to DefaultPort.
func (e Edge) Port() string {
	if e.SourcePort == "" {
		return DefaultPort
	}
	return e.SourcePort
}

// Pseudo node types marking the graph boundaries. Neither executes.
const (
	TypeStart = "start"
	TypeEnd   = "end"
)

// Definition is an immutable snapshot of a workflow graph: its nodes, its
// edges, and its metadata. Executing sessions hold the compiled form; a new
// version replaces the definition atomically under the same ID.
type Definition struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Description  string         `json:"description,omitempty"`
	Nodes        []NodeInstance `json:"nodes"`
	Edges        []Edge         `json:"edges"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	IsTemplate   bool           `json:"is_template,omitempty"`
	TemplateName string         `json:"template_name,omitempty"`
}

// NewDefinition creates an empty definition with a fresh ID and timestamps.
func NewDefinition(name, description string) *Definition {
	now := time.Now().UTC()
	return &Definition{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Touch updates the modification timestamp.
func (d *Definition) Touch() {
	d.UpdatedAt = time.Now().UTC()
}

// NodeByID returns the node with the given ID.
func (d *Definition) NodeByID(id string) (NodeInstance, bool) {
	for _, n := range d.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return NodeInstance{}, false
}

// StartNode returns the single start pseudo-node, if present.
func (d *Definition) StartNode() (NodeInstance, bool) {
	for _, n := range d.Nodes {
		if n.Type == TypeStart {
			return n, true
		}
	}
	return NodeInstance{}, false
}

// EndNodes returns all end pseudo-nodes.
func (d *Definition) EndNodes() []NodeInstance {
	var out []NodeInstance
	for _, n := range d.Nodes {
		if n.Type == TypeEnd {
			out = append(out, n)
		}
	}
	return out
}

// EdgesFrom returns the edges whose source is the given node, in
// definition order.
func (d *Definition) EdgesFrom(id string) []Edge {
	var out []Edge
	for _, e := range d.Edges {
		if e.Source == id {
			out = append(out, e)
		}
	}
	return out
}

// EdgesTo returns the edges whose target is the given node.
func (d *Definition) EdgesTo(id string) []Edge {
	var out []Edge
	for _, e := range d.Edges {
		if e.Target == id {
			out = append(out, e)
		}
	}
	return out
}

// Validate checks the graph structure and returns a list of human-readable
// problems. An empty list means the definition is structurally valid.
func (d *Definition) Validate() []string {
	var problems []string

	var startNodes []NodeInstance
	for _, n := range d.Nodes {
		if n.Type == TypeStart {
			startNodes = append(startNodes, n)
		}
	}
	switch {
	case len(startNodes) == 0:
		problems = append(problems, "Workflow must have exactly one Start node.")
	case len(startNodes) > 1:
		problems = append(problems, "Workflow must have exactly one Start node (found multiple).")
	}

	if len(d.EndNodes()) == 0 {
		problems = append(problems, "Workflow must have at least one End node.")
	}

	if len(startNodes) > 0 && len(d.EdgesFrom(startNodes[0].ID)) == 0 {
		problems = append(problems, "Start node must have at least one outgoing edge.")
	}

	nodeIDs := make(map[string]bool, len(d.Nodes))
	for _, n := range d.Nodes {
		nodeIDs[n.ID] = true
	}
	for _, e := range d.Edges {
		if !nodeIDs[e.Source] {
			problems = append(problems, fmt.Sprintf("Edge references unknown source node: %s", e.Source))
		}
		if !nodeIDs[e.Target] {
			problems = append(problems, fmt.Sprintf("Edge references unknown target node: %s", e.Target))
		}
	}

	for _, n := range d.Nodes {
		if n.Type == TypeStart || n.Type == TypeEnd {
			continue
		}
		if len(d.EdgesTo(n.ID)) == 0 && len(d.EdgesFrom(n.ID)) == 0 {
			problems = append(problems, fmt.Sprintf("Node '%s' (%s) is disconnected (no edges).", n.DisplayLabel(), n.ID))
		}
	}

	return problems
}
