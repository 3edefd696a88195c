package flow

import (
	"context"
	"errors"
	"testing"
)

type nopNode struct{}

func (nopNode) Execute(context.Context, State, *ExecContext, Config) (Delta, error) {
	return Delta{}, nil
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()
	spec := &Spec{Type: "custom", Label: "Custom", Node: nopNode{}}

	if err := r.Register(spec); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	got, ok := r.Get("custom")
	if !ok || got.Label != "Custom" {
		t.Errorf("lookup failed: %v %v", got, ok)
	}
	if _, ok := r.Get("missing"); ok {
		t.Error("unknown type must not resolve")
	}
}

func TestRegistry_DuplicateRejected(t *testing.T) {
	r := NewRegistry()
	spec := &Spec{Type: "custom", Node: nopNode{}}
	if err := r.Register(spec); err != nil {
		t.Fatal(err)
	}
	err := r.Register(&Spec{Type: "custom", Node: nopNode{}})
	if !errors.Is(err, ErrDuplicateNodeType) {
		t.Errorf("expected ErrDuplicateNodeType, got %v", err)
	}
}

func TestConfig_Accessors(t *testing.T) {
	cfg := Config{
		"s":    "text",
		"n":    float64(7), // JSON numbers decode as float64
		"ni":   3,
		"f":    2.5,
		"b":    true,
		"m":    map[string]any{"k": "v"},
		"json": `{"a": "b"}`,
	}

	if got := cfg.Str("s", "d"); got != "text" {
		t.Errorf("Str = %q", got)
	}
	if got := cfg.Str("missing", "d"); got != "d" {
		t.Errorf("Str default = %q", got)
	}
	if got := cfg.Int("n", 0); got != 7 {
		t.Errorf("Int from float64 = %d", got)
	}
	if got := cfg.Int("ni", 0); got != 3 {
		t.Errorf("Int = %d", got)
	}
	if got := cfg.Float("f", 0); got != 2.5 {
		t.Errorf("Float = %v", got)
	}
	if got := cfg.Bool("b", false); !got {
		t.Error("Bool = false")
	}
	if got := cfg.Bool("missing", true); !got {
		t.Error("Bool default = false")
	}
	if m := cfg.Map("m"); m["k"] != "v" {
		t.Errorf("Map = %v", m)
	}
	// JSON-encoded strings decode to maps too.
	if m := cfg.Map("json"); m["a"] != "b" {
		t.Errorf("Map from JSON string = %v", m)
	}
	if m := cfg.Map("missing"); m != nil {
		t.Errorf("Map missing = %v", m)
	}
}

func TestSpec_PortsFor(t *testing.T) {
	static := &Spec{
		Type:  "fixed",
		Ports: []Port{{ID: "a"}, {ID: "b"}},
		Node:  nopNode{},
	}
	ports := static.PortsFor(nil)
	if len(ports) != 2 {
		t.Errorf("static ports = %v", ports)
	}
}
