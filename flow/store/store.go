// Package store provides persistence for workflow definitions.
//
// A Store holds flow.Definition documents keyed by their ID. Implementations
// cover local files (zero setup), SQLite (single-file database), and MySQL
// (shared deployments). All state is stored as JSON, so any backend that can
// hold a text blob can implement Store.
package store

import (
	"context"
	"errors"

	"github.com/dshills/agentflow-go/flow"
)

// ErrNotFound is returned when a requested workflow ID does not exist.
var ErrNotFound = errors.New("workflow not found")

// Store persists workflow definitions.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Save persists a definition, replacing any existing one with the same
	// ID.
	Save(ctx context.Context, def *flow.Definition) error

	// Load retrieves a definition by ID. Returns ErrNotFound if the ID does
	// not exist.
	Load(ctx context.Context, id string) (*flow.Definition, error)

	// Delete removes a definition. Returns ErrNotFound if the ID does not
	// exist.
	Delete(ctx context.Context, id string) error

	// ListAll returns every stored definition.
	ListAll(ctx context.Context) ([]*flow.Definition, error)

	// ListTemplates returns definitions marked as templates.
	ListTemplates(ctx context.Context) ([]*flow.Definition, error)

	// ListUserWorkflows returns definitions not marked as templates.
	ListUserWorkflows(ctx context.Context) ([]*flow.Definition, error)

	// Exists reports whether a definition with the given ID is stored.
	Exists(ctx context.Context, id string) (bool, error)

	// Close releases the store's resources. Safe to call more than once.
	Close() error
}

// InstallTemplates writes the built-in templates into the store,
// overwriting any previous copies so installs always reflect the current
// built-in set. Returns the number of templates written.
func InstallTemplates(ctx context.Context, s Store) (int, error) {
	installed := 0
	for _, def := range flow.Templates() {
		if err := s.Save(ctx, def); err != nil {
			return installed, err
		}
		installed++
	}
	return installed, nil
}

func splitByTemplate(defs []*flow.Definition, wantTemplate bool) []*flow.Definition {
	out := make([]*flow.Definition, 0, len(defs))
	for _, d := range defs {
		if d.IsTemplate == wantTemplate {
			out = append(out, d)
		}
	}
	return out
}
