package db

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/hashicorp/go-multierror"

	"avro-exporter/dataframe"
)

// Registry maps database aliases to handles.
type Registry struct {
	handles map[string]Handle
}

// NewRegistry builds a handle for every definition. All invalid definitions are reported together.
func NewRegistry(defs map[string]Definition) (*Registry, error) {
	r := &Registry{handles: make(map[string]Handle, len(defs))}
	var errs *multierror.Error
	for alias, def := range defs {
		h, err := NewHandle(def)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("database %q: %w", alias, err))
			continue
		}
		r.handles[alias] = h
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) Add(alias string, h Handle) {
	if r.handles == nil {
		r.handles = map[string]Handle{}
	}
	r.handles[alias] = h
}

func (r *Registry) Get(alias string) (Handle, error) {
	h, ok := r.handles[alias]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlias, alias)
	}
	return h, nil
}

func (r *Registry) Aliases() []string {
	out := make([]string, 0, len(r.handles))
	for a := range r.handles {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// ReadTable resolves alias and runs query against it. The whole result is held in memory.
func (r *Registry) ReadTable(ctx context.Context, alias, query string) (*dataframe.Table, error) {
	h, err := r.Get(alias)
	if err != nil {
		return nil, err
	}
	slog.DebugContext(ctx, "Executing query", "alias", alias, "kind", h.Kind())
	return h.ExecuteQuery(ctx, query)
}
