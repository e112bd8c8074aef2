// Package db runs queries against configured databases and returns materialised tables.
//
// A Handle is one configured database. Handles are created from a Definition by the
// factory registered for its kind; new kinds are added with RegisterKind.
package db

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"avro-exporter/dataframe"
)

var (
	ErrUnsupportedDatabaseKind = errors.New("unsupported database kind")
	ErrUnknownAlias            = errors.New("unknown database alias")
)

// Handle is a database that can execute a query.
type Handle interface {
	Kind() string
	ExecuteQuery(ctx context.Context, query string) (*dataframe.Table, error)
}

// Definition describes a configured database connection.
type Definition struct {
	Kind     string `yaml:"kind"`
	DSN      string `yaml:"dsn"`
	Project  string `yaml:"project"`
	Location string `yaml:"location"`
}

type Factory func(def Definition) (Handle, error)

var (
	kindsMu sync.RWMutex
	kinds   = map[string]Factory{}
)

// RegisterKind makes a database kind available to NewHandle. Registering a kind twice replaces it.
func RegisterKind(kind string, f Factory) {
	kindsMu.Lock()
	defer kindsMu.Unlock()
	kinds[kind] = f
}

// Kinds lists the registered database kinds.
func Kinds() []string {
	kindsMu.RLock()
	defer kindsMu.RUnlock()
	out := make([]string, 0, len(kinds))
	for k := range kinds {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// NewHandle builds the handle for def.Kind.
func NewHandle(def Definition) (Handle, error) {
	kindsMu.RLock()
	f, ok := kinds[def.Kind]
	kindsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDatabaseKind, def.Kind)
	}
	return f(def)
}
