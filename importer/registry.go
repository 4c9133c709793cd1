// Package importer introspects a live data source and builds the schema
// definition: tables, fields, indexes and relations, with guessed relation
// aliases. Dialect-specific inspectors and type mappers are registered in
// an explicit registry keyed by dialect name and resolved at configuration
// time, never from untrusted input.
package importer

import (
	"context"
	"sort"
	"sync"

	"github.com/fixtura/fixtura/dialect"
)

// RawTable is an introspected table or view before definition building.
type RawTable struct {
	Name string
	View bool
}

// RawColumn is an introspected column. Type carries the raw database type
// string exactly as reported, e.g. "int(11) unsigned".
type RawColumn struct {
	Name          string
	Type          string
	NotNull       bool
	Default       any
	Primary       bool
	AutoIncrement bool
}

// RawIndex is an introspected secondary index.
type RawIndex struct {
	Name   string
	Fields []string
	Unique bool
}

// RawForeignKey is an introspected foreign-key constraint. Table/Field is
// the owning side holding the key; ForeignTable/ForeignField is the side
// pointed to.
type RawForeignKey struct {
	Name         string
	Table        string
	Field        string
	ForeignTable string
	ForeignField string
}

// Inspector is the introspection contract a dialect implements.
type Inspector interface {
	// Tables lists all tables and views of the data source.
	Tables(ctx context.Context) ([]RawTable, error)
	// Columns lists the columns of a table in declaration order.
	Columns(ctx context.Context, table string) ([]RawColumn, error)
	// Indexes lists the secondary indexes of a table.
	Indexes(ctx context.Context, table string) ([]RawIndex, error)
	// ForeignKeys lists the foreign-key constraints owned by a table.
	ForeignKeys(ctx context.Context, table string) ([]RawForeignKey, error)
}

// InspectorFunc constructs an Inspector for an open driver and a target
// database name (empty when the dialect can discover it itself).
type InspectorFunc func(drv dialect.Driver, database string) Inspector

var (
	registryMu sync.RWMutex
	inspectors = make(map[string]InspectorFunc)
	mappers    = make(map[string]TypeMapper)
)

// Register makes a dialect available to the importer. It is called from
// the init functions of the dialect files in this package; external
// dialects may register their own.
func Register(name string, f InspectorFunc, m TypeMapper) {
	registryMu.Lock()
	defer registryMu.Unlock()
	inspectors[name] = f
	mappers[name] = m
}

// Dialects returns the names of all registered dialects, sorted.
func Dialects() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(inspectors))
	for name := range inspectors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func lookup(name string) (InspectorFunc, TypeMapper, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := inspectors[name]
	if !ok {
		return nil, nil, false
	}
	return f, mappers[name], true
}
