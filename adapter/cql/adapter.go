// Package cql provides the CQL session interfaces scenarios run their statements through.
package cql

import "context"

// Consistency is a CQL consistency level. Values match the driver's wire codes.
type Consistency uint16

// Consistency levels used by the harness.
const (
	Any         Consistency = 0x00
	One         Consistency = 0x01
	Quorum      Consistency = 0x04
	All         Consistency = 0x05
	LocalQuorum Consistency = 0x06
	LocalOne    Consistency = 0x0A
)

// Session represents a raw CQL session from the underlying driver.
//
// The harness only needs statement execution and row iteration, so the
// interface stays small enough for tests to provide an in-memory fake.
type Session interface {
	// Query creates a new query for the given statement.
	//
	// Parameters:
	//   - stmt: CQL statement with ? placeholders
	//   - values: Values to bind to placeholders
	//
	// Returns:
	//   - Query: A query builder
	Query(stmt string, values ...any) Query

	// Close terminates the session.
	Close()
}

// Query represents a raw CQL query from the underlying driver.
type Query interface {
	// Consistency sets the consistency level.
	Consistency(c Consistency) Query

	// ExecContext executes the query with context.
	ExecContext(ctx context.Context) error

	// ScanContext executes and scans a single row with context.
	ScanContext(ctx context.Context, dest ...any) error

	// IterContext returns an iterator for results with context.
	IterContext(ctx context.Context) Iter

	// Statement returns the CQL statement.
	Statement() string

	// Values returns the bound values.
	Values() []any
}

// Iter represents a raw CQL iterator from the underlying driver.
type Iter interface {
	// Scan reads the next row.
	Scan(dest ...any) bool

	// MapScan reads the next row into a map.
	MapScan(m map[string]any) bool

	// SliceMap reads all rows into a slice of maps.
	SliceMap() ([]map[string]any, error)

	// Close closes the iterator and reports any iteration error.
	Close() error
}
