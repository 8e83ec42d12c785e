package testutil

import (
	"context"
	"errors"
	"reflect"
	"sync"

	"github.com/arloliu/syncpoint/adapter/cql"
)

// ErrNotFound is returned by MockQuery.ScanContext when no row matched.
var ErrNotFound = errors.New("not found")

// Rows is a result set produced by a QueryHandler.
type Rows struct {
	Columns []string
	Values  [][]any
}

// QueryHandler executes one statement for a MockSession.
type QueryHandler func(ctx context.Context, stmt string, values []any) (Rows, error)

// MockSession is a mock implementation of cql.Session for testing.
type MockSession struct {
	mu       sync.Mutex
	closed   bool
	handler  QueryHandler
	executed []string

	// OnQuery overrides the handler for custom behavior.
	OnQuery func(stmt string, values ...any) cql.Query
}

// Compile-time assertion that MockSession implements cql.Session.
var _ cql.Session = (*MockSession)(nil)

// NewMockSession creates a mock session that runs statements through handler.
// A nil handler answers every statement with no rows.
func NewMockSession(handler QueryHandler) *MockSession {
	if handler == nil {
		handler = func(context.Context, string, []any) (Rows, error) { return Rows{}, nil }
	}

	return &MockSession{handler: handler}
}

// Query returns a mock query for the given statement.
func (m *MockSession) Query(stmt string, values ...any) cql.Query {
	m.mu.Lock()
	onQuery := m.OnQuery
	m.mu.Unlock()

	if onQuery != nil {
		return onQuery(stmt, values...)
	}

	return &MockQuery{session: m, stmt: stmt, values: values, consistency: cql.Quorum}
}

// Close closes the session.
func (m *MockSession) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
}

// IsClosed returns whether Close was called.
func (m *MockSession) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.closed
}

// Statements returns every statement executed so far, in order.
func (m *MockSession) Statements() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, len(m.executed))
	copy(out, m.executed)

	return out
}

func (m *MockSession) run(ctx context.Context, stmt string, values []any) (Rows, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return Rows{}, errors.New("gocql: session has been closed")
	}
	m.executed = append(m.executed, stmt)
	m.mu.Unlock()

	return m.handler(ctx, stmt, values)
}

// MockQuery is a mock implementation of cql.Query for testing.
type MockQuery struct {
	session     *MockSession
	stmt        string
	values      []any
	consistency cql.Consistency
}

// Compile-time assertion that MockQuery implements cql.Query.
var _ cql.Query = (*MockQuery)(nil)

// Consistency sets the consistency level.
func (q *MockQuery) Consistency(c cql.Consistency) cql.Query {
	q.consistency = c
	return q
}

// GetConsistency returns the consistency level set on the query.
func (q *MockQuery) GetConsistency() cql.Consistency {
	return q.consistency
}

// ExecContext executes the query, discarding any rows.
func (q *MockQuery) ExecContext(ctx context.Context) error {
	_, err := q.session.run(ctx, q.stmt, q.values)
	return err
}

// ScanContext executes the query and scans the first row.
func (q *MockQuery) ScanContext(ctx context.Context, dest ...any) error {
	rows, err := q.session.run(ctx, q.stmt, q.values)
	if err != nil {
		return err
	}
	if len(rows.Values) == 0 {
		return ErrNotFound
	}
	scanRow(rows.Values[0], dest)

	return nil
}

// IterContext executes the query and returns an iterator over its rows.
func (q *MockQuery) IterContext(ctx context.Context) cql.Iter {
	rows, err := q.session.run(ctx, q.stmt, q.values)
	iter := NewMockIter(rows.Columns...)
	iter.rows = rows.Values
	iter.closeErr = err

	return iter
}

// Statement returns the CQL statement.
func (q *MockQuery) Statement() string {
	return q.stmt
}

// Values returns the bound values.
func (q *MockQuery) Values() []any {
	return q.values
}

// MockIter is a mock implementation of cql.Iter for testing.
type MockIter struct {
	mu       sync.Mutex
	columns  []string
	rows     [][]any
	index    int
	closeErr error
}

// Compile-time assertion that MockIter implements cql.Iter.
var _ cql.Iter = (*MockIter)(nil)

// NewMockIter creates a new mock iterator with the given column names.
func NewMockIter(columns ...string) *MockIter {
	return &MockIter{columns: columns}
}

// AddRow adds a row to the iterator.
func (m *MockIter) AddRow(values ...any) *MockIter {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rows = append(m.rows, values)

	return m
}

// SetCloseError configures the close error.
func (m *MockIter) SetCloseError(err error) *MockIter {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closeErr = err

	return m
}

// Scan reads the next row.
func (m *MockIter) Scan(dest ...any) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closeErr != nil || m.index >= len(m.rows) {
		return false
	}
	scanRow(m.rows[m.index], dest)
	m.index++

	return true
}

// MapScan reads the next row into a map keyed by column name.
func (m *MockIter) MapScan(dest map[string]any) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closeErr != nil || m.index >= len(m.rows) {
		return false
	}
	row := m.rows[m.index]
	for i := 0; i < len(m.columns) && i < len(row); i++ {
		dest[m.columns[i]] = row[i]
	}
	m.index++

	return true
}

// SliceMap returns all remaining rows.
func (m *MockIter) SliceMap() ([]map[string]any, error) {
	var out []map[string]any
	for {
		row := make(map[string]any)
		if !m.MapScan(row) {
			break
		}
		out = append(out, row)
	}

	return out, m.Close()
}

// Close closes the iterator.
func (m *MockIter) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.closeErr
}

func scanRow(row []any, dest []any) {
	for i := 0; i < len(dest) && i < len(row); i++ {
		copyValue(dest[i], row[i])
	}
}

// copyValue copies src into the value dest points to when the types are
// assignable, or both numeric.
func copyValue(dest, src any) {
	dv := reflect.ValueOf(dest)
	if src == nil || dv.Kind() != reflect.Pointer || dv.IsNil() {
		return
	}

	target := dv.Elem()
	sv := reflect.ValueOf(src)
	switch {
	case sv.Type().AssignableTo(target.Type()):
		target.Set(sv)
	case isNumeric(sv.Kind()) && isNumeric(target.Kind()):
		target.Set(sv.Convert(target.Type()))
	}
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}
