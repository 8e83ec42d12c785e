package testutil

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/arloliu/syncpoint/types"
)

var (
	reDropKeyspace   = regexp.MustCompile(`(?i)^DROP KEYSPACE (IF EXISTS )?(\w+)$`)
	reCreateKeyspace = regexp.MustCompile(`(?i)^CREATE KEYSPACE (IF NOT EXISTS )?(\w+) WITH (.+)$`)
	reInitialTablets = regexp.MustCompile(`(?i)tablets\s*=\s*\{\s*'initial'\s*:\s*(\d+)\s*\}`)
	reCreateTable    = regexp.MustCompile(`(?i)^CREATE TABLE (IF NOT EXISTS )?(\w+)\.(\w+) ?\((.+)\)$`)
	reDropTable      = regexp.MustCompile(`(?i)^DROP TABLE (IF EXISTS )?(\w+)\.(\w+)$`)
	reTruncate       = regexp.MustCompile(`(?i)^TRUNCATE (TABLE )?(\w+)\.(\w+)$`)
	reInsert         = regexp.MustCompile(`(?i)^INSERT INTO (\w+)\.(\w+) ?\(([^)]*)\) VALUES ?\((.*)\)$`)
	reCount          = regexp.MustCompile(`(?i)^SELECT count\(\*\) FROM (\w+)\.(\w+)$`)
	reSelect         = regexp.MustCompile(`(?i)^SELECT (.+) FROM (\w+)\.(\w+)$`)
	reSchemaTable    = regexp.MustCompile(`(?i)^SELECT id FROM system_schema\.tables WHERE keyspace_name = \? AND table_name = \?$`)
	reTablets        = regexp.MustCompile(`(?i)^SELECT last_token, replicas FROM system\.tablets WHERE table_id = \?$`)
	rePrimaryKey     = regexp.MustCompile(`(?i)^PRIMARY KEY ?\(\s*(\w+)`)
)

type fakeKeyspace struct {
	name    string
	tablets int
	tables  map[string]*fakeTable
}

type fakeTablet struct {
	lastToken int64
	replica   types.TabletReplica

	// prev is reported instead of replica until visibleAt.
	prev      types.TabletReplica
	visibleAt time.Time
}

// visible returns the replica readers of system.tablets see at now.
func (t fakeTablet) visible(now time.Time) types.TabletReplica {
	if now.Before(t.visibleAt) {
		return t.prev
	}

	return t.replica
}

// fakeTable is a table with its rows, tablet map and on-disk state.
type fakeTable struct {
	id       uuid.UUID
	keyspace string
	name     string
	columns  []string
	key      string
	rows     map[string]map[string]any
	tablets  []fakeTablet
	sstables []int
	dirty    bool
	dropped  bool

	// guard identifies the current streaming attempt; writers from earlier
	// attempts discard their data.
	guard   int
	writers int
}

func (t *fakeTable) qualified() string {
	return t.keyspace + "." + t.name
}

func (t *fakeTable) tabletFor(token int64) int {
	for i, tablet := range t.tablets {
		if token <= tablet.lastToken {
			return i
		}
	}

	return len(t.tablets) - 1
}

func (t *fakeTable) copyRows() map[string]map[string]any {
	out := make(map[string]map[string]any, len(t.rows))
	for k, row := range t.rows {
		cp := make(map[string]any, len(row))
		for col, v := range row {
			cp[col] = v
		}
		out[k] = cp
	}

	return out
}

// sortedRows returns rows ordered by primary key.
func (t *fakeTable) sortedRows() []map[string]any {
	rows := make([]map[string]any, 0, len(t.rows))
	for _, row := range t.rows {
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		return lessValue(rows[i][t.key], rows[j][t.key])
	})

	return rows
}

// flushLocked writes the memtable to a new sstable generation.
func (c *FakeCluster) flushLocked(t *fakeTable) {
	if !t.dirty {
		return
	}
	c.generation++
	t.sstables = append(t.sstables, c.generation)
	t.dirty = false
}

// sstableFiles lists the component files of every sstable of t.
func sstableFiles(t *fakeTable) []string {
	var files []string
	for _, gen := range t.sstables {
		for _, component := range []string{"Data.db", "Index.db", "Statistics.db", "Summary.db", "TOC.txt"} {
			files = append(files, fmt.Sprintf("me-%d-big-%s", gen, component))
		}
	}

	return files
}

// execCQL answers the statements scenarios issue.
func (c *FakeCluster) execCQL(ctx context.Context, stmt string, values []any) (Rows, error) {
	stmt = strings.TrimSuffix(strings.Join(strings.Fields(stmt), " "), ";")
	stmt = strings.TrimSpace(stmt)

	switch {
	case reDropKeyspace.MatchString(stmt):
		m := reDropKeyspace.FindStringSubmatch(stmt)
		return Rows{}, c.dropKeyspace(m[2], m[1] != "")
	case reCreateKeyspace.MatchString(stmt):
		m := reCreateKeyspace.FindStringSubmatch(stmt)
		return Rows{}, c.createKeyspace(m[2], m[3], m[1] != "")
	case reCreateTable.MatchString(stmt):
		m := reCreateTable.FindStringSubmatch(stmt)
		return Rows{}, c.createTable(m[2], m[3], m[4], m[1] != "")
	case reDropTable.MatchString(stmt):
		m := reDropTable.FindStringSubmatch(stmt)
		return Rows{}, c.dropTable(ctx, m[2], m[3], m[1] != "")
	case reTruncate.MatchString(stmt):
		m := reTruncate.FindStringSubmatch(stmt)
		return Rows{}, c.truncate(m[2], m[3])
	case reInsert.MatchString(stmt):
		m := reInsert.FindStringSubmatch(stmt)
		return Rows{}, c.insert(m[1], m[2], m[3], m[4], values)
	case reSchemaTable.MatchString(stmt):
		return c.schemaTableID(values)
	case reTablets.MatchString(stmt):
		return c.tabletRows(values)
	case reCount.MatchString(stmt):
		m := reCount.FindStringSubmatch(stmt)
		return c.count(m[1], m[2])
	case reSelect.MatchString(stmt):
		m := reSelect.FindStringSubmatch(stmt)
		return c.selectRows(m[2], m[3], m[1])
	}

	return Rows{}, fmt.Errorf("line 1:0 no viable alternative at input %q", stmt)
}

func (c *FakeCluster) tableLocked(keyspace, table string) (*fakeTable, error) {
	ks, ok := c.keyspaces[strings.ToLower(keyspace)]
	if !ok {
		return nil, fmt.Errorf("Keyspace %s does not exist", keyspace)
	}
	t, ok := ks.tables[strings.ToLower(table)]
	if !ok {
		return nil, fmt.Errorf("unconfigured table %s", table)
	}

	return t, nil
}

func (c *FakeCluster) createKeyspace(name, with string, ifNotExists bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := strings.ToLower(name)
	if _, ok := c.keyspaces[key]; ok {
		if ifNotExists {
			return nil
		}
		return fmt.Errorf("Keyspace %s already exists", name)
	}

	tablets := 1
	if m := reInitialTablets.FindStringSubmatch(with); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 {
			return fmt.Errorf("invalid initial tablet count %q", m[1])
		}
		tablets = n
	}

	c.keyspaces[key] = &fakeKeyspace{name: key, tablets: tablets, tables: make(map[string]*fakeTable)}
	c.logAll("INFO", "stmt", "migration_manager", "Create new Keyspace: %s", key)

	return nil
}

func (c *FakeCluster) dropKeyspace(name string, ifExists bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := strings.ToLower(name)
	ks, ok := c.keyspaces[key]
	if !ok {
		if ifExists {
			return nil
		}
		return fmt.Errorf("Cannot drop non existing keyspace '%s'", name)
	}

	for _, t := range ks.tables {
		t.dropped = true
	}
	delete(c.keyspaces, key)
	c.logAll("INFO", "stmt", "migration_manager", "Drop Keyspace '%s'", key)

	return nil
}

func (c *FakeCluster) createTable(keyspace, name, defs string, ifNotExists bool) error {
	columns, key, err := parseColumns(defs)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ks, ok := c.keyspaces[strings.ToLower(keyspace)]
	if !ok {
		return fmt.Errorf("Keyspace %s does not exist", keyspace)
	}
	tableKey := strings.ToLower(name)
	if _, ok := ks.tables[tableKey]; ok {
		if ifNotExists {
			return nil
		}
		return fmt.Errorf("Table %s.%s already exists", keyspace, name)
	}

	t := &fakeTable{
		id:       uuid.New(),
		keyspace: ks.name,
		name:     tableKey,
		columns:  columns,
		key:      key,
		rows:     make(map[string]map[string]any),
		tablets:  c.allocateTabletsLocked(ks.tablets),
	}
	ks.tables[tableKey] = t
	c.logAll("INFO", "stmt", "migration_manager", "Create new ColumnFamily: %s id=%s", t.qualified(), t.id)

	return nil
}

// allocateTabletsLocked splits the token ring into n tablets placed round
// robin, starting from a rotating node while the allocator shuffles.
func (c *FakeCluster) allocateTabletsLocked(n int) []fakeTablet {
	start := 0
	if c.shuffling() {
		c.shuffleSeq++
		start = c.shuffleSeq
	}

	const ringStart = uint64(1) << 63
	step := math.MaxUint64 / uint64(n)

	tablets := make([]fakeTablet, n)
	for i := range tablets {
		last := int64(math.MaxInt64)
		if i < n-1 {
			last = int64(ringStart + uint64(i+1)*step)
		}
		node := c.Nodes[(start+i)%len(c.Nodes)]
		tablets[i] = fakeTablet{lastToken: last, replica: types.TabletReplica{HostID: node.HostID}}
	}

	return tablets
}

// dropTable blocks while streaming writers are still applying to the table.
func (c *FakeCluster) dropTable(ctx context.Context, keyspace, name string, ifExists bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, err := c.tableLocked(keyspace, name)
	if err != nil {
		if ifExists {
			return nil
		}
		return err
	}

	c.logAll("INFO", "stmt", "schema_tables", "Dropping %s id=%s version=%s", t.qualified(), t.id, uuid.New())
	for t.writers > 0 {
		changed := c.changed
		c.mu.Unlock()
		select {
		case <-changed:
		case <-ctx.Done():
			c.mu.Lock()
			return ctx.Err()
		case <-c.ctx.Done():
			c.mu.Lock()
			return c.ctx.Err()
		}
		c.mu.Lock()
	}

	t.dropped = true
	if ks, ok := c.keyspaces[t.keyspace]; ok {
		delete(ks.tables, t.name)
	}

	return nil
}

func (c *FakeCluster) truncate(keyspace, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, err := c.tableLocked(keyspace, name)
	if err != nil {
		return err
	}
	t.rows = make(map[string]map[string]any)
	t.sstables = nil
	t.dirty = false
	c.logAll("INFO", "stmt", "database", "Truncating %s", t.qualified())

	return nil
}

func (c *FakeCluster) insert(keyspace, name, cols, vals string, bound []any) error {
	columns := splitList(cols)
	literals := splitList(vals)
	if len(columns) != len(literals) {
		return fmt.Errorf("Unmatched column names/values")
	}

	row := make(map[string]any, len(columns))
	next := 0
	for i, lit := range literals {
		if lit == "?" {
			if next >= len(bound) {
				return fmt.Errorf("Invalid amount of bind variables: expected %d, got %d", next+1, len(bound))
			}
			row[strings.ToLower(columns[i])] = bound[next]
			next++
			continue
		}
		row[strings.ToLower(columns[i])] = parseLiteral(lit)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	t, err := c.tableLocked(keyspace, name)
	if err != nil {
		return err
	}
	pk, ok := row[t.key]
	if !ok {
		return fmt.Errorf("Missing mandatory PRIMARY KEY part %s", t.key)
	}
	for col := range row {
		if !contains(t.columns, col) {
			return fmt.Errorf("Undefined column name %s", col)
		}
	}
	t.rows[fmt.Sprint(pk)] = row
	t.dirty = true

	return nil
}

func (c *FakeCluster) count(keyspace, name string) (Rows, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, err := c.tableLocked(keyspace, name)
	if err != nil {
		return Rows{}, err
	}

	return Rows{Columns: []string{"count"}, Values: [][]any{{int64(len(t.rows))}}}, nil
}

func (c *FakeCluster) selectRows(keyspace, name, projection string) (Rows, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, err := c.tableLocked(keyspace, name)
	if err != nil {
		return Rows{}, err
	}

	columns := t.columns
	if strings.TrimSpace(projection) != "*" {
		columns = nil
		for _, col := range splitList(projection) {
			col = strings.ToLower(col)
			if !contains(t.columns, col) {
				return Rows{}, fmt.Errorf("Undefined column name %s", col)
			}
			columns = append(columns, col)
		}
	}

	out := Rows{Columns: columns}
	for _, row := range t.sortedRows() {
		values := make([]any, len(columns))
		for i, col := range columns {
			values[i] = row[col]
		}
		out.Values = append(out.Values, values)
	}

	return out, nil
}

func (c *FakeCluster) schemaTableID(values []any) (Rows, error) {
	if len(values) != 2 {
		return Rows{}, fmt.Errorf("Invalid amount of bind variables: expected 2, got %d", len(values))
	}
	keyspace, _ := values[0].(string)
	table, _ := values[1].(string)

	c.mu.Lock()
	defer c.mu.Unlock()

	out := Rows{Columns: []string{"id"}}
	if t, err := c.tableLocked(keyspace, table); err == nil {
		out.Values = [][]any{{t.id}}
	}

	return out, nil
}

func (c *FakeCluster) tabletRows(values []any) (Rows, error) {
	if len(values) != 1 {
		return Rows{}, fmt.Errorf("Invalid amount of bind variables: expected 1, got %d", len(values))
	}
	id, ok := values[0].(uuid.UUID)
	if !ok {
		return Rows{}, fmt.Errorf("Invalid table_id %v", values[0])
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	out := Rows{Columns: []string{"last_token", "replicas"}}
	for _, ks := range c.keyspaces {
		for _, t := range ks.tables {
			if t.id != id {
				continue
			}
			now := time.Now()
			for _, tablet := range t.tablets {
				out.Values = append(out.Values, []any{tablet.lastToken, []types.TabletReplica{tablet.visible(now)}})
			}
		}
	}

	return out, nil
}

// parseColumns reads "(a int PRIMARY KEY, b text)" or
// "(a int, b text, PRIMARY KEY (a))" column definitions.
func parseColumns(defs string) ([]string, string, error) {
	var columns []string
	key := ""
	for _, part := range splitTopLevel(defs) {
		if m := rePrimaryKey.FindStringSubmatch(part); m != nil {
			key = strings.ToLower(m[1])
			continue
		}
		fields := strings.Fields(part)
		if len(fields) < 2 {
			return nil, "", fmt.Errorf("invalid column definition %q", part)
		}
		name := strings.ToLower(fields[0])
		columns = append(columns, name)
		if strings.Contains(strings.ToUpper(part), "PRIMARY KEY") {
			key = name
		}
	}
	if key == "" {
		return nil, "", fmt.Errorf("No PRIMARY KEY specified")
	}

	return columns, key, nil
}

// splitTopLevel splits on commas outside parentheses.
func splitTopLevel(s string) []string {
	var (
		parts []string
		depth int
		start int
	)
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}

	return append(parts, strings.TrimSpace(s[start:]))
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}

	return out
}

func parseLiteral(lit string) any {
	if strings.HasPrefix(lit, "'") && strings.HasSuffix(lit, "'") && len(lit) >= 2 {
		return strings.ReplaceAll(lit[1:len(lit)-1], "''", "'")
	}
	if n, err := strconv.Atoi(lit); err == nil {
		return n
	}

	return lit
}

func lessValue(a, b any) bool {
	ai, aok := a.(int)
	bi, bok := b.(int)
	if aok && bok {
		return ai < bi
	}

	return fmt.Sprint(a) < fmt.Sprint(b)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}

	return false
}
