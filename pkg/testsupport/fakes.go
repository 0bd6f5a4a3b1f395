package testsupport

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// FakeCatalog is an in-memory table/column catalog that counts probes.
type FakeCatalog struct {
	mu          sync.Mutex
	tables      map[string][]string
	Err         error
	Delay       time.Duration
	tableProbes atomic.Int64
	columnCalls atomic.Int64
}

// NewFakeCatalog creates a catalog from table -> columns.
func NewFakeCatalog(tables map[string][]string) *FakeCatalog {
	c := &FakeCatalog{tables: map[string][]string{}}
	for name, cols := range tables {
		c.tables[strings.ToLower(name)] = append([]string(nil), cols...)
	}
	return c
}

// AddTable registers or replaces a table.
func (c *FakeCatalog) AddTable(name string, columns ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tables[strings.ToLower(name)] = append([]string(nil), columns...)
}

func (c *FakeCatalog) TableExists(ctx context.Context, table string) (bool, error) {
	c.tableProbes.Add(1)
	if err := c.wait(ctx); err != nil {
		return false, err
	}
	if c.Err != nil {
		return false, c.Err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.tables[strings.ToLower(table)]
	return ok, nil
}

func (c *FakeCatalog) Columns(ctx context.Context, table string) ([]string, error) {
	c.columnCalls.Add(1)
	if c.Err != nil {
		return nil, c.Err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.tables[strings.ToLower(table)]...), nil
}

// TableProbes returns how many TableExists calls were made.
func (c *FakeCatalog) TableProbes() int { return int(c.tableProbes.Load()) }

// ColumnCalls returns how many Columns calls were made.
func (c *FakeCatalog) ColumnCalls() int { return int(c.columnCalls.Load()) }

func (c *FakeCatalog) wait(ctx context.Context) error {
	if c.Delay <= 0 {
		return nil
	}
	select {
	case <-time.After(c.Delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// FakeDirectory is an in-memory actor hierarchy.
type FakeDirectory struct {
	mu           sync.Mutex
	admins       map[string]bool
	subordinates map[string][]string
	Err          error
	calls        []string
}

// NewFakeDirectory creates an empty directory.
func NewFakeDirectory() *FakeDirectory {
	return &FakeDirectory{
		admins:       map[string]bool{},
		subordinates: map[string][]string{},
	}
}

// SetAdmin marks code as an administrator.
func (d *FakeDirectory) SetAdmin(code string) *FakeDirectory {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.admins[code] = true
	return d
}

// AddSubordinates appends direct reports of parent.
func (d *FakeDirectory) AddSubordinates(parent string, codes ...string) *FakeDirectory {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subordinates[parent] = append(d.subordinates[parent], codes...)
	return d
}

func (d *FakeDirectory) IsAdmin(ctx context.Context, code string) (bool, error) {
	d.record("IsAdmin:" + code)
	if d.Err != nil {
		return false, d.Err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.admins[code], nil
}

func (d *FakeDirectory) DirectSubordinates(ctx context.Context, code string) ([]string, error) {
	d.record("DirectSubordinates:" + code)
	if d.Err != nil {
		return nil, d.Err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.subordinates[code]...), nil
}

func (d *FakeDirectory) record(call string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, call)
}

// Calls returns recorded calls in order.
func (d *FakeDirectory) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

// ResetCalls clears the call log.
func (d *FakeDirectory) ResetCalls() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = nil
}

// Clock is a settable time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock stopped at now.
func NewClock(now time.Time) *Clock {
	return &Clock{now: now}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set moves the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// SortedCopy returns a sorted copy of in.
func SortedCopy(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}
