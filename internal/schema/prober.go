// Package schema detects which optional and renamed columns the connected
// database carries. Deployments migrate at different paces, so the
// persistence layer reads a Capabilities value built once at startup instead
// of assuming one column layout.
package schema

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

type ColumnLister interface {
	Columns(ctx context.Context, table string) ([]string, error)
}

// Prober answers column-presence questions, loading each table's column list
// at most once.
type Prober struct {
	lister ColumnLister
	mu     sync.Mutex
	tables map[string]map[string]bool
}

func NewProber(lister ColumnLister) *Prober {
	return &Prober{lister: lister, tables: make(map[string]map[string]bool)}
}

func (p *Prober) HasColumn(ctx context.Context, table string, column string) (bool, error) {
	cols, err := p.columns(ctx, table)
	if err != nil {
		return false, err
	}
	return cols[strings.ToLower(column)], nil
}

// HasTable reports whether table exists, judged by it having any columns.
func (p *Prober) HasTable(ctx context.Context, table string) (bool, error) {
	cols, err := p.columns(ctx, table)
	if err != nil {
		return false, err
	}
	return len(cols) > 0, nil
}

func (p *Prober) columns(ctx context.Context, table string) (map[string]bool, error) {
	table = strings.ToLower(table)

	p.mu.Lock()
	defer p.mu.Unlock()
	if cols, ok := p.tables[table]; ok {
		return cols, nil
	}

	names, err := p.lister.Columns(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("list columns of %s: %w", table, err)
	}
	cols := make(map[string]bool, len(names))
	for _, name := range names {
		cols[strings.ToLower(name)] = true
	}
	p.tables[table] = cols
	return cols, nil
}
