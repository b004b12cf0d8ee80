package etl

import (
	"context"
	"sync"
)

// ── Destination ────────────────────────────────────────────
// A Destination writes tables into a target system. The warehouse
// connectors in dbclient implement it; MemoryDestination backs dry runs.
//
// Pattern: Singer target protocol. The vault is append-only, so there is
// no replace mode.

// Destination writes one table's records to a target system.
type Destination interface {
	Write(ctx context.Context, table Table) (int, error)
}

// ── Memory Destination ─────────────────────────────────────

// MemoryDestination keeps written tables in memory, in write order.
type MemoryDestination struct {
	mu     sync.Mutex
	tables []Table
}

func (m *MemoryDestination) Write(ctx context.Context, table Table) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables = append(m.tables, table)
	return len(table.Records), nil
}

// Tables returns the tables written so far.
func (m *MemoryDestination) Tables() []Table {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Table, len(m.tables))
	copy(out, m.tables)
	return out
}

// Table returns the records written under name, across writes.
func (m *MemoryDestination) Table(name string) []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Record
	for _, t := range m.tables {
		if t.Name == name {
			out = append(out, t.Records...)
		}
	}
	return out
}
