// Package txn provides the engine façade's transaction brackets: a
// monotonic id allocator and a Transaction that logs Begin/Commit/Rollback
// to the write-ahead log. A Transaction is scoped to one façade-level
// mutation and is never held open across calls.
package txn

import (
	"sync/atomic"

	"github.com/calderadb/caldera/wal"
)

// Manager allocates transaction ids and starts transactions against a
// shared WAL.
type Manager struct {
	nextID atomic.Int64
	log    *wal.Log
}

// NewManager creates a Manager that logs through log. Ids start at 1.
func NewManager(log *wal.Log) *Manager {
	return &Manager{log: log}
}

// Begin allocates the next transaction id, logs a Begin record, and returns
// a live Transaction.
func (m *Manager) Begin() (*Transaction, error) {
	id := m.nextID.Add(1)
	if err := m.log.Log(wal.Begin(id)); err != nil {
		return nil, err
	}
	return &Transaction{id: id, log: m.log, live: true}, nil
}

// Transaction brackets one façade-level mutation with a Begin record
// already written; Commit or Rollback closes it out.
type Transaction struct {
	id   int64
	log  *wal.Log
	live bool
}

// ID returns the transaction's allocated id.
func (t *Transaction) ID() int64 { return t.id }

// Commit logs a Commit record and marks the transaction closed. Committing
// a transaction that is no longer live is a no-op.
func (t *Transaction) Commit() error {
	if !t.live {
		return nil
	}
	t.live = false
	return t.log.Log(wal.Commit(t.id))
}

// Rollback logs a Rollback record and marks the transaction closed. Rolling
// back a transaction that is no longer live is a no-op. Rollback does not
// undo any tree mutation already made under this transaction: per the
// engine's error handling design, a failed mid-tree mutation is not rolled
// back in memory, only recorded as rolled back in the log.
func (t *Transaction) Rollback() error {
	if !t.live {
		return nil
	}
	t.live = false
	return t.log.Log(wal.Rollback(t.id))
}

// Live reports whether Commit or Rollback has been called yet.
func (t *Transaction) Live() bool { return t.live }
