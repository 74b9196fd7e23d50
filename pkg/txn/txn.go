// Package txn defines the opaque transaction handle that flows through
// index operations without being interpreted by the storage core.
// Isolation enforcement, locking, and deadlock detection are all out of
// scope here; the handle exists only so callers have a stable identity to
// pass through.
package txn

import "github.com/google/uuid"

// Transaction is an opaque handle identifying the caller of an index
// operation. The hash table accepts one on every operation but never reads
// its contents beyond the identity below.
type Transaction struct {
	id uuid.UUID
}

// New returns a fresh Transaction with a random identity.
func New() *Transaction {
	return &Transaction{id: uuid.New()}
}

// ID returns the transaction's identity.
func (t *Transaction) ID() uuid.UUID {
	if t == nil {
		return uuid.Nil
	}
	return t.id
}
