package app

import "sync"

// Operation tracks a command that may mutate the database.
// Operations are created in memory with ID=0. Only DB-mutating commands
// persist them (giving them an auto-increment ID from the database).
// A served App shares one Operation between requests, so status changes are locked.
type Operation struct {
	ID         int64
	Operation  string
	Parameters string
	Status     string // "success" or "error"

	mu sync.Mutex
}

// NewOperation creates a new in-memory operation.
func NewOperation(operation, parameters string) *Operation {
	return &Operation{
		Operation:  operation,
		Parameters: parameters,
		Status:     "success",
	}
}

// Persisted returns true if this operation has been saved to the database.
func (op *Operation) Persisted() bool {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.ID != 0
}

// MarkFailed sets the status to "error".
func (op *Operation) MarkFailed() {
	op.mu.Lock()
	op.Status = "error"
	op.mu.Unlock()
}

// Fail marks the operation as failed when err is not nil and returns err.
func (op *Operation) Fail(err error) error {
	if err != nil {
		op.MarkFailed()
	}
	return err
}

// CurrentStatus returns the status under the lock.
func (op *Operation) CurrentStatus() string {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.Status
}
