package app

// Operation statuses written to the operation log.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Operation tracks a CLI command that may mutate the store.
// Operations are created in memory with ID=0. Only mutating commands
// persist them, which gives them an ID from the operations table; that ID
// is the version of any snapshot pushed on Close.
type Operation struct {
	ID         int64
	Name       string
	Parameters string
	Status     string
}

// NewOperation creates a new in-memory operation.
func NewOperation(name string) *Operation {
	return &Operation{Name: name, Status: StatusSuccess}
}

// Persisted returns true if this operation has been saved to the database.
func (op *Operation) Persisted() bool {
	return op.ID != 0
}

// Record marks the operation failed when err is non-nil and returns err.
func (op *Operation) Record(err error) error {
	if err != nil {
		op.Status = StatusError
	}
	return err
}
