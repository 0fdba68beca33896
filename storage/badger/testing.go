package badger

// NewMemoryStore creates a store backed by an in-memory BadgerDB.
// Intended for tests; data is lost when the store is closed.
func NewMemoryStore() (*Store, error) {
	backend, err := OpenBackend("", true)
	if err != nil {
		return nil, err
	}
	return newStore(backend), nil
}
