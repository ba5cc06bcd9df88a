// Package storage implements the Key->JSON blob store of spec §6: the
// persistence layer behind report and trigger configuration. Keys are
// filesystem-safe paths such as "Report/<id>/configuration.json";
// values are opaque JSON blobs the caller has already serialized.
package storage

// Backend is the contract every blob store implementation satisfies.
type Backend interface {
	// Put writes value under key, replacing any existing value.
	Put(key string, value []byte) error

	// Get returns the value stored under key and whether it exists.
	Get(key string) ([]byte, bool, error)

	// Delete removes key. Deleting an absent key is not an error.
	Delete(key string) error

	// List returns every key with the given prefix, in no particular order.
	List(prefix string) ([]string, error)

	// Close releases any resources the backend holds.
	Close() error
}
