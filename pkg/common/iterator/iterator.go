// Package iterator defines the cursor capability shared by the write buffer,
// the block reader and the wrappers that combine them.
package iterator

// Iterator walks encoded internal keys in comparator order. Keys and values
// returned by an iterator are only valid until the next positioning call.
type Iterator interface {
	// SeekToFirst positions the iterator at the first entry
	SeekToFirst()

	// SeekToLast positions the iterator at the last entry
	SeekToLast()

	// Seek positions the iterator at the first entry >= target
	Seek(target []byte) bool

	// Next advances the iterator to the next entry
	Next() bool

	// Prev moves the iterator to the previous entry
	Prev() bool

	// Key returns the current internal key
	Key() []byte

	// Value returns the current value
	Value() []byte

	// Valid returns true if the iterator is positioned at an entry
	Valid() bool

	// Status returns the first error encountered. An exhausted iterator
	// reports nil; a corrupt one stays invalid and keeps reporting the error.
	Status() error
}
