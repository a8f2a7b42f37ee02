package iterator

// emptyIterator is never valid. It carries an optional error.
type emptyIterator struct {
	err error
}

// NewEmptyIterator returns an iterator with no entries and a nil status
func NewEmptyIterator() Iterator {
	return &emptyIterator{}
}

// NewErrorIterator returns an iterator with no entries that reports err
func NewErrorIterator(err error) Iterator {
	return &emptyIterator{err: err}
}

func (e *emptyIterator) SeekToFirst()     {}
func (e *emptyIterator) SeekToLast()      {}
func (e *emptyIterator) Seek([]byte) bool { return false }
func (e *emptyIterator) Next() bool       { return false }
func (e *emptyIterator) Prev() bool       { return false }
func (e *emptyIterator) Key() []byte      { return nil }
func (e *emptyIterator) Value() []byte    { return nil }
func (e *emptyIterator) Valid() bool      { return false }
func (e *emptyIterator) Status() error    { return e.err }
