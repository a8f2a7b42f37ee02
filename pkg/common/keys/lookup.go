package keys

// LookupKey is the search target for a point read at a snapshot. It holds
// the internal key (user key, snapshot, KindForSeek) in a single buffer.
type LookupKey struct {
	buf     []byte
	userLen int
}

// NewLookupKey builds a lookup key for userKey as of snapshot seq
func NewLookupKey(userKey []byte, seq SeqNum) *LookupKey {
	return &LookupKey{
		buf:     MakeInternalKey(userKey, seq, KindForSeek),
		userLen: len(userKey),
	}
}

// InternalKey returns the encoded seek target
func (k *LookupKey) InternalKey() []byte {
	return k.buf
}

// UserKey returns the user key being looked up
func (k *LookupKey) UserKey() []byte {
	return k.buf[:k.userLen:k.userLen]
}

// Sequence returns the snapshot sequence of the lookup
func (k *LookupKey) Sequence() SeqNum {
	seq, _ := UnpackTrailer(ExtractTrailer(k.buf))
	return seq
}

// LookupRange describes a range read over user keys [Start, Limit) at a
// snapshot. A nil Start begins at the first key, a nil Limit is unbounded, and
// MaxResults of zero removes the per-call cap.
type LookupRange struct {
	Start      []byte
	Limit      []byte
	Snapshot   SeqNum
	MaxResults int
}

// SeekKey returns the internal key positioned at or before the first entry
// of Start visible at the snapshot.
func (r LookupRange) SeekKey() []byte {
	return MakeInternalKey(r.Start, r.Snapshot, KindForSeek)
}

// BeforeLimit reports whether userKey lies before the range limit. Callers are
// expected to have positioned at or after Start.
func (r LookupRange) BeforeLimit(cmp *InternalKeyComparator, userKey []byte) bool {
	return r.Limit == nil || cmp.CompareUserKeys(userKey, r.Limit) < 0
}
