package block

import "github.com/cockroachdb/errors"

// ErrCorruption marks every error caused by malformed block bytes. Test for
// it with errors.Is.
var ErrCorruption = errors.New("block: corruption")

// corruptionErrorf returns an error marked with ErrCorruption
func corruptionErrorf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrCorruption)
}

var (
	errBadBlock = corruptionErrorf("bad block contents")
	errBadEntry = corruptionErrorf("bad entry in block")
)

// IsCorruption reports whether err was caused by malformed block bytes
func IsCorruption(err error) bool {
	return errors.Is(err, ErrCorruption)
}
