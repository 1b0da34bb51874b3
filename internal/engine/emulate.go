package engine

import "fmt"

// emulate copies each entry in order through the unit's scratch buffer.
// It stops at the first failure; the failing entry's CompLen is 0, or the
// bytes written on a short write, and later entries are not touched.
//
//nolint:gosec // G115: offsets come from the harness and fit in int64
func emulate(u *Unit) error {
	buf := u.scratch.Bytes()
	bs := uint64(len(buf))
	entries := u.batch.Entries()

	for i := range entries {
		ent := &entries[i]

		if ent.Len != bs {
			ent.CompLen = 0
			return &TransferError{
				Op:    "emulate",
				Index: i,
				Err:   fmt.Errorf("%w: %d != %d", ErrLengthMismatch, ent.Len, bs),
			}
		}

		n, err := u.Target.Pread(buf, int64(ent.Src))
		if err != nil {
			ent.CompLen = 0
			return &TransferError{Op: "read", Index: i, Err: err}
		}
		if n < len(buf) {
			ent.CompLen = 0
			return &TransferError{Op: "read", Index: i, Err: &ShortTransferError{Op: "read", Want: len(buf), Got: n}}
		}

		w, err := u.Target.Pwrite(buf, int64(ent.Dst))
		if err != nil {
			ent.CompLen = 0
			return &TransferError{Op: "write", Index: i, Err: err}
		}
		if w < len(buf) {
			ent.CompLen = uint64(w)
			return &TransferError{Op: "write", Index: i, Err: &ShortTransferError{Op: "write", Want: len(buf), Got: w}}
		}

		ent.CompLen = ent.Len
	}
	return nil
}
