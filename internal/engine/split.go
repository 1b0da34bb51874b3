package engine

import (
	"fmt"

	"github.com/bamsammich/blkcopy/internal/copyrange"
)

// offloadEach submits every entry as its own one-entry BLKCOPY batch, with
// the same stop-at-first-failure accounting as emulation. The failing
// entry keeps whatever the kernel reported in its CompLen.
func (e *Engine) offloadEach(u *Unit) error {
	fd := u.Target.Fd()
	bs := uint64(u.Options.BlockSize) //nolint:gosec // G115: validated positive
	entries := u.batch.Entries()

	for i := range entries {
		ent := &entries[i]

		if ent.Len != bs {
			ent.CompLen = 0
			return &TransferError{
				Op:    "offload",
				Index: i,
				Err:   fmt.Errorf("%w: %d != %d", ErrLengthMismatch, ent.Len, bs),
			}
		}

		one := copyrange.Encode([]copyrange.Range{{Src: ent.Src, Dst: ent.Dst, Len: ent.Len}})
		if err := u.single.Prepare(one); err != nil {
			ent.CompLen = 0
			return &TransferError{Op: "offload", Index: i, Err: err}
		}

		ret, errno := e.offload(fd, u.single)
		sub := u.single.Entries()
		out := Classify(ret, errno, sub)
		switch out.Kind {
		case Success:
			ent.CompLen = ent.Len
		case PartialFailure:
			ent.CompLen = min(sub[0].CompLen, ent.Len)
			return &TransferError{Op: "offload", Index: i, Err: out.Errno}
		default:
			ent.CompLen = 0
			return &TransferError{Op: "offload", Index: i, Err: out.Errno}
		}
	}
	return nil
}
