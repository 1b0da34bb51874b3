package engine

import (
	"io"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/blkcopy/internal/copyrange"
	"github.com/bamsammich/blkcopy/internal/platform"
)

func emulatedUnit(t *testing.T, target platform.Target, sink ErrorSink) (*Engine, *Unit) {
	t.Helper()
	e := New()
	u := NewUnit(target, Options{BlockSize: 4096, MaxRanges: 8, Emulate: true}, sink)
	require.NoError(t, e.Init(u))
	t.Cleanup(func() { e.Cleanup(u) })
	return e, u
}

func TestEmulateCopiesAllRanges(t *testing.T) {
	m := newMemTarget(128 * 1024)
	m.fill(0, pattern('a', 4096))
	m.fill(4096, pattern('b', 4096))
	m.fill(8192, pattern('c', 4096))

	sink := &recordingSink{}
	e, u := emulatedUnit(t, m, sink)
	require.NoError(t, e.Prepare(u, scenarioRanges()))
	require.NoError(t, e.Dispatch(u))

	for _, ent := range u.Entries() {
		assert.Equal(t, uint64(4096), ent.CompLen)
	}
	// Destination ranges overlap by 96 bytes, so each is checked up to where
	// the next one begins; the last is checked whole.
	assert.Equal(t, pattern('a', 4000), m.data[100000:104000])
	assert.Equal(t, pattern('b', 4000), m.data[104000:108000])
	assert.Equal(t, pattern('c', 4096), m.data[108000:112096])

	assert.Zero(t, u.Errno)
	assert.Empty(t, u.Phase)
	assert.Empty(t, sink.records)
	assert.Equal(t, Dispatched, u.State())
}

func TestEmulateShortWriteStopsBatch(t *testing.T) {
	m := newMemTarget(128 * 1024)
	m.fill(0, pattern('a', 4096))
	m.fill(4096, pattern('b', 4096))
	m.fill(8192, pattern('c', 4096))
	m.writeLimit = 104000 + 2048

	sink := &recordingSink{}
	e, u := emulatedUnit(t, m, sink)
	require.NoError(t, e.Prepare(u, scenarioRanges()))
	u.Entries()[2].CompLen = 0

	err := e.Dispatch(u)
	require.Error(t, err)

	var terr *TransferError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, 1, terr.Index)
	assert.Equal(t, "write", terr.Op)

	var short *ShortTransferError
	require.ErrorAs(t, err, &short)
	assert.Equal(t, 2048, short.Got)
	assert.ErrorIs(t, err, io.ErrShortWrite)
	assert.ErrorIs(t, err, syscall.EIO)

	entries := u.Entries()
	assert.Equal(t, uint64(4096), entries[0].CompLen)
	assert.Equal(t, uint64(2048), entries[1].CompLen)
	assert.Equal(t, uint64(0), entries[2].CompLen)

	// Range 2 was never read or written.
	assert.Equal(t, []int64{0, 4096}, m.reads)
	assert.Equal(t, []int64{100000, 104000}, m.writes)

	require.Len(t, sink.records, 1)
	assert.Equal(t, syscall.EIO, sink.records[0].errno)
	assert.Equal(t, PhaseTransfer, sink.records[0].phase)
	assert.Same(t, u, sink.records[0].unit)
	assert.Equal(t, syscall.EIO, u.Errno)
}

func TestEmulateReadFailureLeavesLaterEntries(t *testing.T) {
	for k := range 3 {
		t.Run(string(rune('0'+k)), func(t *testing.T) {
			m := newMemTarget(128 * 1024)
			m.readErr[int64(k)*4096] = syscall.EIO

			sink := &recordingSink{}
			e, u := emulatedUnit(t, m, sink)
			require.NoError(t, e.Prepare(u, scenarioRanges()))
			for i := range u.Entries() {
				u.Entries()[i].CompLen = 77
			}

			err := e.Dispatch(u)
			require.ErrorIs(t, err, syscall.EIO)

			for i, ent := range u.Entries() {
				switch {
				case i < k:
					assert.Equal(t, uint64(4096), ent.CompLen, "entry %d", i)
				case i == k:
					assert.Equal(t, uint64(0), ent.CompLen, "entry %d", i)
				default:
					assert.Equal(t, uint64(77), ent.CompLen, "entry %d", i)
				}
			}
			assert.Len(t, m.writes, k)
			require.Len(t, sink.records, 1)
			assert.Equal(t, syscall.EIO, sink.records[0].errno)
		})
	}
}

func TestEmulateShortRead(t *testing.T) {
	m := newMemTarget(6000)
	e, u := emulatedUnit(t, m, nil)
	require.NoError(t, e.Prepare(u, copyrange.Encode([]copyrange.Range{
		{Src: 0, Dst: 0, Len: 4096},
		{Src: 4096, Dst: 0, Len: 4096},
	})))

	err := e.Dispatch(u)
	var short *ShortTransferError
	require.ErrorAs(t, err, &short)
	assert.Equal(t, "read", short.Op)
	assert.Equal(t, 6000-4096, short.Got)
	assert.NotErrorIs(t, err, io.ErrShortWrite)
	assert.Equal(t, uint64(0), u.Entries()[1].CompLen)
	assert.Equal(t, syscall.EIO, u.Errno)
}

func TestEmulateWriteError(t *testing.T) {
	m := newMemTarget(128 * 1024)
	m.writeErr[104000] = syscall.ENOSPC

	sink := &recordingSink{}
	e, u := emulatedUnit(t, m, sink)
	require.NoError(t, e.Prepare(u, scenarioRanges()))

	err := e.Dispatch(u)
	require.ErrorIs(t, err, syscall.ENOSPC)
	assert.Equal(t, uint64(4096), u.Entries()[0].CompLen)
	assert.Equal(t, uint64(0), u.Entries()[1].CompLen)
	assert.Equal(t, syscall.ENOSPC, u.Errno)
	require.Len(t, sink.records, 1)
	assert.Equal(t, syscall.ENOSPC, sink.records[0].errno)
}

func TestEmulateLengthMismatch(t *testing.T) {
	m := newMemTarget(64 * 1024)
	e, u := emulatedUnit(t, m, nil)
	require.NoError(t, e.Prepare(u, copyrange.Encode([]copyrange.Range{
		{Src: 0, Dst: 8192, Len: 4096},
		{Src: 4096, Dst: 16384, Len: 512},
	})))

	err := e.Dispatch(u)
	require.ErrorIs(t, err, ErrLengthMismatch)
	assert.Equal(t, uint64(4096), u.Entries()[0].CompLen)
	assert.Equal(t, uint64(0), u.Entries()[1].CompLen)
	assert.Equal(t, syscall.EINVAL, u.Errno)
	assert.Len(t, m.reads, 1)
}

func TestEmulateRedispatchClearsError(t *testing.T) {
	m := newMemTarget(128 * 1024)
	m.readErr[4096] = syscall.EIO

	e, u := emulatedUnit(t, m, nil)
	require.NoError(t, e.Prepare(u, scenarioRanges()))
	require.Error(t, e.Dispatch(u))
	assert.Equal(t, syscall.EIO, u.Errno)

	delete(m.readErr, 4096)
	require.NoError(t, e.Prepare(u, scenarioRanges()))
	require.NoError(t, e.Dispatch(u))
	assert.Zero(t, u.Errno)
	for _, ent := range u.Entries() {
		assert.True(t, ent.Complete())
	}
}

func TestEmulateOnRegularFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	data := make([]byte, 128*1024)
	copy(data[0:], pattern('x', 4096))
	copy(data[4096:], pattern('y', 4096))
	copy(data[8192:], pattern('z', 4096))
	require.NoError(t, os.WriteFile(path, data, 0o644))

	osf, err := os.OpenFile(path, os.O_RDWR, 0)
	require.NoError(t, err)
	f := platform.NewFile(osf)
	defer f.Close()

	e, u := emulatedUnit(t, f, nil)
	require.NoError(t, e.Prepare(u, scenarioRanges()))
	require.NoError(t, e.Dispatch(u))
	require.NoError(t, f.Close())

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, pattern('x', 4000), got[100000:104000])
	assert.Equal(t, pattern('y', 4000), got[104000:108000])
	assert.Equal(t, pattern('z', 4096), got[108000:112096])
}
