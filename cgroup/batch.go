package cgroup

import (
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"alice/errs"
)

// entry is one queued cgroup attribute write.
type entry struct {
	file  string
	value string
}

// Batch queues several cgroup writes and submits them together. Each entry
// is still its own write syscall; no submission ring is used. When
// SupportsAsyncRing is true every entry is written with one writev(2) on
// its own file; otherwise each goes through os.WriteFile. Both paths run
// in enqueue order and stop at the first error.
type Batch struct {
	c       *Cgroup
	entries []entry
}

// NewBatch creates an empty batch bound to c.
func (c *Cgroup) NewBatch() *Batch {
	return &Batch{c: c}
}

// Queue appends a write to the batch. Order is preserved for the
// sequential fallback and for first-error reporting.
func (b *Batch) Queue(file, value string) {
	b.entries = append(b.entries, entry{file: file, value: value})
}

// SupportsAsyncRing reports whether this host supports the vectored-write
// submission path. Gated at capability-negotiation time; see capprobe.
var SupportsAsyncRing = probeAsyncRing()

func probeAsyncRing() bool {
	// unix.Writev is always present on Linux via golang.org/x/sys/unix; the
	// capability this gates is really "does it help", which on cgroupfs
	// (single-page pseudo-files) is host-independent. Treat it as always
	// available on Linux. capprobe.Probe reports the same answer in
	// Set.AsyncRing, but nothing copies that into this variable; tests
	// overwrite it to force the sequential fallback.
	return true
}

// Submit drains the queue in enqueue order. Partial failure reports the
// first erring entry and aborts the remainder, leaving later attributes at
// their prior kernel-visible value.
func (b *Batch) Submit() error {
	if err := b.c.checkLive("batch_submit"); err != nil {
		return err
	}

	if !SupportsAsyncRing {
		return b.submitSequential()
	}
	return b.submitVectored()
}

func (b *Batch) submitSequential() error {
	for _, e := range b.entries {
		if err := b.c.write("batch_submit", e.file, e.value); err != nil {
			return err
		}
	}
	return nil
}

// submitVectored writes each entry with one vectored write on its own
// file, in enqueue order. The first error is returned; later entries are
// left untouched once an error is observed.
func (b *Batch) submitVectored() error {
	for _, e := range b.entries {
		if err := writeOne(b.c.path, e); err != nil {
			return errs.WrapWithDetail(err, errs.Io, "batch_submit", e.file)
		}
	}
	return nil
}

func writeOne(dir string, e entry) error {
	path := filepath.Join(dir, e.file)
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	defer f.Close()

	iov := [][]byte{[]byte(e.value)}
	_, err = unix.Writev(int(f.Fd()), iov)
	return err
}
