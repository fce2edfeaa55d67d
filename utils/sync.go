// Package utils provides small OS-level helpers shared across packages.
package utils

import (
	"fmt"
	"os"
	"syscall"
)

// SyncPipe is a pipe used for parent-child synchronization around a
// clone(2)/execve(2) boundary: one side blocks in Wait until the other
// calls Signal. Either end may be handed off to a child process via
// exec.Cmd.ExtraFiles; the caller decides which end it keeps.
type SyncPipe struct {
	r *os.File
	w *os.File
}

// NewSyncPipe creates a new synchronization pipe.
func NewSyncPipe() (*SyncPipe, error) {
	fds := make([]int, 2)
	if err := syscall.Pipe(fds); err != nil {
		return nil, fmt.Errorf("pipe: %w", err)
	}

	return &SyncPipe{
		r: os.NewFile(uintptr(fds[0]), "syncpipe-r"),
		w: os.NewFile(uintptr(fds[1]), "syncpipe-w"),
	}, nil
}

// ReaderFile returns the reading end of the pipe.
func (s *SyncPipe) ReaderFile() *os.File {
	return s.r
}

// WriterFile returns the writing end of the pipe.
func (s *SyncPipe) WriterFile() *os.File {
	return s.w
}

// CloseReader closes the reading end.
func (s *SyncPipe) CloseReader() error {
	if s.r != nil {
		return s.r.Close()
	}
	return nil
}

// CloseWriter closes the writing end.
func (s *SyncPipe) CloseWriter() error {
	if s.w != nil {
		return s.w.Close()
	}
	return nil
}

// Close closes both ends of the pipe.
func (s *SyncPipe) Close() {
	s.CloseReader()
	s.CloseWriter()
}

// Wait blocks until a signal arrives on the reading end.
func (s *SyncPipe) Wait() error {
	buf := make([]byte, 1)
	_, err := s.r.Read(buf)
	return err
}

// Signal writes a single byte to the writing end, releasing a Wait.
func (s *SyncPipe) Signal() error {
	_, err := s.w.Write([]byte{0})
	return err
}

// WaitWithError blocks for a signal and surfaces an error message sent by
// SignalError, if any.
func (s *SyncPipe) WaitWithError() error {
	buf := make([]byte, 1024)
	n, err := s.r.Read(buf)
	if err != nil {
		return err
	}
	if n > 0 && buf[0] != 0 {
		return fmt.Errorf("%s", string(buf[:n]))
	}
	return nil
}

// SignalError sends an error message instead of a plain release byte.
func (s *SyncPipe) SignalError(err error) error {
	_, writeErr := s.w.Write([]byte(err.Error()))
	return writeErr
}
