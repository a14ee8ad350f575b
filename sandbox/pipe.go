//go:build linux

package sandbox

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// errorPipe carries fault reports from the child's setup sequence back to
// the parent. Both ends are CLOEXEC, so a successful execve silently closes
// the write end and the parent's read returns EOF; NONBLOCK lets the parent
// drain it without risking a hang if the child dies some other way first.
type errorPipe struct {
	readFD, writeFD int
}

// MakeErrorPipe creates a fresh error pipe. The child keeps writeFD open
// (redirecting its fatal-error path to it) until it either execves
// successfully (closing it via CLOEXEC) or writes a failure message and
// exits.
func MakeErrorPipe() (*errorPipe, error) {
	var p [2]int
	if err := unix.Pipe2(p[:], unix.O_CLOEXEC|unix.O_NONBLOCK); err != nil {
		return nil, fmt.Errorf("create error pipe: %w", err)
	}
	return &errorPipe{readFD: p[0], writeFD: p[1]}, nil
}

// ReadFD/WriteFD expose the raw descriptors for passing to the cloned child
// or for direct syscall use in the single-threaded post-clone child path.
func (p *errorPipe) ReadFD() int  { return p.readFD }
func (p *errorPipe) WriteFD() int { return p.writeFD }

// CloseWrite closes the parent's copy of the write end, once the child has
// been started; the parent must hold no copy of it, or EOF is never seen.
func (p *errorPipe) CloseWrite() {
	_ = unix.Close(p.writeFD)
}

// CloseRead closes the parent's copy of the read end, once draining is done.
func (p *errorPipe) CloseRead() {
	_ = unix.Close(p.readFD)
}

// ReportFault is called from the child's setup path on a fatal error: it
// writes the message to the error pipe before the child exits, so the
// parent's Drain can recover what went wrong.
func (p *errorPipe) ReportFault(msg string) {
	_, _ = unix.Write(p.writeFD, []byte(msg))
}

// Drain reads anything the child wrote before either execve'ing (nothing,
// pipe closes via CLOEXEC) or failing (a fault message). Call only after
// wait4 reports the child has exited, so a short NONBLOCK read can't race a
// still-writing child.
func (p *errorPipe) Drain() string {
	buf := make([]byte, 4096)
	n, _ := unix.Read(p.readFD, buf)
	if n <= 0 {
		return ""
	}
	return string(buf[:n])
}
