//go:build linux

package sandbox

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// cloneArgs mirrors the Linux UAPI clone_args struct consumed by clone3(2).
type cloneArgs struct {
	Flags      uint64
	Pidfd      uint64
	ChildTid   uint64
	ParentTid  uint64
	ExitSignal uint64
	Stack      uint64
	StackSize  uint64
	TLS        uint64
	SetTid     uint64
	SetTidSize uint64
	Cgroup     uint64
}

// cloneFlags computes the namespace set a sandboxed run is created in: new
// mount, PID and IPC namespaces always, plus a new network namespace unless
// networking is shared with the host. No user, UTS, cgroup, time or pidfd
// namespace is created — this sandbox does not need id-mapping and runs one
// process per cgroup directory it manages directly.
func cloneFlags(shareNetwork bool) uint64 {
	flags := uint64(unix.SIGCHLD) | unix.CLONE_NEWIPC | unix.CLONE_NEWNS | unix.CLONE_NEWPID
	if !shareNetwork {
		flags |= unix.CLONE_NEWNET
	}
	return flags
}

// cloneProcess creates a new process via clone3 in the namespaces
// cloneFlags describes, returning its pid to the parent and executing fn in
// the child before returning to it. fn must not return on success; it is
// expected to end in an exec or an os.Exit.
func cloneProcess(shareNetwork bool, fn func()) (int, error) {
	args := cloneArgs{
		Flags:      cloneFlags(shareNetwork),
		ExitSignal: uint64(unix.SIGCHLD),
	}

	pid, _, errno := unix.Syscall(
		unix.SYS_CLONE3,
		uintptr(unsafe.Pointer(&args)),
		unsafe.Sizeof(args),
		0,
	)
	if errno != 0 {
		return -1, fmt.Errorf("clone3: %w", errno)
	}

	if pid == 0 {
		fn()
		// fn must never return; this is a safety net against a logic bug
		// that would otherwise fork the parent's control flow in the child.
		unix.Exit(127)
	}

	return int(pid), nil
}
