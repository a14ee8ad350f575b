//go:build linux

package sandbox

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// fixedNoFile and fixedMemlock are always applied regardless of config: the
// sandboxed process gets a small, fixed file-descriptor budget and is never
// allowed to lock pages into physical memory (the memory limit is enforced
// by the cgroup instead, not by RLIMIT_AS, which interacts badly with
// threaded runtimes and large virtual-memory reservations).
const (
	fixedNoFile  = 64
	fixedMemlock = 0
)

// ApplyRlimits sets the resource limits a sandboxed process runs under. It
// must be called after entering the target cgroup and before the final
// exec, from the single-threaded child.
func ApplyRlimits(c *SandboxConfig) error {
	if c.FileSizeLimitKB > 0 {
		limit := uint64(c.FileSizeLimitKB) * 1024
		if err := unix.Setrlimit(unix.RLIMIT_FSIZE, &unix.Rlimit{Cur: limit, Max: limit}); err != nil {
			return fmt.Errorf("setrlimit RLIMIT_FSIZE: %w", err)
		}
	}

	stackLimit := unix.RLIM_INFINITY
	if c.StackLimitKB > 0 {
		stackLimit = uint64(c.StackLimitKB) * 1024
	}
	if err := unix.Setrlimit(unix.RLIMIT_STACK, &unix.Rlimit{Cur: stackLimit, Max: stackLimit}); err != nil {
		return fmt.Errorf("setrlimit RLIMIT_STACK: %w", err)
	}

	if err := unix.Setrlimit(unix.RLIMIT_NOFILE, &unix.Rlimit{Cur: fixedNoFile, Max: fixedNoFile}); err != nil {
		return fmt.Errorf("setrlimit RLIMIT_NOFILE: %w", err)
	}

	if err := unix.Setrlimit(unix.RLIMIT_MEMLOCK, &unix.Rlimit{Cur: fixedMemlock, Max: fixedMemlock}); err != nil {
		return fmt.Errorf("setrlimit RLIMIT_MEMLOCK: %w", err)
	}

	if c.MaxProcesses != 0 {
		limit := uint64(c.MaxProcesses)
		if err := unix.Setrlimit(unix.RLIMIT_NPROC, &unix.Rlimit{Cur: limit, Max: limit}); err != nil {
			return fmt.Errorf("setrlimit RLIMIT_NPROC: %w", err)
		}
	}

	return nil
}
