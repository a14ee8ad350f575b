//go:build linux

package fs

import (
	"errors"
	"os"
	"path"

	"golang.org/x/sys/unix"
)

// maskedProcPaths are hidden behind an empty, read-only tmpfs (directories)
// or /dev/null (files): information disclosure and some host-introspection
// vectors with no legitimate use inside a sandboxed run.
var maskedProcPaths = []string{
	"/asound",
	"/acpi",
	"/interrupts",
	"/kcore",
	"/keys",
	"/latency_stats",
	"/timer_list",
	"/timer_stats",
	"/sched_debug",
	"/scsi",
	"/firmware",
}

// readOnlyProcPaths are left visible but remounted read-only.
var readOnlyProcPaths = []string{
	"/sys",
	"/sysrq-trigger",
	"/irq",
	"/bus",
	"/fs",
}

func isDirectory(p string) (bool, error) {
	st, err := os.Lstat(p)
	if err != nil {
		return false, err
	}
	return st.Mode().IsDir(), nil
}

// HardenProc locks down selected subpaths of an already-mounted /proc at
// procDir. It is invoked right after a FreshFS "proc" rule is mounted;
// failures here are best-effort (a kernel/config that doesn't expose a
// given subpath is not an error) and never abort the mount sequence.
func HardenProc(procDir string) {
	for _, sub := range maskedProcPaths {
		t := path.Join(procDir, sub)
		if _, err := os.Lstat(t); err != nil {
			continue
		}

		dir, err := isDirectory(t)
		if err != nil {
			continue
		}

		if dir {
			_ = unix.Mount("tmpfs", t, "tmpfs", unix.MS_NOSUID|unix.MS_NOEXEC|unix.MS_NODEV|unix.MS_RDONLY, "size=0")
			continue
		}

		if err := unix.Mount("/dev/null", t, "", unix.MS_BIND, ""); err != nil {
			continue
		}
		flags := uintptr(unix.MS_BIND | unix.MS_REMOUNT | unix.MS_RDONLY | unix.MS_NOSUID | unix.MS_NODEV | unix.MS_NOEXEC)
		if err := unix.Mount("", t, "", flags, ""); err != nil {
			_ = unix.Unmount(t, unix.MNT_DETACH)
		}
	}

	for _, sub := range readOnlyProcPaths {
		t := path.Join(procDir, sub)
		if _, err := os.Lstat(t); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			continue
		}

		if err := unix.Mount(t, t, "", unix.MS_BIND, ""); err != nil {
			continue
		}
		flags := uintptr(unix.MS_BIND | unix.MS_REMOUNT | unix.MS_RDONLY | unix.MS_NOSUID | unix.MS_NODEV | unix.MS_NOEXEC)
		if err := unix.Mount("", t, "", flags, ""); err != nil {
			_ = unix.Unmount(t, unix.MNT_DETACH)
		}
	}
}
