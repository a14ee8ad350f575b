//go:build linux

package fs

import (
	"errors"
	"os"
	"path"

	"golang.org/x/sys/unix"
)

// devAllowlist are the device nodes bind-mounted from the host into a
// synthesized /dev; anything not on this list is unreachable from inside
// the sandbox.
var devAllowlist = []string{
	"/dev/null",
	"/dev/zero",
	"/dev/random",
	"/dev/urandom",
	"/dev/tty",
}

func linkDev(src, dest string) error {
	if src == "" || dest == "" {
		return unix.EINVAL
	}
	_ = os.Remove(dest)
	if err := os.Symlink(src, dest); err != nil && !errors.Is(err, os.ErrExist) {
		return err
	}
	return nil
}

// PopulateDev fills in an already-mounted, empty /dev directory with the
// handful of device nodes and pseudo-terminal/shared-memory filesystems a
// well-behaved program expects to find there. It's invoked only when a
// DirRule asks for a synthesized /dev (box_path "dev", local_path "tmpfs",
// flags FS|DEV); a plain bind-mount of the host's /dev skips this
// entirely.
func PopulateDev(dev string) error {
	if dev == "" {
		return unix.EINVAL
	}

	pts := path.Join(dev, "pts")
	if err := os.MkdirAll(pts, 0o755); err != nil {
		return err
	}
	if err := unix.Mount("devpts", pts, "devpts", unix.MS_NOSUID|unix.MS_NOEXEC, "newinstance,ptmxmode=0666,mode=0620"); err != nil && !errors.Is(err, unix.EINVAL) {
		return err
	}
	if err := linkDev(path.Join(pts, "ptmx"), path.Join(dev, "ptmx")); err != nil {
		return err
	}

	shm := path.Join(dev, "shm")
	if err := os.MkdirAll(shm, 0o777); err != nil {
		return err
	}
	if err := unix.Mount("tmpfs", shm, "tmpfs", unix.MS_NOSUID|unix.MS_NOEXEC|unix.MS_NODEV, "mode=1777,size=65536k"); err != nil {
		return err
	}

	if err := linkDev("/proc/self/fd", path.Join(dev, "fd")); err != nil {
		return err
	}
	if err := linkDev("/proc/self/fd/0", path.Join(dev, "stdin")); err != nil {
		return err
	}
	if err := linkDev("/proc/self/fd/1", path.Join(dev, "stdout")); err != nil {
		return err
	}
	if err := linkDev("/proc/self/fd/2", path.Join(dev, "stderr")); err != nil {
		return err
	}

	for _, p := range devAllowlist {
		spec := MountSpec{Host: p, Dest: path.Join(path.Base(dev), path.Base(p)), RW: true, Dev: true}
		_ = BindMount(path.Dir(dev), spec) // best-effort; a missing host device is not fatal
	}

	return nil
}
