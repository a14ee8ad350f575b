//go:build linux

package fs

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// MountRule is the filesystem-agnostic form of one sandbox directory rule:
// bind a host path under the sandbox root, or mount a fresh device-less
// filesystem there. It mirrors the sandbox package's DirRule/DirRuleFlag
// without importing that package, so fs stays a leaf dependency.
type MountRule struct {
	BoxPath   string
	LocalPath string
	ReadWrite bool
	NoExec    bool
	FreshFS   bool
	Maybe     bool
	Dev       bool
}

// DefaultMountRules returns the seven rules every sandbox starts from,
// applied before any user rule and overridable by one naming the same
// BoxPath.
func DefaultMountRules() []MountRule {
	return []MountRule{
		{BoxPath: "box", LocalPath: "./box", ReadWrite: true},
		{BoxPath: "bin", LocalPath: "/bin"},
		{BoxPath: "dev", LocalPath: "/dev", Dev: true},
		{BoxPath: "lib", LocalPath: "/lib"},
		{BoxPath: "lib64", LocalPath: "/lib64", Maybe: true},
		{BoxPath: "proc", LocalPath: "proc", FreshFS: true},
		{BoxPath: "usr", LocalPath: "/usr"},
	}
}

// MergeMountRules overlays user rules onto the defaults: a user rule whose
// BoxPath matches a default replaces it outright; everything else is kept
// and new BoxPaths are appended, preserving default-then-user ordering.
func MergeMountRules(defaults, user []MountRule) []MountRule {
	out := make([]MountRule, len(defaults))
	copy(out, defaults)

	for _, u := range user {
		replaced := false
		for i, d := range out {
			if d.BoxPath == u.BoxPath {
				out[i] = u
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, u)
		}
	}
	return out
}

func isDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}

// BindMount bind-mounts spec.Host onto base/spec.Dest, creating the target
// (directory or placeholder file, matching the source's type) first, then
// optionally remounting read-only. This is the "bind, then remount"
// two-step required because MS_BIND ignores most other flags on the
// initial mount.
func BindMount(base string, spec MountSpec) error {
	if base == "" || spec.Host == "" || spec.Dest == "" {
		return unix.EINVAL
	}
	target := filepath.Join(base, spec.Dest)

	st := &unix.Stat_t{}
	if err := unix.Stat(spec.Host, st); err != nil {
		return err
	}

	switch st.Mode & unix.S_IFMT {
	case unix.S_IFDIR:
		if err := os.MkdirAll(target, 0o755); err != nil {
			return err
		}
	case unix.S_IFREG, unix.S_IFCHR, unix.S_IFBLK, unix.S_IFIFO, unix.S_IFSOCK:
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		f, err := os.OpenFile(target, os.O_CREATE, 0o644)
		if err != nil {
			return err
		}
		_ = f.Close()
	case unix.S_IFLNK:
		return fmt.Errorf("bind-mounting symlinks is not supported: %s", spec.Host)
	default:
		return fmt.Errorf("unsupported source file type: %s", spec.Host)
	}

	if err := unix.Mount(spec.Host, target, "", unix.MS_BIND|unix.MS_REC|unix.MS_NOSUID, ""); err != nil {
		return err
	}

	flags := unix.MS_BIND | unix.MS_REMOUNT | unix.MS_NOSUID
	if !spec.RW {
		flags |= unix.MS_RDONLY
	}
	if spec.NoExec {
		flags |= unix.MS_NOEXEC
	}
	if !spec.Dev {
		flags |= unix.MS_NODEV
	}
	return unix.Mount("", target, "", uintptr(flags), "")
}

// MountSpec is a resolved bind-mount: Host is the source, Dest is the
// sandbox-relative target, and the three flags control the remount step.
type MountSpec struct {
	Host   string
	Dest   string
	RW     bool
	NoExec bool
	Dev    bool
}

func createTmpfs(path string, mode os.FileMode) error {
	if path == "" {
		return unix.EINVAL
	}
	if err := os.MkdirAll(path, mode); err != nil {
		return err
	}
	return unix.Mount("tmpfs", path, "tmpfs", unix.MS_NOSUID|unix.MS_NODEV, fmt.Sprintf("mode=%o", mode))
}

// mountFreshFS mounts a device-less filesystem (proc, sysfs, tmpfs) fresh at
// base/boxPath, rather than bind-mounting a host directory.
func mountFreshFS(base, boxPath, fstype string) error {
	target := filepath.Join(base, boxPath)
	if err := os.MkdirAll(target, 0o755); err != nil {
		return err
	}
	return unix.Mount(fstype, target, fstype, unix.MS_NOSUID|unix.MS_NODEV|unix.MS_NOEXEC, "")
}

// pivotTo switches the mount namespace's root to newRoot, lazily detaching
// and discarding the old one. newRoot must already be a mountpoint.
func pivotTo(newRoot string) error {
	if err := os.Chdir(newRoot); err != nil {
		return err
	}
	if err := os.MkdirAll(".old_root", 0o700); err != nil {
		return err
	}
	if err := unix.PivotRoot(".", "./.old_root"); err != nil {
		return err
	}
	if err := os.Chdir("/"); err != nil {
		return err
	}
	if err := unix.Unmount("/.old_root", unix.MNT_DETACH); err != nil {
		return err
	}
	return os.Remove("/.old_root")
}

// SetupRoot builds the sandbox's root filesystem: a fresh tmpfs, populated
// by the merged default+user mount rules, then pivoted into as "/". Unlike
// an overlay-based root, this is a plain tmpfs — nothing about the host
// root is reused beyond what an explicit rule bind-mounts in.
func SetupRoot(rootDir string, rules []MountRule) error {
	if err := unix.Mount("", "/", "", unix.MS_PRIVATE|unix.MS_REC, ""); err != nil {
		return fmt.Errorf("privatize mount namespace: %w", err)
	}

	if err := createTmpfs(rootDir, 0o755); err != nil {
		return fmt.Errorf("create root tmpfs: %w", err)
	}

	for _, r := range rules {
		if err := applyMountRule(rootDir, r); err != nil {
			if r.Maybe {
				continue
			}
			return fmt.Errorf("apply rule %s: %w", r.BoxPath, err)
		}
	}

	if err := MountTmp(rootDir); err != nil {
		return fmt.Errorf("mount /tmp: %w", err)
	}

	return pivotTo(rootDir)
}

func applyMountRule(rootDir string, r MountRule) error {
	if r.FreshFS {
		switch r.LocalPath {
		case "proc":
			if err := mountFreshFS(rootDir, r.BoxPath, "proc"); err != nil {
				return err
			}
			HardenProc(filepath.Join(rootDir, r.BoxPath))
			return nil
		case "sysfs":
			return mountFreshFS(rootDir, r.BoxPath, "sysfs")
		case "tmpfs":
			if err := mountFreshFS(rootDir, r.BoxPath, "tmpfs"); err != nil {
				return err
			}
			if r.Dev {
				return PopulateDev(filepath.Join(rootDir, r.BoxPath))
			}
			return nil
		default:
			return fmt.Errorf("unknown filesystem type %q for rule %s", r.LocalPath, r.BoxPath)
		}
	}

	if !isDir(r.LocalPath) {
		if _, err := os.Stat(r.LocalPath); err != nil {
			return err
		}
	}

	return BindMount(rootDir, MountSpec{
		Host:   r.LocalPath,
		Dest:   r.BoxPath,
		RW:     r.ReadWrite,
		NoExec: r.NoExec,
		Dev:    r.Dev,
	})
}
