//go:build linux

package sandbox

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"golang.org/x/sys/unix"
)

// Jailer dispatches one of the three sandbox operations (Init, Run,
// Cleanup) against the per-box directory and cgroup identified by a
// SandboxConfig's box/process IDs.
type Jailer struct {
	config *SandboxConfig
}

func NewJailer(config *SandboxConfig) *Jailer {
	return &Jailer{config: config}
}

// BoxDir is the host-side directory this jailer instance owns:
// /tmp/box/<box-id>.
func (j *Jailer) BoxDir() string {
	return filepath.Join(DefaultBaseBoxDir, strconv.Itoa(j.config.BoxID))
}

// chdirBox enters BoxDir, creating it first if it doesn't exist yet (a
// fresh box-id the very first time it's used).
func (j *Jailer) chdirBox() error {
	if err := os.MkdirAll(j.BoxDir(), 0o750); err != nil {
		return fmt.Errorf("create box directory: %w", err)
	}
	return os.Chdir(j.BoxDir())
}

// Dispatch runs the operation selected by config.Mode and returns the
// process's exit code (0 on success, non-zero on a fatal jailer-side
// error; the sandboxed program's own outcome is recorded in the meta file,
// never in this return value).
func (j *Jailer) Dispatch() int {
	if unix.Geteuid() != 0 {
		fmt.Fprintln(os.Stderr, "must be started as root")
		return 1
	}

	if err := j.chdirBox(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	var err error
	switch j.config.Mode {
	case ModeInit:
		err = j.Init()
	case ModeRun:
		err = j.Run()
	case ModeCleanup:
		err = j.Cleanup()
	default:
		err = fmt.Errorf("unknown mode %s", j.config.Mode)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

// Init (re)creates an empty box directory and prepares the cgroup and disk
// quota the run will use.
func (j *Jailer) Init() error {
	unix.Umask(0o027)

	if err := os.RemoveAll("box"); err != nil {
		return fmt.Errorf("remove stale box: %w", err)
	}
	if err := os.Mkdir("box", 0o750); err != nil {
		return fmt.Errorf("create box: %w", err)
	}

	cg, err := NewControlGroup(j.config.CgroupID())
	if err != nil {
		return fmt.Errorf("select cgroup backend: %w", err)
	}
	if err := cg.Prepare(); err != nil {
		return fmt.Errorf("prepare cgroup: %w", err)
	}

	oldwd, err := os.Getwd()
	if err != nil {
		return err
	}
	if err := os.Chdir("box"); err != nil {
		return err
	}
	quotaErr := ApplyDiskQuota(j.config.DiskQuota, j.config.UID())
	_ = os.Chdir(oldwd)
	if quotaErr != nil {
		return fmt.Errorf("apply disk quota: %w", quotaErr)
	}

	return nil
}

// Run launches the sandboxed command, supervises it to completion, and
// writes the resulting meta file. A failure before the child is even
// started still produces a best-effort meta file, so a caller scripting
// against the meta file's existence never has to special-case a jailer
// crash.
func (j *Jailer) Run() error {
	if err := DirExists("box"); err != nil {
		return j.writeErrorStats(fmt.Errorf("box not initialized: %w", err))
	}

	cg, err := NewControlGroup(j.config.CgroupID())
	if err != nil {
		return j.writeErrorStats(fmt.Errorf("select cgroup backend: %w", err))
	}
	if err := cg.Prepare(); err != nil {
		return j.writeErrorStats(fmt.Errorf("prepare cgroup: %w", err))
	}

	pipe, err := MakeErrorPipe()
	if err != nil {
		return j.writeErrorStats(err)
	}

	pid, err := cloneProcess(j.config.ShareNetwork, func() {
		init := NewInitializer(j.config, cg, pipe)
		_ = init.Run()
	})
	if err != nil {
		pipe.CloseRead()
		pipe.CloseWrite()
		return j.writeErrorStats(err)
	}

	keeper := NewKeeper(j.config, cg, pipe, pid)
	stats := keeper.Start()

	if cleanupErr := cg.Cleanup(); cleanupErr != nil {
		// Best-effort: a lingering cgroup is cleaned up on the next Init,
		// and shouldn't mask the run's own result.
		stats.InternalMessage += fmt.Sprintf(" (cgroup cleanup: %v)", cleanupErr)
	}

	return j.writeStats(stats)
}

// Cleanup removes the whole <base>/<box-id> directory tree and its cgroup,
// leaving neither behind.
func (j *Jailer) Cleanup() error {
	cg, err := NewControlGroup(j.config.CgroupID())
	if err == nil {
		_ = cg.Cleanup()
	}
	boxDir := j.BoxDir()
	if err := os.RemoveAll(boxDir); err != nil {
		return fmt.Errorf("remove %s: %w", boxDir, err)
	}
	return nil
}

func (j *Jailer) writeStats(stats *RunStats) error {
	enc := NewMetaEncoder(j.config.LegacyMetaJSON)
	data, err := enc.Encode(stats)
	if err != nil {
		return fmt.Errorf("encode meta: %w", err)
	}
	if j.config.MetaFile == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(j.config.MetaFile, data, 0o644)
}

func (j *Jailer) writeErrorStats(cause error) error {
	_ = j.writeStats(errorStats())
	return cause
}

// DirExists returns nil if path is an existing directory, or a descriptive
// error otherwise.
func DirExists(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !fi.IsDir() {
		return fmt.Errorf("%s is not a directory", path)
	}
	return nil
}
