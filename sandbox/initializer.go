//go:build linux

package sandbox

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/sandman/jailer/fs"
	"golang.org/x/sys/unix"
)

// Initializer carries out the child-side setup sequence after clone3
// returns in the new process, ending in an exec of the sandboxed command.
// Every step that fails reports through the error pipe before the child
// exits, so the parent's Keeper can recover a meaningful InternalMessage.
type Initializer struct {
	config *SandboxConfig
	cg     controlGroup
	pipe   *errorPipe
}

func NewInitializer(config *SandboxConfig, cg controlGroup, pipe *errorPipe) *Initializer {
	return &Initializer{config: config, cg: cg, pipe: pipe}
}

// Run executes the full child setup sequence and then execs the sandboxed
// command. It only returns on failure — callers should treat any return as
// fatal (the error has already been reported over the pipe).
func (init *Initializer) Run() error {
	c := init.config

	if err := init.cg.Enter(c.MemoryLimitKB); err != nil {
		return init.fail("enter cgroup", err)
	}

	// cwd here is still the host-side <base>/<box-id> directory the Jailer
	// chdir'd into before cloning; "root" is materialized inside it, not at
	// a single shared absolute host path.
	rules := fs.MergeMountRules(fs.DefaultMountRules(), toMountRules(c.DirRules))
	if err := fs.SetupRoot("root", rules); err != nil {
		return init.fail("setup root filesystem", err)
	}

	if err := os.Chdir("/box"); err != nil {
		return init.fail("chdir into /box", err)
	}

	redirFiles, err := openRedirects(c.Redirects)
	if err != nil {
		return init.fail("open redirections", err)
	}
	for fd, f := range redirFiles {
		if f == nil {
			continue
		}
		if err := unix.Dup2(int(f.Fd()), fd); err != nil {
			return init.fail("dup2 redirection", err)
		}
		_ = f.Close()
	}
	if c.Redirects.Stderr == "" {
		if err := unix.Dup2(unix.Stdout, unix.Stderr); err != nil {
			return init.fail("dup2 stderr onto stdout", err)
		}
	}

	if err := NewFilePermissionPlan(c.FilePermissions.FullPermissionsOverFolder, c.FilePermissions.Rules).Apply(c.UID()); err != nil {
		return init.fail("apply file permissions", err)
	}

	if err := ApplyRlimits(c); err != nil {
		return init.fail("apply rlimits", err)
	}

	if err := dropCredentials(c.UID(), c.GID()); err != nil {
		return init.fail("drop credentials", err)
	}

	if err := ClampCapabilities(); err != nil {
		return init.fail("clamp capabilities", err)
	}

	if c.ExecDirectory != "" {
		if err := os.Chdir(c.ExecDirectory); err != nil {
			return init.fail("chdir into exec directory", err)
		}
	}

	env := NewEnvironmentPlan(c.PassEnvironment, c.EnvRules).Slice()
	if len(c.RunCommand) == 0 {
		return init.fail("exec", fmt.Errorf("no command to run"))
	}

	argv0 := c.RunCommand[0]
	if p, lerr := exec.LookPath(argv0); lerr == nil {
		argv0 = p
	}
	err = unix.Exec(argv0, c.RunCommand, env)
	return init.fail("exec "+strings.Join(c.RunCommand, " "), err)
}

func (init *Initializer) fail(step string, err error) error {
	msg := fmt.Sprintf("%s: %v", step, err)
	init.pipe.ReportFault(msg)
	unix.Exit(1)
	return err // unreachable; keeps the compiler happy about control flow
}

// dropCredentials drops to uid/gid permanently and detaches from the
// parent's process group, mirroring setresuid/setresgid/setgroups(0,
// NULL)/setpgrp in that exact order.
func dropCredentials(uid, gid int) error {
	if err := unix.Setresgid(gid, gid, gid); err != nil {
		return fmt.Errorf("setresgid: %w", err)
	}
	if err := unix.Setgroups(nil); err != nil {
		return fmt.Errorf("setgroups: %w", err)
	}
	if err := unix.Setresuid(uid, uid, uid); err != nil {
		return fmt.Errorf("setresuid: %w", err)
	}
	if err := unix.Setpgid(0, 0); err != nil {
		return fmt.Errorf("setpgid: %w", err)
	}
	return nil
}

// openRedirects opens the configured stdin/stdout/stderr targets, keyed by
// the file descriptor they should be dup2'd onto. Stdout is opened before
// stdin when SwapPipeOpenOrder is set, avoiding a deadlock when both ends
// of a FIFO pair are opened by cooperating processes started in the wrong
// order.
func openRedirects(r Redirects) (map[int]*os.File, error) {
	out := make(map[int]*os.File, 3)

	openOne := func(path string, fd int, flag int) error {
		if path == "" {
			return nil
		}
		f, err := os.OpenFile(path, flag, 0o666)
		if err != nil {
			return fmt.Errorf("open %s: %w", path, err)
		}
		out[fd] = f
		return nil
	}

	if r.SwapPipeOpenOrder {
		if err := openOne(r.Stdout, unix.Stdout, os.O_WRONLY|os.O_CREATE|os.O_TRUNC); err != nil {
			return nil, err
		}
		if err := openOne(r.Stdin, unix.Stdin, os.O_RDONLY); err != nil {
			return nil, err
		}
	} else {
		if err := openOne(r.Stdin, unix.Stdin, os.O_RDONLY); err != nil {
			return nil, err
		}
		if err := openOne(r.Stdout, unix.Stdout, os.O_WRONLY|os.O_CREATE|os.O_TRUNC); err != nil {
			return nil, err
		}
	}

	if err := openOne(r.Stderr, unix.Stderr, os.O_WRONLY|os.O_CREATE|os.O_TRUNC); err != nil {
		return nil, err
	}

	return out, nil
}

func toMountRules(rules []DirRule) []fs.MountRule {
	out := make([]fs.MountRule, 0, len(rules))
	for _, r := range rules {
		out = append(out, fs.MountRule{
			BoxPath:   r.BoxPath,
			LocalPath: r.LocalPath,
			ReadWrite: r.Flags&FlagRW != 0,
			NoExec:    r.Flags&FlagNoExec != 0,
			FreshFS:   r.Flags&FlagFS != 0,
			Maybe:     r.Flags&FlagMaybe != 0,
			Dev:       r.Flags&FlagDev != 0,
		})
	}
	return out
}
