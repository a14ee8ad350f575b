//go:build linux

package options

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sandman/jailer/sandbox"
	"github.com/sandman/jailer/version"
	"github.com/urfave/cli/v3"
)

func buildConfigFromCLI(c *cli.Command) (*sandbox.SandboxConfig, error) {
	cfg := sandbox.NewSandboxConfig()

	switch {
	case c.Bool("init"):
		cfg.Mode = sandbox.ModeInit
	case c.Bool("run"):
		cfg.Mode = sandbox.ModeRun
	case c.Bool("cleanup"):
		cfg.Mode = sandbox.ModeCleanup
	}

	if c.IsSet("box-id") {
		cfg.BoxID = int(c.Int("box-id"))
	}
	cfg.ProcessID = int(c.Int("process-id"))
	cfg.VerboseLevel = int(c.Int("verbose"))
	cfg.MetaFile = c.String("meta")
	cfg.LegacyMetaJSON = c.Bool("legacy-meta-json")

	cfg.CPUTimeLimitMs = uint64(c.Float64("time") * 1000)
	cfg.WallTimeLimitMs = uint64(c.Float64("wall-time") * 1000)
	cfg.ExtraTimeMs = uint64(c.Float64("extra-time") * 1000)

	cfg.MemoryLimitKB = int(c.Int("memory"))
	cfg.StackLimitKB = int(c.Int("stack"))
	cfg.FileSizeLimitKB = int(c.Int("file-size"))
	cfg.MaxProcesses = int(c.Int("processes"))

	cfg.Redirects = sandbox.Redirects{
		Stdin:             c.String("stdin"),
		Stdout:            c.String("stdout"),
		Stderr:            c.String("stderr"),
		SwapPipeOpenOrder: c.Bool("interactive"),
	}

	for _, raw := range c.StringSlice("include-dir") {
		rule, err := ParseDirRule(raw)
		if err != nil {
			return nil, err
		}
		cfg.DirRules = append(cfg.DirRules, rule)
	}

	cfg.DiskQuota = sandbox.DiskQuota{
		BlockQuota: int(c.Int("quota-blocks")),
		InodeQuota: int(c.Int("quota-inodes")),
	}

	for _, raw := range c.StringSlice("permission") {
		cfg.FilePermissions.Rules = append(cfg.FilePermissions.Rules, ParsePermissionRule(raw))
	}
	cfg.FilePermissions.FullPermissionsOverFolder = true

	cfg.PassEnvironment = c.Bool("full-env")
	for _, raw := range c.StringSlice("env") {
		rule, err := sandbox.ParseEnvRule(raw)
		if err != nil {
			return nil, err
		}
		cfg.EnvRules = append(cfg.EnvRules, rule)
	}

	cfg.ExecDirectory = c.String("chdir")
	cfg.ShareNetwork = c.Bool("share-net")

	argv := c.Args().Slice()
	if cfg.Mode == sandbox.ModeRun {
		if len(argv) == 0 {
			return nil, errors.New("--run requires a command after the flags, e.g. sandbox-jailer --run -- /bin/echo hi")
		}
		cfg.RunCommand = argv
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseCli parses args into a SandboxConfig, or returns the error produced
// by an unrecognized flag, annotated with a best-guess suggestion the same
// way the original command-line tool did.
func ParseCli(ctx context.Context, args []string) (*sandbox.SandboxConfig, error) {
	var result *sandbox.SandboxConfig

	cmd := &cli.Command{
		Name:    "sandbox-jailer",
		Usage:   "Runs a single program under CPU/wall/memory/process limits, isolated in its own namespaces.",
		Version: version.Version(),
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "box-id", Aliases: []string{"b"}, Value: 0, Usage: "Sandbox identifier; each concurrently running sandbox needs a unique one"},
			&cli.IntFlag{Name: "process-id", Aliases: []string{"p"}, Value: 0, Usage: "Sub-process identifier within a box, for running several processes per box"},
			&cli.IntFlag{Name: "verbose", Aliases: []string{"v"}, Value: 0, Usage: "Increase log verbosity"},
			&cli.StringFlag{Name: "meta", Usage: "Write run statistics as JSON to FILE"},
			&cli.BoolFlag{Name: "legacy-meta-json", Usage: "Write the meta file in the legacy (numeric resultCode) format"},

			&cli.Float64Flag{Name: "time", Aliases: []string{"t"}, Value: 0, Usage: "CPU time limit in seconds (0 = unlimited)"},
			&cli.Float64Flag{Name: "wall-time", Value: 0, Usage: "Wall clock time limit in seconds (0 = unlimited)"},
			&cli.Float64Flag{Name: "extra-time", Value: 0, Usage: "Extra seconds granted past the time limit before killing"},

			&cli.IntFlag{Name: "memory", Aliases: []string{"m"}, Value: 0, Usage: "Memory limit in KB (0 = unlimited)"},
			&cli.IntFlag{Name: "stack", Value: 0, Usage: "Stack limit in KB (0 = unlimited)"},
			&cli.IntFlag{Name: "file-size", Value: 0, Usage: "Max size in KB of files the sandboxed process may create (0 = unlimited)"},
			&cli.IntFlag{Name: "processes", Value: sandbox.DefaultMaxProcesses, Usage: "Max number of processes/threads the sandboxed process may create (0 = unlimited)"},

			&cli.StringFlag{Name: "stdin", Usage: "Redirect stdin from FILE"},
			&cli.StringFlag{Name: "stdout", Usage: "Redirect stdout to FILE"},
			&cli.StringFlag{Name: "stderr", Usage: "Redirect stderr to FILE"},
			&cli.BoolFlag{Name: "interactive", Usage: "Open the stdout redirect before stdin, avoiding a FIFO deadlock"},

			&cli.StringSliceFlag{Name: "include-dir", Usage: "Mount box-path=local-path[:flags] inside the sandbox (flags: w,n,f,m,d)"},
			&cli.BoolFlag{Name: "full-env", Usage: "Inherit the full environment of the parent process"},
			&cli.StringSliceFlag{Name: "env", Usage: "Set NAME=VALUE, or keep NAME's value inherited via --full-env if bare"},
			&cli.StringSliceFlag{Name: "permission", Usage: "Grant/revoke file[:perm] ACL rights to the sandboxed uid"},

			&cli.IntFlag{Name: "quota-blocks", Value: 0, Usage: "Disk quota in blocks for the sandboxed uid (0 = unlimited)"},
			&cli.IntFlag{Name: "quota-inodes", Value: 0, Usage: "Disk quota in inodes for the sandboxed uid (0 = unlimited)"},

			&cli.StringFlag{Name: "chdir", Usage: "Change directory to DIR before executing the program"},
			&cli.BoolFlag{Name: "share-net", Usage: "Share the network namespace with the host instead of isolating it"},

			&cli.BoolFlag{Name: "init", Aliases: []string{"i"}, Usage: "Initialize the sandbox"},
			&cli.BoolFlag{Name: "run", Aliases: []string{"r"}, Usage: "Run a command in the sandbox"},
			&cli.BoolFlag{Name: "cleanup", Usage: "Tear down the sandbox"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := buildConfigFromCLI(c)
			if err != nil {
				return err
			}
			result = cfg
			return nil
		},
	}

	if err := cmd.Run(ctx, args); err != nil {
		if unknown, ok := unknownFlagName(err); ok {
			return nil, fmt.Errorf("%w. Did you mean '%s'?", err, ClosestFlag(unknown))
		}
		return nil, err
	}

	return result, nil
}

// unknownFlagName extracts the flag name from an urfave/cli "flag provided
// but not defined" error, so ParseCli can offer a closest-match suggestion.
func unknownFlagName(err error) (string, bool) {
	const marker = "flag provided but not defined: -"
	msg := err.Error()
	idx := strings.Index(msg, marker)
	if idx < 0 {
		return "", false
	}
	return strings.TrimSpace(msg[idx+len(marker):]), true
}
