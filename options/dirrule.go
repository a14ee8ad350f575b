package options

import (
	"fmt"
	"strings"

	"github.com/sandman/jailer/sandbox"
)

// ParseDirRule parses one --include-dir value. The accepted forms are
// "box-path=local-path" and "box-path=local-path:flags", where flags is any
// combination of 'w' (read-write), 'n' (disallow exec), 'd' (allow
// devices), 'm' (maybe: skip if local-path is missing)
// and 'f' (fresh filesystem, local-path names a type like "proc"/"tmpfs"
// instead of a host path). A rule is read-only and exec-allowed unless its
// flags say otherwise. Leading slashes are stripped from box-path.
func ParseDirRule(raw string) (sandbox.DirRule, error) {
	boxPath, rest, ok := strings.Cut(raw, "=")
	boxPath = strings.TrimLeft(boxPath, "/")
	if !ok || boxPath == "" {
		return sandbox.DirRule{}, fmt.Errorf("invalid --include-dir value %q: expected box-path=local-path[:flags]", raw)
	}

	localPath, flagStr, _ := strings.Cut(rest, ":")
	if localPath == "" {
		return sandbox.DirRule{}, fmt.Errorf("invalid --include-dir value %q: empty local-path", raw)
	}

	var flags sandbox.DirRuleFlag
	for _, c := range flagStr {
		switch c {
		case 'w':
			flags |= sandbox.FlagRW
		case 'n':
			flags |= sandbox.FlagNoExec
		case 'f':
			flags |= sandbox.FlagFS
		case 'm':
			flags |= sandbox.FlagMaybe
		case 'd':
			flags |= sandbox.FlagDev
		default:
			return sandbox.DirRule{}, fmt.Errorf("invalid --include-dir value %q: unknown flag %q", raw, c)
		}
	}

	return sandbox.DirRule{BoxPath: boxPath, LocalPath: localPath, Flags: flags}, nil
}
