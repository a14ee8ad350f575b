package options

import (
	"strings"

	"github.com/sandman/jailer/sandbox"
)

// ParsePermissionRule parses one --permission value: "file[:perm]", where
// perm is any combination of 'r', 'w', 'x' (default empty, which revokes
// all rights to that path).
func ParsePermissionRule(raw string) sandbox.FilePermissionRule {
	path, mode, _ := strings.Cut(raw, ":")
	return sandbox.FilePermissionRule{Path: path, Mode: mode}
}
