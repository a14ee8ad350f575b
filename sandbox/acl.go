//go:build linux

package sandbox

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// modeOrder is the canonical bit order file-permission modes are normalized
// to: execute, then write, then read — not the more familiar "rwx".
const modeOrder = "xwr"

// normalizeMode reduces an arbitrary combination of 'r'/'w'/'x' characters
// to modeOrder's fixed sequence, dropping duplicates and anything else.
func normalizeMode(mode string) string {
	has := map[byte]bool{}
	for i := 0; i < len(mode); i++ {
		c := mode[i]
		if c == 'r' || c == 'w' || c == 'x' {
			has[c] = true
		}
	}
	var b strings.Builder
	for i := 0; i < len(modeOrder); i++ {
		if has[modeOrder[i]] {
			b.WriteByte(modeOrder[i])
		}
	}
	return b.String()
}

// FilePermissionPlan resolves the ACL rules applied to /box once the
// sandboxed process's target UID is known.
type FilePermissionPlan struct {
	rules []FilePermissionRule
}

// NewFilePermissionPlan seeds "." and "*" with full rights when
// fullPermissionsOverFolder is set (the default), then appends the user's
// own rules in order, so a later rule for the same path wins.
func NewFilePermissionPlan(fullPermissionsOverFolder bool, rules []FilePermissionRule) *FilePermissionPlan {
	p := &FilePermissionPlan{}
	if fullPermissionsOverFolder {
		p.rules = append(p.rules,
			FilePermissionRule{Path: ".", Mode: "rxw"},
			FilePermissionRule{Path: "*", Mode: "rxw"},
		)
	}
	p.rules = append(p.rules, rules...)
	return p
}

// Apply grants/revokes the plan's rules to uid via one batched setfacl
// invocation. The caller must already be chdir'd into "/box" and running
// as root, the same preconditions the jailer enforces before applying
// rlimits and dropping credentials.
func (p *FilePermissionPlan) Apply(uid int) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getwd: %w", err)
	}
	if cwd != "/box" {
		return fmt.Errorf("file permissions must be applied from /box, got %s", cwd)
	}

	if err := os.Chmod(".", 0o750); err != nil {
		return fmt.Errorf("reset mode of .: %w", err)
	}
	if matches, _ := filepath.Glob("*"); len(matches) > 0 {
		for _, m := range matches {
			_ = os.Chmod(m, 0o750)
		}
	}

	var args []string
	for _, r := range p.rules {
		mode := normalizeMode(r.Mode)
		if mode == "" {
			args = append(args, "-x", fmt.Sprintf("u:%d", uid), r.Path)
			continue
		}
		args = append(args, "-m", fmt.Sprintf("u:%d:%s", uid, mode), r.Path)
	}
	if len(args) == 0 {
		return nil
	}

	cmd := exec.Command("setfacl", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("setfacl: %w (%s)", err, strings.TrimSpace(string(out)))
	}
	return nil
}
