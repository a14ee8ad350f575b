//go:build linux

package fs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultMountRulesOrder(t *testing.T) {
	rules := DefaultMountRules()
	require.Len(t, rules, 7)

	want := []string{"box", "bin", "dev", "lib", "lib64", "proc", "usr"}
	got := make([]string, len(rules))
	for i, r := range rules {
		got[i] = r.BoxPath
	}
	assert.Equal(t, want, got)

	for _, r := range rules {
		switch r.BoxPath {
		case "box":
			assert.True(t, r.ReadWrite)
		case "dev":
			assert.True(t, r.Dev)
			assert.Equal(t, "/dev", r.LocalPath, "the default dev rule is a plain bind mount of the host's /dev, not a synthesized one")
			assert.False(t, r.FreshFS, "a synthesized /dev is opt-in via a user rule, not the default")
		case "lib64":
			assert.True(t, r.Maybe)
		case "proc":
			assert.True(t, r.FreshFS)
		default:
			assert.False(t, r.ReadWrite)
			assert.False(t, r.Maybe)
			assert.False(t, r.FreshFS)
		}
	}
}

func TestDevRuleShapesBindVersusSynthesized(t *testing.T) {
	// applyMountRule calls PopulateDev only for a FreshFS "tmpfs" rule; a
	// plain Dev-flagged bind-mount rule (the default "dev" rule) is not
	// FreshFS. This checks the two rule shapes, not the mount calls.
	bindRule := MountRule{BoxPath: "dev", LocalPath: "/dev", Dev: true}
	assert.False(t, bindRule.FreshFS)

	synthRule := MountRule{BoxPath: "dev", LocalPath: "tmpfs", FreshFS: true, Dev: true}
	assert.True(t, synthRule.FreshFS)
	assert.Equal(t, "tmpfs", synthRule.LocalPath)
}

func TestMergeMountRulesOverridesByBoxPath(t *testing.T) {
	defaults := DefaultMountRules()
	user := []MountRule{
		{BoxPath: "lib64", LocalPath: "/custom/lib64", ReadWrite: true},
		{BoxPath: "opt", LocalPath: "/opt"},
	}

	merged := MergeMountRules(defaults, user)
	require.Len(t, merged, len(defaults)+1)

	var lib64, opt *MountRule
	for i := range merged {
		switch merged[i].BoxPath {
		case "lib64":
			lib64 = &merged[i]
		case "opt":
			opt = &merged[i]
		}
	}

	require.NotNil(t, lib64)
	assert.Equal(t, "/custom/lib64", lib64.LocalPath)
	assert.True(t, lib64.ReadWrite)
	assert.False(t, lib64.Maybe, "the user rule replaces the default outright, it doesn't merge fields")

	require.NotNil(t, opt)
	assert.Equal(t, "/opt", opt.LocalPath)

	assert.Equal(t, "box", merged[0].BoxPath, "default ordering is preserved ahead of appended user rules")
	assert.Equal(t, "opt", merged[len(merged)-1].BoxPath, "new box paths are appended at the end")
}

func TestMergeMountRulesEmptyUserKeepsDefaults(t *testing.T) {
	defaults := DefaultMountRules()
	merged := MergeMountRules(defaults, nil)
	assert.Equal(t, defaults, merged)
}
