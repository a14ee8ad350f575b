package options

import (
	"testing"

	"github.com/sandman/jailer/sandbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDirRuleBasic(t *testing.T) {
	r, err := ParseDirRule("box=./box:w")
	require.NoError(t, err)
	assert.Equal(t, "box", r.BoxPath)
	assert.Equal(t, "./box", r.LocalPath)
	assert.Equal(t, sandbox.FlagRW, r.Flags)
}

func TestParseDirRuleAllFlags(t *testing.T) {
	r, err := ParseDirRule("dev=dev:wnfmd")
	require.NoError(t, err)
	want := sandbox.FlagRW | sandbox.FlagNoExec | sandbox.FlagFS | sandbox.FlagMaybe | sandbox.FlagDev
	assert.Equal(t, want, r.Flags)
}

func TestParseDirRuleNoFlags(t *testing.T) {
	r, err := ParseDirRule("usr=/usr")
	require.NoError(t, err)
	assert.Equal(t, sandbox.DirRuleFlag(0), r.Flags)
}

func TestParseDirRuleRejectsMalformed(t *testing.T) {
	_, err := ParseDirRule("no-equals-sign")
	assert.Error(t, err)

	_, err = ParseDirRule("box=")
	assert.Error(t, err)

	_, err = ParseDirRule("box=./box:z")
	assert.Error(t, err, "unknown flag character")
}

func TestParsePermissionRule(t *testing.T) {
	r := ParsePermissionRule("secret.txt:r")
	assert.Equal(t, "secret.txt", r.Path)
	assert.Equal(t, "r", r.Mode)

	r = ParsePermissionRule("revoke.txt")
	assert.Equal(t, "revoke.txt", r.Path)
	assert.Equal(t, "", r.Mode)
}
