//go:build linux

package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeModeCanonicalOrder(t *testing.T) {
	assert.Equal(t, "xwr", normalizeMode("rwx"))
	assert.Equal(t, "xwr", normalizeMode("rxw"))
	assert.Equal(t, "wr", normalizeMode("rw"))
	assert.Equal(t, "x", normalizeMode("xxx"), "duplicates collapse")
	assert.Equal(t, "", normalizeMode(""))
	assert.Equal(t, "", normalizeMode("qz"), "unknown characters are dropped")
}

func TestNewFilePermissionPlanSeedsFullRights(t *testing.T) {
	p := NewFilePermissionPlan(true, []FilePermissionRule{{Path: "secret", Mode: ""}})

	require := []FilePermissionRule{
		{Path: ".", Mode: "rxw"},
		{Path: "*", Mode: "rxw"},
		{Path: "secret", Mode: ""},
	}
	assert.Equal(t, require, p.rules)
}

func TestNewFilePermissionPlanWithoutFullRights(t *testing.T) {
	p := NewFilePermissionPlan(false, []FilePermissionRule{{Path: "secret", Mode: "r"}})
	assert.Equal(t, []FilePermissionRule{{Path: "secret", Mode: "r"}}, p.rules)
}
