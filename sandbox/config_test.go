//go:build linux

package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRequiresBoxID(t *testing.T) {
	c := NewSandboxConfig()
	c.Mode = ModeRun
	c.RunCommand = []string{"/bin/true"}
	err := c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "box-id")
}

func TestValidateRequiresModeAndCommand(t *testing.T) {
	c := NewSandboxConfig()
	c.BoxID = 0
	require.Error(t, c.Validate(), "no mode selected")

	c.Mode = ModeRun
	require.Error(t, c.Validate(), "run mode with no command")

	c.RunCommand = []string{"/bin/true"}
	assert.NoError(t, c.Validate())
}

func TestValidateRejectsOutOfRangeProcessID(t *testing.T) {
	c := NewSandboxConfig()
	c.BoxID = 0
	c.Mode = ModeInit
	c.ProcessID = MaxProcessesPerBox
	err := c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "process-id")
}

func TestUIDGIDCgroupIDAreDistinctPerBoxAndProcess(t *testing.T) {
	a := &SandboxConfig{BoxID: 0, ProcessID: 0}
	b := &SandboxConfig{BoxID: 0, ProcessID: 1}
	c := &SandboxConfig{BoxID: 1, ProcessID: 0}

	assert.NotEqual(t, a.UID(), b.UID())
	assert.NotEqual(t, a.UID(), c.UID())
	assert.Equal(t, FirstProcessUID, a.UID())
	assert.Equal(t, FirstProcessGID, a.GID())
	assert.Equal(t, FirstCgroupID, a.CgroupID())
	assert.Equal(t, FirstCgroupID+MaxProcessesPerBox, c.CgroupID())
}
