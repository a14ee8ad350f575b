//go:build linux

package sandbox

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBoxDirHasNoProcessIDComponent(t *testing.T) {
	a := NewJailer(&SandboxConfig{BoxID: 5, ProcessID: 0})
	b := NewJailer(&SandboxConfig{BoxID: 5, ProcessID: 3})

	want := filepath.Join(DefaultBaseBoxDir, "5")
	assert.Equal(t, want, a.BoxDir())
	assert.Equal(t, a.BoxDir(), b.BoxDir(), "every process sharing a box-id shares the same sandbox directory")
}

func TestDispatchRefusesNonRoot(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("test process is running as root")
	}

	j := NewJailer(&SandboxConfig{BoxID: 0, ProcessID: 0, Mode: ModeInit})
	assert.Equal(t, 1, j.Dispatch())
}
