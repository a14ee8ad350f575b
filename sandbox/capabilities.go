//go:build linux

package sandbox

import (
	"fmt"

	"github.com/moby/sys/capability"
)

// ClampCapabilities strips every Linux capability from the calling process:
// bounding, permitted, effective, inheritable and ambient sets are all set
// empty. The sandboxed program runs capability-less no matter what it was
// started with, on top of (not instead of) the uid/gid drop that must
// happen first.
func ClampCapabilities() error {
	caps, err := capability.NewPid2(0)
	if err != nil {
		return fmt.Errorf("read process capabilities: %w", err)
	}
	if err := caps.Load(); err != nil {
		return fmt.Errorf("load process capabilities: %w", err)
	}

	caps.Clear(capability.BOUNDS)
	caps.Clear(capability.CAPS)
	caps.Clear(capability.AMBIENT)

	if err := caps.Apply(capability.CAPS | capability.BOUNDS | capability.AMBIENT); err != nil {
		return fmt.Errorf("clear capabilities: %w", err)
	}
	return nil
}
