//go:build linux

package fs

import (
	"os"
	"path"
)

// MountTmp ensures /tmp exists under base with mode 777. If base is empty
// the function does nothing and returns nil.
func MountTmp(base string) error {
	if base == "" {
		return nil
	}

	tmp := path.Join(base, "/tmp")
	if err := os.MkdirAll(tmp, 0o777); err != nil {
		return err
	}
	return os.Chmod(tmp, 0o777)
}
