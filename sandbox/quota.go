//go:build linux

package sandbox

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"unsafe"

	"golang.org/x/sys/unix"
)

// findDevice scans /proc/mounts for the longest-prefix match of an
// already-mounted source device whose mountpoint is a prefix of path; this
// is how a quota is applied to "whatever block device /box lives on"
// without the caller having to know it up front.
func findDevice(path string) (string, error) {
	f, err := os.Open("/proc/mounts")
	if err != nil {
		return "", fmt.Errorf("open /proc/mounts: %w", err)
	}
	defer f.Close()

	best := ""
	bestLen := -1

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		source, mountpoint := fields[0], fields[1]
		if !strings.HasPrefix(source, "/dev") {
			continue
		}
		if !strings.HasPrefix(path, mountpoint) {
			continue
		}
		if len(mountpoint) > bestLen {
			best = source
			bestLen = len(mountpoint)
		}
	}
	if best == "" {
		return "", fmt.Errorf("no block device backs %s", path)
	}
	return best, nil
}

// ApplyDiskQuota enforces q on uid's usage of the filesystem backing cwd. A
// zero BlockQuota disables quota enforcement entirely (the default).
func ApplyDiskQuota(q DiskQuota, uid int) error {
	if q.BlockQuota == 0 {
		return nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getwd: %w", err)
	}

	device, err := findDevice(cwd)
	if err != nil {
		return err
	}

	var cwdStat, devStat unix.Stat_t
	if err := unix.Stat(cwd, &cwdStat); err != nil {
		return fmt.Errorf("stat %s: %w", cwd, err)
	}
	if err := unix.Stat(device, &devStat); err != nil {
		return fmt.Errorf("stat %s: %w", device, err)
	}
	if devStat.Mode&unix.S_IFMT != unix.S_IFBLK {
		return fmt.Errorf("%s is not a block device", device)
	}
	if devStat.Rdev != cwdStat.Dev {
		return fmt.Errorf("%s does not back %s", device, cwd)
	}

	dqblk := unix.Dqblk{
		Bhardlimit: uint64(q.BlockQuota),
		Bsoftlimit: uint64(q.BlockQuota),
		Ihardlimit: uint64(q.InodeQuota),
		Isoftlimit: uint64(q.InodeQuota),
		Valid:      unix.QIF_LIMITS,
	}

	cmd := unix.QCMD(unix.Q_SETQUOTA, unix.USRQUOTA)
	if err := unix.Quotactl(cmd, device, uid, uintptr(unsafe.Pointer(&dqblk))); err != nil {
		return fmt.Errorf("quotactl Q_SETQUOTA on %s for uid %d: %w", device, uid, err)
	}
	return nil
}

// parseBlockCount parses a decimal quota value, ignoring surrounding
// whitespace. Nothing in the package calls it.
func parseBlockCount(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid quota value %q: %w", s, err)
	}
	return n, nil
}
