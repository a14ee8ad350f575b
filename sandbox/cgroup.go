//go:build linux

package sandbox

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

// cgroup2FSMagic is the f_type reported by statfs(2) for a cgroup v2
// (unified hierarchy) mount.
const cgroup2FSMagic = 0x63677270

// controlGroup is the contract both cgroup back-ends satisfy. The Jailer
// selects an implementation once, at process start, by probing the cgroup
// filesystem; nothing above this interface needs to know which version it
// is talking to.
type controlGroup interface {
	// Prepare (re)creates the cgroup directory, empty, with controllers
	// enabled. Safe to call again after a prior crashed run left a stale
	// directory behind.
	Prepare() error
	// Enter adds the calling process to the cgroup and applies the memory
	// limit, if any.
	Enter(memoryLimitKB int) error
	// CPUTimeMs returns accumulated CPU time for the group, in milliseconds.
	CPUTimeMs() uint64
	// FullTime returns the wall/cpu/user/system breakdown available from
	// the cgroup (wall time is always zero here; the Keeper fills it in
	// from its own clock).
	FullTime() TimeStat
	// MemoryKB returns the peak memory usage observed for the group.
	MemoryKB() uint64
	// Cleanup removes the cgroup directory. It fails if tasks remain.
	Cleanup() error
}

// NewControlGroup probes the cgroup filesystem and returns the appropriate
// back-end for cgid, the numeric suffix shared by both implementations'
// "box-<cgid>" directory name.
func NewControlGroup(cgid int) (controlGroup, error) {
	name := fmt.Sprintf("box-%d", cgid)

	var st unix.Statfs_t
	if err := unix.Statfs(cgroupV2Root, &st); err == nil && st.Type == cgroup2FSMagic {
		return &cgroupV2{name: name}, nil
	}

	// Fall back to the v1 multi-subsystem layout. The memory and cpuacct
	// subsystems are mandatory; cpuset is used only best-effort.
	for _, sub := range []string{"memory", "cpuacct"} {
		if _, err := os.Stat(filepath.Join(cgroupV1Root, sub)); err != nil {
			return nil, fmt.Errorf("cgroup: neither v2 nor v1 (%s) subsystem is mounted: %w", sub, err)
		}
	}
	return &cgroupV1{name: name}, nil
}

func readFileTrim(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

func writeFileBestEffort(path, value string) {
	_ = os.WriteFile(path, []byte(value), 0o644)
}

// --- cgroup v2 (unified hierarchy) -----------------------------------------

const cgroupV2Root = "/sys/fs/cgroup"

type cgroupV2 struct {
	name string
}

func (c *cgroupV2) path(parts ...string) string {
	return filepath.Join(append([]string{cgroupV2Root, c.name}, parts...)...)
}

func (c *cgroupV2) Prepare() error {
	dir := c.path()
	if _, err := os.Stat(dir); err == nil {
		if err := os.Remove(dir); err != nil {
			return fmt.Errorf("cgroup v2: reset stale group %s: %w", dir, err)
		}
	}

	// Enable the controllers we need in the parent's subtree before
	// creating our own leaf, as cgroup v2 requires a controller to be
	// enabled by every ancestor before a leaf can use it.
	subtreeControl := filepath.Join(cgroupV2Root, "cgroup.subtree_control")
	f, err := os.OpenFile(subtreeControl, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("cgroup v2: open %s: %w", subtreeControl, err)
	}
	for _, ctrl := range []string{"+memory", "+cpuset"} {
		if _, err := f.WriteString(ctrl); err != nil && !errors.Is(err, syscall.EBUSY) {
			f.Close()
			return fmt.Errorf("cgroup v2: enable controller %s: %w", ctrl, err)
		}
	}
	f.Close()

	if err := os.Mkdir(dir, 0o777); err != nil {
		return fmt.Errorf("cgroup v2: create %s: %w", dir, err)
	}

	// Best-effort: copy the effective cpuset down from the parent.
	if v, err := readFileTrim(filepath.Join(cgroupV2Root, "cpuset.cpus.effective")); err == nil {
		writeFileBestEffort(c.path("cpuset.cpus"), v)
	}
	if v, err := readFileTrim(filepath.Join(cgroupV2Root, "cpuset.mems.effective")); err == nil {
		writeFileBestEffort(c.path("cpuset.mems"), v)
	}

	return nil
}

func (c *cgroupV2) Enter(memoryLimitKB int) error {
	if err := os.WriteFile(c.path("cgroup.procs"), []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		return fmt.Errorf("cgroup v2: enter: %w", err)
	}
	if memoryLimitKB > 0 {
		limit := strconv.Itoa(memoryLimitKB * 1024)
		if err := os.WriteFile(c.path("memory.max"), []byte(limit), 0o644); err != nil {
			return fmt.Errorf("cgroup v2: set memory.max: %w", err)
		}
		writeFileBestEffort(c.path("memory.swap.max"), limit)
	}
	return nil
}

func parseCPUStat(raw string) (userUsec, systemUsec, usageUsec uint64) {
	for _, line := range strings.Split(raw, "\n") {
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		v, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			continue
		}
		switch fields[0] {
		case "usage_usec":
			usageUsec = v
		case "user_usec":
			userUsec = v
		case "system_usec":
			systemUsec = v
		}
	}
	return
}

func (c *cgroupV2) CPUTimeMs() uint64 {
	raw, err := readFileTrim(c.path("cpu.stat"))
	if err != nil {
		return 0
	}
	_, _, usageUsec := parseCPUStat(raw)
	return usageUsec / 1000
}

func (c *cgroupV2) FullTime() TimeStat {
	raw, err := readFileTrim(c.path("cpu.stat"))
	if err != nil {
		return TimeStat{}
	}
	userUsec, systemUsec, usageUsec := parseCPUStat(raw)
	return TimeStat{
		CPUTimeMs:    usageUsec / 1000,
		UserTimeMs:   userUsec / 1000,
		SystemTimeMs: systemUsec / 1000,
	}
}

func (c *cgroupV2) MemoryKB() uint64 {
	var peak uint64
	if v, err := readFileTrim(c.path("memory.peak")); err == nil {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			peak = n
		}
	}
	if v, err := readFileTrim(c.path("memory.swap.peak")); err == nil {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil && n > peak {
			peak = n
		}
	}
	return peak / 1024
}

func (c *cgroupV2) Cleanup() error {
	if procs, err := readFileTrim(c.path("cgroup.procs")); err == nil && procs != "" {
		return fmt.Errorf("cgroup v2: processes remain in %s, refusing to remove", c.name)
	}
	if err := os.Remove(c.path()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("cgroup v2: remove %s: %w", c.name, err)
	}
	return nil
}

// --- cgroup v1 (multi-subsystem) -------------------------------------------

const cgroupV1Root = "/sys/fs/cgroup"

var cgroupV1Subsystems = []string{"memory", "cpuacct", "cpuset"}

type cgroupV1 struct {
	name string
}

func (c *cgroupV1) subsystemPath(subsystem string, parts ...string) string {
	return filepath.Join(append([]string{cgroupV1Root, subsystem, c.name}, parts...)...)
}

func (c *cgroupV1) Prepare() error {
	for _, sub := range cgroupV1Subsystems {
		dir := c.subsystemPath(sub)
		optional := sub == "cpuset"

		if _, err := os.Stat(dir); err == nil {
			_ = os.Remove(dir)
		}
		if err := os.Mkdir(dir, 0o777); err != nil {
			if optional {
				continue
			}
			return fmt.Errorf("cgroup v1: create %s: %w", dir, err)
		}

		if sub == "cpuset" {
			// Seed a fresh cpuset group from its parent's effective values,
			// or the kernel refuses any task addition.
			parent := filepath.Join(cgroupV1Root, sub)
			if v, err := readFileTrim(filepath.Join(parent, "cpuset.cpus")); err == nil {
				writeFileBestEffort(c.subsystemPath(sub, "cpuset.cpus"), v)
			}
			if v, err := readFileTrim(filepath.Join(parent, "cpuset.mems")); err == nil {
				writeFileBestEffort(c.subsystemPath(sub, "cpuset.mems"), v)
			}
		}
	}
	// Reset accumulated CPU accounting from any prior occupant.
	writeFileBestEffort(c.subsystemPath("cpuacct", "cpuacct.usage"), "0")
	return nil
}

func (c *cgroupV1) Enter(memoryLimitKB int) error {
	pid := strconv.Itoa(os.Getpid())
	for _, sub := range cgroupV1Subsystems {
		path := c.subsystemPath(sub, "tasks")
		if _, err := os.Stat(filepath.Dir(path)); err != nil {
			continue // optional subsystem absent
		}
		if err := os.WriteFile(path, []byte(pid), 0o644); err != nil {
			return fmt.Errorf("cgroup v1: enter %s: %w", sub, err)
		}
	}

	if memoryLimitKB > 0 {
		limit := strconv.Itoa(memoryLimitKB * 1024)
		if err := os.WriteFile(c.subsystemPath("memory", "memory.limit_in_bytes"), []byte(limit), 0o644); err != nil {
			return fmt.Errorf("cgroup v1: set memory.limit_in_bytes: %w", err)
		}
		writeFileBestEffort(c.subsystemPath("memory", "memory.memsw.limit_in_bytes"), limit)
	}
	return nil
}

func (c *cgroupV1) CPUTimeMs() uint64 {
	raw, err := readFileTrim(c.subsystemPath("cpuacct", "cpuacct.usage"))
	if err != nil {
		return 0
	}
	ns, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0
	}
	return ns / 1e6
}

func (c *cgroupV1) FullTime() TimeStat {
	t := TimeStat{CPUTimeMs: c.CPUTimeMs()}
	raw, err := readFileTrim(c.subsystemPath("cpuacct", "cpuacct.stat"))
	if err != nil {
		return t
	}
	// cpuacct.stat reports "user <jiffies>\nsystem <jiffies>" at 100 Hz.
	for _, line := range strings.Split(raw, "\n") {
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		v, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			continue
		}
		switch fields[0] {
		case "user":
			t.UserTimeMs = v * 10
		case "system":
			t.SystemTimeMs = v * 10
		}
	}
	return t
}

func (c *cgroupV1) MemoryKB() uint64 {
	var peak uint64
	if v, err := readFileTrim(c.subsystemPath("memory", "memory.max_usage_in_bytes")); err == nil {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			peak = n
		}
	}
	if v, err := readFileTrim(c.subsystemPath("memory", "memory.memsw.max_usage_in_bytes")); err == nil {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil && n > peak {
			peak = n
		}
	}
	return peak / 1024
}

func (c *cgroupV1) Cleanup() error {
	var failed []string
	for _, sub := range cgroupV1Subsystems {
		dir := c.subsystemPath(sub)
		if _, err := os.Stat(dir); err != nil {
			continue
		}
		if procs, err := readFileTrim(filepath.Join(dir, "tasks")); err == nil && procs != "" {
			return fmt.Errorf("cgroup v1: processes remain in %s/%s, refusing to remove", sub, c.name)
		}
		if err := os.Remove(dir); err != nil && !errors.Is(err, os.ErrNotExist) {
			failed = append(failed, fmt.Sprintf("%s: %v", sub, err))
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("cgroup v1: remove failed: %s", strings.Join(failed, "; "))
	}
	return nil
}
