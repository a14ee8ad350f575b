//go:build linux

package sandbox

import (
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

// activeKeeper is the package-level handle the signal handler goroutine
// reaches through; only one Keeper runs per process (the jailer never
// supervises more than one child at a time), so a single slot is enough.
var activeKeeper atomic.Pointer[Keeper]

// Keeper supervises one running sandboxed process: it polls the cgroup for
// resource usage, kills the process if a limit is exceeded, and reconciles
// the final RunStats once the process has exited.
type Keeper struct {
	config *SandboxConfig
	cg     controlGroup
	pipe   *errorPipe
	pid    int

	stats          *RunStats
	wallStart      time.Time
	killed         atomic.Bool
	killReason     ResultCode
	killMessage    string
}

func NewKeeper(config *SandboxConfig, cg controlGroup, pipe *errorPipe, pid int) *Keeper {
	return &Keeper{
		config: config,
		cg:     cg,
		pipe:   pipe,
		pid:    pid,
		stats:  NewRunStats(),
	}
}

// checkLimits compares current cgroup/wall observations against the
// configured limits, in the fixed order CPU, wall, memory, returning the
// first violated limit or OK if none are.
func (k *Keeper) checkLimits() (ResultCode, string) {
	c := k.config

	cpuMs := k.cg.CPUTimeMs()
	if c.CPUTimeLimitMs > 0 && cpuMs >= c.CPUTimeLimitMs+c.ExtraTimeMs {
		return TimeLimitExceeded, fmt.Sprintf("time limit exceeded (%dms >= %dms)", cpuMs, c.CPUTimeLimitMs+c.ExtraTimeMs)
	}

	wallMs := uint64(time.Since(k.wallStart).Milliseconds())
	if c.WallTimeLimitMs > 0 && wallMs >= c.WallTimeLimitMs+c.ExtraTimeMs {
		return WallTimeLimitExceeded, fmt.Sprintf("wall time limit exceeded (%dms >= %dms)", wallMs, c.WallTimeLimitMs+c.ExtraTimeMs)
	}

	memKB := k.cg.MemoryKB()
	if c.MemoryLimitKB > 0 && memKB >= uint64(c.MemoryLimitKB) {
		return MemoryLimitExceeded, fmt.Sprintf("memory limit exceeded (%dkB >= %dkB)", memKB, c.MemoryLimitKB)
	}

	return OK, ""
}

// killProcess sends SIGKILL to the process group and the process itself and
// marks the kill reason for Start's final reconciliation pass. Reaping is
// left to Start's wait goroutine so the two never race on the same pid.
func (k *Keeper) killProcess(reason ResultCode, message string) {
	k.killed.Store(true)
	k.killReason = reason
	k.killMessage = message

	_ = unix.Kill(-k.pid, unix.SIGKILL)
	_ = unix.Kill(k.pid, unix.SIGKILL)
}

// signalHandlerLoop installs a best-effort handler that kills the
// supervised process if the jailer itself receives a terminating signal,
// so a SIGTERM to `sandbox-jailer` doesn't leave an orphaned sandboxed
// process running past its supervisor.
func signalHandlerLoop() chan os.Signal {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch,
		unix.SIGHUP, unix.SIGINT, unix.SIGQUIT, unix.SIGILL, unix.SIGABRT,
		unix.SIGFPE, unix.SIGSEGV, unix.SIGPIPE, unix.SIGTERM, unix.SIGUSR1, unix.SIGUSR2)
	go func() {
		for range ch {
			if k := activeKeeper.Load(); k != nil && !k.killed.Load() {
				k.killProcess(InternalError, "jailer received a terminating signal")
			}
		}
	}()
	return ch
}

// Start runs the supervision loop until the child exits or a limit kill
// fires, and returns the reconciled RunStats.
func (k *Keeper) Start() *RunStats {
	k.wallStart = time.Now()
	k.pipe.CloseWrite()

	activeKeeper.Store(k)
	sigCh := signalHandlerLoop()
	defer func() {
		signal.Stop(sigCh)
		close(sigCh)
		activeKeeper.Store(nil)
	}()

	checkInterval := time.Duration(k.config.CheckIntervalMs) * time.Millisecond
	if checkInterval <= 0 {
		checkInterval = DefaultCheckIntervalMs * time.Millisecond
	}
	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()

	done := make(chan unix.WaitStatus, 1)
	var doneRusage unix.Rusage
	go func() {
		var ws unix.WaitStatus
		var ru unix.Rusage
		for {
			_, err := unix.Wait4(k.pid, &ws, 0, &ru)
			if err == unix.EINTR {
				continue
			}
			doneRusage = ru
			done <- ws
			return
		}
	}()

	var ws unix.WaitStatus

waitLoop:
	for {
		select {
		case ws = <-done:
			break waitLoop
		case <-ticker.C:
			if k.killed.Load() {
				continue
			}
			if rc, msg := k.checkLimits(); rc != OK {
				k.killProcess(rc, msg)
			}
		}
	}

	k.stats.UpdateTime(TimeStat{WallTimeMs: uint64(time.Since(k.wallStart).Milliseconds())})
	k.stats.UpdateTime(k.cg.FullTime())
	k.stats.MemoryKB = k.cg.MemoryKB()
	k.stats.UpdateRusage(&doneRusage)

	if fault := k.pipe.Drain(); fault != "" {
		k.stats.InternalMessage = fault
		k.stats.ResultCode = InternalError
		k.pipe.CloseRead()
		return k.stats
	}
	k.pipe.CloseRead()

	if k.killed.Load() {
		k.stats.ProcessWasKilled = true
		k.stats.ExitCode = 0
		k.stats.InternalMessage = k.killMessage
		k.stats.UpdateResultCode(k.killReason)
	} else {
		switch {
		case ws.Exited():
			k.stats.ExitCode = ws.ExitStatus()
			if ws.ExitStatus() == 0 {
				k.stats.UpdateResultCode(OK)
			} else {
				k.stats.UpdateResultCode(NonZeroExitStatus)
			}
		case ws.Signaled():
			k.stats.TerminalSignal = int(ws.Signal())
			k.stats.UpdateResultCode(RuntimeError)
		default:
			k.stats.UpdateResultCode(AbnormalTermination)
		}
	}

	// A limit may have been crossed in the window between the last tick and
	// the process's natural exit; give checkLimits the final say.
	if rc, msg := k.checkLimits(); rc != OK && !k.killed.Load() {
		k.stats.UpdateResultCode(rc)
		k.stats.InternalMessage = msg
	}

	return k.stats
}
