//go:build linux

package sandbox

import "golang.org/x/sys/unix"

// ResultCode classifies the outcome of a run. Anything but OK is a failure.
type ResultCode int

const (
	Undefined ResultCode = iota
	OK
	RestrictedFunction
	TimeLimitExceeded
	WallTimeLimitExceeded
	MemoryLimitExceeded
	OutputLimitExceeded
	NonZeroExitStatus
	RuntimeError
	AbnormalTermination
	InternalError
)

func (r ResultCode) String() string {
	switch r {
	case OK:
		return "OK"
	case RestrictedFunction:
		return "RESTRICTED_FUNCTION"
	case TimeLimitExceeded:
		return "TIME_LIMIT_EXCEEDED"
	case WallTimeLimitExceeded:
		return "WALL_TIME_LIMIT_EXCEEDED"
	case MemoryLimitExceeded:
		return "MEMORY_LIMIT_EXCEEDED"
	case OutputLimitExceeded:
		return "OUTPUT_LIMIT_EXCEEDED"
	case NonZeroExitStatus:
		return "NON_ZERO_EXIT_STATUS"
	case RuntimeError:
		return "RUNTIME_ERROR"
	case AbnormalTermination:
		return "ABNORMAL_TERMINATION"
	case InternalError:
		return "INTERNAL_ERROR"
	default:
		return "UNDEFINED"
	}
}

// StatVersion is the schema version stamped on emitted meta records.
const StatVersion = "2.0"

// TimeStat breaks down the time spent by the sandboxed process.
type TimeStat struct {
	WallTimeMs   uint64
	CPUTimeMs    uint64
	UserTimeMs   uint64
	SystemTimeMs uint64
}

// RunStats accumulates the observations made about a single run. Fields are
// only ever updated to a truthy (non-zero) value, so that a later
// reconciliation pass cannot clobber an earlier, real observation with a
// zeroed-out one (see Update*).
type RunStats struct {
	Time TimeStat

	MemoryKB uint64

	RSSPeak        int64
	CSwVoluntary   int64
	CSwForced      int64
	SoftPageFaults uint64
	HardPageFaults uint64

	NrSysCalls     int
	LastSysCall    int
	TerminalSignal int

	ExitCode         int
	ProcessWasKilled bool
	ResultCode       ResultCode

	InternalMessage string
	Version         string
}

// NewRunStats returns a RunStats seeded the way the jailer seeds it before a
// run starts: InternalError is the default outcome until something better
// is observed, so a crash before any update still reports a sane result.
func NewRunStats() *RunStats {
	return &RunStats{
		ResultCode: InternalError,
		Version:    StatVersion,
	}
}

func updateUint64(lhs *uint64, rhs uint64) {
	if rhs != 0 {
		*lhs = rhs
	}
}

func updateInt64(lhs *int64, rhs int64) {
	if rhs != 0 {
		*lhs = rhs
	}
}

// UpdateTime merges a freshly observed TimeStat, keeping any previously
// observed non-zero field the new one doesn't improve on.
func (s *RunStats) UpdateTime(t TimeStat) {
	updateUint64(&s.Time.WallTimeMs, t.WallTimeMs)
	updateUint64(&s.Time.CPUTimeMs, t.CPUTimeMs)
	updateUint64(&s.Time.UserTimeMs, t.UserTimeMs)
	updateUint64(&s.Time.SystemTimeMs, t.SystemTimeMs)
}

// UpdateResultCode overwrites the result code only if the new one is not OK's
// zero-valued sibling (Undefined), matching the "truthy" update rule.
func (s *RunStats) UpdateResultCode(rc ResultCode) {
	if rc != Undefined {
		s.ResultCode = rc
	}
}

// UpdateRusage folds in accounting data collected via wait4's rusage output.
func (s *RunStats) UpdateRusage(ru *unix.Rusage) {
	if ru == nil {
		return
	}
	updateInt64(&s.RSSPeak, ru.Maxrss)
	updateInt64(&s.CSwVoluntary, ru.Nvcsw)
	updateInt64(&s.CSwForced, ru.Nivcsw)
}
