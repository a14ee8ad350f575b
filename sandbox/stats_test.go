//go:build linux

package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"
)

func TestResultCodeString(t *testing.T) {
	assert.Equal(t, "OK", OK.String())
	assert.Equal(t, "TIME_LIMIT_EXCEEDED", TimeLimitExceeded.String())
	assert.Equal(t, "UNDEFINED", Undefined.String())
	assert.Equal(t, "UNDEFINED", ResultCode(999).String())
}

func TestUpdateTimeKeepsExistingOnZero(t *testing.T) {
	s := NewRunStats()
	s.UpdateTime(TimeStat{WallTimeMs: 500, CPUTimeMs: 300})
	s.UpdateTime(TimeStat{WallTimeMs: 0, CPUTimeMs: 0})

	assert.Equal(t, uint64(500), s.Time.WallTimeMs, "a zero observation must not clobber a real one")
	assert.Equal(t, uint64(300), s.Time.CPUTimeMs)
}

func TestUpdateTimeOverwritesWithNewNonZero(t *testing.T) {
	s := NewRunStats()
	s.UpdateTime(TimeStat{WallTimeMs: 500})
	s.UpdateTime(TimeStat{WallTimeMs: 900})

	assert.Equal(t, uint64(900), s.Time.WallTimeMs)
}

func TestUpdateResultCodeIgnoresUndefined(t *testing.T) {
	s := NewRunStats()
	s.UpdateResultCode(TimeLimitExceeded)
	s.UpdateResultCode(Undefined)

	assert.Equal(t, TimeLimitExceeded, s.ResultCode)
}

func TestUpdateRusageNilIsNoop(t *testing.T) {
	s := NewRunStats()
	s.RSSPeak = 42
	s.UpdateRusage(nil)
	assert.Equal(t, int64(42), s.RSSPeak)
}

func TestUpdateRusageFillsFields(t *testing.T) {
	s := NewRunStats()
	s.UpdateRusage(&unix.Rusage{Maxrss: 1024, Nvcsw: 3, Nivcsw: 7})

	assert.Equal(t, int64(1024), s.RSSPeak)
	assert.Equal(t, int64(3), s.CSwVoluntary)
	assert.Equal(t, int64(7), s.CSwForced)
}

func TestNewRunStatsDefaultsToInternalError(t *testing.T) {
	s := NewRunStats()
	assert.Equal(t, InternalError, s.ResultCode)
	assert.Equal(t, StatVersion, s.Version)
}
