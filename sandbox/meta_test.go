//go:build linux

package sandbox

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleStats() *RunStats {
	s := NewRunStats()
	s.UpdateTime(TimeStat{WallTimeMs: 120, CPUTimeMs: 100, UserTimeMs: 80, SystemTimeMs: 20})
	s.MemoryKB = 4096
	s.ExitCode = 0
	s.UpdateResultCode(OK)
	return s
}

func TestDefaultMetaEncoderRendersStringResultCode(t *testing.T) {
	s := sampleStats()
	data, err := NewMetaEncoder(false).Encode(s)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))

	assert.Equal(t, "OK", doc["resultCode"])
	assert.Equal(t, float64(4096), doc["memoryKb"])
	assert.Equal(t, StatVersion, doc["version"])
}

func TestLegacyMetaEncoderRendersNumericResultCode(t *testing.T) {
	s := sampleStats()
	data, err := NewMetaEncoder(true).Encode(s)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))

	assert.Equal(t, float64(OK), doc["resultCode"])
	assert.Equal(t, "2.0", doc["version"])
}

func TestErrorStatsFallback(t *testing.T) {
	s := errorStats()
	assert.Equal(t, InternalError, s.ResultCode)
	assert.Equal(t, "No results provided.", s.InternalMessage)
}
