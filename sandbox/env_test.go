//go:build linux

package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEnvRule(t *testing.T) {
	r, err := ParseEnvRule("FOO=bar")
	require.NoError(t, err)
	assert.Equal(t, EnvRule{Name: "FOO", Value: "bar", HasValue: true}, r)

	r, err = ParseEnvRule("BARE")
	require.NoError(t, err)
	assert.Equal(t, EnvRule{Name: "BARE", HasValue: false}, r)

	r, err = ParseEnvRule("EMPTY=")
	require.NoError(t, err)
	assert.Equal(t, EnvRule{Name: "EMPTY", Value: "", HasValue: true}, r)

	_, err = ParseEnvRule("")
	assert.Error(t, err)

	_, err = ParseEnvRule("=value")
	assert.Error(t, err)
}

func TestEnvironmentPlanWithoutPassEnvironment(t *testing.T) {
	plan := NewEnvironmentPlan(false, []EnvRule{
		{Name: "A", Value: "1", HasValue: true},
		{Name: "NOT_INHERITED", HasValue: false},
	})

	out := plan.Slice()
	assert.Contains(t, out, "A=1")
	assert.Contains(t, out, "LIBC_FATAL_STDERR_=1")
	for _, kv := range out {
		assert.NotContains(t, kv, "NOT_INHERITED")
	}
}

func TestEnvironmentPlanUserRuleOverridesDefault(t *testing.T) {
	plan := NewEnvironmentPlan(false, []EnvRule{
		{Name: "LIBC_FATAL_STDERR_", Value: "0", HasValue: true},
	})

	out := plan.Slice()
	assert.Contains(t, out, "LIBC_FATAL_STDERR_=0")
	assert.NotContains(t, out, "LIBC_FATAL_STDERR_=1")
}

func TestEnvironmentPlanEmptyValueIsOmitted(t *testing.T) {
	plan := NewEnvironmentPlan(false, []EnvRule{
		{Name: "GONE", Value: "x", HasValue: true},
		{Name: "GONE", Value: "", HasValue: true},
	})

	out := plan.Slice()
	for _, kv := range out {
		assert.NotContains(t, kv, "GONE=")
	}
}

func TestEnvironmentPlanSliceIsSorted(t *testing.T) {
	plan := NewEnvironmentPlan(false, []EnvRule{
		{Name: "ZEBRA", Value: "1", HasValue: true},
		{Name: "ALPHA", Value: "1", HasValue: true},
	})

	out := plan.Slice()
	require.GreaterOrEqual(t, len(out), 2)

	idxAlpha, idxZebra := -1, -1
	for i, kv := range out {
		if kv == "ALPHA=1" {
			idxAlpha = i
		}
		if kv == "ZEBRA=1" {
			idxZebra = i
		}
	}
	require.NotEqual(t, -1, idxAlpha)
	require.NotEqual(t, -1, idxZebra)
	assert.Less(t, idxAlpha, idxZebra)
}
