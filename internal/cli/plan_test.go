package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlan_Text(t *testing.T) {
	out, _, err := execute(t, "plan", "--elapsed", "3000")
	require.NoError(t, err)

	assert.Contains(t, out, "target:    75 slots")
	assert.Contains(t, out, "chunks:    1 x 63 + 12")
	assert.Contains(t, out, "emissions: [63 12]")
	assert.Contains(t, out, "frames:    77")
}

func TestPlan_JSON(t *testing.T) {
	out, _, err := execute(t, "plan", "--elapsed", "40", "--fps", "30", "--keyint", "32", "--format", "json")
	require.NoError(t, err)

	var got PlanResult
	decodeData(t, out, &got)
	assert.Equal(t, uint32(2), got.Target)
	assert.Equal(t, uint32(31), got.ChunkSize)
	assert.Equal(t, []uint32{2}, got.Emissions)
	assert.Equal(t, uint64(3), got.Frames)
	assert.Equal(t, int64(40), got.ElapsedMs)
}

func TestPlan_InvalidTiming(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"keyint_not_power_of_two", []string{"--keyint", "48"}},
		{"zero_fps", []string{"--fps", "0"}},
		{"keyint_one", []string{"--keyint", "1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _, err := execute(t, append([]string{"plan"}, tt.args...)...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, out, "Error [E500]")
		})
	}
}
