package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/framestack/internal/pipeline"
	"github.com/roach88/framestack/internal/store"
)

func TestGolden_Scripts(t *testing.T) {
	for _, name := range []string{"padding", "bootstrap"} {
		t.Run(name, func(t *testing.T) {
			script, err := LoadScript("testdata/scripts/" + name + ".yaml")
			require.NoError(t, err)

			result, err := Run(context.Background(), script, nil, pipeline.DefaultConfig(1, 1))
			require.NoError(t, err)
			require.True(t, result.Pass, "errors: %v", result.Errors)

			require.NoError(t, AssertGolden(t, name, result))
		})
	}
}

func TestGolden_PersistedVariant(t *testing.T) {
	script, err := LoadScript("testdata/scripts/padding.yaml")
	require.NoError(t, err)

	result, err := Run(context.Background(), script, nil, pipeline.DefaultConfig(1, 1),
		pipeline.WithFragmentStore(store.NewMemory()))
	require.NoError(t, err)

	require.NoError(t, AssertGolden(t, "padding", result))
}

func TestMarshalSnapshot_Deterministic(t *testing.T) {
	script, err := LoadScript("testdata/scripts/bootstrap.yaml")
	require.NoError(t, err)

	var outputs [][]byte
	for i := 0; i < 3; i++ {
		result, err := Run(context.Background(), script, nil, pipeline.DefaultConfig(1, 1))
		require.NoError(t, err)
		data, err := MarshalSnapshot("bootstrap", result)
		require.NoError(t, err)
		outputs = append(outputs, data)
	}
	assert.Equal(t, outputs[0], outputs[1])
	assert.Equal(t, outputs[1], outputs[2])
	assert.Equal(t, byte('\n'), outputs[0][len(outputs[0])-1])
}
