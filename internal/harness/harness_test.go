package harness

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/roach88/framestack/internal/encoder"
	"github.com/roach88/framestack/internal/frame"
	"github.com/roach88/framestack/internal/pipeline"
	"github.com/roach88/framestack/internal/store"
	"github.com/roach88/framestack/internal/testutil"
)

// writeImage writes a w x h gradient image where pixel (x, y) is
// (x*10, y*10, 7).
func writeImage(t *testing.T, path, format string, w, h int) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 10), G: uint8(y * 10), B: 7, A: 255})
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	switch format {
	case "png":
		require.NoError(t, png.Encode(f, img))
	case "bmp":
		require.NoError(t, bmp.Encode(f, img))
	case "tiff":
		require.NoError(t, tiff.Encode(f, img, nil))
	default:
		t.Fatalf("unknown image format %s", format)
	}
}

func mustParse(t *testing.T, yaml, dir string) *Script {
	t.Helper()
	s, err := ParseScript([]byte(yaml), dir)
	require.NoError(t, err)
	return s
}

func TestRun_PaddingScript(t *testing.T) {
	script, err := LoadScript("testdata/scripts/padding.yaml")
	require.NoError(t, err)

	result, err := Run(context.Background(), script, nil, pipeline.DefaultConfig(1, 1))
	require.NoError(t, err)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, "golden-session", result.Session)
	assert.Equal(t, []uint32{0, 63, 12, 0, 1, 0}, result.Dups())
	assert.Equal(t, result.Submissions[0].SHA256, result.Submissions[2].SHA256)
	assert.NotEqual(t, result.Submissions[2].SHA256, result.Submissions[3].SHA256)
	assert.Empty(t, result.CloseError)
}

func TestRun_ForwardsToOpener(t *testing.T) {
	script := mustParse(t, `
name: forward
session: { width: 2, height: 2 }
events:
  - frame: { at: 0, fill: [1, 2, 3] }
  - generation:
      at: 0
      patches: [{ x: 1, y: 1, w: 1, h: 1, fill: [4, 5, 6] }]
`, "")
	op := testutil.NewRecordingOpener()
	base := pipeline.DefaultConfig(1, 1)
	base.Output = "movie.y4m"

	result, err := Run(context.Background(), script, op, base)
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	sink := op.Sink()
	require.NotNil(t, sink)
	assert.Equal(t, []string{"movie.y4m"}, op.Targets())
	assert.True(t, sink.Closed())

	subs := sink.Submissions()
	require.Len(t, subs, 2)
	assert.Equal(t, []byte{1, 2, 3, 1, 2, 3, 1, 2, 3, 4, 5, 6}, subs[1].Frame)
	assert.Equal(t, encoder.NewSubmission(1, subs[1].Frame, 0), result.Submissions[1])
}

func TestRun_UnexpectedErrorFailsResult(t *testing.T) {
	script := mustParse(t, `
name: unexpected
session: { width: 2, height: 2 }
events:
  - generation:
      at: 0
      patches: [{ x: 0, y: 0, w: 1, h: 1, fill: [1, 1, 1] }]
`, "")
	result, err := Run(context.Background(), script, nil, pipeline.DefaultConfig(1, 1))
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "unexpected error")
	assert.Equal(t, "UNINITIALIZED_CANVAS", result.Events[0].Error)
}

func TestRun_MissedExpectation(t *testing.T) {
	script := mustParse(t, `
name: missed
session: { width: 2, height: 2 }
events:
  - frame: { at: 0, fill: [1, 1, 1], expect: VALIDATION }
`, "")
	result, err := Run(context.Background(), script, nil, pipeline.DefaultConfig(1, 1))
	require.NoError(t, err)

	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors[0], "expected VALIDATION, got success")
}

func TestRun_FailedAssertion(t *testing.T) {
	script := mustParse(t, `
name: assert
session: { width: 2, height: 2 }
events:
  - frame: { at: 0, fill: [1, 1, 1] }
assertions:
  - type: submission_count
    count: 2
`, "")
	result, err := Run(context.Background(), script, nil, pipeline.DefaultConfig(1, 1))
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "Assertion failed: submission_count")
}

func TestRun_EncoderFailure(t *testing.T) {
	script := mustParse(t, `
name: failure
session: { width: 2, height: 2 }
events:
  - frame: { at: 0, fill: [1, 1, 1] }
  - frame: { at: 0, fill: [2, 2, 2], expect: ENCODER_FAILURE }
  - frame: { at: 0, fill: [3, 3, 3], expect: SESSION_CLOSED }
`, "")
	op := testutil.NewRecordingOpener()
	op.FailSubmitAt(1)

	result, err := Run(context.Background(), script, op, pipeline.DefaultConfig(1, 1))
	require.NoError(t, err)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Len(t, result.Submissions, 1)
	assert.Equal(t, "ENCODER_FAILURE", result.CloseError)
}

func TestRun_ImagePatches(t *testing.T) {
	for _, format := range []string{"png", "bmp", "tiff"} {
		t.Run(format, func(t *testing.T) {
			dir := t.TempDir()
			writeImage(t, filepath.Join(dir, "screen."+format), format, 4, 3)

			script := mustParse(t, `
name: images
session: { width: 3, height: 2 }
events:
  - frame: { at: 0, image: screen.`+format+` }
  - generation:
      at: 0
      patches: [{ x: 2, y: 1, w: 1, h: 1, image: screen.`+format+` }]
`, dir)
			op := testutil.NewRecordingOpener()
			result, err := Run(context.Background(), script, op, pipeline.DefaultConfig(1, 1))
			require.NoError(t, err)
			require.True(t, result.Pass, "errors: %v", result.Errors)

			subs := op.Sink().Submissions()
			require.Len(t, subs, 2)
			// The full frame is the top-left 3x2 region of the image.
			assert.Equal(t, []byte{
				0, 0, 7, 10, 0, 7, 20, 0, 7,
				0, 10, 7, 10, 10, 7, 20, 10, 7,
			}, subs[0].Frame)
			// The patch takes the image origin pixel.
			assert.Equal(t, []byte{0, 0, 7}, subs[1].Frame[15:18])
		})
	}
}

func TestRun_ImageTooSmall(t *testing.T) {
	dir := t.TempDir()
	writeImage(t, filepath.Join(dir, "tiny.png"), "png", 1, 1)

	script := mustParse(t, `
name: tiny
session: { width: 2, height: 2 }
events:
  - frame: { at: 0, image: tiny.png }
`, dir)
	_, err := Run(context.Background(), script, nil, pipeline.DefaultConfig(1, 1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "patch needs 2x2")
}

func TestRun_MissingImage(t *testing.T) {
	script := mustParse(t, `
name: missing
session: { width: 2, height: 2 }
events:
  - frame: { at: 0, image: nope.png }
`, t.TempDir())
	_, err := Run(context.Background(), script, nil, pipeline.DefaultConfig(1, 1))
	require.Error(t, err)
	assert.ErrorIs(t, err, errSetup)
}

func TestRun_PixelFormats(t *testing.T) {
	script := mustParse(t, `
name: formats
session: { width: 1, height: 1, pixel_format: bgra32 }
events:
  - frame: { at: 0, fill: [1, 2, 3, 4] }
`, "")
	op := testutil.NewRecordingOpener()
	result, err := Run(context.Background(), script, op, pipeline.DefaultConfig(1, 1))
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	assert.Equal(t, frame.BGRA32, op.Sink().Params().Format)
	assert.Equal(t, []byte{3, 2, 1, 4}, op.Sink().Submissions()[0].Frame)
}

func TestRun_InvalidConfig(t *testing.T) {
	script := mustParse(t, "name: x\nevents: [{frame: {fill: [0,0,0]}}]", "")
	_, err := Run(context.Background(), script, nil, pipeline.DefaultConfig(0, 0))
	require.Error(t, err)
	assert.True(t, pipeline.IsValidation(err))
}

func TestRun_PersistedVariantMatches(t *testing.T) {
	script, err := LoadScript("testdata/scripts/padding.yaml")
	require.NoError(t, err)
	ctx := context.Background()

	mem, err := Run(ctx, script, nil, pipeline.DefaultConfig(1, 1))
	require.NoError(t, err)

	dir, err := store.OpenDir(t.TempDir())
	require.NoError(t, err)
	persisted, err := Run(ctx, script, nil, pipeline.DefaultConfig(1, 1), pipeline.WithFragmentStore(dir))
	require.NoError(t, err)

	assert.True(t, persisted.Pass, "errors: %v", persisted.Errors)
	assert.Equal(t, mem.Submissions, persisted.Submissions)
	assert.Equal(t, mem.Stats, persisted.Stats)
}
