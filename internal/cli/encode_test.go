package cli

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/framestack/internal/encoder"
)

func readTrace(t *testing.T, path string) []encoder.Submission {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var subs []encoder.Submission
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var s encoder.Submission
		require.NoError(t, json.Unmarshal(sc.Bytes(), &s))
		subs = append(subs, s)
	}
	require.NoError(t, sc.Err())
	return subs
}

func dupsOf(subs []encoder.Submission) []uint32 {
	out := make([]uint32, len(subs))
	for i, s := range subs {
		out[i] = s.Dup
	}
	return out
}

func TestEncode_Trace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.jsonl")

	out, _, err := execute(t, "encode", paddingScript, "--out", path, "--trace")
	require.NoError(t, err)
	assert.Contains(t, out, "Encoded padding: 82 frames in 6 submissions from 3 generations")

	subs := readTrace(t, path)
	assert.Equal(t, []uint32{0, 63, 12, 0, 1, 0}, dupsOf(subs))
	// Padding repeats the previous frame.
	assert.Equal(t, subs[0].SHA256, subs[1].SHA256)
	assert.NotEqual(t, subs[2].SHA256, subs[3].SHA256)
}

func TestEncode_Y4M(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.y4m")

	_, _, err := execute(t, "encode", paddingScript, "-o", path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "YUV4MPEG2 W4 H2 F25:1"))
	assert.Equal(t, 82, strings.Count(string(data), "FRAME\n"))
}

func TestEncode_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.jsonl")

	out, _, err := execute(t, "encode", paddingScript, "--out", path, "--trace", "--format", "json")
	require.NoError(t, err)

	var got EncodeResult
	decodeData(t, out, &got)
	assert.True(t, got.Pass)
	assert.Equal(t, "padding", got.Script)
	assert.Equal(t, "golden-session", got.Session)
	assert.Equal(t, path, got.Output)
	assert.Equal(t, uint64(82), got.Stats.Frames)
	assert.Equal(t, uint64(6), got.Stats.Submissions)
	assert.Equal(t, uint64(3), got.Stats.Generations)
}

func TestEncode_Persisted(t *testing.T) {
	dir := t.TempDir()
	inMemory := filepath.Join(dir, "mem.jsonl")
	persisted := filepath.Join(dir, "sqlite.jsonl")
	db := filepath.Join(dir, "frags.db")

	_, _, err := execute(t, "encode", paddingScript, "--out", inMemory, "--trace")
	require.NoError(t, err)
	_, _, err = execute(t, "encode", paddingScript, "--out", persisted, "--trace",
		"--persisted", "--store", "sqlite", "--store-path", db, "--workers", "2")
	require.NoError(t, err)

	assert.Equal(t, readTrace(t, inMemory), readTrace(t, persisted))

	// Encoded fragments are removed.
	out, _, err := execute(t, "inspect", "--store", "sqlite", "--store-path", db)
	require.NoError(t, err)
	assert.Contains(t, out, "No fragments found.")
}

func TestEncode_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	trace := filepath.Join(dir, "trace.jsonl")
	cfg := filepath.Join(dir, "session.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("width: 16\nheight: 16\nquality: 10\noutput: "+trace+"\n"), 0o644))

	out, _, err := execute(t, "encode", paddingScript, "--config", cfg, "--trace", "--format", "json")
	require.NoError(t, err)

	var got EncodeResult
	decodeData(t, out, &got)
	assert.Equal(t, trace, got.Output)
	assert.Len(t, readTrace(t, trace), 6)
}

func TestEncode_FailedScript(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "wrong.yaml")
	require.NoError(t, os.WriteFile(script, []byte(`name: wrong
session: { width: 2, height: 2 }
events:
  - frame: { at: 0, fill: [1, 2, 3] }
assertions:
  - type: submission_count
    count: 5
`), 0o644))

	out, _, err := execute(t, "encode", script, "--out", filepath.Join(dir, "t.jsonl"), "--trace")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [E400]: script wrong failed")
	assert.Contains(t, err.Error(), "submission_count")
}

func TestEncode_CommandErrors(t *testing.T) {
	dir := t.TempDir()
	badConfig := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(badConfig, []byte("quality: 99\n"), 0o644))
	out := filepath.Join(dir, "out.y4m")

	tests := []struct {
		name string
		args []string
		code string
	}{
		{"missing_script", []string{"encode", filepath.Join(dir, "nope.yaml"), "--out", out}, "E005"},
		{"missing_output", []string{"encode", paddingScript}, "E200"},
		{"invalid_config", []string{"encode", paddingScript, "--config", badConfig, "--out", out}, "E200"},
		{"store_without_path", []string{"encode", paddingScript, "--out", out, "--persisted", "--store", "dir"}, "E200"},
		{"unknown_store", []string{"encode", paddingScript, "--out", out, "--store", "s3"}, "E200"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stdout, _, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, stdout, "Error ["+tt.code+"]")
		})
	}
}
