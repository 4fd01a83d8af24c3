package harness

import (
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/framestack/internal/encoder"
	"github.com/roach88/framestack/internal/pipeline"
)

// Snapshot is the part of a Result compared against golden files.
type Snapshot struct {
	Script      string               `json:"script"`
	Session     string               `json:"session"`
	Events      []EventOutcome       `json:"events"`
	Submissions []encoder.Submission `json:"submissions"`
	Stats       pipeline.Stats       `json:"stats"`
}

// MarshalSnapshot renders the snapshot of result as indented JSON with a
// trailing newline.
func MarshalSnapshot(name string, result *Result) ([]byte, error) {
	snap := Snapshot{
		Script:      name,
		Session:     result.Session,
		Events:      result.Events,
		Submissions: result.Submissions,
		Stats:       result.Stats,
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// AssertGolden compares the snapshot of result against
// testdata/golden/{name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	data, err := MarshalSnapshot(name, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
