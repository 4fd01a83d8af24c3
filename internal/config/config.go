// Package config loads session settings from YAML or CUE files.
//
// Both formats share one field vocabulary (snake_case keys). CUE files are
// unified with an embedded schema before decoding, so type and range errors
// carry source positions; every loaded Session is then re-checked by Validate.
package config

import (
	"github.com/roach88/framestack/internal/frame"
	"github.com/roach88/framestack/internal/pipeline"
	"github.com/roach88/framestack/internal/store"
)

// DefaultWorkers is the default persistence pool size.
const DefaultWorkers = 4

// Session holds everything needed to run one encoding session.
type Session struct {
	Width            int    `json:"width" yaml:"width"`
	Height           int    `json:"height" yaml:"height"`
	PixelFormat      string `json:"pixel_format" yaml:"pixel_format"`
	FrameRate        int    `json:"frame_rate" yaml:"frame_rate"`
	Quality          int    `json:"quality" yaml:"quality"`
	KeyFrameInterval int    `json:"keyframe_interval" yaml:"keyframe_interval"`
	Output           string `json:"output" yaml:"output"`

	// Store selects the fragment storage backend for the persisted variant.
	Store     string `json:"store" yaml:"store"`
	StorePath string `json:"store_path" yaml:"store_path"`
	Workers   int    `json:"workers" yaml:"workers"`
	Persisted bool   `json:"persisted" yaml:"persisted"`
}

// Default returns a Session with every defaulted field set. Width and Height
// have no default.
func Default() Session {
	return Session{
		PixelFormat:      string(frame.RGB24),
		FrameRate:        pipeline.DefaultFrameRate,
		Quality:          pipeline.DefaultQuality,
		KeyFrameInterval: pipeline.DefaultKeyFrameInterval,
		Store:            string(store.KindMemory),
		Workers:          DefaultWorkers,
	}
}

// Pipeline converts s to a pipeline configuration.
func (s Session) Pipeline() pipeline.Config {
	return pipeline.Config{
		Width:            s.Width,
		Height:           s.Height,
		Format:           frame.PixelFormat(s.PixelFormat),
		FrameRate:        s.FrameRate,
		Quality:          s.Quality,
		KeyFrameInterval: s.KeyFrameInterval,
		Output:           s.Output,
	}
}

// OpenStorage opens the configured fragment storage backend.
func (s Session) OpenStorage() (store.Storage, error) {
	return store.Open(store.Kind(s.Store), s.StorePath)
}
