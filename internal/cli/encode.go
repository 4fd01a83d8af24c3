package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/framestack/internal/config"
	"github.com/roach88/framestack/internal/encoder"
	"github.com/roach88/framestack/internal/fragment"
	"github.com/roach88/framestack/internal/harness"
	"github.com/roach88/framestack/internal/pipeline"
)

// EncodeOptions holds flags for the encode command.
type EncodeOptions struct {
	*RootOptions
	Config    string
	Out       string
	Store     string
	StorePath string
	Persisted bool
	Workers   int
	Trace     bool
	Keep      bool
}

// EncodeResult is the output of the encode command.
type EncodeResult struct {
	Script    string         `json:"script"`
	Session   string         `json:"session"`
	Output    string         `json:"output"`
	Persisted bool           `json:"persisted"`
	Pass      bool           `json:"pass"`
	Stats     pipeline.Stats `json:"stats"`
	Errors    []string       `json:"errors,omitempty"`
}

// NewEncodeCommand creates the encode command.
func NewEncodeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EncodeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "encode <script>",
		Short: "Encode a capture script",
		Long: `Replay a capture script through an encoding session and write the result.

The output is a YUV4MPEG2 stream, or with --trace one JSON line per encoder
submission. Settings come from --config (YAML or CUE), then the script's
session block, then flags.

Exit codes:
  0 - Script encoded and every expectation held
  1 - An expectation or assertion failed
  2 - Command error (invalid config, unreadable script, etc.)

Examples:
  framestack encode capture.yaml --out capture.y4m
  framestack encode capture.yaml --out trace.jsonl --trace
  framestack encode capture.yaml --out capture.y4m --persisted --store sqlite --store-path frags.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEncode(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Config, "config", "", "session config file (.yaml, .yml or .cue)")
	cmd.Flags().StringVarP(&opts.Out, "out", "o", "", "output file")
	cmd.Flags().StringVar(&opts.Store, "store", "", "fragment store backend (mem|dir|sqlite)")
	cmd.Flags().StringVar(&opts.StorePath, "store-path", "", "fragment store directory or database file")
	cmd.Flags().BoolVar(&opts.Persisted, "persisted", false, "buffer patches in the fragment store")
	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "fragment persistence workers")
	cmd.Flags().BoolVar(&opts.Keep, "keep-fragments", false, "leave encoded fragments in the store")
	cmd.Flags().BoolVar(&opts.Trace, "trace", false, "write a submission trace instead of video")

	return cmd
}

func runEncode(ctx context.Context, opts *EncodeOptions, scriptPath string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts.RootOptions, cmd)

	if _, err := os.Stat(scriptPath); os.IsNotExist(err) {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("script not found: %s", scriptPath), nil, nil)
	}
	script, err := harness.LoadScript(scriptPath)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeScript, "load script", err, nil)
	}

	settings, err := resolveSettings(opts, cmd, script)
	if err != nil {
		var verrs config.ValidationErrors
		if errors.As(err, &verrs) {
			return formatter.Fail(ExitCommandError, ErrCodeConfig, "invalid configuration", nil, verrs)
		}
		return formatter.Fail(ExitCommandError, ErrCodeConfig, "load config", err, nil)
	}
	formatter.VerboseLog("Encoding %s (%d events) to %s", script.Name, len(script.Events), settings.Output)

	opener := encoder.Y4MOpener
	if opts.Trace {
		opener = encoder.TraceOpener
	}

	sessionOpts := []pipeline.Option{pipeline.WithLogger(slog.Default())}
	if settings.Persisted {
		storage, err := settings.OpenStorage()
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeStore, "open fragment store", err, nil)
		}
		defer storage.Close()
		sessionOpts = append(sessionOpts, pipeline.WithFragmentStore(storage, fragment.WithWorkers(settings.Workers)))
		if opts.Keep {
			sessionOpts = append(sessionOpts, pipeline.WithRetainFragments())
		}
		formatter.VerboseLog("Persisting fragments to %s store %q", settings.Store, settings.StorePath)
	}

	result, err := harness.Run(ctx, script, opener, settings.Pipeline(), sessionOpts...)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeScript, "run script", err, nil)
	}

	out := EncodeResult{
		Script:    script.Name,
		Session:   result.Session,
		Output:    settings.Output,
		Persisted: settings.Persisted,
		Pass:      result.Pass,
		Stats:     result.Stats,
		Errors:    result.Errors,
	}
	if !result.Pass {
		if err := formatter.Error(ErrCodeScript, fmt.Sprintf("script %s failed", script.Name), out); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("script %s failed:\n%s", script.Name, strings.Join(result.Errors, "\n")))
	}

	text := fmt.Sprintf("Encoded %s: %d frames in %d submissions from %d generations -> %s\n",
		script.Name, out.Stats.Frames, out.Stats.Submissions, out.Stats.Generations, out.Output)
	return formatter.Success(out, text)
}

// resolveSettings merges the config file, the script's session block and
// explicitly set flags, then validates the result.
func resolveSettings(opts *EncodeOptions, cmd *cobra.Command, script *harness.Script) (config.Session, error) {
	settings := config.Default()
	if opts.Config != "" {
		loaded, err := config.Load(opts.Config)
		if err != nil {
			return config.Session{}, err
		}
		settings = loaded
	}

	p := script.Apply(settings.Pipeline())
	settings.Width = p.Width
	settings.Height = p.Height
	settings.PixelFormat = string(p.Format)
	settings.FrameRate = p.FrameRate
	settings.Quality = p.Quality
	settings.KeyFrameInterval = p.KeyFrameInterval

	flags := cmd.Flags()
	if flags.Changed("out") {
		settings.Output = opts.Out
	}
	if flags.Changed("store") {
		settings.Store = opts.Store
	}
	if flags.Changed("store-path") {
		settings.StorePath = opts.StorePath
	}
	if flags.Changed("persisted") {
		settings.Persisted = opts.Persisted
	}
	if flags.Changed("workers") {
		settings.Workers = opts.Workers
	}

	if settings.Output == "" {
		return config.Session{}, errors.New("no output target: set --out or output in the config file")
	}
	if err := settings.Validate(); err != nil {
		return config.Session{}, err
	}
	return settings, nil
}
