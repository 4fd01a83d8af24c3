package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/framestack/internal/cadence"
	"github.com/roach88/framestack/internal/pipeline"
)

// PlanOptions holds flags for the plan command.
type PlanOptions struct {
	*RootOptions
	FrameRate        int
	KeyFrameInterval int
	Elapsed          int64
}

// PlanResult is the output of the plan command.
type PlanResult struct {
	cadence.Plan
	ElapsedMs int64    `json:"elapsed_ms"`
	Emissions []uint32 `json:"emissions"`
	Frames    uint64   `json:"frames"`
}

// NewPlanCommand creates the plan command.
func NewPlanCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PlanOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show how a frame's screen time becomes encoder submissions",
		Long: `Compute the padding plan for a frame that stayed on screen for --elapsed
milliseconds: the number of output slots and the dup count of every
submission that fills them.

Examples:
  framestack plan --elapsed 3000
  framestack plan --elapsed 5040 --fps 30 --keyint 32 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.FrameRate, "fps", pipeline.DefaultFrameRate, "output frame rate")
	cmd.Flags().IntVar(&opts.KeyFrameInterval, "keyint", pipeline.DefaultKeyFrameInterval, "key frame interval (power of two)")
	cmd.Flags().Int64Var(&opts.Elapsed, "elapsed", 0, "screen time in milliseconds")

	return cmd
}

func runPlan(opts *PlanOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	plan, err := cadence.Compute(opts.Elapsed, opts.FrameRate, opts.KeyFrameInterval)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeTiming, "invalid timing", err, nil)
	}

	result := PlanResult{
		Plan:      plan,
		ElapsedMs: opts.Elapsed,
		Emissions: plan.Emissions(),
		Frames:    plan.Frames(),
	}

	var b strings.Builder
	fmt.Fprintf(&b, "elapsed:   %dms at %d fps\n", opts.Elapsed, opts.FrameRate)
	fmt.Fprintf(&b, "target:    %d slots\n", plan.Target)
	fmt.Fprintf(&b, "chunks:    %d x %d + %d\n", plan.FullChunks, plan.ChunkSize, plan.Remainder)
	fmt.Fprintf(&b, "emissions: %v\n", result.Emissions)
	fmt.Fprintf(&b, "frames:    %d\n", result.Frames)
	return formatter.Success(result, b.String())
}
