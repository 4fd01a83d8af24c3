package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/roach88/framestack/internal/fragment"
	"github.com/roach88/framestack/internal/store"
)

// InspectOptions holds flags for the inspect command.
type InspectOptions struct {
	*RootOptions
	Store     string
	StorePath string
	Session   string
}

// InspectResult is the output of the inspect command.
type InspectResult struct {
	Sessions    int                          `json:"sessions"`
	Generations []fragment.GenerationSummary `json:"generations"`
	Fragments   int                          `json:"fragments"`
	Pixels      int64                        `json:"pixels"`
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InspectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "List fragments left in a fragment store",
		Long: `List the sessions and generations whose fragments are still in a store,
for example after a crash or a run with retained fragments.

Examples:
  framestack inspect --store sqlite --store-path frags.db
  framestack inspect --store dir --store-path ./fragments --session 0192f0e4-...`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Store, "store", string(store.KindDir), "fragment store backend (dir|sqlite)")
	cmd.Flags().StringVar(&opts.StorePath, "store-path", "", "fragment store directory or database file")
	cmd.Flags().StringVar(&opts.Session, "session", "", "only this session")
	_ = cmd.MarkFlagRequired("store-path")

	return cmd
}

func runInspect(ctx context.Context, opts *InspectOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts.RootOptions, cmd)

	storage, err := store.Open(store.Kind(opts.Store), opts.StorePath)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, "open fragment store", err, nil)
	}
	defer storage.Close()

	summaries, err := fragment.Summarize(ctx, storage, opts.Session)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, "read fragment store", err, nil)
	}

	result := InspectResult{Generations: summaries}
	sessions := map[string]bool{}
	for _, s := range summaries {
		sessions[s.Namespace] = true
		result.Fragments += s.Fragments
		result.Pixels += s.Pixels
	}
	result.Sessions = len(sessions)

	return formatter.Success(result, renderInspect(result))
}

func renderInspect(r InspectResult) string {
	p := message.NewPrinter(language.English)
	if len(r.Generations) == 0 {
		return "No fragments found.\n"
	}

	var b strings.Builder
	tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "SESSION\tGENERATION\tFRAGMENTS\tPIXELS\tCOMPLETE\t")
	for _, g := range r.Generations {
		complete := "yes"
		if !g.Contiguous {
			complete = "gaps"
		}
		p.Fprintf(tw, "%s\t%d\t%d\t%d\t%s\t\n", g.Namespace, g.Generation, g.Fragments, g.Pixels, complete)
	}
	tw.Flush()
	p.Fprintf(&b, "\n%d session(s), %d generation(s), %d fragment(s), %d pixel(s)\n",
		r.Sessions, len(r.Generations), r.Fragments, r.Pixels)
	return b.String()
}
