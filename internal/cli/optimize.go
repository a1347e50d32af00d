package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/paveg/colflow/internal/config"
	"github.com/paveg/colflow/internal/ir"
	"github.com/paveg/colflow/internal/optimizer"
)

// OptimizeOptions holds flags for the optimize command.
type OptimizeOptions struct {
	*RootOptions
	PrintInput bool
	Disable    []string
	Stats      bool
}

// NewOptimizeCommand creates the optimize command.
func NewOptimizeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &OptimizeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "optimize <graph.yaml>",
		Short: "Lower a graph document and print the result",
		Long: `Decode a YAML graph document, run the enabled lowering passes and print
the lowered graph one node per line. Use "-" to read the document from stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOptimize(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.PrintInput, "print-input", false, "print the graph before lowering")
	cmd.Flags().StringSliceVar(&opts.Disable, "disable", nil, "passes to skip ("+strings.Join(passNames(), "|")+")")
	cmd.Flags().BoolVar(&opts.Stats, "stats", false, "print per-pass rewrite counts")

	return cmd
}

var passToggles = map[string]func(*config.Config){
	optimizer.PassSelectionPushdown: func(c *config.Config) { c.SelectionPushdown = false },
	optimizer.PassRangeFusion:       func(c *config.Config) { c.RangeFusion = false },
	optimizer.PassProjectionPath:    func(c *config.Config) { c.ProjectionPathFusion = false },
}

func passNames() []string {
	names := make([]string, 0, len(passToggles))
	for n := range passToggles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// disablePasses turns off the named passes. Names match case-insensitively.
func disablePasses(cfg config.Config, names []string) (config.Config, error) {
	for _, name := range names {
		found := false
		for pass, off := range passToggles {
			if strings.EqualFold(pass, name) {
				off(&cfg)
				found = true
			}
		}
		if !found {
			return cfg, fmt.Errorf("unknown pass %q: must be one of %v", name, passNames())
		}
	}
	return cfg, nil
}

func runOptimize(opts *OptimizeOptions, path string, cmd *cobra.Command) error {
	doc, err := readDocument(cmd, path)
	if err != nil {
		return err
	}
	cfg, err := disablePasses(opts.cfg, opts.Disable)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.PrintInput {
		fmt.Fprintln(out, "// input")
		if err := doc.Graph.Print(out); err != nil {
			return err
		}
		fmt.Fprintln(out, "// lowered")
	}

	lowered, stats, err := optimizer.NewPipeline(cfg, opts.logger, opts.metrics).Run(doc.Graph)
	if err != nil {
		return err
	}
	if err := lowered.Print(out); err != nil {
		return err
	}
	if opts.Stats {
		for _, s := range stats {
			fmt.Fprintf(out, "// %s: rewrites=%d erased=%d iterations=%d\n", s.Pass, s.Rewrites, s.Erased, s.Iterations)
		}
	}
	return nil
}

// lower runs the configured pipeline over g.
func lower(opts *RootOptions, g *ir.Graph) (*ir.Graph, error) {
	out, _, err := optimizer.NewPipeline(opts.cfg, opts.logger, opts.metrics).Run(g)
	return out, err
}
