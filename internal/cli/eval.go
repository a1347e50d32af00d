package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/paveg/colflow/internal/eval"
	cfio "github.com/paveg/colflow/internal/io"
	"github.com/paveg/colflow/internal/ir"
)

// EvalOptions holds flags for the eval command.
type EvalOptions struct {
	*RootOptions
	Optimize bool
	Inputs   map[string]string
	Out      string
}

// NewEvalCommand creates the eval command.
func NewEvalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EvalOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "eval <graph.yaml>",
		Short: "Evaluate a graph document on its inline data",
		Long: `Bind the inline input data of a YAML graph document, evaluate the graph
and print every returned value.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEval(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Optimize, "optimize", false, "lower the graph before evaluating it")
	cmd.Flags().StringToStringVar(&opts.Inputs, "input", nil, "load frame input NAME from a .csv or .parquet file (NAME=PATH)")
	cmd.Flags().StringVarP(&opts.Out, "out", "o", "", "write the first returned frame to a .csv or .parquet file")

	return cmd
}

func runEval(opts *EvalOptions, path string, cmd *cobra.Command) error {
	doc, err := readDocument(cmd, path)
	if err != nil {
		return err
	}
	if err := loadInputs(doc, opts.Inputs); err != nil {
		return err
	}
	inputs, err := eval.BindDocument(doc, nil)
	if err != nil {
		return err
	}

	g := doc.Graph
	if opts.Optimize {
		if g, err = lower(opts.RootOptions, g); err != nil {
			return err
		}
	}

	values, err := eval.NewEvaluator(nil).Evaluate(g, inputs)
	if err != nil {
		return err
	}
	if opts.Out != "" {
		if err := writeFirstFrame(opts.Out, values); err != nil {
			return err
		}
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), eval.Format(values))
	return err
}

// loadInputs replaces the inline data of the named frame inputs with the
// columns read from files.
func loadInputs(doc *ir.Document, files map[string]string) error {
	for name, path := range files {
		idx := slices.IndexFunc(doc.Inputs, func(in ir.InputSpec) bool { return in.Name == name })
		if idx < 0 {
			return fmt.Errorf("--input %s: graph has no input named %q", name, name)
		}
		in := &doc.Inputs[idx]
		if in.Kind != "" && in.Kind != "frame" {
			return fmt.Errorf("--input %s: input is a %s, not a frame", name, in.Kind)
		}
		fr, err := cfio.ReadFile(path, nil)
		if err != nil {
			return err
		}
		in.Columns = make(map[string][]int64, fr.Width())
		for _, c := range fr.Columns() {
			in.Columns[c.Name()] = c.Values()
		}
	}
	return nil
}

func writeFirstFrame(path string, values []eval.Value) error {
	for _, v := range values {
		if v.Kind == ir.TypeFrame {
			return cfio.WriteFile(path, v.Frame)
		}
	}
	return fmt.Errorf("--out %s: graph returns no frame", path)
}
