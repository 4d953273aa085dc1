// Package cmd - eval and resolve commands
package cmd

import (
	"encoding/json"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"pool-boq/core/formula"
	"pool-boq/core/types"
)

type evalOptions struct {
	vars   map[string]string
	shape  string
	dims   map[string]string
	strict bool
}

func newEvalCmd(a *app) *cobra.Command {
	o := &evalOptions{}
	cmd := &cobra.Command{
		Use:   "eval <formula>",
		Short: "Evaluate a formula",
		Long: `Evaluate one formula and print its value and any diagnostics.

Variables come from --var, and from the resolved variables of --shape/--dim
when given. Without --strict a failing formula prints 0, as pricing does.

Examples:
  pool-boq eval "ROUND(2.5) * 3"
  pool-boq eval "CEIL(surface / 25) + 3" --var surface=32
  pool-boq eval "liner_area * 1.1" --shape rectangular --dim length=8,width=4,depth=1.5 --strict`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runEval(cmd, o, args[0])
		},
	}
	cmd.Flags().StringToStringVar(&o.vars, "var", nil, "variables, name=value")
	cmd.Flags().StringVarP(&o.shape, "shape", "s", "", "resolve variables for this shape first")
	cmd.Flags().StringToStringVarP(&o.dims, "dim", "d", nil, "dimensions for --shape, name=value")
	cmd.Flags().BoolVar(&o.strict, "strict", false, "fail instead of evaluating errors to 0")
	return cmd
}

func (a *app) runEval(cmd *cobra.Command, o *evalOptions, src string) error {
	vars := formula.Vars{}
	if o.shape != "" {
		resolved, err := a.resolve(cmd, o.shape, o.dims)
		if err != nil {
			return err
		}
		vars = resolved
	}
	explicit, err := parseNumbers(o.vars)
	if err != nil {
		return err
	}
	for k, v := range explicit {
		vars[k] = v
	}

	out := cmd.OutOrStdout()
	for _, d := range formula.Check(src, func(name string) bool {
		_, ok := vars.Lookup(name)
		return ok
	}) {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s %s at %d: %s\n", d.Severity, d.Kind, d.Pos, d.Message)
	}

	if !o.strict {
		fmt.Fprintln(out, strconv.FormatFloat(formula.Evaluate(src, vars), 'f', -1, 64))
		return nil
	}
	v, err := formula.EvaluateStrict(src, vars)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, strconv.FormatFloat(v, 'f', -1, 64))
	return nil
}

func (a *app) resolve(cmd *cobra.Command, shape string, dims map[string]string) (formula.Vars, error) {
	ds, err := parseDimensions(shape, dims)
	if err != nil {
		return nil, err
	}
	repo, closeRepo, err := a.repository(cmd.Context())
	if err != nil {
		return nil, err
	}
	defer closeRepo()
	return a.engine(repo).Resolve(cmd.Context(), ds)
}

func newResolveCmd(a *app) *cobra.Command {
	var (
		shape  string
		dims   map[string]string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Print the derived variables for a set of dimensions",
		Example: `  pool-boq resolve --shape t_shaped --dim length_ta=8,width_ta=3,length_tb=3,width_tb=2,depth=1.5
  pool-boq resolve --dim length=8,width=4,depth=1.5 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			vars, err := a.resolve(cmd, shape, dims)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(vars)
			}
			return printVars(cmd, types.Shape(shape), vars)
		},
	}
	cmd.Flags().StringVarP(&shape, "shape", "s", "rectangular", "pool shape")
	cmd.Flags().StringToStringVarP(&dims, "dim", "d", nil, "dimensions in metres, name=value")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func printVars(cmd *cobra.Command, shape types.Shape, vars formula.Vars) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tVALUE\tKIND")
	for _, name := range vars.Names() {
		kind := "derived"
		if shape.IsReserved(name) {
			kind = "dimension"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", name, strconv.FormatFloat(vars[name], 'f', -1, 64), kind)
	}
	return w.Flush()
}
