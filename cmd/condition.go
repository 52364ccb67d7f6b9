package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/lrs-events/internal/engine"
	"github.com/sells-group/lrs-events/internal/geoerr"
	"github.com/sells-group/lrs-events/internal/workflow"
)

var conditionReport string

var conditionCmd = &cobra.Command{
	Use:   "condition <workspace> <nodes> <category-field> <routes> <route-id-field> <tolerance> [cleanup]",
	Short: "Convert condition nodes into linear events along routes",
	Long: `Selects the routes near the condition nodes, splits them at the nodes,
transfers the nearest node's category to each segment, forces the default
category on the first segment and locates the segments as events.

Routes with no node within the tolerance are left out and get no events.
The run fails with an empty selection error only when no route at all has
a node nearby.

Pass "#" for <workspace> or <tolerance> to use workspace.root and
condition.tolerance_meters from the config. [cleanup] defaults to
workspace.cleanup.`,
	Args: cobra.RangeArgs(6, 7),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("condition"); err != nil {
			return err
		}
		tol, err := parseTolerance(args[5], cfg.Condition.ToleranceMeters)
		if err != nil {
			return err
		}
		cleanup, err := parseCleanup(args, 6, cfg.Workspace.Cleanup)
		if err != nil {
			return err
		}
		root := orDefault(args[0], cfg.Workspace.Root)

		exp, closeExp, err := newExporter(ctx, root, args[2])
		if err != nil {
			return err
		}
		defer closeExp()

		wf := workflow.NewCondition(engine.NewNative(), workflow.ConditionOptions{
			Label:           cfg.Condition.Label,
			DefaultCategory: cfg.Condition.DefaultCategory,
			OutputTemplate:  cfg.Condition.OutputTemplate,
			BoundaryScope:   cfg.Condition.BoundaryScope,
			ContainerPrefix: cfg.Workspace.ContainerPrefix,
			CRSMode:         cfg.CRS.Mode,
		}, exp)

		report, err := wf.Run(ctx, workflow.ConditionParams{
			Root:          root,
			NodesPath:     args[1],
			CategoryField: args[2],
			RoutesPath:    args[3],
			RouteIDField:  args[4],
			Tolerance:     tol,
			Cleanup:       cleanup,
			ReportPath:    conditionReport,
		})
		return finishRun(report, err)
	},
}

// finishRun prints the run summary. Cleanup failures are logged and do not
// fail the command.
func finishRun(report *workflow.RunReport, err error) error {
	if err != nil && geoerr.IsFatal(err) {
		if report != nil {
			zap.L().Error("run failed", zap.String("run_id", report.RunID), zap.String("container", report.Container))
		}
		return err
	}
	if err != nil {
		zap.L().Warn("cleanup incomplete", zap.Error(err))
	}
	printReport(os.Stdout, report)
	return nil
}

func printReport(out io.Writer, r *workflow.RunReport) {
	fmt.Fprintf(out, "Run %s (%s)\n", r.RunID, r.Workflow)
	fmt.Fprintf(out, "  container: %s\n", r.Container)
	fmt.Fprintf(out, "  output:    %s (%d events, %d zero-length)\n", r.Output, r.Events, r.ZeroLength)
	keys := make([]string, 0, len(r.LocErrors))
	for k := range r.LocErrors {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(out, "  %s: %d\n", k, r.LocErrors[k])
	}
	for _, e := range r.Exports {
		fmt.Fprintf(out, "  exported:  %s\n", e)
	}
	if r.CleanedUp {
		fmt.Fprintln(out, "  intermediates removed")
	}
}

func init() {
	conditionCmd.Flags().StringVar(&conditionReport, "report", "", "write the run report as YAML to this path")
	rootCmd.AddCommand(conditionCmd)
}
