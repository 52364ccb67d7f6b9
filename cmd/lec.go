package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/lrs-events/internal/engine"
	"github.com/sells-group/lrs-events/internal/lrs"
	"github.com/sells-group/lrs-events/internal/workflow"
)

var lecReport string

var lecCmd = &cobra.Command{
	Use:   "lec <workspace> <nodes> <fault-id-field> <routes> <route-id-field> <tolerance> [cleanup]",
	Short: "Locate linear event collection faults along routes",
	Long: `Connects the nodes sharing a fault ID into lines, locates the lines along
the routes and writes the result as linear events.

With --create-routes (or lec.create_routes) the routes dataset holds plain
polylines that are first merged into measured routes per route ID.`,
	Args: cobra.RangeArgs(6, 7),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("lec"); err != nil {
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
		createRoutes := cfg.LEC.CreateRoutes
		if cmd.Flags().Changed("create-routes") {
			createRoutes, _ = cmd.Flags().GetBool("create-routes")
		}
		priorityArg := cfg.LEC.CoordinatePriority
		if cmd.Flags().Changed("priority") {
			priorityArg, _ = cmd.Flags().GetString("priority")
		}
		priority, err := lrs.ParsePriority(priorityArg)
		if err != nil {
			return err
		}

		root := orDefault(args[0], cfg.Workspace.Root)
		faultField := orDefault(args[2], cfg.LEC.FaultIDField)

		exp, closeExp, err := newExporter(ctx, root, faultField)
		if err != nil {
			return err
		}
		defer closeExp()

		wf := workflow.NewLEC(engine.NewNative(), workflow.LECOptions{
			OutputName:      cfg.LEC.OutputName,
			CreateRoutes:    createRoutes,
			Priority:        priority,
			ContainerPrefix: cfg.Workspace.ContainerPrefix,
			CRSMode:         cfg.CRS.Mode,
		}, exp)

		report, err := wf.Run(ctx, workflow.LECParams{
			Root:         root,
			NodesPath:    args[1],
			FaultIDField: faultField,
			RoutesPath:   args[3],
			RouteIDField: args[4],
			Tolerance:    tol,
			Cleanup:      cleanup,
			ReportPath:   lecReport,
		})
		return finishRun(report, err)
	},
}

func init() {
	lecCmd.Flags().Bool("create-routes", false, "build measured routes from plain polylines first")
	lecCmd.Flags().String("priority", "", "coordinate priority for --create-routes (UPPER_LEFT, UPPER_RIGHT, LOWER_LEFT, LOWER_RIGHT)")
	lecCmd.Flags().StringVar(&lecReport, "report", "", "write the run report as YAML to this path")
	rootCmd.AddCommand(lecCmd)
}
