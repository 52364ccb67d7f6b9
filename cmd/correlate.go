package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/lrs-events/internal/stats"
)

var correlateKeep bool

var correlateCmd = &cobra.Command{
	Use:   "correlate <features> <fields> <output-table>",
	Short: "Run rank-order correlation on feature attributes in the statistics engine",
	Long: `Stages the numeric <fields> (separated by ";" or ",") of <features> as
CSV, submits a PROC CORR program (pearson, spearman, kendall, hoeffding) to
the external engine configured under stats, relays its log and listing, and
writes the statistics table to <output-table> (.xlsx or .csv).`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("correlate"); err != nil {
			return err
		}

		var opts []stats.Option
		if correlateKeep {
			opts = append(opts, stats.KeepStaging())
		}
		runner := &stats.CommandRunner{Command: cfg.Stats.Command, Args: cfg.Stats.Args}
		res, err := stats.NewBridge(runner, cfg.Stats.WorkDir, opts...).Correlate(ctx, stats.Request{
			InputPath:  args[0],
			Fields:     splitFields(args[1]),
			OutputPath: args[2],
		})
		if err != nil {
			return err
		}

		fmt.Fprintf(os.Stdout, "Correlation %s: %d rows written to %s\n", res.Dataset, res.Rows, res.Output)
		return nil
	},
}

func init() {
	correlateCmd.Flags().BoolVar(&correlateKeep, "keep", false, "keep the staged data, program and engine output")
	rootCmd.AddCommand(correlateCmd)
}
