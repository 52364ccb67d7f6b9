package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/lrs-events/internal/workspace"
)

var workspaceCmd = &cobra.Command{
	Use:   "workspace",
	Short: "Inspect and clean scratch containers",
	Long:  "Commands for listing scratch containers, showing their datasets and runs, and dropping intermediates left by runs without clean-up.",
}

// -- workspace list --

var workspaceListCmd = &cobra.Command{
	Use:   "list [root]",
	Short: "List scratch containers under a root",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("workspace"); err != nil {
			return err
		}
		root := cfg.Workspace.Root
		if len(args) == 1 {
			root = args[0]
		}
		if root == "" {
			root = "."
		}

		containers, err := workspace.List(root, cfg.Workspace.ContainerPrefix)
		if err != nil {
			return err
		}
		if len(containers) == 0 {
			fmt.Fprintln(os.Stderr, "No containers found.")
			return nil
		}
		formatContainers(os.Stdout, containers)
		return nil
	},
}

// -- workspace show --

var workspaceShowCmd = &cobra.Command{
	Use:   "show <container>",
	Short: "Show the datasets and runs of a container",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		ws, err := workspace.Open(ctx, args[0])
		if err != nil {
			return err
		}
		defer ws.Close() //nolint:errcheck

		datasets, err := ws.Datasets(ctx)
		if err != nil {
			return err
		}
		runs, err := ws.Runs(ctx)
		if err != nil {
			return err
		}

		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		defer enc.Close() //nolint:errcheck
		return eris.Wrap(enc.Encode(map[string]any{
			"container": ws.Path(),
			"datasets":  datasets,
			"runs":      runs,
		}), "workspace show")
	},
}

// -- workspace clean --

var workspaceCleanCmd = &cobra.Command{
	Use:   "clean <container>",
	Short: "Drop the intermediate datasets of a container",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		ws, err := workspace.Open(ctx, args[0])
		if err != nil {
			return err
		}
		defer ws.Close() //nolint:errcheck

		dropped, err := ws.DropIntermediates(ctx)
		for _, name := range dropped {
			fmt.Fprintf(os.Stdout, "dropped %s\n", name)
		}
		if err != nil {
			return err
		}
		if len(dropped) == 0 {
			fmt.Fprintln(os.Stderr, "No intermediates found.")
		}
		return nil
	},
}

func init() {
	workspaceCmd.AddCommand(workspaceListCmd)
	workspaceCmd.AddCommand(workspaceShowCmd)
	workspaceCmd.AddCommand(workspaceCleanCmd)
	rootCmd.AddCommand(workspaceCmd)
}

// formatContainers writes a tabular list of containers to out.
func formatContainers(out io.Writer, containers []workspace.ContainerInfo) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tSIZE\tMODIFIED")
	for _, c := range containers {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%s\n", c.Name, c.Size, c.ModTime.Format("2006-01-02 15:04"))
	}
	_ = w.Flush()
}
