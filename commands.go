package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"ladybug/internal/checkpoint"
	"ladybug/internal/config"
	"ladybug/internal/difference"
)

// --- Global Command Variables ---
var (
	app *App

	configPath string
	captureDir string
	logLevel   string
	jsonOutput bool

	strategy       string
	checkpointFlag int
	selectUID      string
	selectSide     string

	rootCmd = &cobra.Command{
		Use:   "ladybug",
		Short: "Inspect captured ladybug reports",
		Long: `ladybug renders captured test reports as checkpoint trees, compares
two runs side by side and shows what changed between them.`,
		SilenceUsage:       true,
		SilenceErrors:      true,
		PersistentPreRunE:  startApp,
		PersistentPostRunE: stopApp,
	}

	listCmd = &cobra.Command{
		Use:   "list",
		Short: "List the captures in the capture directory",
		Args:  cobra.NoArgs,
		RunE:  runList,
	}

	treeCmd = &cobra.Command{
		Use:   "tree [capture...]",
		Short: "Print the checkpoint tree of captures",
		RunE:  runTree,
	}

	diffCmd = &cobra.Command{
		Use:   "diff <original> <edited>",
		Short: "Show the differences between two reports or one of their checkpoints",
		Args:  cobra.ExactArgs(2),
		RunE:  runDiff,
	}

	compareCmd = &cobra.Command{
		Use:   "compare <left> <right>",
		Short: "Open two reports side by side and resolve a linked selection",
		Args:  cobra.ExactArgs(2),
		RunE:  runCompare,
	}

	watchCmd = &cobra.Command{
		Use:   "watch [capture...]",
		Short: "Keep a tree view in sync with the capture directory, printing events as JSON lines",
		RunE:  runWatch,
	}
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "config file (default ~/.ladybug/config.yaml)")
	pf.StringVar(&captureDir, "capture-dir", "", "directory holding report captures")
	pf.StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	pf.BoolVar(&jsonOutput, "json", false, "print JSON instead of text")

	diffCmd.Flags().IntVar(&checkpointFlag, "checkpoint", -1, "compare the checkpoint with this index instead of the report")

	compareCmd.Flags().StringVar(&strategy, "strategy", "", "link strategy: path or checkpoint_number")
	compareCmd.Flags().StringVar(&selectUID, "select", "", "uid to select")
	compareCmd.Flags().StringVar(&selectSide, "side", string(checkpoint.SideLeft), "side the uid belongs to: left or right")

	rootCmd.AddCommand(listCmd, treeCmd, diffCmd, compareCmd, watchCmd)
}

func startApp(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if captureDir != "" {
		cfg.CaptureDir = captureDir
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	app = NewApp()
	return app.Startup(cmd.Context(), cfg)
}

func stopApp(cmd *cobra.Command, _ []string) error {
	if app != nil {
		app.Shutdown(cmd.Context())
	}
	return nil
}

func runList(cmd *cobra.Command, _ []string) error {
	infos, err := app.ListCaptures()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if jsonOutput {
		return writeJSON(out, infos)
	}
	for _, info := range infos {
		fmt.Fprintf(out, "%6d  %-40s %5d checkpoints  %s\n", info.StorageID, info.Name, info.Checkpoints, info.File)
	}
	return nil
}

func runTree(cmd *cobra.Command, args []string) error {
	view, err := app.OpenTree(args...)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if jsonOutput {
		return writeJSON(out, view.Tree)
	}
	printTree(out, view.Tree)
	return nil
}

func runDiff(cmd *cobra.Command, args []string) error {
	var (
		diff *ReportDiff
		err  error
	)
	if checkpointFlag >= 0 {
		diff, err = app.DiffCheckpoints(args[0], args[1], checkpointFlag)
	} else {
		diff, err = app.DiffReports(args[0], args[1])
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return writeJSON(out, diff)
	}
	if len(diff.Differences) == 0 {
		fmt.Fprintln(out, "no differences")
		return nil
	}
	printDifferences(out, diff.Differences)
	return nil
}

func runCompare(cmd *cobra.Command, args []string) error {
	view, err := app.OpenCompare(args[0], args[1], strategy)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	var linked *checkpoint.Node
	if selectUID != "" {
		if linked, err = app.SelectCompare(view.ID, selectSide, selectUID); err != nil {
			return err
		}
	}

	if jsonOutput {
		return writeJSON(out, map[string]interface{}{
			"viewId":   view.ID,
			"strategy": view.Compare.Strategy.String(),
			"left":     view.Compare.Left,
			"right":    view.Compare.Right,
			"linked":   linked,
		})
	}

	fmt.Fprintln(out, "left:")
	printTree(out, view.Compare.Left)
	fmt.Fprintln(out, "right:")
	printTree(out, view.Compare.Right)
	if selectUID != "" {
		if linked != nil {
			fmt.Fprintf(out, "%s (%s) -> %s %q\n", selectUID, selectSide, linked.UID, linked.Label)
		} else {
			fmt.Fprintf(out, "%s (%s) -> no corresponding node\n", selectUID, selectSide)
		}
	}
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app.SetEventHubBroadcaster(newLineBroadcaster(cmd.OutOrStdout()))
	view, err := app.OpenTree(args...)
	if err != nil {
		return err
	}
	if err := app.WatchView(ctx, view.ID); err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printTree prints the expanded part of the tree, marking the selection.
func printTree(w io.Writer, t *checkpoint.Tree) {
	selected := ""
	if s := t.Selected(); s != nil {
		selected = s.UID
	}
	var visit func(nodes []*checkpoint.Node, depth int)
	visit = func(nodes []*checkpoint.Node, depth int) {
		for _, n := range nodes {
			marker := " "
			if n.UID == selected {
				marker = "*"
			}
			fold := ""
			if len(n.Children) > 0 && !n.Expanded {
				fold = " [+" + strconv.Itoa(len(n.Children)) + "]"
			}
			fmt.Fprintf(w, "%s %s%s  %s%s\n", marker, strings.Repeat("  ", depth), n.Label, n.UID, fold)
			if n.Expanded {
				visit(n.Children, depth+1)
			}
		}
	}
	visit(t.Reports, 0)
}

// printDifferences prints colored differences inline with [-removed-] and
// {+added+} markers and flat ones as a replacement.
func printDifferences(w io.Writer, diffs []difference.Rendered) {
	for _, d := range diffs {
		fmt.Fprintf(w, "%s:\n", d.Name)
		if d.Replacement != nil {
			fmt.Fprintf(w, "  %s -> %s\n", d.Replacement.From, d.Replacement.To)
			continue
		}
		var b strings.Builder
		for _, op := range d.Ops {
			switch op.Kind {
			case difference.OpDelete:
				b.WriteString("[-" + op.Text + "-]")
			case difference.OpInsert:
				b.WriteString("{+" + op.Text + "+}")
			default:
				b.WriteString(op.Text)
			}
		}
		fmt.Fprintf(w, "  %s\n", b.String())
	}
}
