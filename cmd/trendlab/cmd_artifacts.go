package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sawpanic/trendlab/internal/artifacts/gc"
	"github.com/sawpanic/trendlab/internal/artifacts/manifest"
	"github.com/sawpanic/trendlab/internal/errs"
)

func newArtifactsCmd() *cobra.Command {
	artifactsCmd := &cobra.Command{
		Use:   "artifacts",
		Short: "Inspect and prune sweep artifacts",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List sweep runs, newest first",
		RunE:  runArtifactsList,
	}

	gcCmd := &cobra.Command{
		Use:   "gc",
		Short: "Move old sweep runs to the trash",
		Long: `Plan which sweep runs to keep and move the rest to a trash directory.
Runs are verified against their manifest checksums before they are moved.
By default only the plan is printed; pass --apply to move files.`,
		RunE: runArtifactsGC,
	}
	gcCmd.Flags().Int("keep", -1, "Newest runs to keep (default from config)")
	gcCmd.Flags().StringSlice("pin", nil, "Sweep ids never collected")
	gcCmd.Flags().Bool("apply", false, "Move runs instead of printing the plan")
	gcCmd.Flags().String("trash", "", "Trash directory (default <dir>/.trash)")

	verifyCmd := &cobra.Command{
		Use:   "verify <sweep-id>",
		Short: "Check a run's files against its manifest",
		Args:  cobra.ExactArgs(1),
		RunE:  runArtifactsVerify,
	}

	artifactsCmd.PersistentFlags().String("dir", "", "Artifacts directory (default from config)")
	artifactsCmd.AddCommand(listCmd, gcCmd, verifyCmd)
	return artifactsCmd
}

func artifactsDir(cmd *cobra.Command) string {
	if dir, _ := cmd.Flags().GetString("dir"); dir != "" {
		return dir
	}
	return cfg.Artifacts.Dir
}

func runArtifactsList(cmd *cobra.Command, args []string) error {
	runs, err := gc.ListRuns(artifactsDir(cmd))
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no sweep runs found")
		return nil
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SWEEP\tCOMPLETED\tFILES\tBYTES")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\n", r.SweepID, r.CompletedAt.Format(time.RFC3339), r.Files, r.Bytes)
	}
	return tw.Flush()
}

func runArtifactsGC(cmd *cobra.Command, args []string) error {
	f := cmd.Flags()
	dir := artifactsDir(cmd)
	keep, _ := f.GetInt("keep")
	if keep < 0 {
		keep = cfg.Artifacts.Keep
	}
	pin, _ := f.GetStringSlice("pin")
	apply, _ := f.GetBool("apply")
	trash, _ := f.GetString("trash")
	if trash == "" {
		trash = filepath.Join(dir, ".trash")
	}

	plan, err := gc.NewPlanner(gc.RetentionConfig{Keep: keep, Pin: pin}).CreatePlan(dir, !apply)
	if err != nil {
		return err
	}
	fmt.Println(plan.Summary())
	for _, r := range plan.ToDelete {
		fmt.Printf("  collect %s (%s)\n", r.SweepID, r.CompletedAt.Format(time.RFC3339))
	}

	result, err := gc.NewExecutor(trash).Apply(plan)
	if err != nil {
		return err
	}
	for _, w := range result.Warnings {
		fmt.Println("  " + w)
	}
	if !result.Success() {
		for _, e := range result.Errors {
			fmt.Fprintln(os.Stderr, "  error: "+e)
		}
		return fmt.Errorf("gc finished with %d errors", len(result.Errors))
	}
	if apply {
		fmt.Printf("moved %d runs to %s\n", len(result.Moved), trash)
	}
	return nil
}

func runArtifactsVerify(cmd *cobra.Command, args []string) error {
	runDir := filepath.Join(artifactsDir(cmd), args[0])
	m, err := manifest.Load(runDir)
	if err != nil {
		return err
	}
	mismatches, err := manifest.Verify(runDir, m)
	if err != nil {
		return err
	}
	for _, mm := range mismatches {
		fmt.Printf("  %s: %s\n", mm.Path, mm.Reason)
	}
	if len(mismatches) > 0 {
		return errs.Dataf("artifacts.verify", "%s: %d of %d files do not match the manifest", m.SweepID, len(mismatches), len(m.Files))
	}
	fmt.Printf("%s: %d files verified\n", m.SweepID, len(m.Files))
	return nil
}
