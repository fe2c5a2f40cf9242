package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hylla/worktally/internal/app"
	"github.com/spf13/cobra"
)

func newExportCmd(opts *rootOptions) *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:     "export",
		GroupID: "ops",
		Short:   "Write every trackable and the full time log as a JSON snapshot",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, opts, func(ctx context.Context, rt *appRuntime) error {
				snap, err := rt.service.ExportSnapshot(ctx)
				if err != nil {
					return fmt.Errorf("export snapshot: %w", err)
				}
				encoded, err := json.MarshalIndent(snap, "", "  ")
				if err != nil {
					return fmt.Errorf("encode snapshot json: %w", err)
				}
				encoded = append(encoded, '\n')
				rt.logger.Info("snapshot exported", "trackables", len(snap.Trackables), "entries", len(snap.TimeLog), "out", outPath)

				if outPath == "-" {
					if _, err := cmd.OutOrStdout().Write(encoded); err != nil {
						return fmt.Errorf("write snapshot to stdout: %w", err)
					}
					return nil
				}
				if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
					return fmt.Errorf("create export output dir: %w", err)
				}
				if err := os.WriteFile(outPath, encoded, 0o644); err != nil {
					return fmt.Errorf("write export file: %w", err)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "-", "output file path ('-' for stdout)")
	return cmd
}

func newImportCmd(opts *rootOptions) *cobra.Command {
	var inPath string
	cmd := &cobra.Command{
		Use:     "import",
		GroupID: "ops",
		Short:   "Restore trackables from a JSON snapshot",
		Long:    "Restores trackables that do not exist yet. Existing ids are skipped and totals are rebuilt from the imported time log.",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			content, err := os.ReadFile(inPath)
			if err != nil {
				return fmt.Errorf("read import file: %w", err)
			}
			var snap app.Snapshot
			if err := json.Unmarshal(content, &snap); err != nil {
				return fmt.Errorf("decode snapshot json: %w", err)
			}
			return withRuntime(cmd, opts, func(ctx context.Context, rt *appRuntime) error {
				res, err := rt.service.ImportSnapshot(ctx, snap)
				if err != nil {
					return fmt.Errorf("import snapshot: %w", err)
				}
				rt.logger.Info("snapshot imported", "imported", len(res.Imported), "skipped", len(res.Skipped), "corrected", len(res.Corrected))
				return printOne(cmd, opts, res, printImportResult)
			})
		},
	}
	cmd.Flags().StringVar(&inPath, "in", "", "input snapshot JSON file")
	_ = cmd.MarkFlagRequired("in")
	return cmd
}

func printImportResult(b *strings.Builder, res app.ImportResult) {
	fmt.Fprintf(b, "imported %d trackables with %d time log entries\n", len(res.Imported), res.Entries)
	if len(res.Skipped) > 0 {
		fmt.Fprintf(b, "skipped existing: %s\n", strings.Join(res.Skipped, ", "))
	}
	if len(res.Corrected) > 0 {
		fmt.Fprintf(b, "totals rebuilt from time log: %s\n", strings.Join(res.Corrected, ", "))
	}
}
