package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/bizzlechizzle/aupat/pkg/app"
	"github.com/bizzlechizzle/aupat/pkg/configs"
	"github.com/bizzlechizzle/aupat/pkg/internal/importer"
)

var (
	importLocation     string
	importSubLocation  string
	importDeleteSource bool

	importCmd = &cobra.Command{
		Use:   "import <files...>",
		Short: "import media files into a location's archive folder",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			cfg := configs.GetConfig()

			a, err := app.New(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			loc, err := a.Locations.Resolve(ctx, importLocation)
			if err != nil {
				return fmt.Errorf("location %q: %w", importLocation, err)
			}

			reqs := make([]importer.Request, len(args))
			for i, p := range args {
				reqs[i] = importer.Request{
					SourcePath:    p,
					Location:      importer.LocationContextOf(loc),
					SubLocationID: importSubLocation,
					DeleteSource:  importDeleteSource || cfg.Archive.DeleteSource,
				}
			}

			outcomes, err := a.Pipeline.ImportMany(ctx, reqs)
			failed := printOutcomes(cmd.OutOrStdout(), outcomes)

			if err != nil {
				return err
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d imports failed", failed, len(reqs))
			}

			return nil
		},
	}
)

// printOutcomes 逐行输出导入结果，返回失败数. 未开始的请求带有 ctx 错误，按失败输出.
func printOutcomes(out io.Writer, outcomes []importer.Outcome) int {
	failed := 0

	for _, o := range outcomes {
		switch {
		case o.Err != nil || o.Result == nil:
			failed++

			reason := o.Err
			if reason == nil {
				reason = errors.New("not started")
			}

			fmt.Fprintf(out, "FAIL  %s: %v\n", o.Request.SourcePath, reason)
		case o.Result.Duplicate:
			fmt.Fprintf(out, "DUP   %s -> %s (%s)\n", o.Request.SourcePath, o.Result.ArchivePath, o.Result.EntityID)
		default:
			fmt.Fprintf(out, "OK    %s -> %s (%s)\n", o.Request.SourcePath, o.Result.ArchivePath, o.Result.EntityID)
		}
	}

	return failed
}

func registerImportCommands() {
	importCmd.Flags().StringVarP(&importLocation, "location", "l", "", "location id, id prefix or short name")
	importCmd.Flags().StringVar(&importSubLocation, "sub", "", "sub-location id")
	importCmd.Flags().BoolVar(&importDeleteSource, "delete-source", false, "remove source files after a verified import")
	_ = importCmd.MarkFlagRequired("location")

	rootCmd.AddCommand(importCmd)
}
