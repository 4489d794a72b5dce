package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bizzlechizzle/aupat/pkg/app"
	"github.com/bizzlechizzle/aupat/pkg/configs"
	"github.com/bizzlechizzle/aupat/pkg/internal/field"
)

var (
	capture    field.Capture
	captureLat float64
	captureLon float64
	urlDraft   field.URLDraft

	fieldCmd = &cobra.Command{
		Use:   "field",
		Short: "offline field device commands",
	}

	fieldCaptureCmd = &cobra.Command{
		Use:   "capture [media files...]",
		Short: "record a location with optional photos into the local queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withField(cmd, func(f *app.Field) error {
				in := capture
				in.MediaPaths = args

				if cmd.Flags().Changed("lat") {
					in.Location.Latitude = &captureLat
				}

				if cmd.Flags().Changed("lon") {
					in.Location.Longitude = &captureLon
				}

				id, err := f.Client.Capture(cmd.Context(), in)
				if err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "queued %s (%d media)\n", id, len(args))

				return nil
			})
		},
	}

	fieldCaptureURLCmd = &cobra.Command{
		Use:   "capture-url <url>",
		Short: "record a web page for a location into the local queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withField(cmd, func(f *app.Field) error {
				in := urlDraft
				in.URL = args[0]

				id, err := f.Client.CaptureURL(cmd.Context(), in)
				if err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "queued %s\n", id)

				return nil
			})
		},
	}

	fieldSyncCmd = &cobra.Command{
		Use:   "sync",
		Short: "run one sync cycle against the archive server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			return withField(cmd, func(f *app.Field) error {
				r, err := f.Client.Sync(ctx)
				if r != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "pushed %d (accepted %d, conflicts %d, rejected %d), pulled %d, watermark %d\n",
						r.Pushed, r.Accepted, r.Conflicts, r.Rejected, r.Pulled, r.Watermark)
				}

				return err
			})
		},
	}

	fieldRunCmd = &cobra.Command{
		Use:   "run",
		Short: "sync periodically until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			return withField(cmd, func(f *app.Field) error {
				return f.Run(ctx)
			})
		},
	}

	fieldStatusCmd = &cobra.Command{
		Use:   "status",
		Short: "show the local queue and last successful syncs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withField(cmd, func(f *app.Field) error {
				st, err := f.Client.Status(cmd.Context())
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "device:    %s\n", st.DeviceID)
				fmt.Fprintf(out, "cached:    %d (%d unsynced)\n", st.Cached, st.Unsynced)
				fmt.Fprintf(out, "queued:    %d\n", st.Pending[field.StateQueued])
				fmt.Fprintf(out, "pushing:   %d\n", st.Pending[field.StatePushing])
				fmt.Fprintf(out, "failed:    %d\n", st.Pending[field.StateFailed])
				fmt.Fprintf(out, "watermark: %d\n", st.Watermark)

				if st.LastPush != nil {
					fmt.Fprintf(out, "last push: %s (%s)\n", st.LastPush.Timestamp.Format("2006-01-02 15:04:05"), st.LastPush.Outcome)
				}

				if st.LastPull != nil {
					fmt.Fprintf(out, "last pull: %s (%s)\n", st.LastPull.Timestamp.Format("2006-01-02 15:04:05"), st.LastPull.Outcome)
				}

				return nil
			})
		},
	}
)

func withField(cmd *cobra.Command, fn func(*app.Field) error) error {
	f, err := app.NewField(cmd.Context(), configs.GetConfig().Field)
	if err != nil {
		return err
	}
	defer f.Close()

	return fn(f)
}

func registerFieldCommands() {
	cf := fieldCaptureCmd.Flags()
	cf.StringVar(&capture.ID, "id", "", "existing entity id to update")
	cf.StringVar(&capture.Location.Name, "name", "", "location name")
	cf.StringVar(&capture.Location.ShortName, "short", "", "short name")
	cf.StringVar(&capture.Location.State, "state", "", "state code")
	cf.StringVar(&capture.Location.Type, "type", "", "location type")
	cf.Float64Var(&captureLat, "lat", 0, "latitude")
	cf.Float64Var(&captureLon, "lon", 0, "longitude")
	_ = fieldCaptureCmd.MarkFlagRequired("name")

	uf := fieldCaptureURLCmd.Flags()
	uf.StringVar(&urlDraft.LocationID, "location", "", "location id")
	uf.StringVar(&urlDraft.SubLocationID, "sub", "", "sub-location id")
	uf.StringVar(&urlDraft.Title, "title", "", "page title")
	_ = fieldCaptureURLCmd.MarkFlagRequired("location")

	fieldCmd.AddCommand(fieldCaptureCmd, fieldCaptureURLCmd, fieldSyncCmd, fieldRunCmd, fieldStatusCmd)
	rootCmd.AddCommand(fieldCmd)
}
