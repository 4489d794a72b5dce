package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bizzlechizzle/aupat/pkg/app"
	"github.com/bizzlechizzle/aupat/pkg/configs"
	"github.com/bizzlechizzle/aupat/pkg/internal/types"
)

var (
	newLocation types.CreateLocationRequest
	newLat      float64
	newLon      float64

	locationCmd = &cobra.Command{
		Use:     "location",
		Short:   "Location related commands",
		Aliases: []string{"loc"},
	}

	locationAddCmd = &cobra.Command{
		Use:   "add",
		Short: "create a location",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := app.New(ctx, configs.GetConfig())
			if err != nil {
				return err
			}
			defer a.Close()

			req := newLocation
			if cmd.Flags().Changed("lat") {
				req.Latitude = &newLat
			}

			if cmd.Flags().Changed("lon") {
				req.Longitude = &newLon
			}

			info, err := a.Locations.Create(ctx, &req)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s (%s)\n", info.ID, info.Name, info.ShortName)

			return nil
		},
	}

	locationListCmd = &cobra.Command{
		Use:     "list",
		Short:   "list locations",
		Aliases: []string{"ls"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := app.New(ctx, configs.GetConfig())
			if err != nil {
				return err
			}
			defer a.Close()

			resp, err := a.Locations.List(ctx)
			if err != nil {
				return err
			}

			for _, l := range resp.Locations {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %-24s %s-%s\n", l.ID, l.ShortName, l.State, l.Type)
			}

			return nil
		},
	}
)

func registerLocationCommands() {
	f := locationAddCmd.Flags()
	f.StringVar(&newLocation.Name, "name", "", "location name")
	f.StringVar(&newLocation.ShortName, "short", "", "short name (derived from name when empty)")
	f.StringVar(&newLocation.State, "state", "", "state code, e.g. ny")
	f.StringVar(&newLocation.Type, "type", "", "location type, e.g. industrial")
	f.Float64Var(&newLat, "lat", 0, "latitude")
	f.Float64Var(&newLon, "lon", 0, "longitude")
	_ = locationAddCmd.MarkFlagRequired("name")

	locationCmd.AddCommand(locationAddCmd)
	locationCmd.AddCommand(locationListCmd)
	rootCmd.AddCommand(locationCmd)
}
