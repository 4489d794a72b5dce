package cmd

import (
	"github.com/spf13/cobra"

	"github.com/bizzlechizzle/aupat/pkg/app"
	"github.com/bizzlechizzle/aupat/pkg/configs"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "run the authoritative archive and sync server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext(cmd.Context())
		defer cancel()

		a, err := app.New(ctx, configs.GetConfig())
		if err != nil {
			return err
		}
		defer a.Close()

		return a.Serve(ctx)
	},
}

func registerServeCommands() {
	rootCmd.AddCommand(serveCmd)
}
