package cmd

import (
	"fmt"
	"io"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"github.com/bizzlechizzle/aupat/pkg/configs"
)

var (
	// config 子命令.
	configCmd = &cobra.Command{
		Use:   "config",
		Short: "config subcommands",
	}

	// 打印配置文件以及归档、暂存、数据库所在位置.
	pathCmd = &cobra.Command{
		Use:   "path",
		Short: "print the config file and the resolved archive, staging and database paths",
		Run: func(cmd *cobra.Command, args []string) {
			file := ""
			if v := configs.GetViper(); v != nil {
				file = v.ConfigFileUsed()
			}

			printPaths(cmd.OutOrStdout(), file, configs.GetConfig())
		},
	}

	// 以 JSON 打印当前配置，密钥已隐藏. --debug 时附带 viper 的来源信息.
	debugCmd = &cobra.Command{
		Use:     "show",
		Short:   "print the current config values with secrets redacted",
		Aliases: []string{"debug"},
		RunE: func(cmd *cobra.Command, args []string) error {
			v := configs.GetViper()
			if v == nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "config not initialized.")

				return nil
			}

			if debug {
				v.Debug()
			}

			b, err := sonic.ConfigStd.MarshalIndent(configs.GetConfig().Redacted(), "", "  ")
			if err != nil {
				return fmt.Errorf("failed to marshal config to JSON: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), string(b))

			return nil
		},
	}
)

func printPaths(out io.Writer, file string, cfg *configs.AppConfig) {
	if file == "" {
		file = "(none, defaults and env)"
	}

	fmt.Fprintln(out, "config:  ", file)
	fmt.Fprintln(out, "archive: ", cfg.Archive.Root)
	fmt.Fprintln(out, "staging: ", cfg.Archive.StagingPath())

	if cfg.DB.IsSQLite() {
		fmt.Fprintln(out, "db:      ", cfg.DB.GetDSN())
	} else {
		fmt.Fprintf(out, "db:       %s %s:%d/%s\n", cfg.DB.Type, cfg.DB.Host, cfg.DB.Port, cfg.DB.Database)
	}

	fmt.Fprintln(out, "field db:", cfg.Field.DBPath)
}

// registerConfigsCommands 注册 CLI 子命令.
func registerConfigsCommands() {
	configCmd.AddCommand(pathCmd)
	configCmd.AddCommand(debugCmd)

	rootCmd.AddCommand(configCmd)
}
