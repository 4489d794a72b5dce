package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/bizzlechizzle/aupat/pkg/configs"
	"github.com/bizzlechizzle/aupat/pkg/internal/importer"
	"github.com/bizzlechizzle/aupat/pkg/internal/model"
	kv "github.com/bizzlechizzle/aupat/pkg/internal/storage/kv"
)

var (
	kvIndexKind string

	kvCmd = &cobra.Command{
		Use:     "kv",
		Short:   "inspect the content hash index",
		Aliases: []string{"keyvalue"},
	}

	kvTypesCmd = &cobra.Command{
		Use:   "types",
		Short: "list all registered kv types",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "Registered kv types:")
			for _, t := range kv.GetRegisteredKVTypes() {
				fmt.Fprintln(cmd.OutOrStdout(), "   - "+string(t))
			}
		},
	}

	kvListCmd = &cobra.Command{
		Use:     "list",
		Short:   "list hash index entries (hash:<kind>:<sha256>)",
		Aliases: []string{"ls", "l"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withKV(cmd, func(c *kv.Client) error {
				entries, err := importer.IndexEntries(cmd.Context(), c, model.Kind(kvIndexKind))
				if err != nil {
					return err
				}

				printIndex(cmd.OutOrStdout(), entries)

				return nil
			})
		},
	}

	kvForgetCmd = &cobra.Command{
		Use:   "forget <kind> <sha256>",
		Short: "drop one hash index entry, the next import rebuilds it from the database",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withKV(cmd, func(c *kv.Client) error {
				return importer.ForgetIndex(cmd.Context(), c, model.Kind(args[0]), args[1])
			})
		},
	}
)

func withKV(cmd *cobra.Command, fn func(*kv.Client) error) error {
	cfg := configs.GetConfig().KV
	if cfg.Type == configs.KVTypeMemory {
		fmt.Fprintln(cmd.ErrOrStderr(), "kv type is memory, the index lives inside the server process only")
	}

	c, err := kv.New(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	return fn(c)
}

// printIndex 每行一条: 类型、哈希前 12 位、实体 ID、归档路径.
func printIndex(out io.Writer, entries []importer.Result) {
	for _, e := range entries {
		hash := e.Hash
		if len(hash) > 12 {
			hash = hash[:12]
		}

		fmt.Fprintf(out, "%-4s %s  %s  %s\n", e.Kind, hash, e.EntityID, e.ArchivePath)
	}

	fmt.Fprintf(out, "%d entries\n", len(entries))
}

// registerKVCommands 注册 KV 相关命令.
func registerKVCommands() {
	kvListCmd.Flags().StringVarP(&kvIndexKind, "kind", "k", "", "only list one kind (img, vid, doc, map)")

	rootCmd.AddCommand(kvCmd)
	kvCmd.AddCommand(kvTypesCmd, kvListCmd, kvForgetCmd)
}
