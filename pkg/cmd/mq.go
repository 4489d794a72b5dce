package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/bizzlechizzle/aupat/pkg/configs"
	mq "github.com/bizzlechizzle/aupat/pkg/internal/storage/mq"
	"github.com/bizzlechizzle/aupat/pkg/queue"
)

var (
	mqCmd = &cobra.Command{
		Use:     "mq",
		Short:   "event bus related commands",
		Aliases: []string{"messagequeue"},
	}

	mqListCmd = &cobra.Command{
		Use:     "list",
		Short:   "list event topics and whether they are published",
		Aliases: []string{"ls", "l"},
		Run: func(cmd *cobra.Command, args []string) {
			printTopics(cmd.OutOrStdout(), configs.GetConfig())
		},
	}
)

// printTopics 输出当前 MQ 后端、已注册后端以及每个主题的发布开关.
func printTopics(out io.Writer, cfg *configs.AppConfig) {
	fmt.Fprintf(out, "Backend: %s (registered:", cfg.MQ.Type)
	for _, t := range mq.RegisteredTypes() {
		fmt.Fprint(out, " "+string(t))
	}
	fmt.Fprintln(out, ")")

	fmt.Fprintln(out, "Topics:")
	for _, topic := range queue.AllTopics() {
		state := "off"
		if queue.TopicEnabled(cfg.Events, topic) {
			state = "on"
		}

		fmt.Fprintf(out, "   - %-28s %s\n", topic, state)
	}
}

// registerMQCommands 注册 MQ 相关命令.
func registerMQCommands() {
	rootCmd.AddCommand(mqCmd)
	mqCmd.AddCommand(mqListCmd)
}
