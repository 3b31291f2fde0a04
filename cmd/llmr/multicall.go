package main

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/llmr-project/llmr/pkg/history"
	"github.com/llmr-project/llmr/pkg/multicaller"
)

func newMulticallCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "multicall",
		Short: "Send the same prompt N times and record every answer",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := settingsFromViper()
			if err != nil {
				return err
			}
			if err := s.Validate(); err != nil {
				return err
			}

			prompt, _ := cmd.Flags().GetString("prompt")
			count, _ := cmd.Flags().GetInt("count")
			concurrency, _ := cmd.Flags().GetInt("concurrency")

			backend_, err := makeBackend(s, nil)
			if err != nil {
				return err
			}

			store := history.NewFileStore(viper.GetString("history-dir"))
			caller := multicaller.NewCaller(backend_, store, multicaller.WithConcurrency(concurrency))

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			responses, path, err := caller.Run(ctx, prompt, count, s)
			if err != nil {
				return err
			}

			for _, response := range responses {
				if response.Error != "" {
					fmt.Printf("--- attempt %d failed: %s\n", response.Attempt, response.Error)
					continue
				}
				fmt.Printf("--- attempt %d\n%s\n", response.Attempt, response.Assistant)
			}
			fmt.Printf("saved to %s\n", path)

			return nil
		},
	}

	cmd.Flags().String("prompt", "", "Prompt to send")
	cmd.Flags().Int("count", 5, "Number of calls")
	cmd.Flags().Int("concurrency", 4, "Parallel calls")
	_ = cmd.MarkFlagRequired("prompt")

	return cmd
}
