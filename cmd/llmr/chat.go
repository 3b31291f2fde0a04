package main

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/llmr-project/llmr/pkg/events"
	"github.com/llmr-project/llmr/pkg/history"
	"github.com/llmr-project/llmr/pkg/session"
)

func newChatCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive chat session, streamed to the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := settingsFromViper()
			if err != nil {
				return err
			}
			if err := s.Validate(); err != nil {
				return err
			}

			routerOptions := []events.EventRouterOption{}
			if viper.GetBool("verbose") {
				routerOptions = append(routerOptions, events.WithVerbose())
			}
			router, err := events.NewEventRouter(routerOptions...)
			if err != nil {
				return err
			}

			backend_, err := makeBackend(s, router.Publisher)
			if err != nil {
				return err
			}

			store := history.NewFileStore(viper.GetString("history-dir"))
			manager := session.NewManager(backend_, store)

			resume, _ := cmd.Flags().GetString("session")
			sessionID, err := manager.StartOrResume(resume, s)
			if err != nil {
				return err
			}

			router.AddHandler("console", "chat", events.StepPrinterFunc("assistant", os.Stdout))

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			eg, egCtx := errgroup.WithContext(ctx)
			eg.Go(func() error {
				return router.Run(egCtx)
			})
			eg.Go(func() error {
				defer func() {
					_ = router.Close()
				}()
				<-router.Running()

				fmt.Printf("session %s (%s), ctrl-d to quit\n", sessionID, s.Chat.Model)
				fmt.Print("> ")

				scanner := bufio.NewScanner(os.Stdin)
				for scanner.Scan() {
					text := strings.TrimSpace(scanner.Text())
					if text == "" {
						fmt.Print("> ")
						continue
					}

					turns, err := manager.SubmitMessage(egCtx, sessionID, text)
					if err != nil {
						return err
					}
					// output is rendered by the event handler; draining the
					// channel just waits for the turn to finish
					for range turns {
					}

					fmt.Print("\n> ")
				}
				fmt.Println()
				return scanner.Err()
			})

			return eg.Wait()
		},
	}

	cmd.Flags().String("session", "", "Session identifier to resume")

	return cmd
}
