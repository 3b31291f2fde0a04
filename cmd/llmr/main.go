package main

import (
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "llmr",
	Short: "llmr runs streaming LLM chat sessions and batch prompt calls",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// reinitialize the logger once --log-level and co are parsed
		initLoggerFromViper()
	},
}

func initConfig() error {
	viper.SetEnvPrefix("llmr")

	if configFile := configFileFromArgs(); configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.llmr")
		if xdgConfigPath, err := os.UserConfigDir(); err == nil {
			viper.AddConfigPath(xdgConfigPath + "/llmr")
		}
	}

	err := viper.ReadInConfig()
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		// no config file is fine
	} else if err != nil {
		return err
	}

	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return err
	}

	initLoggerFromViper()

	log.Debug().Str("config", viper.ConfigFileUsed()).Msg("loaded configuration")
	return nil
}

// configFileFromArgs catches --config before cobra has parsed anything, so
// the config file can contribute defaults to flag binding.
func configFileFromArgs() string {
	for idx, arg := range os.Args {
		if arg == "--config" && len(os.Args) > idx+1 {
			return os.Args[idx+1]
		}
	}
	return ""
}

func init() {
	rootCmd.PersistentFlags().Bool("with-caller", false, "Log caller")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (trace, debug, info, warn, error, fatal)")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format (json, text)")
	rootCmd.PersistentFlags().String("log-file", "", "Log file (default: stderr)")
	rootCmd.PersistentFlags().Bool("verbose", false, "Verbose output")

	rootCmd.PersistentFlags().String("config", "", "Path to config file (default ~/.llmr/config.yml)")
	rootCmd.PersistentFlags().String("history-dir", "chat_histories", "Directory for persisted transcripts")

	rootCmd.PersistentFlags().String("backend", "openai", "Backend (openai, huggingface)")
	rootCmd.PersistentFlags().String("api-key", "", "Provider API key")
	rootCmd.PersistentFlags().String("base-url", "", "Provider base URL override")
	rootCmd.PersistentFlags().String("model", "", "Model identifier")
	rootCmd.PersistentFlags().String("system-message", "", "System message for new sessions")
	rootCmd.PersistentFlags().Float64("temperature", 1.0, "Sampling temperature")
	rootCmd.PersistentFlags().Float64("top-p", 1.0, "Nucleus sampling bound")
	rootCmd.PersistentFlags().Int("max-tokens", 0, "Output length bound (0: provider default)")
	rootCmd.PersistentFlags().Float64("frequency-penalty", 0.0, "Frequency penalty")
	rootCmd.PersistentFlags().Float64("presence-penalty", 0.0, "Presence penalty")
	rootCmd.PersistentFlags().StringSlice("stop", nil, "Stop sequences")
	rootCmd.PersistentFlags().String("reasoning-effort", "", "Reasoning effort for o-series models (low, medium, high)")

	cobra.CheckErr(initConfig())

	rootCmd.AddCommand(newChatCommand())
	rootCmd.AddCommand(newMulticallCommand())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
