package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"toolchat/internal/config"
	"toolchat/internal/logging"
)

var version = "0.3.0"

var (
	// Global flags
	verbose    bool
	apiKey     string
	model      string
	workspace  string
	configPath string
	noStream   bool
	showThink  bool

	// Logger
	logger *zap.Logger

	cfg *config.Config
)

// rootCmd represents the base command.
var rootCmd = &cobra.Command{
	Use:   "toolchat",
	Short: "toolchat - conversational agent with sandboxed tool execution",
	Long: `toolchat is a conversational agent that lets a language model call
tools mid-conversation: a sandboxed code interpreter, shell commands, and
browser automation. Tool results are fed back to the model until the
conversation settles.

Run without arguments to start the interactive chat.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapCfg := zap.NewProductionConfig()
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		return loadConfig()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd.Context())
	},
}

// loadConfig resolves the workspace config and flag/env overrides, then wires
// the category loggers.
func loadConfig() error {
	if workspace == "" {
		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		workspace = wd
	}
	if configPath == "" {
		configPath = config.DefaultPath(workspace)
	}

	var err error
	cfg, err = config.Load(configPath)
	if err != nil {
		return err
	}
	if apiKey != "" {
		cfg.LLM.APIKey = apiKey
	}
	if model != "" {
		cfg.LLM.Model = model
	}
	if noStream {
		cfg.LLM.Stream = false
	}
	if verbose {
		cfg.Logging.Debug = true
		cfg.Logging.Level = "debug"
	}

	categories := make(map[string]bool)
	for _, c := range cfg.Logging.Categories {
		categories[c] = true
	}
	if len(categories) == 0 {
		categories = nil
	}
	return logging.Initialize(workspace, logging.Options{
		DebugMode:  cfg.Logging.Debug,
		Level:      cfg.Logging.Level,
		Categories: categories,
	})
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the toolchat version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("toolchat %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "model API key (overrides config and env)")
	rootCmd.PersistentFlags().StringVar(&model, "model", "", "model name (overrides config)")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "workspace directory (default: cwd)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default: <workspace>/.toolchat/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&noStream, "no-stream", false, "wait for full replies instead of streaming")
	rootCmd.PersistentFlags().BoolVar(&showThink, "thoughts", false, "print model thought spans")

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(execCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	start := time.Now()
	defer func() {
		logging.Boot("exit after %s", time.Since(start))
	}()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
