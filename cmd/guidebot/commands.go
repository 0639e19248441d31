// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"log/slog"

	"github.com/homescan/guidebot/pkg/logging"
	"github.com/homescan/guidebot/services/chatbot/config"
	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	configPath string
	logLevel   string
	topicFlag  string
	streamFlag bool

	rootCmd = &cobra.Command{
		Use:   "guidebot",
		Short: "Home'Scan guide chatbot",
		Long: `guidebot answers rental-housing questions from the Home'Scan
contract, residency and move-out guides.`,
		SilenceUsage: true,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the chatbot HTTP server",
		Args:  cobra.NoArgs,
		RunE:  runServe, // Defined in serve.go
	}

	askCmd = &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer one question and exit",
		Long: `Runs the full pipeline once against an in-memory history and
prints the answer. Uses the configured completion API when a key is set.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runAsk, // Defined in ask.go
	}

	promptsCmd = &cobra.Command{
		Use:   "prompts",
		Short: "List the suggested questions",
		Args:  cobra.NoArgs,
		RunE:  runPrompts, // Defined in ask.go
	}

	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}

	configInitCmd = &cobra.Command{
		Use:   "init [path]",
		Short: "Write the default configuration",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.DefaultPath
			if len(args) == 1 {
				path = args[0]
			}
			if err := config.WriteDefault(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "guidebot %s\n", version)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ./guidebot.yaml if present)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level (debug|info|warn|error)")

	askCmd.Flags().StringVar(&topicFlag, "topic", "", "topic hint: contract_review, deed_analysis, residency or moveout")
	askCmd.Flags().BoolVar(&streamFlag, "stream", false, "print the answer as it is generated")
	promptsCmd.Flags().StringVar(&topicFlag, "topic", "", "only list this topic's questions")

	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(serveCmd, askCmd, promptsCmd, configCmd, versionCmd)
}

// loadConfig reads the configuration and installs the process logger.
// The returned logger must be closed.
func loadConfig() (config.Config, *logging.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return config.Config{}, nil, err
	}
	logger := logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Logging.Dir,
		Service: cfg.Telemetry.ServiceName,
		JSON:    cfg.Logging.JSON,
	})
	slog.SetDefault(logger.Slog())
	return cfg, logger, nil
}
