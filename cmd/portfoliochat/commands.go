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
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianPortfolio/pkg/logging"
	"github.com/AleutianAI/AleutianPortfolio/services/orchestrator"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	rootCmd = &cobra.Command{
		Use:           "portfoliochat",
		Short:         "Conversation service for the portfolio chatbot",
		Long:          `portfoliochat routes visitor messages to a reasoning engine, keeps per-conversation state in memory and answers over HTTP and WebSocket.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "portfoliochat", version)
		},
	}

	configPath string
	portFlag   int
	backendArg string
	logLevel   string
	logJSON    bool
)

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)

	serveCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file")
	serveCmd.Flags().IntVarP(&portFlag, "port", "p", 0, "HTTP port (overrides config and PORT)")
	serveCmd.Flags().StringVar(&backendArg, "backend", "", "Reasoning engine: assistants, openai or ollama")
	serveCmd.Flags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	serveCmd.Flags().BoolVar(&logJSON, "log-json", false, "Write stderr logs as JSON")
}

// loadServeConfig loads the config and applies explicitly set flags.
func loadServeConfig(cmd *cobra.Command) (orchestrator.Config, error) {
	cfg, err := orchestrator.LoadConfig(configPath)
	if err != nil {
		return orchestrator.Config{}, err
	}
	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Port = portFlag
	}
	if flags.Changed("backend") {
		cfg.LLMBackend = backendArg
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if flags.Changed("log-json") {
		cfg.LogJSON = logJSON
	}
	if err := cfg.Validate(); err != nil {
		return orchestrator.Config{}, err
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadServeConfig(cmd)
	if err != nil {
		return err
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger, err := logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.LogDir,
		Service: "portfoliochat",
		JSON:    cfg.LogJSON,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer logger.Close()
	logger.SetDefault()

	slog.Info("Starting portfoliochat",
		"version", version,
		"port", cfg.Port,
		"backend", cfg.LLMBackend,
		"knowledge_lookup", cfg.WeaviateURL != "")

	svc, err := orchestrator.New(cfg, nil)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return svc.Run(ctx)
}
