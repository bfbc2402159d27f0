// Tencent is pleased to support the open source community by making trpc-mcp-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-mcp-go is licensed under the Apache License Version 2.0.

// Command mcp-auth-client connects to an OAuth protected MCP server, initializes a session and
// lists the server's tools.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newCommand().Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:  "mcp-auth-client",
		Usage: "Connect to an OAuth protected MCP server and list its tools",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Profile file (YAML or JSON).",
				Sources: cli.EnvVars("MCP_CLIENT_CONFIG"),
			},
			&cli.StringFlag{
				Name:  "server-url",
				Usage: "Base URL of the MCP server.",
			},
			&cli.StringFlag{
				Name:  "mode",
				Usage: "Client flavour: async (streamable HTTP) or sync (HTTP+SSE).",
			},
			&cli.StringFlag{
				Name:  "name",
				Usage: "Client name sent in initialize.",
			},
			&cli.StringFlag{
				Name:  "endpoint",
				Usage: "Streamable HTTP endpoint path, async mode only.",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Bound for every request, async mode only.",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set the log level.  One of: debug, info, warn, error.",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			profile, err := loadProfile(cmd)
			if err != nil {
				return err
			}
			return run(ctx, profile)
		},
	}
}
