package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"codesm/internal/agent"
	"codesm/internal/agent/ports"
	"codesm/internal/shared/logging"
)

var (
	promptColor = color.New(color.FgCyan, color.Bold)
	toolColor   = color.New(color.FgYellow)
	errColor    = color.New(color.FgRed)
	dimColor    = color.New(color.Faint)
)

func newChatCmd() *cobra.Command {
	var oneShot string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, workDir, err := loadConfig()
			if err != nil {
				return err
			}
			logger := logging.NewComponentLogger("cli")

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := agent.New(ctx, cfg, workDir, logger)
			if err != nil {
				return err
			}
			defer a.Cleanup()

			if oneShot != "" {
				return runTurn(ctx, a, oneShot)
			}
			return runREPL(ctx, a)
		},
	}
	cmd.Flags().StringVarP(&oneShot, "print", "p", "", "run one message and exit")
	return cmd
}

func runREPL(ctx context.Context, a *agent.Agent) error {
	dimColor.Printf("session %s - type a message, /new for a fresh session, /quit to exit\n", a.SessionID())
	reader := bufio.NewReader(os.Stdin)
	for {
		promptColor.Print("> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			fmt.Println()
			return nil
		}
		line = strings.TrimSpace(line)
		switch {
		case line == "":
			continue
		case line == "/quit", line == "/exit":
			return nil
		case line == "/new":
			id, err := a.NewSession(ctx)
			if err != nil {
				errColor.Println(err)
				continue
			}
			dimColor.Printf("session %s\n", id)
			continue
		case line == "/usage":
			usage := a.Usage(ctx)
			dimColor.Printf("tokens: %d prompt, %d completion, %d total\n",
				usage.PromptTokens, usage.CompletionTokens, usage.TotalTokens)
			continue
		}
		if err := runTurn(ctx, a, line); err != nil {
			errColor.Println(err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// runTurn streams one turn to the terminal.
func runTurn(ctx context.Context, a *agent.Agent, message string) error {
	stream, err := a.Chat(ctx, message)
	if err != nil {
		return err
	}
	sawText := false
	for chunk := range stream {
		switch chunk.Kind {
		case ports.ChunkText:
			fmt.Print(chunk.Text)
			sawText = true
		case ports.ChunkToolCall:
			if chunk.ToolCall != nil {
				if sawText {
					fmt.Println()
					sawText = false
				}
				toolColor.Printf("⚙ %s\n", chunk.ToolCall.Name)
			}
		case ports.ChunkToolResult:
			if chunk.Result != nil {
				dimColor.Println(firstLine(chunk.Result.Content))
			}
		case ports.ChunkError:
			errColor.Printf("\n%s\n", chunk.Err)
		}
	}
	fmt.Println()
	return nil
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx] + " ..."
	}
	return s
}
