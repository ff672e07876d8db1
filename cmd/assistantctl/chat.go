package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ashureev/mutuelle-assistant/internal/agent"
	"github.com/ashureev/mutuelle-assistant/internal/assistant"
	"github.com/ashureev/mutuelle-assistant/internal/config"
	"github.com/ashureev/mutuelle-assistant/internal/store"
)

func chatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the assistant as a user",
		Long: `Open an interactive chat as the given user. Commands:
  /suggestions   list the current suggestions
  /suggest N     send suggestion N
  /reset         start a new conversation
  /quit          leave`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, _ := cmd.Flags().GetString("user")
			dbPath, _ := cmd.Flags().GetString("db")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			repo, err := store.NewSQLite(dbPath)
			if err != nil {
				return err
			}
			defer repo.Close()

			ctx := cmd.Context()
			provider, err := agent.New(ctx, agent.Config{
				Provider:       cfg.Assistant.Provider,
				ModelName:      cfg.Assistant.ModelName,
				GoogleAPIKey:   cfg.Assistant.GoogleAPIKey,
				GatewayAddr:    cfg.Assistant.GatewayAddr,
				ConnectTimeout: cfg.Assistant.ConnectTimeout,
				Temperature:    float32(cfg.Assistant.Temperature),
			}, slog.Default())
			if err != nil {
				return err
			}
			defer provider.Close()

			mgr := assistant.NewBuilder(assistant.BuilderConfig{
				Repo:              repo,
				Provider:          provider,
				InitTimeout:       cfg.Assistant.InitTimeout,
				SendTimeout:       cfg.Assistant.SendTimeout,
				SuggestionTimeout: cfg.Assistant.SuggestionTimeout,
			})(userID)
			defer mgr.Close()

			return runChat(ctx, mgr, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringP("user", "u", "", "User ID")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

// runChat initializes mgr and runs the read-eval-print loop until EOF or /quit.
func runChat(ctx context.Context, mgr *assistant.Manager, in io.Reader, out io.Writer) error {
	if err := mgr.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize assistant: %w", err)
	}
	printLastReply(out, mgr.Snapshot())

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "":
			continue
		case line == "/quit" || line == "/exit":
			return nil
		case line == "/reset":
			if err := mgr.Reset(ctx); err != nil {
				fmt.Fprintf(out, "reset failed: %v\n", err)
				continue
			}
			printLastReply(out, mgr.Snapshot())
		case line == "/suggestions":
			printSuggestions(out, waitSuggestions(mgr, 5*time.Second))
		case strings.HasPrefix(line, "/suggest "):
			n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "/suggest ")))
			list := waitSuggestions(mgr, 5*time.Second)
			if err != nil || n < 1 || n > len(list) {
				fmt.Fprintf(out, "choose a suggestion between 1 and %d\n", len(list))
				continue
			}
			fmt.Fprintf(out, "> %s\n", list[n-1])
			send(mgr, out, func() error { return mgr.UseSuggestion(ctx, list[n-1]) })
		case strings.HasPrefix(line, "/"):
			fmt.Fprintf(out, "unknown command %s\n", line)
		default:
			send(mgr, out, func() error { return mgr.SendMessage(ctx, line) })
		}
	}
}

func send(mgr *assistant.Manager, out io.Writer, fn func() error) {
	err := fn()
	if err != nil && !errors.Is(err, assistant.ErrSendFailed) {
		fmt.Fprintf(out, "error: %v\n", err)
		return
	}
	printLastReply(out, mgr.Snapshot())
}

// Suggestions are produced in the background after initialization.
func waitSuggestions(mgr *assistant.Manager, timeout time.Duration) []string {
	deadline := time.Now().Add(timeout)
	for {
		list := mgr.Snapshot().Suggestions
		if len(list) > 0 || time.Now().After(deadline) {
			return list
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func printLastReply(out io.Writer, snap assistant.Snapshot) {
	for i := len(snap.Messages) - 1; i >= 0; i-- {
		if !snap.Messages[i].IsUser {
			fmt.Fprintf(out, "\n%s\n\n", snap.Messages[i].Content)
			return
		}
	}
}

func printSuggestions(out io.Writer, list []string) {
	if len(list) == 0 {
		fmt.Fprintln(out, "no suggestions yet")
		return
	}
	for i, s := range list {
		fmt.Fprintf(out, "  %d. %s\n", i+1, s)
	}
}
