package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/vango-go/vai-friend/pkg/gateway/apierror"
	"github.com/vango-go/vai-friend/pkg/store"
)

func newServeCmd(deps cliDeps, flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the voice loop and the HTTP control API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := flags.logger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), logger, deps.serve)
		},
	}
}

func newStatusCmd(deps cliDeps) *cobra.Command {
	var (
		server    string
		fromRedis bool
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the conversation state of a running instance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if fromRedis {
				state, err := readMirroredState(cmd.Context(), deps)
				if err != nil {
					return err
				}
				cmd.Println(state)
				return nil
			}

			var resp struct {
				State string `json:"state"`
			}
			if err := doJSON(cmd.Context(), deps.httpClient, http.MethodGet, server, "/status", &resp); err != nil {
				return err
			}
			cmd.Println(resp.State)
			return nil
		},
	}
	cmd.Flags().StringVar(&server, "server", envOr("VAI_FRIEND_URL", defaultServerURL), "base URL of a running serve")
	cmd.Flags().BoolVar(&fromRedis, "redis", false, "read the state mirrored in REDIS_URL instead of asking the server")
	return cmd
}

func readMirroredState(ctx context.Context, deps cliDeps) (string, error) {
	url := strings.TrimSpace(os.Getenv("REDIS_URL"))
	if url == "" {
		return "", errors.New("REDIS_URL is required with --redis")
	}
	reader, err := deps.openState(url)
	if err != nil {
		return "", err
	}
	defer reader.Close()

	state, err := store.ReadState(ctx, reader, "")
	if errors.Is(err, store.ErrNotFound) {
		return "", errors.New("no state has been mirrored yet")
	}
	return state, err
}

func newStartCmd(deps cliDeps) *cobra.Command {
	var server string
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a session as if the wake phrase was heard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				Status string `json:"status"`
			}
			if err := doJSON(cmd.Context(), deps.httpClient, http.MethodPost, server, "/start-session", &resp); err != nil {
				return err
			}
			cmd.Println(resp.Status)
			return nil
		},
	}
	cmd.Flags().StringVar(&server, "server", envOr("VAI_FRIEND_URL", defaultServerURL), "base URL of a running serve")
	return cmd
}

func newHistoryCmd(deps cliDeps, flags *rootFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history [session-id]",
		Short: "List stored sessions or print one transcript",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dsn := strings.TrimSpace(os.Getenv("DATABASE_URL"))
			if dsn == "" {
				return errors.New("DATABASE_URL is required")
			}
			if limit <= 0 {
				return errors.New("--limit must be > 0")
			}
			logger, err := flags.logger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			h, err := deps.openHistory(cmd.Context(), dsn, logger)
			if err != nil {
				return err
			}
			defer h.Close()

			if len(args) == 0 {
				return printSessions(cmd, h, limit)
			}
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid session id %q", args[0])
			}
			return printTranscript(cmd, h, id)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of sessions to list")
	return cmd
}

func printSessions(cmd *cobra.Command, h historyStore, limit int) error {
	sessions, err := h.Sessions(cmd.Context(), limit)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		cmd.Println("no sessions")
		return nil
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tENDED\tMESSAGES")
	for _, s := range sessions {
		ended := "-"
		if s.EndedAt != nil {
			ended = s.EndedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", s.ID, s.StartedAt.Format(time.RFC3339), ended, s.Messages)
	}
	return tw.Flush()
}

func printTranscript(cmd *cobra.Command, h historyStore, id uuid.UUID) error {
	session, err := h.Session(cmd.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("session %s not found", id)
	}
	if err != nil {
		return err
	}
	messages, err := h.SessionHistory(cmd.Context(), id)
	if err != nil {
		return err
	}

	cmd.Printf("session %s started %s\n", session.ID, session.StartedAt.Format(time.RFC3339))
	for _, m := range messages {
		cmd.Printf("[%s] %s: %s\n", m.Timestamp.Format("15:04:05"), m.Role, m.Content)
	}
	return nil
}

// doJSON calls a running serve and decodes its JSON reply. Error replies
// are surfaced with the server's message.
func doJSON(ctx context.Context, client *http.Client, method, server, path string, out any) error {
	if client == nil {
		client = http.DefaultClient
	}
	url := strings.TrimRight(server, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var env apierror.Envelope
		if err := json.NewDecoder(resp.Body).Decode(&env); err == nil && env.Error != nil {
			return fmt.Errorf("%s %s: %s (status %d)", method, path, env.Error.Message, resp.StatusCode)
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
