// Command vai-friend runs the voice companion and talks to a running
// instance.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vango-go/vai-friend/internal/dotenv"
	"github.com/vango-go/vai-friend/pkg/gateway/handlers"
	"github.com/vango-go/vai-friend/pkg/store"
)

const defaultServerURL = "http://localhost:8000"

// historyStore is the read side of the Postgres history.
type historyStore interface {
	handlers.History
	Close()
}

// stateReader reads the Redis state mirror.
type stateReader interface {
	store.RedisReader
	Close() error
}

type cliDeps struct {
	serve       serveDeps
	httpClient  *http.Client
	openHistory func(ctx context.Context, dsn string, logger *slog.Logger) (historyStore, error)
	openState   func(url string) (stateReader, error)
}

func defaultCLIDeps() cliDeps {
	return cliDeps{
		serve:      defaultServeDeps(),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		openHistory: func(ctx context.Context, dsn string, logger *slog.Logger) (historyStore, error) {
			pg, err := store.Open(ctx, dsn, logger)
			if err != nil {
				return nil, err
			}
			return pg, nil
		},
		openState: func(url string) (stateReader, error) {
			client, err := store.NewRedisClient(url)
			if err != nil {
				return nil, err
			}
			return client, nil
		},
	}
}

type rootFlags struct {
	logLevel  string
	logFormat string
}

func (f *rootFlags) logger(w io.Writer) (*slog.Logger, error) {
	return newLogger(w, f.logFormat, f.logLevel)
}

func newLogger(w io.Writer, format, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q (want text or json)", format)
	}
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func newRootCmd(deps cliDeps) *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:           "vai-friend",
		Short:         "Voice companion: wake word, speech in, Gemini reply, speech out",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", envOr("VAI_FRIEND_LOG_LEVEL", "info"), "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flags.logFormat, "log-format", envOr("VAI_FRIEND_LOG_FORMAT", "text"), "log format (text or json)")

	root.AddCommand(
		newServeCmd(deps, flags),
		newStatusCmd(deps),
		newStartCmd(deps),
		newHistoryCmd(deps, flags),
	)
	return root
}

func runMain(ctx context.Context, args []string, stdout, stderr io.Writer, deps cliDeps) int {
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}

	if _, err := dotenv.LoadFile(".env"); err != nil {
		fmt.Fprintf(stderr, "vai-friend: %v\n", err)
		return 1
	}

	root := newRootCmd(deps)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "vai-friend: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(runMain(context.Background(), os.Args[1:], os.Stdout, os.Stderr, defaultCLIDeps()))
}
