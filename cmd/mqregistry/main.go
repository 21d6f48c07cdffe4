package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/colinapp/mqregistry"
	"github.com/colinapp/mqregistry/config"
	"github.com/colinapp/mqregistry/health"
	"github.com/spf13/cobra"
)

var (
	// Version information
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "mqregistry",
		Short: "Send and receive RabbitMQ messages through named connections",
		Long: `mqregistry opens named RabbitMQ connections from a YAML config file
(overridable with RABBITMQ__HOSTNAME, RABBITMQ__USERNAME, RABBITMQ__PASSWORD)
and publishes to or consumes from queues on the default exchange.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildTime),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var (
		configPath string
		connName   string
		verbose    bool
	)

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML config file")
	rootCmd.PersistentFlags().StringVarP(&connName, "connection", "n", "cli", "Connection name")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	newRegistry := func(opts ...mqregistry.Option) (*mqregistry.Registry, error) {
		cfg, err := config.LoadAndValidate(configPath)
		if err != nil {
			return nil, err
		}
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)
		return mqregistry.New(cfg, append(opts, mqregistry.WithLogger(logger))...), nil
	}

	sendCmd := &cobra.Command{
		Use:   "send <queue> <message>",
		Short: "Publish one message to a queue",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			registry, err := newRegistry()
			if err != nil {
				return err
			}
			defer dispose(registry)

			if err := registry.CreateConnection(ctx, connName); err != nil {
				return fmt.Errorf("failed to connect: %w", err)
			}
			if err := registry.SendText(ctx, connName, args[0], args[1]); err != nil {
				return fmt.Errorf("failed to send: %w", err)
			}
			return nil
		},
	}

	var (
		discard    bool
		healthAddr string
	)
	receiveCmd := &cobra.Command{
		Use:   "receive <queue>",
		Short: "Print messages from a queue until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var opts []mqregistry.Option
			if discard {
				opts = append(opts, mqregistry.WithFailurePolicy(mqregistry.FailureDiscard))
			}
			registry, err := newRegistry(opts...)
			if err != nil {
				return err
			}
			defer dispose(registry)

			if err := registry.CreateConnection(ctx, connName); err != nil {
				return fmt.Errorf("failed to connect: %w", err)
			}

			if healthAddr != "" {
				srv := serveHealth(healthAddr, registry)
				defer srv.Close()
			}

			out := cmd.OutOrStdout()
			err = registry.ReceiveMessage(ctx, connName, args[0], func(_ context.Context, message string) error {
				_, werr := fmt.Fprintln(out, message)
				return werr
			})
			if err != nil {
				return fmt.Errorf("failed to receive: %w", err)
			}

			<-ctx.Done()
			return nil
		},
	}
	receiveCmd.Flags().BoolVar(&discard, "discard-failed", false, "Drop messages that fail to print instead of requeueing")
	receiveCmd.Flags().StringVar(&healthAddr, "health-addr", "", "Serve connection health on this address (e.g. :8080)")

	rootCmd.AddCommand(sendCmd, receiveCmd)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		log.Fatal(err)
	}
}

func serveHealth(addr string, registry *mqregistry.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/health", health.NewHandler(registry))

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("health server stopped", "error", err)
		}
	}()
	return srv
}

type disposer interface {
	Dispose() error
}

func dispose(registry disposer) {
	if err := registry.Dispose(); err != nil {
		slog.Error("failed to close connections", "error", err)
	}
}
