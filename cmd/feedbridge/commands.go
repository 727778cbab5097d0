package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"feedbridge/internal/app"
	"feedbridge/internal/config"
	"feedbridge/internal/feedsync"
	logx "feedbridge/pkg/logx"
)

type rootOptions struct {
	ConfigPath string
	EnvFiles   []string
	JSON       bool
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "feedbridge",
		Short: "Forward new posts from a feed or page to Telegram or a webhook",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.LoadDotEnv(opts.EnvFiles...)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd.Context(), opts)
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "./config.json", "path to config (json or yaml)")
	cmd.PersistentFlags().StringSliceVar(&opts.EnvFiles, "env-file", []string{".env"}, "dotenv files loaded before the config")
	cmd.PersistentFlags().BoolVar(&opts.JSON, "json", false, "print status as JSON")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Run the scheduler, transports and HTTP API until signaled",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runDaemon(cmd.Context(), opts)
			},
		},
		&cobra.Command{
			Use:   "check",
			Short: "Run one sync cycle and exit",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runCheck(cmd.Context(), opts)
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show the persisted sync state",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runStatus(cmd.Context(), opts)
			},
		},
		&cobra.Command{
			Use:   "validate",
			Short: "Validate the config and exit",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := config.NewConfigManager(opts.ConfigPath).Load()
				if err != nil {
					return err
				}
				fmt.Printf("config ok (source %s, transport %s)\n", cfg.Source.URL, cfg.Transport())
				return nil
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Println(version)
			},
		},
	)
	return cmd
}

func runDaemon(parent context.Context, opts *rootOptions) error {
	a, err := app.New(opts.ConfigPath)
	if err != nil {
		return err
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)

	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	if err := a.Start(ctx); err != nil {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		_ = a.Stop(stopCtx, app.StopFatalError)
		stopCancel()
		return fmt.Errorf("start: %w", err)
	}

	reason := app.StopAppStop
	select {
	case sig := <-sigs:
		reason = app.StopSIGINT
		if sig == syscall.SIGTERM {
			reason = app.StopSIGTERM
		}
	case <-a.Done():
		if a.Err() != nil {
			reason = app.StopFatalError
		}
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer stopCancel()
	_ = a.Stop(stopCtx, reason)
	return a.Err()
}

func runCheck(ctx context.Context, opts *rootOptions) error {
	a, err := app.New(opts.ConfigPath)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.CheckOnce(ctx)
	if perr := printJSON(res); perr != nil {
		return perr
	}
	return err
}

func runStatus(ctx context.Context, opts *rootOptions) error {
	st, err := app.LoadState(ctx, opts.ConfigPath, logx.NewConsole("warn"))
	if err != nil {
		return err
	}
	if opts.JSON {
		return printJSON(st)
	}
	last := "never"
	if !st.LastCheckAt.IsZero() {
		last = st.LastCheckAt.Format(time.RFC3339)
	}
	fmt.Printf("last check: %s\n", last)
	fmt.Printf("items: %d (pending %d)\n", len(st.Items), st.PendingCount())
	if it, ok := st.Latest(); ok {
		mark := "pending"
		if it.Delivered {
			mark = "sent"
		}
		fmt.Printf("latest [%s] %s\n  %s\n", mark, it.ID, feedsync.Preview(it.Content, 100))
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
