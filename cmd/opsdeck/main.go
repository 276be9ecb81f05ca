// Command opsdeck is an operator console for a fleet of remote hosts: it
// lists hosts, opens remote shells, views remote screens and follows host
// notifications from the agent.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/opsdeck/console/internal/api"
	"github.com/opsdeck/console/internal/app"
	"github.com/opsdeck/console/internal/channel"
	"github.com/opsdeck/console/internal/config"
	"github.com/opsdeck/console/internal/logging"
	"github.com/opsdeck/console/internal/notify"
	"github.com/opsdeck/console/internal/screen"
)

// interactive marks commands that take over the terminal, so logs must not
// go to stderr.
const interactive = "interactive"

type rootOptions struct {
	configPath string
	server     string
	token      string
	insecure   bool

	cfg    *config.Config
	logger *slog.Logger
	closer io.Closer
}

func (r *rootOptions) prepare(cmd *cobra.Command) error {
	cfg, err := config.LoadOrDefault(r.configPath)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("server") {
		cfg.Server.URL = r.server
	}
	if flags.Changed("token") {
		cfg.Server.Token = r.token
	}
	if flags.Changed("insecure") {
		cfg.Server.InsecureSkipVerify = r.insecure
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, closer, err := logging.New(cfg.Log, cmd.Annotations[interactive] != "")
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	r.cfg = cfg
	r.logger = logger
	r.closer = closer
	return nil
}

func (r *rootOptions) client() (*api.Client, error) {
	return api.NewClient(r.cfg.Server)
}

func (r *rootOptions) dialer(client *api.Client) *channel.Dialer {
	return &channel.Dialer{
		Header:             client.AuthHeader(),
		InsecureSkipVerify: r.cfg.Server.InsecureSkipVerify,
		HandshakeTimeout:   r.cfg.Server.RequestTimeout,
		WriteTimeout:       r.cfg.Channel.WriteTimeout,
		PingInterval:       r.cfg.Channel.PingInterval,
		SendQueue:          r.cfg.Channel.SendQueue,
		Logger:             r.logger,
	}
}

func (r *rootOptions) bus(client *api.Client, dialer *channel.Dialer) *notify.Bus {
	return notify.New(dialer, client.Endpoints().Notifications(), notify.Options{
		ReconnectDelay: r.cfg.Notify.ReconnectDelay,
		Logger:         r.logger,
	})
}

func (r *rootOptions) decoder(dialer *channel.Dialer, stdout, stderr io.Writer) *screen.ExecDecoder {
	return &screen.ExecDecoder{
		Command: r.cfg.Screen.DecoderCommand,
		Args:    screen.DefaultPlayerArgs(),
		Dialer:  dialer,
		Stdout:  stdout,
		Stderr:  stderr,
		Logger:  r.logger,
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:           "opsdeck",
		Short:         "Operator console for remote hosts",
		Args:          cobra.NoArgs,
		Annotations:   map[string]string{interactive: "true"},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runUI(opts)
		},
	}
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", config.DefaultPath(), "path to config file (env "+config.EnvPath+")")
	rootCmd.PersistentFlags().StringVar(&opts.server, "server", "", "agent base URL (overrides config)")
	rootCmd.PersistentFlags().StringVar(&opts.token, "token", "", "agent bearer token (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&opts.insecure, "insecure", false, "skip TLS certificate verification")
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		return opts.prepare(cmd)
	}
	rootCmd.PersistentPostRun = func(*cobra.Command, []string) {
		if opts.closer != nil {
			opts.closer.Close()
		}
	}

	rootCmd.AddCommand(newHostsCmd(opts))
	rootCmd.AddCommand(newDisplaysCmd(opts))
	rootCmd.AddCommand(newTermCmd(opts))
	rootCmd.AddCommand(newScreenCmd(opts))
	rootCmd.AddCommand(newSnapshotCmd(opts))
	rootCmd.AddCommand(newWatchCmd(opts))
	return rootCmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runUI(opts *rootOptions) error {
	client, err := opts.client()
	if err != nil {
		return err
	}
	dialer := opts.dialer(client)
	deps := app.Deps{
		Config: opts.cfg,
		Client: client,
		Dialer: dialer,
		Bus:    opts.bus(client, dialer),
		Logger: opts.logger,
	}
	if opts.cfg.Screen.DecoderCommand != "" {
		deps.Decoder = opts.decoder(dialer, nil, nil)
	}

	p := tea.NewProgram(app.New(deps), tea.WithAltScreen())
	_, err = p.Run()
	return err
}
