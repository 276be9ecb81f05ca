package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/opsdeck/console/internal/api"
	"github.com/opsdeck/console/internal/terminal"
)

func newTermCmd(root *rootOptions) *cobra.Command {
	var shell string
	cmd := &cobra.Command{
		Use:         "term <addr>",
		Short:       "Open a remote shell on a host (ctrl+] detaches)",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{interactive: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := root.client()
			if err != nil {
				return err
			}
			addr := args[0]
			if shell == "" {
				shell = root.cfg.Terminal.Shell
			}
			if shell == "" {
				host, err := client.GetHost(cmd.Context(), addr)
				if errors.Is(err, api.ErrNotFound) {
					return fmt.Errorf("host %s is not connected", addr)
				}
				if err != nil {
					return err
				}
				shell = terminal.DefaultShells(host.TargetPlatform)[0]
			}

			return terminal.Attach(cmd.Context(), terminal.Options{
				Host:   addr,
				Shell:  shell,
				URL:    client.Endpoints().Terminal(addr, shell),
				Dialer: root.dialer(client),
				Logger: root.logger,
			}, os.Stdin, os.Stdout)
		},
	}
	cmd.Flags().StringVar(&shell, "shell", "", "shell to launch (default: config, else the host platform's)")
	return cmd
}
