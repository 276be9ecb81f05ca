package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/opsdeck/console/internal/notify"
)

func newWatchCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print host notifications as they arrive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := root.client()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			bus := root.bus(client, root.dialer(client))
			bus.Subscribe(func(ev notify.Event) {
				fmt.Fprintf(out, "%s\t%-12s\t%s\n", time.Now().Format(time.RFC3339), ev.Kind, ev.HostAddress)
			})
			bus.Start()
			defer bus.Close()

			<-cmd.Context().Done()
			root.logger.Info("watch stopped", "reconnects", bus.Reconnects(), "dropped", bus.Dropped())
			return nil
		},
	}
}
