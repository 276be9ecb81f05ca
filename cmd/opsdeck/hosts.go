package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newHostsCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "hosts",
		Short: "List hosts connected to the agent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := root.client()
			if err != nil {
				return err
			}
			hosts, err := client.ListHosts(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ADDRESS\tNAME\tPLATFORM\tOS\tARCH\tVERSION\tCONNECTED")
			for _, h := range hosts {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					h.Addr, h.Name(), h.TargetPlatform, h.SystemInfo.LongOSVersion,
					h.SystemInfo.CPUArch, h.Version, h.ConnectedTime)
			}
			return tw.Flush()
		},
	}
}

func newDisplaysCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "displays <addr>",
		Short: "List the capturable displays of a host",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := root.client()
			if err != nil {
				return err
			}
			displays, err := client.ListDisplays(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "INDEX\tNAME\tSIZE\tONLINE\tPRIMARY")
			for i, d := range displays {
				fmt.Fprintf(tw, "%d\t%s\t%dx%d\t%t\t%t\n", i, d.Name, d.Width, d.Height, d.IsOnline, d.IsPrimary)
			}
			return tw.Flush()
		},
	}
}
