package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var serversCmd = &cobra.Command{
	Use:   "servers",
	Short: "List your configured sending servers",
	RunE:  runServers,
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check service health",
	RunE:  runHealth,
}

func init() {
	rootCmd.AddCommand(serversCmd, healthCmd)
}

func runServers(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	list, err := client.ListServers(cmd.Context())
	if err != nil {
		return err
	}

	if len(list.Servers) == 0 {
		fmt.Println("No sending servers configured")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tURL\tACTIVE\tBUSY\tEMAILS")
	for _, s := range list.Servers {
		mark := ""
		if s.ServerID == list.DefaultServerID {
			mark = " *"
		}
		fmt.Fprintf(w, "%s%s\t%s\t%s\t%t\t%t\t%d\n",
			s.ServerID, mark, s.ServerName, s.ServerURL, s.IsActive, s.IsBusy, s.EmailCount)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if list.DefaultServerID != "" {
		fmt.Println("\n* default server")
	}
	return nil
}

func runHealth(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	h, err := client.CheckHealth(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Printf("Service: %s (uptime %s)\n", h.Message, h.Uptime)

	wh, err := client.CheckWorkerHealth(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Printf("Worker:  %s (uptime %s)\n", wh.Message, wh.Uptime)

	return nil
}
