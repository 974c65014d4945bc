package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	sdk "github.com/orca-mail/orca/sdk"
)

var (
	sendFrom         string
	sendFromName     string
	sendPassword     string
	sendTo           []string
	sendSubject      string
	sendTemplate     string
	sendTemplateFile string
	sendServer       string
	sendBackground   bool
	sendPriority     int
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send an email to one or more recipients",
	Long: `Send an email through one of your configured sending servers.

With --background the dispatch is queued and paced by the service;
the command prints a job id to poll with "orca jobs get".`,
	RunE: runSend,
}

func init() {
	sendCmd.Flags().StringVar(&sendFrom, "from", "", "Sender email address")
	sendCmd.Flags().StringVar(&sendFromName, "from-name", "", "Sender display name")
	sendCmd.Flags().StringVar(&sendPassword, "password", "", "Sender app password (or ORCA_APP_PASSWORD)")
	sendCmd.Flags().StringSliceVar(&sendTo, "to", nil, "Recipient address (repeatable)")
	sendCmd.Flags().StringVar(&sendSubject, "subject", "", "Email subject")
	sendCmd.Flags().StringVar(&sendTemplate, "body", "", "Email body")
	sendCmd.Flags().StringVar(&sendTemplateFile, "body-file", "", "Read email body from file")
	sendCmd.Flags().StringVar(&sendServer, "server", "", "Sending server id (default: auto-select)")
	sendCmd.Flags().BoolVar(&sendBackground, "background", false, "Queue as a background job")
	sendCmd.Flags().IntVar(&sendPriority, "priority", 0, "Background priority: 1 high, 2 normal, 3 low")

	rootCmd.AddCommand(sendCmd)
}

func runSend(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	body := sendTemplate
	if sendTemplateFile != "" {
		raw, err := os.ReadFile(sendTemplateFile)
		if err != nil {
			return fmt.Errorf("failed to read body file: %w", err)
		}
		body = string(raw)
	}

	password := sendPassword
	if password == "" {
		password = os.Getenv("ORCA_APP_PASSWORD")
	}

	req := sdk.DispatchRequest{
		SenderEmail: sendFrom,
		SenderName:  sendFromName,
		AppPassword: password,
		Recipients:  sendTo,
		Subject:     sendSubject,
		Template:    body,
		ServerID:    sendServer,
	}

	ctx := cmd.Context()

	if sendBackground {
		receipt, err := client.SendBackground(ctx, req, sdk.Priority(sendPriority))
		if err != nil {
			return err
		}
		fmt.Printf("Job queued: %s\n", receipt.JobID)
		fmt.Printf("  Status: %s\n", receipt.Status)
		fmt.Printf("  Recipients: %d\n", receipt.TotalEmails)
		if receipt.EstimatedCompletionTime != nil {
			fmt.Printf("  Estimated completion: %s\n", receipt.EstimatedCompletionTime.Format("15:04:05"))
		}
		if receipt.Server != nil {
			fmt.Printf("  Server: %s (%s)\n", receipt.Server.ServerName, receipt.Server.ServerID)
		}
		return nil
	}

	result, err := client.SendInstant(ctx, req)
	if err != nil {
		return err
	}

	fmt.Printf("Sent to %d recipients\n", result.SentCount)
	if result.Server != nil {
		fmt.Printf("  Server: %s (%s)\n", result.Server.ServerName, result.Server.ServerID)
	}
	if result.Demo {
		fmt.Println("  Note: backend unreachable, result is a local simulation")
	}
	return nil
}
