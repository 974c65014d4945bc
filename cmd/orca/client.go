package main

import (
	"fmt"
	"os"

	sdk "github.com/orca-mail/orca/sdk"
)

var (
	apiURL   string
	apiToken string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", "", "API base URL (or ORCA_API_URL)")
	rootCmd.PersistentFlags().StringVar(&apiToken, "token", "", "API token (or ORCA_API_TOKEN)")
}

// newClient builds an SDK client from flags, falling back to the
// environment
func newClient() (*sdk.Client, error) {
	url := apiURL
	if url == "" {
		url = os.Getenv("ORCA_API_URL")
	}
	if url == "" {
		url = "http://localhost:8080"
	}

	token := apiToken
	if token == "" {
		token = os.Getenv("ORCA_API_TOKEN")
	}
	if token == "" {
		return nil, fmt.Errorf("API token is required (use --token or ORCA_API_TOKEN)")
	}

	return sdk.New(url, sdk.Session{Token: token}), nil
}
