// cloaked is a small CLI for the Cloaked API: upload a photo, watch the
// protection job, fetch the proof.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"cloaked/pkg/client"
)

var (
	serverURL string
	token     string
)

func apiClient() *client.Client {
	return client.New(serverURL, token)
}

func main() {
	root := &cobra.Command{
		Use:           "cloaked",
		Short:         "Protect photos against AI face swapping",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&serverURL, "server", envOr("CLOAKED_SERVER", "http://localhost:8080"), "API base URL")
	root.PersistentFlags().StringVar(&token, "token", os.Getenv("CLOAKED_TOKEN"), "bearer token")

	root.AddCommand(uploadCmd(), statusCmd(), listCmd(), proofCmd(), deleteCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
