// Package cli implements kbctl, the command line front end for the
// knowledge base.
package cli

import (
	"context"
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/markdave123-py/contexta-kb/internal/services"
)

var (
	documentService *services.DocumentService
	chatService     *services.ChatService

	ownerID      string
	embeddingKey string
	jwtSecret    string
	outputJSON   bool
)

var rootCmd = &cobra.Command{
	Use:           "kbctl",
	Short:         "Manage and query the knowledge base",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&ownerID, "owner", "local", "owner id the command acts for")
	rootCmd.PersistentFlags().StringVar(&embeddingKey, "embedding-key", "", "embedding API key (defaults to the configured key)")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output as JSON")
}

// SetServices wires the services the commands run against.
func SetServices(docs *services.DocumentService, chat *services.ChatService) {
	documentService = docs
	chatService = chat
}

// SetDefaults supplies configured fallbacks for flags left empty.
func SetDefaults(defaultEmbeddingKey, secret string) {
	if embeddingKey == "" {
		embeddingKey = defaultEmbeddingKey
	}
	jwtSecret = secret
}

// Execute runs kbctl with results on stdout.
func Execute(ctx context.Context) error {
	rootCmd.SetOut(os.Stdout)
	return rootCmd.ExecuteContext(ctx)
}

func requireDocuments() error {
	if documentService == nil {
		return errors.New("document service not configured")
	}
	return nil
}

func requireChat() error {
	if chatService == nil {
		return errors.New("chat service not configured")
	}
	return nil
}
