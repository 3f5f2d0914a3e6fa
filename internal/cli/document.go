package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var docsCmd = &cobra.Command{
	Use:   "docs",
	Short: "List stored documents",
	Args:  cobra.NoArgs,
	RunE:  runDocs,
}

var deleteCmd = &cobra.Command{
	Use:   "delete [name]",
	Short: "Delete a document with its segments and stored original",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

var reindexCmd = &cobra.Command{
	Use:   "reindex [name]",
	Short: "Rebuild a document's segments from its stored text",
	Args:  cobra.ExactArgs(1),
	RunE:  runReindex,
}

func init() {
	rootCmd.AddCommand(docsCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(reindexCmd)
}

func runDocs(cmd *cobra.Command, _ []string) error {
	if err := requireDocuments(); err != nil {
		return err
	}

	docs, err := documentService.List(cmd.Context(), ownerID)
	if err != nil {
		return err
	}
	if outputJSON {
		return printJSON(cmd, docs)
	}
	if len(docs) == 0 {
		cmd.Println("No documents found.")
		return nil
	}

	for _, d := range docs {
		cmd.Printf("  %-40s %-9s %10s  %s\n", d.Name, d.Status, humanSize(d.SizeBytes), d.CreatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	if err := requireDocuments(); err != nil {
		return err
	}
	if err := documentService.Delete(cmd.Context(), ownerID, args[0]); err != nil {
		return fmt.Errorf("delete failed: %w", err)
	}
	cmd.Printf("Deleted %s\n", args[0])
	return nil
}

func runReindex(cmd *cobra.Command, args []string) error {
	if err := requireDocuments(); err != nil {
		return err
	}
	report, err := documentService.Reindex(cmd.Context(), ownerID, args[0], embeddingKey)
	if err != nil {
		return fmt.Errorf("reindex failed: %w", err)
	}
	if report == nil {
		cmd.Printf("Queued %s\n", args[0])
		return nil
	}
	cmd.Printf("  %s: %s (%d/%d chunks)\n", args[0], report.Status.DocumentStatus(), report.Indexed, report.Total)
	return nil
}
