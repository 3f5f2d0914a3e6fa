package cli

import (
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/markdave123-py/contexta-kb/internal/core/ingestion_engine"
	"github.com/markdave123-py/contexta-kb/internal/models"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [files...]",
	Short: "Extract, store and index files",
	Long: `Runs every file through extraction, chunking and embedding as one batch.
A file that fails is reported and the rest of the batch continues.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	if err := requireDocuments(); err != nil {
		return err
	}

	files := make([]models.RawFile, 0, len(args))
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		files = append(files, models.RawFile{
			Name:      filepath.Base(path),
			MimeType:  mime.TypeByExtension(filepath.Ext(path)),
			SizeBytes: int64(len(data)),
			Data:      data,
		})
	}

	var onProgress func(string, int, int)
	progressShown := false
	if !outputJSON {
		onProgress = func(name string, processed, total int) {
			cmd.Printf("\r  %s: %d/%d", name, processed, total)
			progressShown = true
			if processed == total {
				cmd.Println()
				progressShown = false
			}
		}
	}

	report, err := documentService.UploadWithProgress(cmd.Context(), ownerID, embeddingKey, files, onProgress)
	if progressShown {
		cmd.Println()
	}
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}
	if outputJSON {
		if err := printJSON(cmd, report); err != nil {
			return err
		}
	} else {
		printReport(cmd, report)
	}

	if len(report.Documents) == 0 {
		return errors.New("no file was ingested")
	}
	return nil
}

func printReport(cmd *cobra.Command, report *ingestion_engine.BatchReport) {
	indexed := make(map[string]*ingestion_engine.IndexReport, len(report.Indexing))
	for _, ir := range report.Indexing {
		indexed[ir.DocumentName] = ir
	}

	for _, doc := range report.Documents {
		if ir, ok := indexed[doc.Name]; ok {
			cmd.Printf("  %s: %s (%d/%d chunks)\n", doc.Name, doc.Status, ir.Indexed, ir.Total)
			if ir.Skip != nil {
				cmd.Printf("      %v\n", ir.Skip)
			}
			continue
		}
		cmd.Printf("  %s: %s\n", doc.Name, doc.Status)
	}
	for _, w := range report.Warnings {
		cmd.Printf("  warning %s: %v\n", w.File, w.Err)
	}
	for _, f := range report.Failures {
		cmd.Printf("  failed %s: %v\n", f.File, f.Err)
	}
}
