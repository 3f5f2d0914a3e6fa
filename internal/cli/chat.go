package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/markdave123-py/contexta-kb/internal/services"
)

var contextCmd = &cobra.Command{
	Use:   "context [question]",
	Short: "Print the assembled context for a question",
	Long: `Retrieves passages semantically, falling back to keyword matching, and
prints them under the instruction policy exactly as a generator would see them.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runContext,
}

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a question from the stored documents",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	rootCmd.AddCommand(contextCmd)
	rootCmd.AddCommand(askCmd)
}

func chatRequest(args []string) services.ChatRequest {
	return services.ChatRequest{
		OwnerID:      ownerID,
		Question:     strings.Join(args, " "),
		EmbeddingKey: embeddingKey,
	}
}

func runContext(cmd *cobra.Command, args []string) error {
	if err := requireChat(); err != nil {
		return err
	}
	res, err := chatService.BuildContext(cmd.Context(), chatRequest(args))
	if err != nil {
		return fmt.Errorf("context failed: %w", err)
	}
	if outputJSON {
		return printJSON(cmd, res)
	}

	cmd.Printf("# strategy: %s\n", strategyLabel(res.Strategy, res.Fallbacks))
	cmd.Println(res.Context)
	return nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	if err := requireChat(); err != nil {
		return err
	}
	ans, err := chatService.Ask(cmd.Context(), chatRequest(args))
	if err != nil {
		return fmt.Errorf("ask failed: %w", err)
	}
	if outputJSON {
		return printJSON(cmd, ans)
	}

	cmd.Println(ans.Answer)
	cmd.Println()
	cmd.Printf("Sources (%s):\n", strategyLabel(ans.Strategy, ans.Fallbacks))
	seen := map[string]bool{}
	for _, p := range ans.Passages {
		if p.DocumentName == "" || seen[p.DocumentName] {
			continue
		}
		seen[p.DocumentName] = true
		cmd.Printf("  - %s\n", p.DocumentName)
	}
	return nil
}

func strategyLabel(strategy string, fallbacks []string) string {
	if strategy == "" {
		strategy = "none"
	}
	if len(fallbacks) > 0 {
		return fmt.Sprintf("%s, after %s", strategy, strings.Join(fallbacks, ", "))
	}
	return strategy
}
