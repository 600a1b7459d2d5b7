package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Dicklesworthstone/quorum/internal/consensus"
	"github.com/Dicklesworthstone/quorum/internal/output"
)

func newAskCmd() *cobra.Command {
	var (
		budget     int
		models     []string
		judgeModel string
		schemaSpec string
	)

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask the ensemble a question and get a judged verdict",
		Long: `Send a question to every configured model in parallel, then let the
judge model weigh the answers and produce one structured verdict.

Examples:
  quorum ask "What is the tallest mountain in Europe?"
  quorum ask --budget 5 "Is P equal to NP?"
  quorum ask --model openai:gpt-5 --model anthropic:claude-opus-4-5 "..."
  quorum ask --schema "winner:string,margin:number,decisive:bool" "..."
  quorum ask --json "..." | jq .verdict.answer`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if len(models) > 0 {
				cfg.Models = models
			}
			if judgeModel != "" {
				cfg.JudgeModel = judgeModel
			}
			if budget > 0 {
				cfg.CallBudget = budget
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			var opts sessionOptions
			if schemaSpec != "" {
				schema, err := consensus.ParseSchemaSpec(schemaSpec)
				if err != nil {
					return fmt.Errorf("--schema: %w", err)
				}
				opts.schema = schema
			}
			logger := setupLogger(cfg)

			session, err := newSessionBuilder(cfg, logger).build(opts)
			if err != nil {
				return err
			}

			result, err := session.Invoke(cmd.Context(), query)
			if err != nil {
				if IsJSONOutput() {
					return output.PrintJSON(output.NewError(err.Error()))
				}
				return err
			}

			if IsJSONOutput() {
				return output.PrintJSON(output.NewConsensusResponse(result))
			}
			output.RenderResult(os.Stdout, result)
			if !result.ConsensusReached() {
				if isInteractive() && result.RunsUsed >= result.RunLimit {
					fmt.Fprintln(os.Stderr, "Hint: the run budget was exhausted; retry with a larger --budget.")
				}
				// Non-zero exit lets scripts treat a degraded verdict as a failure.
				return fmt.Errorf("no consensus (state: %s)", result.State)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&budget, "budget", 0, "max ensemble runs for this session (default from config)")
	cmd.Flags().StringArrayVar(&models, "model", nil, "override ensemble members (repeatable, provider:model)")
	cmd.Flags().StringVar(&judgeModel, "judge", "", "override the judge model (provider:model)")
	cmd.Flags().StringVar(&schemaSpec, "schema", "", "verdict fields as name:kind pairs (kinds: bool, string, number, any)")

	return cmd
}
