package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lexhelper/counsel/config"
	"github.com/lexhelper/counsel/internal/agent/core"
	"github.com/lexhelper/counsel/internal/agent/telemetry"
)

func researchCMD() *cobra.Command {
	var cfgPath string
	var maxIterations int
	var research = &cobra.Command{
		Use:   "research [query]",
		Short: "Run one research query and print the memo",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)
			if maxIterations > 0 {
				cfg.Research.MaxIterations = maxIterations
			}
			query := strings.Join(args, " ")

			tel := telemetry.New(cfg.Telemetry, nil)
			invoker, err := core.NewOpenAIInvoker(cfg, tel)
			if err != nil {
				return err
			}
			progress := func(ev core.ProgressEvent) {
				switch ev.Phase {
				case core.PhaseSearching:
					if ev.Total > 0 && ev.Completed > 0 {
						fmt.Printf("  search %d/%d complete\n", ev.Completed, ev.Total)
					} else {
						fmt.Println("Searching...")
					}
				case core.PhasePlanning:
					fmt.Println("Planning searches...")
				case core.PhaseDrafting:
					fmt.Println("Drafting memo...")
				case core.PhaseVerifying:
					fmt.Printf("Verifying draft (iteration %d)...\n", ev.Iteration)
				case core.PhaseRevising:
					fmt.Printf("Revising draft (quality: %s)...\n", ev.Quality)
				}
			}

			mgr := core.NewManager(cfg, invoker, tel, progress)
			result, err := mgr.Run(cmd.Context(), query)
			if err != nil {
				if stage, ok := core.FailedStage(err); ok {
					return fmt.Errorf("research failed during %s: %w", stage, err)
				}
				return err
			}

			fmt.Printf("\nSummary: %s\n\n", result.Report.ShortSummary)
			fmt.Println(result.Report.MarkdownReport)
			if len(result.Report.FollowUpQuestions) > 0 {
				fmt.Println("\nFollow-up questions:")
				for _, q := range result.Report.FollowUpQuestions {
					fmt.Printf("  - %s\n", q)
				}
			}
			fmt.Printf("\nQuality: %s (score %.1f/10) after %d iteration(s) in %v\n",
				result.FinalQuality, result.Verification.QualityScore,
				result.IterationCount, result.Elapsed.Round(100*time.Millisecond))
			if result.Verification.Degraded {
				fmt.Println("Note: verification was unavailable; have the memo reviewed manually.")
			}
			return nil
		},
	}
	research.Flags().IntVar(&maxIterations, "max-iterations", 0, "revision budget (overrides config)")
	research.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return research
}
