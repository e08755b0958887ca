package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/assessrec/assessrec/internal/catalog"
	"github.com/assessrec/assessrec/internal/engine"
	"github.com/assessrec/assessrec/internal/logger"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const PromptBack = "back"

var recommendCmd = &cobra.Command{
	Use:   "recommend [job description]",
	Short: "Recommend skill assessments for a job description",
	Long: "Recommend prints the assessments from the catalog that best match a " +
		"job description. The description is taken from the argument, or from " +
		"stdin when no argument is given.",
	Run: func(cmd *cobra.Command, args []string) {
		recommend(cmd, args)
	},
}

func init() {
	rootCmd.AddCommand(recommendCmd)

	recommendCmd.Flags().IntP("max-results", "n", 0, "maximum number of recommendations (capped at 10)")
	recommendCmd.Flags().BoolP("interactive", "i", false, "pick a recommendation interactively and print its details")
	recommendCmd.Flags().StringSlice("test-type", nil, "only include assessments of the given test types")
	recommendCmd.Flags().Bool("remote-only", false, "only include assessments supporting remote testing")
	recommendCmd.Flags().Bool("adaptive-only", false, "only include adaptive assessments")
	recommendCmd.Flags().Int("max-duration", 0, "only include assessments up to this duration in minutes")
}

// recommend is the one-shot cli command.
func recommend(cmd *cobra.Command, args []string) {
	ctx := context.Background()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(config, "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	text, err := readDescription(args)
	if err != nil {
		logger.Fatal("reading the job description", zap.Error(err))
	}

	eng, err := buildEngine(ctx, config, logger)
	if err != nil {
		logger.Fatal("building the engine", zap.Error(err))
	}

	maxResults, _ := cmd.Flags().GetInt("max-results")

	resp, err := eng.Recommend(ctx, engine.Request{
		Text:       text,
		MaxResults: maxResults,
		Filter:     filterFromFlags(cmd),
	})
	if err != nil {
		logger.Fatal("recommending", zap.Error(err))
	}

	if resp.ColdStart {
		logger.Info("catalog embedded on first use", zap.Int("records", eng.CatalogSize()))
	}

	if len(resp.Recommendations) == 0 {
		logger.Info("exiting", zap.String("reason", "no assessments matched"))
		return
	}

	printTable(resp)

	if interactive, _ := cmd.Flags().GetBool("interactive"); interactive {
		if err := inspect(resp.Recommendations); err != nil {
			logger.Fatal("exiting", zap.Error(err))
		}
	}
}

func readDescription(args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}

	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}

	return string(data), nil
}

func filterFromFlags(cmd *cobra.Command) *catalog.Filter {
	testTypes, _ := cmd.Flags().GetStringSlice("test-type")
	remoteOnly, _ := cmd.Flags().GetBool("remote-only")
	adaptiveOnly, _ := cmd.Flags().GetBool("adaptive-only")
	maxDuration, _ := cmd.Flags().GetInt("max-duration")

	if len(testTypes) == 0 && !remoteOnly && !adaptiveOnly && maxDuration == 0 {
		return nil
	}

	return &catalog.Filter{
		TestTypes:          testTypes,
		RemoteOnly:         remoteOnly,
		AdaptiveOnly:       adaptiveOnly,
		MaxDurationMinutes: maxDuration,
	}
}

func printTable(resp *engine.Response) {
	for i, rec := range resp.Recommendations {
		line := fmt.Sprintf("%2d. %-40s %3d min  %-16s similarity=%.4f",
			i+1, rec.Record.Name, rec.Record.DurationMinutes, rec.Record.TestType, rec.SimilarityScore,
		)
		if rec.RerankConfidence != nil {
			line += fmt.Sprintf("  confidence=%.2f", *rec.RerankConfidence)
		}
		fmt.Println(line)
	}
}

// inspect loops a selection prompt over the recommendations until the user
// picks back or aborts the prompt.
func inspect(recs []engine.RankedRecommendation) error {
	items := make([]string, 0, len(recs)+1)
	for _, rec := range recs {
		items = append(items, fmt.Sprintf("%s %s", rec.Record.ID, rec.Record.Name))
	}
	items = append(items, PromptBack)

	for {
		prompt := promptui.Select{
			Label: "Choose an assessment and press ENTER",
			Items: items,
		}

		idx, selected, err := prompt.Run()
		if err != nil {
			if errors.Is(err, promptui.ErrInterrupt) {
				return nil
			}
			return err
		}

		if selected == PromptBack {
			return nil
		}

		printDetail(recs[idx].Record)
	}
}

func printDetail(rec *catalog.AssessmentRecord) {
	fmt.Printf("%s (%s)\n", rec.Name, rec.ID)
	fmt.Printf("  test type: %s\n", rec.TestType)
	fmt.Printf("  duration:  %d min\n", rec.DurationMinutes)
	fmt.Printf("  adaptive:  %t\n", rec.Adaptive)
	fmt.Printf("  remote:    %t\n", rec.RemoteTesting)
	if rec.URL != "" {
		fmt.Printf("  url:       %s\n", rec.URL)
	}
	fmt.Printf("  %s\n", rec.Description)
}
