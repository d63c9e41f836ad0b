// Command curator ingests, categorizes and reconciles PMC publications
// against a local curation store.
package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/devicepubs/curator/internal/categorize"
	"github.com/devicepubs/curator/internal/config"
	"github.com/devicepubs/curator/internal/logging"
	"github.com/devicepubs/curator/internal/ncbi"
	"github.com/devicepubs/curator/internal/output"
	"github.com/devicepubs/curator/internal/pmc"
	"github.com/devicepubs/curator/internal/record"
	"github.com/devicepubs/curator/internal/runstate"
	"github.com/devicepubs/curator/internal/service"
	"github.com/devicepubs/curator/internal/store"
)

var (
	flagJSON         bool
	flagHuman        bool
	flagFull         bool
	flagCSV          string
	flagRIS          string
	flagMode         string
	flagMaxPerTerm   int
	flagFilter       string
	flagBodyIDs      []string
	flagMetadataOnly []string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "curator",
	Short: "PMC publication curation pipeline",
	Long:  `Synchronizes publications from PubMed Central into a local curation store, suggests categories, and reconciles the store against fresh source searches.`,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "Output as structured JSON")
	rootCmd.PersistentFlags().BoolVarP(&flagHuman, "human", "H", false, "Rich colorful terminal output")
	rootCmd.PersistentFlags().BoolVar(&flagFull, "full", false, "Show full abstract (with --human)")
	rootCmd.PersistentFlags().StringVar(&flagCSV, "csv", "", "Export results to CSV file")
	rootCmd.PersistentFlags().StringVar(&flagRIS, "ris", "", "Export results to RIS file")

	syncCmd.Flags().StringVar(&flagMode, "mode", "incremental", "Sync mode: full or incremental")
	syncCmd.Flags().IntVar(&flagMaxPerTerm, "max-per-term", 0, "Cap on results per search term")
	categorizeCmd.Flags().StringVar(&flagFilter, "filter", "uncategorized", "Which records to classify: all, uncategorized, pending, approved")
	listCmd.Flags().StringVar(&flagFilter, "filter", "all", "Which records to list: all, uncategorized, pending, approved")
	syncMissingCmd.Flags().StringSliceVar(&flagBodyIDs, "body", nil, "Missing IDs with body evidence to import")
	syncMissingCmd.Flags().StringSliceVar(&flagMetadataOnly, "metadata-only", nil, "Missing IDs with metadata-only evidence to import (flagged for review)")

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(categorizeCmd)
	rootCmd.AddCommand(compareCmd)
	rootCmd.AddCommand(syncMissingCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(approveCmd)
	rootCmd.AddCommand(rejectCmd)
	rootCmd.AddCommand(statsCmd)
}

func outputCfg() output.OutputConfig {
	return output.OutputConfig{
		JSON:    flagJSON,
		Human:   flagHuman,
		Full:    flagFull,
		CSVFile: flagCSV,
		RISFile: flagRIS,
	}
}

// newService wires the full application: config, store, source client and
// classifier. The returned cleanup closes the store.
func newService() (*service.Service, func(), error) {
	_ = godotenv.Load()
	cfg := config.Load()
	log := logging.New(cfg.LogLevel)

	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening store: %w", err)
	}

	var opts []ncbi.Option
	if cfg.NCBI.APIKey != "" {
		opts = append(opts, ncbi.WithAPIKey(cfg.NCBI.APIKey))
	}
	if cfg.NCBI.Tool != "" {
		opts = append(opts, ncbi.WithTool(cfg.NCBI.Tool))
	}
	if cfg.NCBI.Email != "" {
		opts = append(opts, ncbi.WithEmail(cfg.NCBI.Email))
	}
	source := pmc.NewClient(opts...)
	source.BatchDelay = cfg.Sync.BatchDelay()

	keyword := categorize.NewKeywordClassifier(nil)
	var classifier categorize.Classifier = keyword
	if cfg.Classifier.URL != "" {
		classifier = &categorize.Merged{
			Remote:  categorize.NewRemoteClassifier(cfg.Classifier.URL, cfg.Classifier.APIKey),
			Keyword: keyword,
		}
	}

	svc := service.New(cfg, st, source, classifier, log)
	return svc, func() { st.Close() }, nil
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Synchronize publications from PMC",
	Long:  `Run a synchronization against PubMed Central. Full mode sweeps five-year windows from the configured floor year; incremental mode covers the span since the newest stored publication.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, cleanup, err := newService()
		if err != nil {
			return err
		}
		defer cleanup()

		req := service.StartSyncRequest{MaxPerTerm: flagMaxPerTerm}
		switch flagMode {
		case "full":
			err = svc.RunFullSync(cmd.Context(), req)
		case "incremental":
			err = svc.RunIncrementalSync(cmd.Context(), req)
		default:
			return fmt.Errorf("unknown sync mode %q (want full or incremental)", flagMode)
		}
		if err != nil {
			return fmt.Errorf("sync failed: %w", err)
		}

		return output.FormatSnapshot(os.Stdout, svc.SyncStatus(), outputCfg())
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of the last or current sync run",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, cleanup, err := newService()
		if err != nil {
			return err
		}
		defer cleanup()

		return output.FormatSnapshot(os.Stdout, svc.SyncStatus(), outputCfg())
	},
}

var categorizeCmd = &cobra.Command{
	Use:   "categorize",
	Short: "Suggest categories for stored publications",
	Long:  `Run the classifier over stored publications and persist confidence-scored category suggestions. High-confidence suggestions are auto-approved; the rest await review.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, cleanup, err := newService()
		if err != nil {
			return err
		}
		defer cleanup()

		if _, err := svc.StartCategorization(cmd.Context(), categorize.Filter(flagFilter)); err != nil {
			return fmt.Errorf("categorization failed to start: %w", err)
		}

		// The run is asynchronous; poll until it settles.
		for {
			snap := svc.CategorizationStatus()
			if snap.Status != runstate.StatusRunning {
				return output.FormatSnapshot(os.Stdout, snap, outputCfg())
			}
			time.Sleep(200 * time.Millisecond)
		}
	},
}

var compareCmd = &cobra.Command{
	Use:   "compare <topic>",
	Short: "Diff the store against fresh source searches",
	Long:  `Run a body-text-restricted search and an all-fields search for the topic, then report which results are already stored, which are missing with body evidence, and which are missing with metadata-only evidence.`,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, cleanup, err := newService()
		if err != nil {
			return err
		}
		defer cleanup()

		res, err := svc.Compare(cmd.Context(), strings.Join(args, " "))
		if err != nil {
			return fmt.Errorf("comparison failed: %w", err)
		}
		return output.FormatComparison(os.Stdout, res, outputCfg())
	},
}

var syncMissingCmd = &cobra.Command{
	Use:   "sync-missing",
	Short: "Import IDs a comparison reported missing",
	Long:  `Fetch and import the given missing IDs. IDs passed with --metadata-only enter the store pending review regardless of completeness.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(flagBodyIDs) == 0 && len(flagMetadataOnly) == 0 {
			return fmt.Errorf("nothing to import: pass --body and/or --metadata-only IDs")
		}

		svc, cleanup, err := newService()
		if err != nil {
			return err
		}
		defer cleanup()

		res, err := svc.SyncMissing(cmd.Context(), flagBodyIDs, flagMetadataOnly)
		if err != nil {
			return fmt.Errorf("import failed: %w", err)
		}
		return output.FormatImportResult(os.Stdout, res, outputCfg())
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored publications",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, cleanup, err := newService()
		if err != nil {
			return err
		}
		defer cleanup()

		pubs, err := svc.ListPublications(cmd.Context(), categorize.Filter(flagFilter))
		if err != nil {
			return fmt.Errorf("listing publications failed: %w", err)
		}
		return output.FormatPublications(os.Stdout, pubs, outputCfg())
	},
}

var showCmd = &cobra.Command{
	Use:   "show <external-id>",
	Short: "Show one stored publication",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, cleanup, err := newService()
		if err != nil {
			return err
		}
		defer cleanup()

		pub, err := svc.GetPublication(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return output.FormatPublications(os.Stdout, []record.Stored{*pub}, outputCfg())
	},
}

var approveCmd = &cobra.Command{
	Use:   "approve <external-id>",
	Short: "Approve a publication",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, cleanup, err := newService()
		if err != nil {
			return err
		}
		defer cleanup()

		if err := svc.Approve(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Approved %s\n", args[0])
		return nil
	},
}

var rejectCmd = &cobra.Command{
	Use:   "reject <external-id>",
	Short: "Reject a publication",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, cleanup, err := newService()
		if err != nil {
			return err
		}
		defer cleanup()

		if err := svc.Reject(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Rejected %s\n", args[0])
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show per-status publication counts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, cleanup, err := newService()
		if err != nil {
			return err
		}
		defer cleanup()

		counts, err := svc.Stats(cmd.Context())
		if err != nil {
			return err
		}
		return output.FormatStats(os.Stdout, counts, outputCfg())
	},
}
