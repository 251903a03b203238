package cli

import (
	"fmt"
	"strings"

	"github.com/panoptikon-go/panoptikon/internal/extraction"
	"github.com/panoptikon-go/panoptikon/internal/extractors"
	"github.com/panoptikon-go/panoptikon/internal/inference"
	"github.com/panoptikon-go/panoptikon/internal/rules"
	"github.com/panoptikon-go/panoptikon/internal/storage"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var extractCmd = &cobra.Command{
	Use:   "extract <group/id>",
	Short: "Run a data_extraction job for one inference id (C5)",
	Long: `Streams candidates through the rules engine (C3), the extractor
registry (C4), the inference service, and the storage writer, committing
one batch at a time.
Progress is rendered as a live bar; this is what data_extraction jobs do
when spawned by C6's worker process, run here in-process for local use.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		group, id, err := splitInferenceID(args[0])
		if err != nil {
			return err
		}

		h, err := storage.OpenWrite(cfg.ToStorePaths(), false, cfg.Store.EmbeddingDimensions)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		defer h.Close()

		client := inference.NewHTTPClient(cfg.Inference.APIURL)
		registry, err := extractors.NewRegistry(client, storage.NewReader(h.DB))
		if err != nil {
			return fmt.Errorf("failed to build extractor registry: %w", err)
		}
		if err := registry.Refresh(cmd.Context()); err != nil {
			return fmt.Errorf("failed to refresh extractor registry: %w", err)
		}

		engine := rules.NewEngine(h.DB)
		runner := extraction.NewRunner(h.DB, engine, registry, client)

		reporter := newBarReporter()
		defer reporter.Close()

		jobLog, err := runner.Run(cmd.Context(), group, id, reporter)
		if err != nil {
			return err
		}
		return printJSON(cmd, jobLog)
	},
}

func splitInferenceID(s string) (group, id string, err error) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("inference id must be \"group/id\", got %q", s)
	}
	return parts[0], parts[1], nil
}

// barReporter renders extraction.ProgressEvents on a schollz/progressbar,
// creating the bar on the first event, which carries the total candidate
// count.
type barReporter struct {
	bar *progressbar.ProgressBar
}

func newBarReporter() *barReporter {
	return &barReporter{}
}

func (r *barReporter) OnProgress(ev extraction.ProgressEvent) {
	if r.bar == nil {
		r.bar = progressbar.NewOptions(ev.Total,
			progressbar.OptionSetDescription("extracting"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetItemsToThousands(),
		)
	}
	r.bar.Describe(ev.LastItemPath)
	_ = r.bar.Set(ev.Processed)
}

func (r *barReporter) Close() {
	if r.bar != nil {
		_ = r.bar.Finish()
	}
}

func init() {
	rootCmd.AddCommand(extractCmd)
}
