package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/dossier-cli/internal/config"
	"github.com/sells-group/dossier-cli/internal/model"
	"github.com/sells-group/dossier-cli/internal/publish"
	"github.com/sells-group/dossier-cli/internal/roster"
)

var (
	batchCSV         string
	batchLimit       int
	batchConcurrency int
	batchOffline     bool
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Research a roster of companies from a CSV file or the Notion companies database",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if batchCSV == "" {
			if err := cfg.Validate(config.ModeNotion); err != nil {
				return eris.Wrap(err, "batch: no --csv given and notion roster not configured")
			}
		}

		env, err := initPipeline(ctx, batchOffline)
		if err != nil {
			return err
		}
		defer env.Close()

		companies, err := loadRoster(ctx, env)
		if err != nil {
			return err
		}

		concurrency := batchConcurrency
		if concurrency <= 0 {
			concurrency = cfg.Batch.MaxConcurrentCompanies
		}

		sum, err := processBatch(ctx, companies, batchLimit, concurrency, env.Runner.Batch, env.Sink)
		if sum != nil {
			formatBatchSummary(os.Stdout, sum)
		}
		return err
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchCSV, "csv", "", "roster CSV path (default: Notion companies needing a dossier)")
	batchCmd.Flags().IntVar(&batchLimit, "limit", 100, "max number of companies to research")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 0, "companies researched in parallel (default from config)")
	batchCmd.Flags().BoolVar(&batchOffline, "offline", false, "use canned research clients (no credentials or network)")
	rootCmd.AddCommand(batchCmd)
}

func loadRoster(ctx context.Context, env *pipelineEnv) ([]model.CompanyClues, error) {
	if batchCSV != "" {
		return roster.LoadCSV(batchCSV)
	}
	if env.Notion == nil {
		return nil, eris.New("batch: notion client not configured")
	}
	companies, err := roster.LoadNotion(ctx, env.Notion, cfg.Notion.CompanyDB)
	if err != nil {
		return nil, eris.Wrap(err, "batch: load notion roster")
	}
	return companies, nil
}

// batchFunc researches companies with bounded parallelism.
type batchFunc func(ctx context.Context, companies []model.CompanyClues, concurrency int) []*model.RunRecord

// batchSummary counts outcomes of one batch.
type batchSummary struct {
	Total      int
	Done       int
	Cancelled  int
	Published  int
	ByStrategy map[string]int
	CostUSD    float64
}

// processBatch applies limit, researches the companies and persists every
// record through sink. A cancelled context still persists what finished and
// returns an error.
func processBatch(ctx context.Context, companies []model.CompanyClues, limit, concurrency int, research batchFunc, sink publish.Publisher) (*batchSummary, error) {
	if len(companies) == 0 {
		zap.L().Info("no companies to research")
		return nil, nil
	}
	if limit > 0 && len(companies) > limit {
		companies = companies[:limit]
	}

	zap.L().Info("processing batch",
		zap.Int("companies", len(companies)),
		zap.Int("concurrency", concurrency),
	)

	records := research(ctx, companies, concurrency)

	sum := &batchSummary{ByStrategy: make(map[string]int)}
	persistCtx := context.WithoutCancel(ctx)
	for _, rec := range records {
		if rec == nil {
			continue
		}
		sum.Total++
		sum.CostUSD += rec.Usage.Cost
		switch rec.State {
		case model.RunDone:
			sum.Done++
			sum.ByStrategy[rec.Strategy]++
		case model.RunCancelled:
			sum.Cancelled++
		}
		if rec.Published {
			sum.Published++
		}
		if sink == nil {
			continue
		}
		if err := sink.Publish(persistCtx, rec); err != nil {
			zap.L().Warn("run not persisted", zap.String("run_id", rec.ID), zap.String("callsign", rec.Callsign), zap.Error(err))
		}
	}

	zap.L().Info("batch complete",
		zap.Int("done", sum.Done),
		zap.Int("cancelled", sum.Cancelled),
		zap.Float64("cost_usd", sum.CostUSD),
	)

	if err := ctx.Err(); err != nil {
		return sum, eris.Wrap(err, "batch interrupted")
	}
	return sum, nil
}

// formatBatchSummary writes batch counts to w.
func formatBatchSummary(out io.Writer, s *batchSummary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Companies:\t%d\n", s.Total)
	_, _ = fmt.Fprintf(w, "Done:\t%d\n", s.Done)
	strategies := make([]string, 0, len(s.ByStrategy))
	for name := range s.ByStrategy {
		strategies = append(strategies, name)
	}
	sort.Strings(strategies)
	for _, name := range strategies {
		_, _ = fmt.Fprintf(w, "  %s:\t%d\n", name, s.ByStrategy[name])
	}
	_, _ = fmt.Fprintf(w, "Cancelled:\t%d\n", s.Cancelled)
	_, _ = fmt.Fprintf(w, "Published:\t%d\n", s.Published)
	_, _ = fmt.Fprintf(w, "Cost:\t$%.4f\n", s.CostUSD)
	_ = w.Flush()
}
