package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/dossier-cli/internal/model"
)

var (
	runCallsign string
	runDBA      string
	runOwners   []string
	runDomain   string
	runWebsite  string
	runLinkedIn string
	runTwitter  string
	runCrunch   string
	runAliases  []string
	runOffline  bool
	runFormat   string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Research a single company and print its run record",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := validFormat(runFormat); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, runOffline)
		if err != nil {
			return err
		}
		defer env.Close()

		clues := runClues()
		rec := env.Runner.Run(ctx, clues)

		if err := env.Sink.Publish(context.WithoutCancel(ctx), rec); err != nil {
			zap.L().Warn("run not persisted", zap.String("run_id", rec.ID), zap.Error(err))
		}

		zap.L().Info("research complete",
			zap.String("callsign", rec.Callsign),
			zap.String("state", string(rec.State)),
			zap.String("strategy", rec.Strategy),
			zap.Int("calls", rec.Usage.Calls),
			zap.Float64("cost_usd", rec.Usage.Cost),
		)

		if rec.State == model.RunCancelled {
			return eris.Errorf("run %s cancelled", rec.ID)
		}
		return writeRecord(os.Stdout, rec, runFormat)
	},
}

func runClues() model.CompanyClues {
	c := model.NewCompanyClues(runCallsign, runDBA, runOwners, runDomain, runLinkedIn)
	c.Website = runWebsite
	if c.Domain == "" && runWebsite != "" {
		c.Domain = model.NormalizeDomain(runWebsite)
	}
	c.AliasNames = runAliases
	c.SetSocial(runTwitter, runCrunch)
	return c
}

func init() {
	runCmd.Flags().StringVar(&runCallsign, "callsign", "", "company callsign (required)")
	runCmd.Flags().StringVar(&runDBA, "dba", "", "company name as known to the roster")
	runCmd.Flags().StringSliceVar(&runOwners, "owners", nil, "founder or owner names")
	runCmd.Flags().StringVar(&runDomain, "domain", "", "domain on record")
	runCmd.Flags().StringVar(&runWebsite, "website", "", "website on record")
	runCmd.Flags().StringVar(&runLinkedIn, "linkedin", "", "company or founder LinkedIn URL")
	runCmd.Flags().StringVar(&runTwitter, "twitter", "", "company X/Twitter handle or profile URL")
	runCmd.Flags().StringVar(&runCrunch, "crunchbase", "", "company Crunchbase URL")
	runCmd.Flags().StringSliceVar(&runAliases, "aka", nil, "alternate company names")
	runCmd.Flags().BoolVar(&runOffline, "offline", false, "use canned research clients (no credentials or network)")
	runCmd.Flags().StringVar(&runFormat, "format", formatJSON, "output format: json, yaml or markdown")
	_ = runCmd.MarkFlagRequired("callsign")
	rootCmd.AddCommand(runCmd)
}
