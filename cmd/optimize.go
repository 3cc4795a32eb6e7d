package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	apischedule "github.com/dispatchlab/fieldops/api/schedule"
	"github.com/dispatchlab/fieldops/config"
	"github.com/dispatchlab/fieldops/core/analytics"
	"github.com/dispatchlab/fieldops/core/constraint"
	"github.com/dispatchlab/fieldops/core/model"
	"github.com/dispatchlab/fieldops/core/optimizer"
	"github.com/dispatchlab/fieldops/core/score"
	coretravel "github.com/dispatchlab/fieldops/core/travel"
	"github.com/dispatchlab/fieldops/infra/logger"
	_ "github.com/dispatchlab/fieldops/infra/travel"
	"github.com/dispatchlab/fieldops/pkg/export"
)

var (
	optimizeInput  string
	optimizeFormat string
	optimizeOutput string
)

var optimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: "Plan one scheduling problem from a file",
	RunE:  runOptimize,
}

func init() {
	optimizeCmd.Flags().StringVarP(&optimizeInput, "input", "i", "", "problem file, same JSON shape as the optimize API")
	optimizeCmd.Flags().StringVarP(&optimizeFormat, "format", "f", "json", "output format: json or csv")
	optimizeCmd.Flags().StringVarP(&optimizeOutput, "output", "o", "", "output file, default stdout")
	_ = optimizeCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(optimizeCmd)
}

func runOptimize(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logg := logger.New("optimize-command")

	raw, err := os.ReadFile(optimizeInput)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	var req apischedule.OptimizeRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return fmt.Errorf("parse input: %w", err)
	}
	for i := range req.Jobs {
		if req.Jobs[i].TenantID == "" {
			req.Jobs[i].TenantID = req.TenantID
		}
	}
	for i := range req.Technicians {
		if req.Technicians[i].TenantID == "" {
			req.Technicians[i].TenantID = req.TenantID
		}
	}

	cs := constraint.DefaultSet()
	if req.Constraints != nil {
		if cs, err = constraint.ValidateSet(*req.Constraints); err != nil {
			return err
		}
	}
	var horizon model.TimeWindow
	if req.Horizon != nil {
		horizon = *req.Horizon
	}

	fallback := coretravel.NewHaversineEstimator(cfg.Travel.FallbackSpeed())
	primary, err := coretravel.NewEstimator(cfg.Travel.Provider)
	if err != nil {
		return fmt.Errorf("travel estimator: %w", err)
	}
	var est coretravel.Estimator = fallback
	if primary != nil {
		est = coretravel.NewFallbackEstimator(primary, fallback, cfg.Travel.Timeout(), logg)
	}

	engine := optimizer.New(est, logg, cfg.Optimizer.Options())
	res, err := engine.Optimize(ctx, optimizer.Problem{
		TenantID:    req.TenantID,
		Jobs:        req.Jobs,
		Technicians: req.Technicians,
		Constraints: cs,
		Horizon:     horizon,
	})
	if err != nil {
		return err
	}
	plan := res.Plan
	scorer := score.NewScorer(analytics.NewOnTimeProvider(), score.DefaultConfidenceWeights(), score.DefaultImpactWeights())
	scorer.ScorePlan(&plan, req.Jobs, req.Technicians, cs)

	out := cmd.OutOrStdout()
	if optimizeOutput != "" {
		f, err := os.Create(optimizeOutput)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer func() {
			if err := f.Close(); err != nil {
				logg.Errorf("close output: %v", err)
			}
		}()
		out = f
	}
	switch optimizeFormat {
	case "json":
		return export.WriteJSON(out, plan)
	case "csv":
		return export.WriteCSV(out, plan)
	default:
		return fmt.Errorf("unknown format %q", optimizeFormat)
	}
}
