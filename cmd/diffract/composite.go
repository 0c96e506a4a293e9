package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/avanrossum/diffract/pkg/app"
	"github.com/avanrossum/diffract/pkg/core"
	"github.com/avanrossum/diffract/pkg/mosaic"
)

// ─── composite ────────────────────────────────────────────────────────────────

func compositeCmd() *cobra.Command {
	var (
		nx, ny  int
		fillY   bool
		low     float64
		high    float64
		nframes int
		out     string
		src     sourceFlags
	)
	cmd := &cobra.Command{
		Use:   "composite",
		Short: "Assemble a frame series into one mosaic image",
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := loadEnv()
			if err != nil {
				return err
			}
			logger := env.logger()
			defer logger.Sync()

			frameSrc, err := src.newSource(nframes)
			if err != nil {
				return err
			}
			cfg := app.CompositeConfig{Nx: nx, Ny: ny}
			if fillY {
				cfg.Direction = mosaic.FillY
			}
			if cmd.Flags().Changed("threshold-low") {
				cfg.ThresholdLow = &low
			}
			if cmd.Flags().Changed("threshold-high") {
				cfg.ThresholdHigh = &high
			}
			capp := app.NewCompositeApp(cfg, frameSrc, logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rep, err := app.RunSerial[*core.Dataset](ctx, capp, env.gate())
			if err != nil {
				return err
			}
			reportSummary(logger, rep)
			if rep.Cancelled || out == "" {
				return nil
			}
			return capp.Composite().ExportPNG(out)
		},
	}
	cmd.Flags().IntVar(&nx, "nx", -1, "composite tiles in x (-1 derives from frame count)")
	cmd.Flags().IntVar(&ny, "ny", 1, "composite tiles in y (-1 derives from frame count)")
	cmd.Flags().BoolVar(&fillY, "fill-y", false, "tile along y first instead of x")
	cmd.Flags().Float64Var(&low, "threshold-low", 0, "lower clamp applied after the run")
	cmd.Flags().Float64Var(&high, "threshold-high", 0, "upper clamp applied after the run")
	cmd.Flags().IntVar(&nframes, "frames", 16, "frame count for the synthetic source")
	cmd.Flags().StringVar(&out, "out", "", "output PNG path")
	src.register(cmd)
	return cmd
}
