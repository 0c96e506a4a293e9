package main

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/avanrossum/diffract/pkg/app"
	"github.com/avanrossum/diffract/pkg/filelist"
	"github.com/avanrossum/diffract/pkg/frames"
	"github.com/avanrossum/diffract/pkg/pool"
	"github.com/avanrossum/diffract/pkg/results"
	"github.com/avanrossum/diffract/pkg/scan"
	"github.com/avanrossum/diffract/pkg/workflow"
)

// sourceFlags describe where frame data comes from: a raw file series, or
// a synthetic generator when only --height/--width are given.
type sourceFlags struct {
	firstFile     string
	lastFile      string
	pattern       string
	live          bool
	imagesPerFile int
	height, width int
	binning       int
}

func (f *sourceFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.firstFile, "first-file", "", "first raw frame file of the series")
	cmd.Flags().StringVar(&f.lastFile, "last-file", "", "last raw frame file of the series")
	cmd.Flags().StringVar(&f.pattern, "pattern", "", "glob pattern selecting the frame files")
	cmd.Flags().BoolVar(&f.live, "live", false, "live processing: poll for files that do not exist yet")
	cmd.Flags().IntVar(&f.imagesPerFile, "images-per-file", 1, "frames stored in each file")
	cmd.Flags().IntVar(&f.height, "height", 128, "raw frame height in pixels")
	cmd.Flags().IntVar(&f.width, "width", 128, "raw frame width in pixels")
	cmd.Flags().IntVar(&f.binning, "bin", 1, "binning factor applied on load")
}

// newSource builds a frame source from the flags. Without file selection
// a synthetic source of n frames is used.
func (f *sourceFlags) newSource(n int) (frames.Source, error) {
	if f.firstFile == "" && f.pattern == "" {
		return &frames.SyntheticSource{
			Frames: n,
			Shape:  []int{f.height, f.width},
		}, nil
	}
	mgr := filelist.NewManager(filelist.Config{
		FirstFile: f.firstFile,
		LastFile:  f.lastFile,
		Pattern:   f.pattern,
		Live:      f.live,
	})
	if err := mgr.Update(); err != nil {
		return nil, err
	}
	return frames.NewRawSource(mgr, frames.Metadata{
		ImagesPerFile: f.imagesPerFile,
		RawHeight:     f.height,
		RawWidth:      f.width,
		Binning:       f.binning,
	})
}

func runCmd() *cobra.Command {
	var (
		scanFile  string
		serial    bool
		workers   int
		exportDir string
		src       sourceFlags
	)

	cmd := &cobra.Command{
		Use:   "run <workflow.dot>",
		Short: "Execute a workflow over every frame of a scan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadEnv()
			if err != nil {
				return err
			}
			logger := env.logger()
			defer logger.Sync()

			dotSrc, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read workflow: %w", err)
			}
			geom, err := loadGeometry(scanFile)
			if err != nil {
				return err
			}

			reg := registry()
			tree, err := workflow.ParseDOT(string(dotSrc), reg)
			if err != nil {
				return err
			}
			controllerSrc, err := src.newSource(geom.NumFrames())
			if err != nil {
				return err
			}
			agg := results.NewAggregator()
			controller := app.NewWorkflowApp(tree, geom, agg, controllerSrc, logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			gate := env.gate()
			var rep app.Report
			if serial {
				rep, err = app.RunSerial[app.LeafResults](ctx, controller, gate)
			} else {
				if workers == 0 {
					workers = env.Workers
				}
				cfg := app.WorkflowConfig{WorkflowDOT: string(dotSrc)}
				factory := func() (app.App[app.LeafResults], error) {
					w, err := app.NewWorkflowWorker(cfg, reg, geom, func() (frames.Source, error) {
						return src.newSource(geom.NumFrames())
					}, logger)
					if err != nil {
						return nil, err
					}
					return w, nil
				}
				runner := pool.NewRunner[app.LeafResults](controller, factory,
					pool.Config{Workers: workers, Gate: gate}, logger)
				rep, err = runner.Run(ctx)
			}
			if err != nil {
				return err
			}
			reportSummary(logger, rep)

			if exportDir != "" && !rep.Cancelled {
				if err := exportLeaves(agg, exportDir); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&scanFile, "scan", "", "scan geometry YAML file (required)")
	cmd.Flags().BoolVar(&serial, "serial", false, "run without the worker pool")
	cmd.Flags().IntVar(&workers, "workers", 0, "worker count (default from DIFFRACT_WORKERS)")
	cmd.Flags().StringVar(&exportDir, "export", "", "directory for per-leaf result exports")
	src.register(cmd)
	_ = cmd.MarkFlagRequired("scan")
	return cmd
}

func loadGeometry(path string) (*scan.Geometry, error) {
	if path == "" {
		return nil, fmt.Errorf("no scan geometry given")
	}
	return scan.LoadFile(path)
}

func reportSummary(logger *zap.Logger, rep app.Report) {
	if rep.Cancelled {
		logger.Warn("run cancelled",
			zap.Int("completed", rep.Completed), zap.Int("total", rep.Total))
		return
	}
	logger.Info("run complete",
		zap.Int("completed", rep.Completed),
		zap.Int("failed", len(rep.Failures)),
		zap.Int("total", rep.Total))
	for _, f := range rep.Failures {
		logger.Warn(f.String())
	}
}

// exportLeaves writes each leaf buffer as a flat little-endian float64
// file next to a small shape header line in the filename.
func exportLeaves(agg *results.Aggregator, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create export directory: %w", err)
	}
	for _, id := range agg.LeafIDs() {
		data, err := agg.Get(id, nil, false)
		if err != nil {
			return err
		}
		buf := make([]byte, 8*data.Len())
		for i, v := range data.Values() {
			binary.LittleEndian.PutUint64(buf[8*i:], math.Float64bits(v))
		}
		dims := make([]string, len(data.Shape()))
		for i, d := range data.Shape() {
			dims[i] = fmt.Sprintf("%d", d)
		}
		path := filepath.Join(dir, fmt.Sprintf("leaf_%d_%s.f64", id, strings.Join(dims, "x")))
		if err := os.WriteFile(path, buf, 0o644); err != nil {
			return fmt.Errorf("write leaf export: %w", err)
		}
	}
	return nil
}
