package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sevketarisu/quic-streaming/internal/abr"
	"github.com/sevketarisu/quic-streaming/internal/buffer"
	"github.com/sevketarisu/quic-streaming/internal/metricssrv"
	"github.com/sevketarisu/quic-streaming/internal/mpd"
	"github.com/sevketarisu/quic-streaming/internal/pipeline"
	"github.com/sevketarisu/quic-streaming/internal/recorder"
	"github.com/sevketarisu/quic-streaming/internal/transport"
	"github.com/sevketarisu/quic-streaming/pkg/logging"
)

// Run parses the MPD, wires up the selected transport and adaptation
// policy, and drives one playback run to completion per cfg.
func Run(ctx context.Context, cfg *ClientConfig) error {
	if err := logging.InitSlog(cfg.LogLevel, cfg.LogFormat); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	logger := slog.Default()

	outDir := cfg.OutDir
	if cfg.AutoOutDir {
		derived, err := AutoDir(cfg.MPD, cfg.OutDir)
		if err != nil {
			return fmt.Errorf("auto outdir: %w", err)
		}
		outDir = derived
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create run dir: %w", err)
	}
	if !cfg.Download {
		defer os.RemoveAll(outDir)
	}

	reps, _, err := mpd.ParseMPD(ctx, cfg.MPD, outDir)
	if err != nil {
		return fmt.Errorf("parse mpd: %w", err)
	}
	idx, err := mpd.BuildIndex(reps)
	if err != nil {
		return fmt.Errorf("build segment index: %w", err)
	}

	if cfg.List {
		printRepresentations(idx)
		return nil
	}

	fetcher, err := newFetcher(cfg, logger)
	if err != nil {
		return fmt.Errorf("init transport: %w", err)
	}

	policy, err := newPolicy(cfg.Playback)
	if err != nil {
		return err
	}

	clock := buffer.NewPlaybackClock()
	buf := buffer.NewPlaybackBuffer(clock, logger)

	reg := prometheus.NewRegistry()
	rec := recorder.NewRecorder(cfg.ReportPath, reg)

	if cfg.MetricsAddr != "" {
		srv := metricssrv.New(cfg.MetricsAddr, reg, logger)
		srv.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	scenario, err := jumpScenario(cfg)
	if err != nil {
		return err
	}

	driver := pipeline.NewDriver(idx, policy, fetcher, buf, clock, rec, logger, pipeline.Config{
		DownloadDir:       outDir,
		SegmentLimit:      cfg.SegmentLimit,
		MaxReopenAttempts: maxReopenAttempts,
		Scenario:          scenario,
	})

	if err := driver.Run(ctx); err != nil {
		return fmt.Errorf("run: %w", err)
	}

	logger.Info("run complete",
		"segments", len(rec.Records()),
		"up_shifts", rec.UpShifts(),
		"down_shifts", rec.DownShifts())
	return nil
}

func jumpScenario(cfg *ClientConfig) (pipeline.JumpScenario, error) {
	if !cfg.Jump || cfg.JumpScenario == "" {
		return nil, nil
	}
	scenario, err := pipeline.ParseJumpScenario(cfg.JumpScenario)
	if err != nil {
		return nil, fmt.Errorf("parse jump scenario: %w", err)
	}
	return scenario, nil
}

func newPolicy(name string) (abr.Policy, error) {
	switch name {
	case "", "basic":
		return abr.NewBasicPolicy(), nil
	case "sara":
		return abr.NewSaraPolicy(), nil
	case "netflix":
		return abr.NewNetflixPolicy(), nil
	default:
		return nil, fmt.Errorf("unknown playback policy %q", name)
	}
}

func newFetcher(cfg *ClientConfig, logger *slog.Logger) (transport.Fetcher, error) {
	switch {
	case cfg.Quic:
		originHost := ""
		if cfg.Host != "" {
			originHost = "https://" + cfg.Host
		}
		f := transport.NewQUICFetcher(cfg.QuicBinary, "quic_client", originHost, logger)
		pf, ok := f.(interface{ Start(context.Context) error })
		if ok {
			if err := pf.Start(context.Background()); err != nil {
				return nil, err
			}
		}
		return f, nil
	case cfg.Curl:
		f := transport.NewCurlFetcher(cfg.CurlBinary, cfg.CurlBinary, logger)
		pf, ok := f.(interface{ Start(context.Context) error })
		if ok {
			if err := pf.Start(context.Background()); err != nil {
				return nil, err
			}
		}
		return f, nil
	default:
		return transport.NewHTTPFetcher(), nil
	}
}

// printRepresentations implements --LIST: print the sorted bitrate ladder
// and exit without starting playback.
func printRepresentations(idx *mpd.Index) {
	bitrates := idx.Bitrates()
	sort.Slice(bitrates, func(i, j int) bool { return bitrates[i] < bitrates[j] })
	for _, b := range bitrates {
		fmt.Printf("%d\n", b)
	}
}

// maxReopenAttempts bounds consecutive transport reopen/retry cycles per
// segment before the run aborts, so a backend stuck in a fault loop doesn't
// hang forever.
const maxReopenAttempts = 5
