// Command calipsosubset extracts one CALIPSO variable from a list of input
// files, subset to a time range, a longitude-latitude box and an elevation
// range, and writes it as a binary stream.
//
// Usage:
//
//	calipsosubset --files files.txt --timestamp 2010010100 --hours 24 \
//	  --variable Extinction_Coefficient_532 \
//	  --domain "-126 24.5 -66 50" --elevation "0 5000" > subset.bin
//
// Every option may also be set with a CALIPSO_<OPTION> environment variable
// or in the file named by --config.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/couchcryptid/calipso-subset/internal/adapter/cdf"
	httpadapter "github.com/couchcryptid/calipso-subset/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/calipso-subset/internal/adapter/kafka"
	"github.com/couchcryptid/calipso-subset/internal/adapter/spool"
	"github.com/couchcryptid/calipso-subset/internal/config"
	"github.com/couchcryptid/calipso-subset/internal/observability"
	"github.com/couchcryptid/calipso-subset/internal/pipeline"
	"github.com/couchcryptid/calipso-subset/internal/qc"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:   "calipsosubset",
		Short: "Subset CALIPSO lidar files into a binary stream.",
		Long: `calipsosubset reads the CALIPSO files listed in --files, keeps the
profiles inside the time range, the longitude-latitude domain and the
elevation range, applies the product's quality-control rules and writes the
result to --output.

The exit status is 0 when at least one scan was written and 1 otherwise.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				fmt.Fprintln(os.Stderr, "calipsosubset:", err)
				return err
			}
			logger := observability.NewLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)
			if err := run(cmd.Context(), cfg, logger); err != nil {
				logger.Error("run failed", "error", err)
				return err
			}
			return nil
		},
	}
	if err := config.Bind(cmd.Flags(), v); err != nil {
		panic(err)
	}
	return cmd
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	files, err := readFileList(cfg.FilesList)
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	logger = logger.With("run_id", runID)
	metrics := observability.NewMetrics()

	sp, err := openSpool(cfg.TmpDir, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := sp.Close(); err != nil {
			logger.Error("spool close error", "error", err)
		}
	}()

	var publisher pipeline.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		w := kafkaadapter.NewWriter(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		defer func() {
			if err := w.Close(); err != nil {
				logger.Error("kafka writer close error", "error", err)
			}
		}()
		publisher = w
		logger.Info("publishing scan summaries", "topic", cfg.KafkaTopic, "brokers", cfg.KafkaBrokers)
	}

	opener := cdf.NewCachedOpener(cdf.Opener{}, cfg.VDataCacheSize)
	p := pipeline.New(opener, sp, publisher, logger, metrics, pipeline.Options{
		RunID:           runID,
		Description:     cfg.Description,
		Variable:        cfg.Variable,
		Range:           cfg.Range,
		Domain:          cfg.Domain,
		MinElevation:    cfg.MinElevation,
		MaxElevation:    cfg.MaxElevation,
		QC:              qc.Options{MinimumCAD: cfg.MinimumCAD, MaximumUncertainty: cfg.MaximumUncertainty},
		AggregateWindow: cfg.AggregateWindow,
		AggregateLevels: cfg.AggregateLevels,
		MaxCells:        cfg.MaxCells,
	})

	if cfg.MetricsAddr != "" {
		srv := httpadapter.NewServer(cfg.MetricsAddr, runID, p, prometheus.DefaultGatherer, logger)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("http server shutdown error", "error", err)
			}
		}()
	}

	if cfg.Pushgateway != "" {
		defer pushMetrics(cfg.Pushgateway, runID, logger)
	}

	if _, err := p.Run(ctx, files); err != nil {
		return err
	}
	return writeOutput(ctx, cfg.Output, p)
}

func openSpool(tmpdir string, logger *slog.Logger) (*spool.Spool, error) {
	if tmpdir == "" {
		return spool.OpenInMemory(logger)
	}
	return spool.Open(tmpdir, logger)
}

// readFileList returns the non-blank lines of path, skipping # comments.
func readFileList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file list: %w", err)
	}
	defer f.Close()

	var files []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		files = append(files, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read file list: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("file list %s is empty", path)
	}
	return files, nil
}

func writeOutput(ctx context.Context, path string, p *pipeline.Pipeline) (err error) {
	var w io.Writer = os.Stdout
	if path != "-" && path != "" {
		f, cerr := os.Create(path)
		if cerr != nil {
			return fmt.Errorf("create output: %w", cerr)
		}
		defer func() { err = errors.Join(err, f.Close()) }()
		w = f
	}
	return p.Emit(ctx, w)
}

func pushMetrics(url, runID string, logger *slog.Logger) {
	err := push.New(url, "calipso_subset").
		Grouping("run_id", runID).
		Gatherer(prometheus.DefaultGatherer).
		Push()
	if err != nil {
		logger.Error("push metrics failed", "pushgateway", url, "error", err)
		return
	}
	logger.Info("metrics pushed", "pushgateway", url)
}
