package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/calipso-subset/internal/domain"
	"github.com/couchcryptid/calipso-subset/internal/observability"
	"github.com/couchcryptid/calipso-subset/internal/qc"
	"github.com/couchcryptid/calipso-subset/internal/stream"
	"github.com/couchcryptid/calipso-subset/internal/swath"
)

var (
	// ErrNoScans is returned by Run when no file produced a scan.
	ErrNoScans = errors.New("no scans produced")
	// ErrTooLarge is returned for a file whose variable exceeds the cell budget.
	ErrTooLarge = errors.New("variable exceeds cell budget")
	// ErrMixedProducts is returned for a file whose arrays do not match the
	// layout of scans already spooled.
	ErrMixedProducts = errors.New("product layout differs from earlier scans")
)

// Spool stores finished scans in order and replays them for the output.
type Spool interface {
	Put(index int, scan *domain.Scan) error
	stream.Source
}

// Publisher announces spooled scans to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, summaries []domain.ScanSummary) error
}

// Options configures a run.
type Options struct {
	RunID        string
	Description  string
	Variable     string
	Range        domain.TimeRange
	Domain       domain.Bounds
	MinElevation float64
	MaxElevation float64
	QC           qc.Options

	AggregateWindow int
	AggregateLevels int
	MaxCells        int
}

// Result summarizes a run.
type Result struct {
	Files   int
	Scans   int
	Skipped int
	Failed  int
	Points  int64
}

// Pipeline processes input files one at a time into a spool of scans.
type Pipeline struct {
	opener    domain.Opener
	spool     Spool
	publisher Publisher
	filter    *qc.Filter
	logger    *slog.Logger
	metrics   *observability.Metrics
	opts      Options
	ready     atomic.Bool

	scan      domain.Scan
	mu        sync.Mutex // guards infos for Scans
	infos     []domain.ScanInfo
	summaries []domain.ScanSummary
	units     string // from the first spooled scan
	fileUnits string // of the file being processed
	thickness bool
}

// New creates a Pipeline. publisher may be nil.
func New(opener domain.Opener, spool Spool, publisher Publisher, logger *slog.Logger, metrics *observability.Metrics, opts Options) *Pipeline {
	return &Pipeline{
		opener:    opener,
		spool:     spool,
		publisher: publisher,
		filter:    qc.NewFilter(qc.DefaultTable(), opts.QC),
		logger:    logger,
		metrics:   metrics,
		opts:      opts,
	}
}

// CheckReadiness returns nil once at least one scan has been spooled.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not spooled any scans yet")
	}
	return nil
}

// Scans returns a copy of the metadata of every spooled scan in output
// order. It is safe to call while Run is in progress.
func (p *Pipeline) Scans() []domain.ScanInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.infos)
}

// Run processes files in order. A failing file is logged and skipped; Run
// fails only when the context is cancelled or no scan was produced.
func (p *Pipeline) Run(ctx context.Context, files []string) (Result, error) {
	p.logger.Info("pipeline started", "files", len(files), "variable", p.opts.Variable, "run_id", p.opts.RunID)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	var res Result
	for _, name := range files {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Files++

		start := time.Now()
		outcome, err := p.processFile(name)
		p.metrics.FileDuration.Observe(time.Since(start).Seconds())

		switch {
		case err != nil:
			stage := "unknown"
			var se *stageError
			if errors.As(err, &se) {
				stage = se.stage
			}
			p.logger.Warn("file failed, skipping", "file", name, "stage", stage, "error", err)
			p.metrics.FileErrors.WithLabelValues(stage).Inc()
			res.Failed++
		case outcome != "":
			p.logger.Debug("file skipped", "file", name, "reason", outcome)
			p.metrics.FilesSkipped.WithLabelValues(outcome).Inc()
			res.Skipped++
		default:
			info := p.infos[len(p.infos)-1]
			p.logger.Debug("scan spooled", "file", name, "points", info.Points, "levels", info.Levels)
			p.metrics.FilesProcessed.Inc()
			p.metrics.ScansSpooled.Inc()
			p.metrics.PointsRetained.Add(float64(info.Points))
			res.Scans++
			res.Points += int64(info.Points)
			p.ready.Store(true)
		}
	}

	p.publish(ctx)

	p.logger.Info("pipeline finished",
		"files", res.Files, "scans", res.Scans, "skipped", res.Skipped, "failed", res.Failed, "points", res.Points)
	if res.Scans == 0 {
		return res, ErrNoScans
	}
	return res, nil
}

// processFile runs one file through the stages. It returns a non-empty skip
// reason when the file holds nothing inside the query.
func (p *Pipeline) processFile(name string) (skip string, err error) {
	start, err := domain.ParseFileTime(name)
	if err != nil {
		return "", atStage("parse", err)
	}
	product, err := domain.ProductFromFileName(name)
	if err != nil {
		return "", atStage("parse", err)
	}
	if p.ready.Load() && product.Layered != p.thickness {
		return "", atStage("parse", fmt.Errorf("%w: %s", ErrMixedProducts, product.Name))
	}

	f, err := p.opener.Open(name)
	if err != nil {
		return "", atStage("open", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			err = errors.Join(err, atStage("close", cerr))
		}
	}()

	if !p.opts.Range.OverlapsGranule(start) {
		return "time", nil
	}
	b, err := f.Bounds()
	if err != nil {
		return "", atStage("bounds", err)
	}
	if !b.Overlaps(p.opts.Domain) {
		return "bounds", nil
	}

	elev, err := p.readScan(f, product, start)
	if err != nil {
		return "", err
	}

	st, err := p.filter.Apply(f, product, p.opts.Variable, &p.scan, elev.Surface)
	if err != nil {
		return "", atStage("filter", err)
	}
	p.metrics.CellsNulled.WithLabelValues("rule").Add(float64(st.Nulled))
	p.metrics.CellsNulled.WithLabelValues("uncertainty").Add(float64(st.Uncertainty))
	p.metrics.CellsNulled.WithLabelValues("near_surface").Add(float64(st.NearSurface))

	_, ok, err := swath.Compact(&p.scan, p.query(), elev.Shared)
	if err != nil {
		return "", atStage("compact", err)
	}
	if !ok {
		return "empty", nil
	}
	if product.Aggregate {
		swath.Aggregate(&p.scan, p.opts.AggregateWindow, p.opts.AggregateLevels)
	}

	info, err := p.scan.Info(name, int64(p.scan.Timestamps[0]))
	if err != nil {
		return "", atStage("record", err)
	}
	if err := p.spool.Put(len(p.infos), &p.scan); err != nil {
		return "", atStage("spool", err)
	}
	p.mu.Lock()
	p.infos = append(p.infos, info)
	p.mu.Unlock()
	p.thickness = p.scan.HasThickness
	if p.units == "" {
		p.units = p.fileUnits
	}
	p.summaries = append(p.summaries,
		domain.NewScanSummary(p.opts.RunID, len(p.infos)-1, product, p.opts.Variable, p.fileUnits, info))
	return "", nil
}

func (p *Pipeline) publish(ctx context.Context) {
	if p.publisher == nil || len(p.summaries) == 0 {
		return
	}
	if err := p.publisher.Publish(ctx, p.summaries); err != nil {
		p.logger.Error("publish scan summaries failed", "error", err, "scans", len(p.summaries))
		return
	}
	p.logger.Info("scan summaries published", "scans", len(p.summaries))
}

// Header describes the stream Emit writes.
func (p *Pipeline) Header() stream.Header {
	return stream.Header{
		Description: p.opts.Description,
		Start:       p.opts.Range.Start,
		Hours:       int(p.opts.Range.End.Sub(p.opts.Range.Start) / time.Hour),
		Variable:    p.opts.Variable,
		Units:       p.units,
		Thickness:   p.thickness,
		Domain:      p.opts.Domain,
		Scans:       p.infos,
	}
}

// Emit writes the output stream for every spooled scan.
func (p *Pipeline) Emit(ctx context.Context, w io.Writer) error {
	if len(p.infos) == 0 {
		return ErrNoScans
	}
	if err := stream.Encode(ctx, w, p.Header(), p.spool); err != nil {
		return fmt.Errorf("emit: %w", err)
	}
	return nil
}
