package render

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clearcite/reportd/internal/annotate"
	"github.com/clearcite/reportd/internal/cache"
	"github.com/clearcite/reportd/internal/config"
	"github.com/clearcite/reportd/internal/db"
	"github.com/clearcite/reportd/internal/metrics"
	"github.com/clearcite/reportd/internal/segment"
	"github.com/clearcite/reportd/internal/tracing"
)

// ErrTextTooLarge is returned when the report exceeds render.max_text_bytes.
var ErrTextTooLarge = errors.New("report text exceeds configured size limit")

// KindFactCheck is the structured report kind. Only fact-check reports are
// segmented; every other kind renders as annotated markdown.
const KindFactCheck = "fact_check"

// Outcome labels for render metrics and audit rows.
const (
	OutcomeStructured    = "structured"
	OutcomeAnnotatedOnly = "annotated_only"
)

// Input is one render request: raw markdown plus the sources to cite.
type Input struct {
	Text        string                      `json:"text"`
	Assessments []annotate.SourceAssessment `json:"assessments,omitempty"`
	Kind        string                      `json:"kind,omitempty"`
	ReportID    *string                     `json:"report_id,omitempty"`
}

// Result carries the annotated text and its section breakdown.
// Structured is false when segmentation found nothing usable and the
// frontend should fall back to rendering Annotated as a single blob.
type Result struct {
	Annotated  string            `json:"annotated"`
	Sections   []segment.Section `json:"sections"`
	Structured bool              `json:"structured"`
	CacheHit   bool              `json:"cache_hit"`
}

// Renderer runs the annotate-then-segment pipeline. The engine itself is
// pure; the renderer owns the impure edges: caching, metrics, tracing,
// and the async audit write.
type Renderer struct {
	cache  *cache.Cache // nil disables caching
	store  *db.Client   // nil disables audit rows
	cfg    config.RenderConfig
	logger *zap.Logger
}

// New creates a renderer. Both cache and store may be nil.
func New(c *cache.Cache, store *db.Client, cfg config.RenderConfig, logger *zap.Logger) *Renderer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Renderer{cache: c, store: store, cfg: cfg, logger: logger}
}

// Render annotates the text with citation markers, then, for fact-check
// reports, segments the annotated text so markers land inside section
// content. Identical (kind, text, assessments) triples are served from
// cache.
func (r *Renderer) Render(ctx context.Context, in Input) (*Result, error) {
	kind := in.Kind
	if kind == "" {
		kind = r.cfg.DefaultKind
	}
	if r.cfg.MaxTextBytes > 0 && len(in.Text) > r.cfg.MaxTextBytes {
		return nil, ErrTextTooLarge
	}

	ctx, span := tracing.StartRenderSpan(ctx, kind, len(in.Text), len(in.Assessments))
	defer span.End()

	start := time.Now()

	var key string
	if r.cache != nil {
		key = cache.Key(kind, in.Text, in.Assessments)
		if hit, ok := r.cache.Get(ctx, key); ok {
			result := &Result{
				Annotated:  hit.Annotated,
				Sections:   hit.Sections,
				Structured: hit.Structured,
				CacheHit:   true,
			}
			r.finish(ctx, in, kind, result, nil, time.Since(start))
			return result, nil
		}
	}

	annotated := annotate.Annotate(in.Text, in.Assessments)

	// Only the structured report kind is segmented; other kinds render the
	// annotated text as plain markdown.
	var sections []segment.Section
	var drops []segment.Drop
	if kind == KindFactCheck {
		sections, drops = segment.SegmentWithDrops(annotated)
	}

	result := &Result{
		Annotated:  annotated,
		Sections:   sections,
		Structured: len(sections) > 0,
	}

	if r.cache != nil {
		r.cache.Set(ctx, key, &cache.RenderedReport{
			Annotated:  result.Annotated,
			Sections:   result.Sections,
			Structured: result.Structured,
		})
	}

	r.finish(ctx, in, kind, result, drops, time.Since(start))
	return result, nil
}

// finish records metrics, logs, and queues the audit row.
func (r *Renderer) finish(ctx context.Context, in Input, kind string, result *Result, drops []segment.Drop, elapsed time.Duration) {
	outcome := OutcomeAnnotatedOnly
	if result.Structured {
		outcome = OutcomeStructured
	}

	metrics.RecordRenderMetrics(kind, outcome, elapsed.Seconds(), len(result.Sections))
	if len(drops) > 0 {
		reasons := make([]string, len(drops))
		for i, d := range drops {
			reasons[i] = d.Reason
		}
		metrics.RecordDroppedSections(reasons)
	}

	r.logger.Debug("Rendered report",
		zap.String("kind", kind),
		zap.String("outcome", outcome),
		zap.Int("text_bytes", len(in.Text)),
		zap.Int("sources", len(in.Assessments)),
		zap.Int("sections", len(result.Sections)),
		zap.Int("dropped", len(drops)),
		zap.Bool("cache_hit", result.CacheHit),
		zap.Duration("duration", elapsed),
	)

	if r.store == nil {
		return
	}

	event := &db.RenderEvent{
		Kind:       kind,
		Outcome:    outcome,
		Sections:   len(result.Sections),
		Dropped:    len(drops),
		CacheHit:   result.CacheHit,
		DurationMs: elapsed.Milliseconds(),
		Meta:       db.JSONB{"text_bytes": len(in.Text), "sources": len(in.Assessments)},
	}
	if in.ReportID != nil {
		if id, err := uuid.Parse(*in.ReportID); err == nil {
			event.ReportID = &id
		}
	}
	r.store.QueueWrite(db.WriteRequest{Type: db.WriteTypeRenderEvent, Data: event})
}
