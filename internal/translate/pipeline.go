package translate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/talkdub-lab/talkdub/internal/job"
	"github.com/talkdub-lab/talkdub/internal/observe"
)

// rateLimitRetryDelay is the fixed wait after a provider rate-limit error;
// the quota is per minute, so anything shorter just burns an attempt.
const rateLimitRetryDelay = 60 * time.Second

// failedChunkAbortRatio is the fraction of failed chunks past which the
// whole phase is considered degraded beyond acceptable quality.
const failedChunkAbortRatio = 0.5

// Options holds the pipeline tunables.
type Options struct {
	// CharLimit caps summed source runes per chunk.
	CharLimit int

	// SegLimit caps segments per chunk.
	SegLimit int

	// MaxRetries bounds LLM attempts per chunk.
	MaxRetries int

	// BackoffBase is the base delay for exponential inter-attempt backoff.
	BackoffBase time.Duration

	// AcquireTimeout bounds the wait for a rate-limiter token.
	AcquireTimeout time.Duration
}

// Result summarises one pipeline run.
type Result struct {
	TotalChunks        int
	FailedChunks       int
	CacheHits          int
	TranslatedSegments int
	FallbackSegments   int
	SkippedSegments    int
}

// ErrTooManyFailures is returned when more than half the chunks failed and
// the phase must be aborted.
var ErrTooManyFailures = fmt.Errorf("translate: failed chunk ratio exceeds %.1f", failedChunkAbortRatio)

// Pipeline drives segment translation: chunking, cache probes, rate-limited
// LLM calls, quality validation, and partial-failure accounting. Segments
// are mutated in place.
type Pipeline struct {
	client  *Client
	cache   *Cache
	limiter *RateLimiter
	opts    Options
	logger  *slog.Logger
	metrics *observe.Metrics

	// sleep is swappable for tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewPipeline assembles a Pipeline from its collaborators.
func NewPipeline(client *Client, cache *Cache, limiter *RateLimiter, opts Options, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		client:  client,
		cache:   cache,
		limiter: limiter,
		opts:    opts,
		logger:  logger,
		metrics: observe.DefaultMetrics(),
		sleep:   sleepCtx,
	}
}

// Run translates the segments from srcLang to tgtLang in order. Segments
// flagged as suspected hallucinations are skipped entirely: their tgt_text
// stays empty and they count neither as successes nor failures. Segments in
// chunks that exhaust their retries fall back to tgt_text = src_text with
// translation.status = failed. Returns [ErrTooManyFailures] when more than
// half the chunks failed.
func (p *Pipeline) Run(ctx context.Context, segments []job.Segment, srcLang, tgtLang string) (Result, error) {
	var res Result

	var items []Item
	for i := range segments {
		if segments[i].Flags.SuspectedHallucination {
			res.SkippedSegments++
			continue
		}
		items = append(items, Item{Index: i, Text: segments[i].SrcText})
	}
	if len(items) == 0 {
		return res, nil
	}

	chunks := BuildChunks(items, p.opts.CharLimit, p.opts.SegLimit)
	res.TotalChunks = len(chunks)

	for ci, chunk := range chunks {
		translations, fromCache, err := p.translateChunk(ctx, chunk, srcLang, tgtLang)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			p.logger.Warn("chunk failed after retries; falling back to source text",
				"chunk", ci,
				"segments", len(chunk.Items),
				"error", err,
			)
			res.FailedChunks++
			for _, it := range chunk.Items {
				seg := &segments[it.Index]
				seg.TgtText = seg.SrcText
				seg.Translation.Status = job.TranslationFailed
				seg.Translation.Provider = p.client.Name
				seg.Translation.Retries = p.opts.MaxRetries
				res.FallbackSegments++
			}
			continue
		}
		if fromCache {
			res.CacheHits++
		}
		for i, it := range chunk.Items {
			seg := &segments[it.Index]
			seg.TgtText = translations[i]
			seg.Translation.Status = job.TranslationCompleted
			seg.Translation.Provider = p.client.Name
			res.TranslatedSegments++
		}
	}

	if res.TotalChunks > 0 && float64(res.FailedChunks)/float64(res.TotalChunks) > failedChunkAbortRatio {
		return res, fmt.Errorf("%w: %d of %d chunks failed", ErrTooManyFailures, res.FailedChunks, res.TotalChunks)
	}
	return res, nil
}

// translateChunk resolves one chunk via cache or the LLM, applying the
// retry policy: rate-limit errors wait a minute, client errors abort
// immediately, everything else backs off exponentially. A successful
// response must also pass quality validation.
func (p *Pipeline) translateChunk(ctx context.Context, chunk Chunk, srcLang, tgtLang string) ([]string, bool, error) {
	texts := chunk.Texts()

	if cached, ok := p.cache.Get(ctx, texts, srcLang, tgtLang); ok {
		p.metrics.RecordCacheLookup(ctx, "hit")
		return cached, true, nil
	}
	p.metrics.RecordCacheLookup(ctx, "miss")

	var lastErr error
	for attempt := 0; attempt < p.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := p.opts.BackoffBase * (1 << (attempt - 1))
			if Classify(lastErr) == ClassRateLimit {
				delay = rateLimitRetryDelay
			}
			if err := p.sleep(ctx, delay); err != nil {
				return nil, false, err
			}
		}

		ok, err := p.limiter.Acquire(ctx, p.opts.AcquireTimeout)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			lastErr = fmt.Errorf("translate: rate limiter acquire timed out")
			continue
		}

		callStart := time.Now()
		translations, err := p.client.TranslateBatch(ctx, texts, srcLang, tgtLang)
		if err != nil {
			lastErr = err
			p.metrics.RecordProviderError(ctx, p.client.Name, Classify(err).String())
			if Classify(err) == ClassClient {
				return nil, false, fmt.Errorf("translate: non-retriable: %w", err)
			}
			continue
		}
		p.metrics.TranslationDuration.Record(ctx, time.Since(callStart).Seconds())

		if rep := ValidateBatch(texts, translations, srcLang, tgtLang); !rep.Pass() {
			lastErr = fmt.Errorf("translate: quality validation failed: %d of %d items critical", rep.Critical, rep.Total)
			continue
		}

		p.cache.Set(ctx, texts, srcLang, tgtLang, translations)
		return translations, false, nil
	}
	return nil, false, lastErr
}
