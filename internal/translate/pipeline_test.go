package translate

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/talkdub-lab/talkdub/internal/job"
	"github.com/talkdub-lab/talkdub/pkg/provider/llm"
	"github.com/talkdub-lab/talkdub/pkg/provider/llm/mock"
)

func newTestPipeline(t *testing.T, p llm.Provider, opts Options) *Pipeline {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	pipe := NewPipeline(
		NewClient(p, "groq"),
		NewCache(rdb, time.Hour, nil),
		NewRateLimiter(rdb, 1000, 1.0, nil),
		opts,
		nil,
	)
	pipe.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return pipe
}

func defaultOpts() Options {
	return Options{
		CharLimit:      2000,
		SegLimit:       30,
		MaxRetries:     3,
		BackoffBase:    time.Millisecond,
		AcquireTimeout: time.Second,
	}
}

// echoProvider answers every batch with "T:<source>" per segment.
func echoProvider() *mock.Provider {
	return &mock.Provider{
		CompleteFunc: func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			var items []string
			for _, line := range strings.Split(req.Messages[0].Content, "\n") {
				idx := strings.Index(line, ": ")
				if idx < 0 {
					continue
				}
				n, err := strconv.Atoi(line[:idx])
				if err != nil {
					continue
				}
				items = append(items, fmt.Sprintf(`{"id":%d,"translation":"T:%s"}`, n, line[idx+2:]))
			}
			return &llm.CompletionResponse{
				Content: `{"translations":[` + strings.Join(items, ",") + `]}`,
			}, nil
		},
	}
}

func makeSegments(texts ...string) []job.Segment {
	segs := make([]job.Segment, len(texts))
	for i, txt := range texts {
		segs[i] = job.Segment{
			SegID:       job.SegID(i),
			Start:       float64(i),
			End:         float64(i) + 1,
			SrcText:     txt,
			Translation: job.SegmentStep{Status: job.TranslationPending},
		}
	}
	return segs
}

func TestPipeline_TranslatesAllSegments(t *testing.T) {
	t.Parallel()
	segs := makeSegments("one", "two", "three")
	pipe := newTestPipeline(t, echoProvider(), defaultOpts())

	res, err := pipe.Run(context.Background(), segs, "en", "de")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.TranslatedSegments != 3 || res.FailedChunks != 0 {
		t.Errorf("result = %+v", res)
	}
	for i, s := range segs {
		if s.TgtText != "T:"+s.SrcText {
			t.Errorf("segment %d TgtText = %q", i, s.TgtText)
		}
		if s.Translation.Status != job.TranslationCompleted {
			t.Errorf("segment %d status = %s", i, s.Translation.Status)
		}
		if s.Translation.Provider != "groq" {
			t.Errorf("segment %d provider = %q", i, s.Translation.Provider)
		}
	}
}

func TestPipeline_SkipsHallucinations(t *testing.T) {
	t.Parallel()
	segs := makeSegments("keep", "drop", "keep2")
	segs[1].Flags.SuspectedHallucination = true
	pipe := newTestPipeline(t, echoProvider(), defaultOpts())

	res, err := pipe.Run(context.Background(), segs, "ja", "en")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.SkippedSegments != 1 {
		t.Errorf("SkippedSegments = %d, want 1", res.SkippedSegments)
	}
	if segs[1].TgtText != "" {
		t.Errorf("hallucinated segment should keep empty TgtText, got %q", segs[1].TgtText)
	}
	if segs[1].Translation.Status != job.TranslationPending {
		t.Errorf("hallucinated segment status = %s, want pending", segs[1].Translation.Status)
	}
	if segs[0].TgtText == "" || segs[2].TgtText == "" {
		t.Error("non-flagged segments should be translated")
	}
}

func TestPipeline_FailedChunkFallsBackToSource(t *testing.T) {
	t.Parallel()
	// Three chunks of one segment each; the middle chunk always errors.
	opts := defaultOpts()
	opts.SegLimit = 1

	var call int
	p := &mock.Provider{
		CompleteFunc: func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			call++
			if strings.Contains(req.Messages[0].Content, "middle") {
				return nil, errors.New("request failed with status 500")
			}
			return echoProvider().CompleteFunc(ctx, req)
		},
	}
	segs := makeSegments("first", "middle", "last")
	pipe := newTestPipeline(t, p, opts)

	res, err := pipe.Run(context.Background(), segs, "ja", "en")
	if err != nil {
		t.Fatalf("Run should succeed at 1/3 failure ratio: %v", err)
	}
	if res.FailedChunks != 1 || res.TotalChunks != 3 {
		t.Errorf("result = %+v", res)
	}
	if segs[1].TgtText != "middle" {
		t.Errorf("failed segment should fall back to source text, got %q", segs[1].TgtText)
	}
	if segs[1].Translation.Status != job.TranslationFailed {
		t.Errorf("failed segment status = %s", segs[1].Translation.Status)
	}
	if segs[0].Translation.Status != job.TranslationCompleted || segs[2].Translation.Status != job.TranslationCompleted {
		t.Error("other chunks should still complete")
	}
}

func TestPipeline_AbortsPastHalfFailed(t *testing.T) {
	t.Parallel()
	opts := defaultOpts()
	opts.SegLimit = 1

	p := &mock.Provider{
		CompleteFunc: func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			if strings.Contains(req.Messages[0].Content, "good") {
				return echoProvider().CompleteFunc(ctx, req)
			}
			return nil, errors.New("request failed with status 500")
		},
	}
	segs := makeSegments("good", "bad1", "bad2")
	pipe := newTestPipeline(t, p, opts)

	_, err := pipe.Run(context.Background(), segs, "ja", "en")
	if !errors.Is(err, ErrTooManyFailures) {
		t.Errorf("Run = %v, want ErrTooManyFailures at 2/3 failed", err)
	}
}

func TestPipeline_RetriesThenSucceeds(t *testing.T) {
	t.Parallel()
	var calls int
	p := &mock.Provider{
		CompleteFunc: func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			calls++
			if calls < 3 {
				return nil, errors.New("request failed with status 503")
			}
			return echoProvider().CompleteFunc(ctx, req)
		},
	}
	segs := makeSegments("hello")
	pipe := newTestPipeline(t, p, defaultOpts())

	res, err := pipe.Run(context.Background(), segs, "en", "fr")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if calls != 3 {
		t.Errorf("LLM called %d times, want 3", calls)
	}
	if res.FailedChunks != 0 {
		t.Errorf("result = %+v", res)
	}
}

func TestPipeline_ClientErrorNotRetried(t *testing.T) {
	t.Parallel()
	var calls int
	p := &mock.Provider{
		CompleteFunc: func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			calls++
			return nil, errors.New("request failed with status 400 Bad Request")
		},
	}
	segs := makeSegments("hello")
	pipe := newTestPipeline(t, p, defaultOpts())

	res, err := pipe.Run(context.Background(), segs, "en", "fr")
	if !errors.Is(err, ErrTooManyFailures) {
		t.Errorf("Run = %v, want abort (single chunk failed)", err)
	}
	if calls != 1 {
		t.Errorf("client error retried %d times, want 1 call", calls)
	}
	if res.FailedChunks != 1 {
		t.Errorf("result = %+v", res)
	}
}

func TestPipeline_UsesCacheOnSecondRun(t *testing.T) {
	t.Parallel()
	p := echoProvider()
	pipe := newTestPipeline(t, p, defaultOpts())
	ctx := context.Background()

	segs1 := makeSegments("hello", "world")
	if _, err := pipe.Run(ctx, segs1, "en", "de"); err != nil {
		t.Fatal(err)
	}
	callsAfterFirst := len(p.CompleteCalls)

	segs2 := makeSegments("hello", "world")
	res, err := pipe.Run(ctx, segs2, "en", "de")
	if err != nil {
		t.Fatal(err)
	}
	if len(p.CompleteCalls) != callsAfterFirst {
		t.Error("second run should be served from cache without LLM calls")
	}
	if res.CacheHits != 1 {
		t.Errorf("CacheHits = %d, want 1", res.CacheHits)
	}
	if segs2[0].TgtText != "T:hello" {
		t.Errorf("cached translation = %q", segs2[0].TgtText)
	}
}

func TestPipeline_QualityFailureRetries(t *testing.T) {
	t.Parallel()
	var calls int
	p := &mock.Provider{
		CompleteFunc: func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			calls++
			if calls == 1 {
				// Empty translations are critical and fail validation.
				return &llm.CompletionResponse{
					Content: `{"translations":[{"id":0,"translation":""}]}`,
				}, nil
			}
			return echoProvider().CompleteFunc(ctx, req)
		},
	}
	segs := makeSegments("hello")
	pipe := newTestPipeline(t, p, defaultOpts())

	res, err := pipe.Run(context.Background(), segs, "en", "fr")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if calls != 2 {
		t.Errorf("LLM called %d times, want 2 (quality failure retried)", calls)
	}
	if res.FailedChunks != 0 {
		t.Errorf("result = %+v", res)
	}
}
