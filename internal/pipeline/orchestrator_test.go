package pipeline

import (
	"context"
	"errors"
	"math"
	"testing"
)

func TestOrchestratorStopsOnError(t *testing.T) {
	store := newTestStore(t)
	r, _ := newTestRunner(t, store)
	env := seedJob(t, store)
	env.Job.Media.DurationSec = 30
	if err := store.Save(env.Job); err != nil {
		t.Fatal(err)
	}
	writeScratchFile(t, env.Scratch, "original.wav")
	writeScratchFile(t, env.Scratch, "normalized.wav")

	download := &stubPhase{id: PhaseDownload, results: []Result{Ok(nil, nil)}}
	normalize := &stubPhase{id: PhaseNormalize, results: []Result{Fail(errors.New("Conversion failed"))}}
	separate := &stubPhase{id: PhaseSeparate, results: []Result{Ok(nil, nil)}}

	o := NewOrchestrator(r, []Phase{download, normalize, separate}, true, nil)
	results := o.Run(context.Background(), env)

	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	if separate.calls != 0 {
		t.Errorf("phase after failure executed %d times", separate.calls)
	}
	if results[PhaseNormalize].Success {
		t.Error("failed phase recorded as success")
	}

	id, res, ok := FirstFailure(results)
	if !ok || id != PhaseNormalize {
		t.Errorf("FirstFailure = %v, %v, want normalize", id, ok)
	}
	if res.Err == nil {
		t.Error("FirstFailure lost the error")
	}
}

func TestOrchestratorContinuesWithoutStopOnError(t *testing.T) {
	store := newTestStore(t)
	r, _ := newTestRunner(t, store)
	env := seedJob(t, store)
	env.Job.Media.DurationSec = 30
	if err := store.Save(env.Job); err != nil {
		t.Fatal(err)
	}
	writeScratchFile(t, env.Scratch, "original.wav")

	download := &stubPhase{id: PhaseDownload, results: []Result{Fail(errors.New("down"))}}
	normalize := &stubPhase{id: PhaseNormalize, results: []Result{Ok(nil, nil)}}

	o := NewOrchestrator(r, []Phase{download, normalize}, false, nil)
	results := o.Run(context.Background(), env)

	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	if normalize.calls == 0 {
		t.Error("later phase skipped without stop-on-error")
	}
}

func TestOrchestratorCanceledContext(t *testing.T) {
	store := newTestStore(t)
	r, _ := newTestRunner(t, store)
	env := seedJob(t, store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	download := &stubPhase{id: PhaseDownload, results: []Result{Ok(nil, nil)}}
	o := NewOrchestrator(r, []Phase{download}, true, nil)
	results := o.Run(ctx, env)

	if download.calls != 0 {
		t.Errorf("phase executed %d times on canceled context", download.calls)
	}
	if res := results[PhaseDownload]; res.Err == nil {
		t.Error("cancellation not recorded in results")
	}
}

func TestSummarize(t *testing.T) {
	results := map[ID]Result{
		PhaseDownload:  {Success: true, DurationSec: 10},
		PhaseNormalize: {Success: true, DurationSec: 5},
		PhaseSeparate:  {Err: errors.New("boom"), DurationSec: 2.5},
	}
	s := Summarize(results)
	if s.TotalPhases != 3 || s.SuccessfulPhases != 2 || s.FailedPhases != 1 {
		t.Errorf("counts = %+v", s)
	}
	if s.TotalDurationSec != 17.5 {
		t.Errorf("total duration = %v, want 17.5", s.TotalDurationSec)
	}
	if math.Abs(s.SuccessRate-2.0/3.0) > 1e-9 {
		t.Errorf("success rate = %v, want 2/3", s.SuccessRate)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil)
	if s.TotalPhases != 0 || s.SuccessRate != 0 {
		t.Errorf("empty summary = %+v", s)
	}
}
