package reconcile

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"beatlock/internal/timeline"
)

func TestPlanWithinFrame(t *testing.T) {
	// 20ms delta at 30fps is under one frame; leave the clip alone
	d, err := Plan(4.02, 4.0, 30)
	if err != nil {
		t.Fatal(err)
	}
	if d.Strategy != StrategyNone {
		t.Errorf("expected none, got %s", d.Strategy)
	}
	if d.FinalDuration != 4.02 {
		t.Errorf("expected untouched duration, got %v", d.FinalDuration)
	}
}

func TestPlanTrim(t *testing.T) {
	d, err := Plan(6.5, 4.0, 30)
	if err != nil {
		t.Fatal(err)
	}
	if d.Strategy != StrategyTrimmed {
		t.Fatalf("expected trimmed, got %s", d.Strategy)
	}
	if d.FinalDuration != 4.0 {
		t.Errorf("expected final 4.0, got %v", d.FinalDuration)
	}
	if d.Delta != 2.5 {
		t.Errorf("expected delta 2.5, got %v", d.Delta)
	}
}

func TestPlanLoop(t *testing.T) {
	cases := []struct {
		actual, target float64
		extraLoops     int
	}{
		{2.0, 5.0, 2},  // 3 passes, last truncated
		{2.0, 4.0, 1},  // exactly 2 passes
		{3.9, 4.0, 1},  // barely short still needs a pass
		{1.0, 10.0, 9}, // many passes
	}

	for _, tc := range cases {
		d, err := Plan(tc.actual, tc.target, 30)
		if err != nil {
			t.Fatal(err)
		}
		if d.Strategy != StrategyLooped {
			t.Errorf("Plan(%v, %v): expected looped, got %s", tc.actual, tc.target, d.Strategy)
		}
		if d.ExtraLoops != tc.extraLoops {
			t.Errorf("Plan(%v, %v): expected %d extra loops, got %d",
				tc.actual, tc.target, tc.extraLoops, d.ExtraLoops)
		}
		if d.FinalDuration != tc.target {
			t.Errorf("Plan(%v, %v): expected final %v, got %v",
				tc.actual, tc.target, tc.target, d.FinalDuration)
		}
	}
}

func TestPlanDeterministic(t *testing.T) {
	a, _ := Plan(3.7, 5.2, 30)
	b, _ := Plan(3.7, 5.2, 30)
	if a != b {
		t.Errorf("same inputs gave different decisions: %+v vs %+v", a, b)
	}
}

func TestPlanNeverExtends(t *testing.T) {
	// no decision may yield a duration beyond max(actual, target)
	for _, actual := range []float64{0.5, 2.0, 4.0, 7.3} {
		for _, target := range []float64{1.0, 4.0, 6.0} {
			d, err := Plan(actual, target, 30)
			if err != nil {
				t.Fatal(err)
			}
			limit := actual
			if target > limit {
				limit = target
			}
			if d.FinalDuration > limit {
				t.Errorf("Plan(%v, %v) extends to %v", actual, target, d.FinalDuration)
			}
		}
	}
}

func TestPlanInvalidInputs(t *testing.T) {
	if _, err := Plan(0, 4, 30); err == nil {
		t.Error("expected error for zero actual duration")
	}
	if _, err := Plan(4, -1, 30); err == nil {
		t.Error("expected error for negative target")
	}
}

// fakeOps records reconciliation media calls without touching ffmpeg.
// probed is the duration reported for written files; zero reports the
// last requested target.
type fakeOps struct {
	trims      int
	loops      int
	loopExtra  int
	frameErr   error
	lastTarget time.Duration
	probed     float64
}

func (f *fakeOps) TrimTail(ctx context.Context, input, output string, target time.Duration) error {
	f.trims++
	f.lastTarget = target
	return nil
}

func (f *fakeOps) Loop(ctx context.Context, input, output string, extraLoops int, target time.Duration) error {
	f.loops++
	f.loopExtra = extraLoops
	f.lastTarget = target
	return nil
}

func (f *fakeOps) ExtractFrame(ctx context.Context, input string, at time.Duration, output string) error {
	if f.frameErr != nil {
		return f.frameErr
	}
	return os.WriteFile(output, []byte("not a real frame"), 0644)
}

func (f *fakeOps) ExtractLastFrame(ctx context.Context, input, output string) error {
	if f.frameErr != nil {
		return f.frameErr
	}
	return os.WriteFile(output, []byte("not a real frame"), 0644)
}

func (f *fakeOps) ProbeDuration(ctx context.Context, path string) (float64, error) {
	if f.probed != 0 {
		return f.probed, nil
	}
	return f.lastTarget.Seconds(), nil
}

func testReconciler(t *testing.T, ops MediaOps) *Reconciler {
	t.Helper()
	return New(zerolog.Nop(), ops, t.TempDir(), 30, 2.0, 0.12)
}

func TestReconcileTrims(t *testing.T) {
	ops := &fakeOps{}
	r := testReconciler(t, ops)

	clip := timeline.GeneratedClip{Index: 1, Path: "/tmp/c1.mp4", Status: timeline.StatusOK}
	boundary := timeline.Boundary{Index: 1, Start: 4, End: 8}

	rc, err := r.Reconcile(context.Background(), clip, boundary, "/tmp/norm1.mp4", 5.0)
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if rc.Strategy != StrategyTrimmed {
		t.Errorf("expected trimmed, got %s", rc.Strategy)
	}
	if ops.trims != 1 || ops.loops != 0 {
		t.Errorf("unexpected op mix: %d trims, %d loops", ops.trims, ops.loops)
	}
	if ops.lastTarget != 4*time.Second {
		t.Errorf("expected 4s target, got %v", ops.lastTarget)
	}
	if rc.Path == "/tmp/norm1.mp4" {
		t.Error("trimmed clip should live in scratch, not overwrite the input")
	}
}

func TestReconcileLoops(t *testing.T) {
	// frame extraction fails, so the loop-point heuristic reports a hard
	// join but looping still proceeds
	ops := &fakeOps{frameErr: errors.New("boom")}
	r := testReconciler(t, ops)

	clip := timeline.GeneratedClip{Index: 0, Path: "/tmp/c0.mp4", Status: timeline.StatusOK}
	boundary := timeline.Boundary{Index: 0, Start: 0, End: 5}

	rc, err := r.Reconcile(context.Background(), clip, boundary, "/tmp/norm0.mp4", 2.0)
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if rc.Strategy != StrategyLooped {
		t.Errorf("expected looped, got %s", rc.Strategy)
	}
	if rc.SeamlessLoop {
		t.Error("seamless detection must fail closed")
	}
	if ops.loops != 1 || ops.loopExtra != 2 {
		t.Errorf("expected 1 loop with 2 extra passes, got %d loops with %d", ops.loops, ops.loopExtra)
	}
	if rc.FinalDuration != 5.0 {
		t.Errorf("expected final 5.0, got %v", rc.FinalDuration)
	}
}

func TestReconcileRejectsDriftedOutput(t *testing.T) {
	// the trim writes a file that measures far off the target: the
	// tolerance guard must fire on the written file, not the plan
	ops := &fakeOps{probed: 7.2}
	r := testReconciler(t, ops)

	clip := timeline.GeneratedClip{Index: 0, Path: "/tmp/c0.mp4", Status: timeline.StatusOK}
	boundary := timeline.Boundary{Index: 0, Start: 0, End: 4}

	_, err := r.Reconcile(context.Background(), clip, boundary, "/tmp/norm0.mp4", 9.0)
	if err == nil {
		t.Fatal("expected tolerance error for drifted output")
	}
	if ops.trims != 1 {
		t.Errorf("trim should have been attempted, got %d", ops.trims)
	}
}

func TestReconcileLeavesMatchingClip(t *testing.T) {
	ops := &fakeOps{}
	r := testReconciler(t, ops)

	clip := timeline.GeneratedClip{Index: 2, Path: "/tmp/c2.mp4", Status: timeline.StatusOK}
	boundary := timeline.Boundary{Index: 2, Start: 8, End: 12}

	rc, err := r.Reconcile(context.Background(), clip, boundary, "/tmp/norm2.mp4", 4.01)
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if rc.Strategy != StrategyNone {
		t.Errorf("expected none, got %s", rc.Strategy)
	}
	if rc.Path != "/tmp/norm2.mp4" {
		t.Errorf("untouched clip should keep its normalized path, got %s", rc.Path)
	}
	if ops.trims+ops.loops != 0 {
		t.Error("no media ops expected for a matching clip")
	}
}
