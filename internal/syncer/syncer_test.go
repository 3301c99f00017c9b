package syncer

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

// fakeOps serves probe durations by file name and records adjustments
type fakeOps struct {
	durations map[string]float64

	adjustedFactor float64
	adjustErr      error
	muxed          bool
}

func (f *fakeOps) ProbeDuration(ctx context.Context, path string) (float64, error) {
	d, ok := f.durations[filepath.Base(path)]
	if !ok {
		return 0, errors.New("unknown file: " + path)
	}
	return d, nil
}

func (f *fakeOps) AdjustSpeed(ctx context.Context, input, output string, factor, fps float64) error {
	if f.adjustErr != nil {
		return f.adjustErr
	}
	f.adjustedFactor = factor
	return nil
}

func (f *fakeOps) Mux(ctx context.Context, video, audio, output string) error {
	f.muxed = true
	return nil
}

func testSynchronizer(t *testing.T, ops MediaOps) *Synchronizer {
	t.Helper()
	return New(zerolog.Nop(), ops, t.TempDir(), 0.1, 0.05, 30)
}

func TestCorrectWithinTolerance(t *testing.T) {
	ops := &fakeOps{durations: map[string]float64{"visual.mp4": 30.05}}
	s := testSynchronizer(t, ops)

	corr, err := s.Correct(context.Background(), "visual.mp4", 30.0)
	if err != nil {
		t.Fatalf("Correct failed: %v", err)
	}
	if corr.SpeedAdjusted {
		t.Error("drift within tolerance must not trigger adjustment")
	}
	if corr.Path != "visual.mp4" {
		t.Errorf("expected untouched path, got %s", corr.Path)
	}
	if corr.SpeedFactor != 1.0 {
		t.Errorf("expected factor 1.0, got %v", corr.SpeedFactor)
	}
	if math.Abs(corr.Drift-0.05) > 1e-9 {
		t.Errorf("expected drift 0.05, got %v", corr.Drift)
	}
}

func TestCorrectAppliesBoundedFactor(t *testing.T) {
	ops := &fakeOps{durations: map[string]float64{
		"visual.mp4":         30.9,
		"speed_adjusted.mp4": 30.0,
	}}
	s := testSynchronizer(t, ops)

	corr, err := s.Correct(context.Background(), "visual.mp4", 30.0)
	if err != nil {
		t.Fatalf("Correct failed: %v", err)
	}
	if !corr.SpeedAdjusted {
		t.Fatal("expected a speed adjustment")
	}
	if math.Abs(corr.SpeedFactor-1.03) > 1e-9 {
		t.Errorf("expected factor 1.03, got %v", corr.SpeedFactor)
	}
	if math.Abs(ops.adjustedFactor-1.03) > 1e-9 {
		t.Errorf("adjustment called with factor %v", ops.adjustedFactor)
	}
	if filepath.Base(corr.Path) != "speed_adjusted.mp4" {
		t.Errorf("expected corrected path, got %s", corr.Path)
	}
}

func TestCorrectRejectsUnboundedFactor(t *testing.T) {
	// 36s visual against a 30s track wants factor 1.2, far outside 1.05
	ops := &fakeOps{durations: map[string]float64{"visual.mp4": 36.0}}
	s := testSynchronizer(t, ops)

	_, err := s.Correct(context.Background(), "visual.mp4", 30.0)

	var syncErr *SyncError
	if !errors.As(err, &syncErr) {
		t.Fatalf("expected SyncError, got %v", err)
	}
	if math.Abs(syncErr.Factor-1.2) > 1e-9 {
		t.Errorf("expected factor 1.2 in error, got %v", syncErr.Factor)
	}
	if ops.adjustedFactor != 0 {
		t.Error("no adjustment may be attempted for an unbounded factor")
	}
}

func TestCorrectVerifiesResidualDrift(t *testing.T) {
	// the adjusted file still drifts; that is a failure, not a silent pass
	ops := &fakeOps{durations: map[string]float64{
		"visual.mp4":         30.9,
		"speed_adjusted.mp4": 30.6,
	}}
	s := testSynchronizer(t, ops)

	_, err := s.Correct(context.Background(), "visual.mp4", 30.0)

	var syncErr *SyncError
	if !errors.As(err, &syncErr) {
		t.Fatalf("expected SyncError for residual drift, got %v", err)
	}
}

func TestCorrectRejectsInvalidAudio(t *testing.T) {
	s := testSynchronizer(t, &fakeOps{})
	if _, err := s.Correct(context.Background(), "visual.mp4", 0); err == nil {
		t.Error("expected error for zero audio duration")
	}
}

func TestFinalize(t *testing.T) {
	ops := &fakeOps{}
	s := testSynchronizer(t, ops)

	if err := s.Finalize(context.Background(), "visual.mp4", "track.mp3", "out.mp4"); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	if !ops.muxed {
		t.Error("expected mux call")
	}
}
