package reconcile

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"beatlock/internal/timeline"
	"beatlock/pkg/util"
)

// Strategy tags how a clip's duration was reconciled to its boundary
type Strategy string

const (
	StrategyNone    Strategy = "none"
	StrategyTrimmed Strategy = "trimmed"
	StrategyLooped  Strategy = "looped"
)

// ReconciledClip is a clip whose duration matches its beat-derived target.
// It lives in the run's scratch directory and is discarded after encode.
type ReconciledClip struct {
	Index         int
	Path          string
	FinalDuration float64
	Strategy      Strategy
	Delta         float64
	SeamlessLoop  bool
}

// Decision is the pure outcome of planning one clip's reconciliation.
// Shortfall is never resolved by stretching frames; a too-short clip is
// looped and residual drift is left to the whole-timeline speed pass.
type Decision struct {
	Strategy      Strategy
	FinalDuration float64
	Delta         float64
	ExtraLoops    int
}

// Plan decides how a clip of actualDuration is reconciled to targetDuration.
// Deterministic: the same inputs always yield the same decision. Deltas
// smaller than one frame at the canonical rate are left in place and
// absorbed by the global speed correction.
func Plan(actualDuration, targetDuration, fps float64) (Decision, error) {
	if actualDuration <= 0 {
		return Decision{}, fmt.Errorf("invalid actual duration %.3f", actualDuration)
	}
	if targetDuration <= 0 {
		return Decision{}, fmt.Errorf("invalid target duration %.3f", targetDuration)
	}
	if fps <= 0 {
		fps = 30
	}

	delta := actualDuration - targetDuration
	frame := 1.0 / fps

	switch {
	case math.Abs(delta) < frame:
		return Decision{
			Strategy:      StrategyNone,
			FinalDuration: actualDuration,
			Delta:         delta,
		}, nil

	case delta > 0:
		return Decision{
			Strategy:      StrategyTrimmed,
			FinalDuration: targetDuration,
			Delta:         delta,
		}, nil

	default:
		// Whole passes beyond the first; the final pass is truncated at the
		// target so the output is built only of repeats of original frames.
		extra := int(math.Ceil(targetDuration/actualDuration)) - 1
		if extra < 1 {
			extra = 1
		}
		return Decision{
			Strategy:      StrategyLooped,
			FinalDuration: targetDuration,
			Delta:         delta,
			ExtraLoops:    extra,
		}, nil
	}
}

// MediaOps is the subset of ffmpeg operations the reconciler applies
type MediaOps interface {
	TrimTail(ctx context.Context, input, output string, target time.Duration) error
	Loop(ctx context.Context, input, output string, extraLoops int, target time.Duration) error
	ExtractFrame(ctx context.Context, input string, at time.Duration, output string) error
	ExtractLastFrame(ctx context.Context, input, output string) error
	ProbeDuration(ctx context.Context, path string) (float64, error)
}

// Reconciler applies reconciliation decisions to normalized clips
type Reconciler struct {
	logger     zerolog.Logger
	ops        MediaOps
	scratchDir string
	fps        float64
	tolerance  float64
	similarity float64
}

// New creates a reconciler writing derived clips into scratchDir
func New(logger zerolog.Logger, ops MediaOps, scratchDir string, fps, tolerance, similarity float64) *Reconciler {
	if tolerance <= 0 {
		tolerance = 2.0
	}
	return &Reconciler{
		logger:     logger.With().Str("component", "reconcile").Logger(),
		ops:        ops,
		scratchDir: scratchDir,
		fps:        fps,
		tolerance:  tolerance,
		similarity: similarity,
	}
}

// Reconcile brings one normalized clip to its boundary's target duration.
// actualDuration is the probed duration of the normalized file, which may
// differ slightly from the manifest's figure after frame-rate conversion.
func (r *Reconciler) Reconcile(ctx context.Context, clip timeline.GeneratedClip, boundary timeline.Boundary, normalizedPath string, actualDuration float64) (*ReconciledClip, error) {
	target := boundary.Target()

	decision, err := Plan(actualDuration, target, r.fps)
	if err != nil {
		return nil, fmt.Errorf("clip %d: %w", clip.Index, err)
	}

	r.logger.Debug().
		Int("clip", clip.Index).
		Float64("actual", actualDuration).
		Float64("target", target).
		Str("strategy", string(decision.Strategy)).
		Msg("reconciliation planned")

	out := &ReconciledClip{
		Index:         clip.Index,
		Path:          normalizedPath,
		FinalDuration: decision.FinalDuration,
		Strategy:      decision.Strategy,
		Delta:         decision.Delta,
	}

	switch decision.Strategy {
	case StrategyNone:
		// already within a frame of the target

	case StrategyTrimmed:
		trimmed := filepath.Join(r.scratchDir, fmt.Sprintf("reconciled_%03d.mp4", clip.Index))
		if err := r.ops.TrimTail(ctx, normalizedPath, trimmed, util.SecondsToDuration(target)); err != nil {
			return nil, fmt.Errorf("clip %d: %w", clip.Index, err)
		}
		out.Path = trimmed

	case StrategyLooped:
		out.SeamlessLoop = r.detectSeamlessLoop(ctx, normalizedPath, clip.Index)
		looped := filepath.Join(r.scratchDir, fmt.Sprintf("reconciled_%03d.mp4", clip.Index))
		if err := r.ops.Loop(ctx, normalizedPath, looped, decision.ExtraLoops, util.SecondsToDuration(target)); err != nil {
			return nil, fmt.Errorf("clip %d: %w", clip.Index, err)
		}
		out.Path = looped
	}

	// trust the container, not the plan: -t truncation lands on frame
	// boundaries, so the written file is measured before the tolerance check
	if decision.Strategy != StrategyNone {
		measured, err := r.ops.ProbeDuration(ctx, out.Path)
		if err != nil {
			return nil, fmt.Errorf("clip %d: %w", clip.Index, err)
		}
		out.FinalDuration = measured
	}

	if math.Abs(out.FinalDuration-target) > r.tolerance {
		return nil, fmt.Errorf("clip %d: final duration %.3f outside tolerance of target %.3f",
			clip.Index, out.FinalDuration, target)
	}

	r.logger.Info().
		Int("clip", clip.Index).
		Str("strategy", string(decision.Strategy)).
		Float64("final", out.FinalDuration).
		Float64("delta", out.Delta).
		Bool("seamless", out.SeamlessLoop).
		Msg("clip reconciled")

	return out, nil
}
