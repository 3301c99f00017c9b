package compose

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"beatlock/internal/reconcile"
	"beatlock/internal/timeline"
	"beatlock/pkg/util"
)

// MediaOps is the subset of ffmpeg operations the compositor uses
type MediaOps interface {
	Concat(ctx context.Context, inputs []string, output string) error
	Crossfade(ctx context.Context, first, second, output string, overlap, firstDuration time.Duration) error
	FadeEdges(ctx context.Context, input, output string, fadeIn, fadeOut, clipDuration time.Duration) error
}

// Output is the composed visual timeline plus its duration budget.
// ExpectedDuration accounts for crossfade overlap compression and for any
// junctions degraded to cuts.
type Output struct {
	Path             string
	ExpectedDuration float64
	Degradations     []timeline.Degradation
}

// Compositor joins reconciled clips into a single visual timeline,
// applying the planned transition at each junction. A junction whose
// transition cannot be rendered degrades to a hard cut; the run continues.
type Compositor struct {
	logger     zerolog.Logger
	ops        MediaOps
	scratchDir string
}

// New creates a compositor writing intermediates into scratchDir
func New(logger zerolog.Logger, ops MediaOps, scratchDir string) *Compositor {
	return &Compositor{
		logger:     logger.With().Str("component", "compose").Logger(),
		ops:        ops,
		scratchDir: scratchDir,
	}
}

// Compose builds the visual timeline. Clips must arrive in ascending index
// order with one transition per adjacent pair.
func (c *Compositor) Compose(ctx context.Context, clips []*reconcile.ReconciledClip, transitions []timeline.Transition) (*Output, error) {
	if len(clips) == 0 {
		return nil, fmt.Errorf("no clips to compose")
	}
	if len(transitions) != len(clips)-1 {
		return nil, fmt.Errorf("expected %d transitions for %d clips, got %d", len(clips)-1, len(clips), len(transitions))
	}

	out := &Output{}

	// Fades happen inside each clip's own span, so they are applied per
	// clip up front; a clip can carry a fade-in from one junction and a
	// fade-out from the next.
	paths, fadeDegradations := c.applyFades(ctx, clips, transitions)
	out.Degradations = append(out.Degradations, fadeDegradations...)

	// Clips joined by cuts or fades form runs that concat without
	// re-encoding; crossfade junctions split runs and are folded pairwise.
	type run struct {
		inputs   []string
		duration float64
	}

	runs := []run{{inputs: []string{paths[0]}, duration: clips[0].FinalDuration}}
	var overlaps []float64

	for i, t := range transitions {
		next := clips[i+1]
		if t.Kind == timeline.TransitionCrossfade {
			runs = append(runs, run{inputs: []string{paths[i+1]}, duration: next.FinalDuration})
			overlaps = append(overlaps, t.Duration)
			continue
		}
		last := &runs[len(runs)-1]
		last.inputs = append(last.inputs, paths[i+1])
		last.duration += next.FinalDuration
	}

	// Collapse each run into one segment file
	segments := make([]string, len(runs))
	durations := make([]float64, len(runs))
	for i, r := range runs {
		if len(r.inputs) == 1 {
			segments[i] = r.inputs[0]
		} else {
			seg := filepath.Join(c.scratchDir, fmt.Sprintf("segment_%03d.mp4", i))
			if err := c.ops.Concat(ctx, r.inputs, seg); err != nil {
				return nil, fmt.Errorf("segment %d: %w", i, err)
			}
			segments[i] = seg
		}
		durations[i] = r.duration
	}

	// Fold crossfade junctions left to right
	current := segments[0]
	currentDur := durations[0]
	crossfadeIdx := 0
	for i := 1; i < len(segments); i++ {
		overlap := overlaps[i-1]
		merged := filepath.Join(c.scratchDir, fmt.Sprintf("xfade_%03d.mp4", i))

		err := c.ops.Crossfade(ctx, current, segments[i], merged,
			util.SecondsToDuration(overlap), util.SecondsToDuration(currentDur))
		if err != nil {
			t := nthCrossfade(transitions, crossfadeIdx)
			c.logger.Warn().
				Err(err).
				Int("from", t.FromIndex).
				Int("to", t.ToIndex).
				Msg("crossfade failed, degrading junction to cut")
			out.Degradations = append(out.Degradations, timeline.Degradation{
				FromIndex: t.FromIndex,
				ToIndex:   t.ToIndex,
				Detail:    "crossfade failed, joined with cut",
			})
			if err := c.ops.Concat(ctx, []string{current, segments[i]}, merged); err != nil {
				return nil, fmt.Errorf("cut fallback at junction %d->%d: %w", t.FromIndex, t.ToIndex, err)
			}
			currentDur += durations[i]
		} else {
			currentDur += durations[i] - overlap
		}
		current = merged
		crossfadeIdx++
	}

	out.Path = current
	out.ExpectedDuration = currentDur

	c.logger.Info().
		Int("clips", len(clips)).
		Int("degradations", len(out.Degradations)).
		Float64("expected_duration", out.ExpectedDuration).
		Msg("visual timeline composed")

	return out, nil
}

// applyFades renders fade-to-black edges for fade junctions and returns the
// per-clip paths to feed the join stage. A junction degrades to a cut when
// either of its halves cannot be rendered, and the surviving half's fade is
// stripped so the cut is clean on both sides.
func (c *Compositor) applyFades(ctx context.Context, clips []*reconcile.ReconciledClip, transitions []timeline.Transition) ([]string, []timeline.Degradation) {
	fadeIn := make([]float64, len(clips))  // requested by the junction to the clip's left
	fadeOut := make([]float64, len(clips)) // requested by the junction to the clip's right
	for i, t := range transitions {
		if t.Kind != timeline.TransitionFade {
			continue
		}
		fadeOut[i] = t.Duration
		fadeIn[i+1] = t.Duration
	}

	paths := make([]string, len(clips))
	rendered := make([]bool, len(clips))
	failed := make([]bool, len(clips))

	for i, clip := range clips {
		paths[i] = clip.Path
		if fadeIn[i] <= 0 && fadeOut[i] <= 0 {
			continue
		}

		faded := filepath.Join(c.scratchDir, fmt.Sprintf("faded_%03d.mp4", clip.Index))
		err := c.ops.FadeEdges(ctx, clip.Path, faded,
			util.SecondsToDuration(fadeIn[i]),
			util.SecondsToDuration(fadeOut[i]),
			util.SecondsToDuration(clip.FinalDuration))
		if err != nil {
			c.logger.Warn().
				Err(err).
				Int("clip", clip.Index).
				Msg("fade render failed")
			failed[i] = true
			continue
		}
		paths[i] = faded
		rendered[i] = true
	}

	// a junction degrades when either half failed; a middle clip serving
	// two junctions takes both down with it
	degradedJunction := make([]bool, len(transitions))
	var degradations []timeline.Degradation
	degrade := func(j int) {
		if degradedJunction[j] {
			return
		}
		degradedJunction[j] = true
		degradations = append(degradations, timeline.Degradation{
			FromIndex: transitions[j].FromIndex,
			ToIndex:   transitions[j].ToIndex,
			Detail:    "fade failed, joined with cut",
		})
	}
	for j, t := range transitions {
		if t.Kind != timeline.TransitionFade {
			continue
		}
		if failed[j] || failed[j+1] {
			degrade(j)
		}
	}

	// strip the surviving half of each degraded junction
	for i, clip := range clips {
		if !rendered[i] {
			continue
		}
		keepIn, keepOut := fadeIn[i], fadeOut[i]
		if keepIn > 0 && degradedJunction[i-1] {
			keepIn = 0
		}
		if keepOut > 0 && degradedJunction[i] {
			keepOut = 0
		}
		if keepIn == fadeIn[i] && keepOut == fadeOut[i] {
			continue
		}
		if keepIn <= 0 && keepOut <= 0 {
			paths[i] = clip.Path
			continue
		}

		refaded := filepath.Join(c.scratchDir, fmt.Sprintf("refaded_%03d.mp4", clip.Index))
		err := c.ops.FadeEdges(ctx, clip.Path, refaded,
			util.SecondsToDuration(keepIn),
			util.SecondsToDuration(keepOut),
			util.SecondsToDuration(clip.FinalDuration))
		if err != nil {
			// the one remaining fade's junction degrades as well
			c.logger.Warn().Err(err).Int("clip", clip.Index).Msg("fade re-render failed")
			paths[i] = clip.Path
			if keepIn > 0 {
				degrade(i - 1)
			} else {
				degrade(i)
			}
			continue
		}
		paths[i] = refaded
	}

	return paths, degradations
}

func nthCrossfade(transitions []timeline.Transition, n int) timeline.Transition {
	seen := 0
	for _, t := range transitions {
		if t.Kind == timeline.TransitionCrossfade {
			if seen == n {
				return t
			}
			seen++
		}
	}
	return timeline.Transition{}
}
