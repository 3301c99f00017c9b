package syncer

import (
	"context"
	"fmt"
	"math"
	"path/filepath"

	"github.com/rs/zerolog"
)

// MediaOps is the subset of ffmpeg operations the synchronizer uses
type MediaOps interface {
	ProbeDuration(ctx context.Context, path string) (float64, error)
	AdjustSpeed(ctx context.Context, input, output string, factor, fps float64) error
	Mux(ctx context.Context, video, audio, output string) error
}

// SyncError reports that the visual timeline drifted too far from the audio
// for a bounded speed correction to recover. It means per-clip
// reconciliation undershot its tolerance upstream.
type SyncError struct {
	Factor         float64
	VisualDuration float64
	AudioDuration  float64
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync unrecoverable: required speed factor %.4f outside bounds (visual %.3fs, audio %.3fs)",
		e.Factor, e.VisualDuration, e.AudioDuration)
}

// Correction describes the drift measurement and any speed adjustment taken
type Correction struct {
	Path          string
	Drift         float64
	SpeedAdjusted bool
	SpeedFactor   float64
}

// Synchronizer aligns the composed visual timeline with the audio track,
// applying a bounded uniform speed correction when drift exceeds tolerance.
type Synchronizer struct {
	logger       zerolog.Logger
	ops          MediaOps
	scratchDir   string
	tolerance    float64
	maxDeviation float64
	fps          float64
}

// New creates a synchronizer. tolerance is the acceptable drift in seconds,
// maxDeviation the allowed speed-factor departure from 1.0.
func New(logger zerolog.Logger, ops MediaOps, scratchDir string, tolerance, maxDeviation, fps float64) *Synchronizer {
	if tolerance <= 0 {
		tolerance = 0.1
	}
	if maxDeviation <= 0 {
		maxDeviation = 0.05
	}
	return &Synchronizer{
		logger:       logger.With().Str("component", "syncer").Logger(),
		ops:          ops,
		scratchDir:   scratchDir,
		tolerance:    tolerance,
		maxDeviation: maxDeviation,
		fps:          fps,
	}
}

// Correct measures the visual timeline against the audio duration and, if
// the drift exceeds tolerance, applies a clamped uniform speed factor so the
// corrected duration matches the audio. A factor outside the bound fails
// with SyncError: no safe global correction exists.
func (s *Synchronizer) Correct(ctx context.Context, visualPath string, audioDuration float64) (*Correction, error) {
	if audioDuration <= 0 {
		return nil, fmt.Errorf("invalid audio duration %.3f", audioDuration)
	}

	visualDuration, err := s.ops.ProbeDuration(ctx, visualPath)
	if err != nil {
		return nil, fmt.Errorf("failed to probe visual timeline: %w", err)
	}

	drift := math.Abs(visualDuration - audioDuration)
	s.logger.Info().
		Float64("visual", visualDuration).
		Float64("audio", audioDuration).
		Float64("drift", drift).
		Msg("measured sync drift")

	if drift <= s.tolerance {
		return &Correction{
			Path:        visualPath,
			Drift:       drift,
			SpeedFactor: 1.0,
		}, nil
	}

	factor := visualDuration / audioDuration
	if factor < 1.0-s.maxDeviation || factor > 1.0+s.maxDeviation {
		return nil, &SyncError{
			Factor:         factor,
			VisualDuration: visualDuration,
			AudioDuration:  audioDuration,
		}
	}

	adjusted := filepath.Join(s.scratchDir, "speed_adjusted.mp4")
	if err := s.ops.AdjustSpeed(ctx, visualPath, adjusted, factor, s.fps); err != nil {
		return nil, err
	}

	correctedDuration, err := s.ops.ProbeDuration(ctx, adjusted)
	if err != nil {
		return nil, fmt.Errorf("failed to probe corrected timeline: %w", err)
	}

	correctedDrift := math.Abs(correctedDuration - audioDuration)
	if correctedDrift > s.tolerance {
		return nil, &SyncError{
			Factor:         factor,
			VisualDuration: correctedDuration,
			AudioDuration:  audioDuration,
		}
	}

	s.logger.Info().
		Float64("factor", factor).
		Float64("residual_drift", correctedDrift).
		Msg("speed correction applied")

	return &Correction{
		Path:          adjusted,
		Drift:         correctedDrift,
		SpeedAdjusted: true,
		SpeedFactor:   factor,
	}, nil
}

// Finalize muxes the corrected visual timeline with the audio track into
// the output container
func (s *Synchronizer) Finalize(ctx context.Context, visualPath, audioPath, outputPath string) error {
	return s.ops.Mux(ctx, visualPath, audioPath, outputPath)
}
