package ffmpeg

import (
	"context"
	"fmt"
)

// NormalizeOptions defines the canonical format every clip is brought to
// before reconciliation. The audio stream is dropped; the track audio is
// muxed in separately at the end of the pipeline.
type NormalizeOptions struct {
	Output    string
	FPS       float64
	ShortEdge int
	CRF       int
	Preset    string
}

// Normalize re-encodes a clip to the pipeline's canonical frame rate,
// resolution, and pixel format. The source file is not touched.
func (e *Executor) Normalize(ctx context.Context, input string, opts NormalizeOptions) error {
	if input == "" {
		return fmt.Errorf("input path is required")
	}
	if opts.Output == "" {
		return fmt.Errorf("output path is required")
	}
	if opts.FPS <= 0 {
		opts.FPS = 30
	}
	if opts.ShortEdge <= 0 {
		opts.ShortEdge = 1080
	}
	enc := EncodeOptions{CRF: opts.CRF, Preset: opts.Preset}.withDefaults()

	e.logger.Info().
		Str("input", input).
		Str("output", opts.Output).
		Float64("fps", opts.FPS).
		Int("short_edge", opts.ShortEdge).
		Msg("normalizing clip")

	// Scale the short edge to the canonical size, keep aspect, force even
	// dimensions for yuv420p.
	scale := fmt.Sprintf("scale=if(gt(a\\,1)\\,-2\\,%d):if(gt(a\\,1)\\,%d\\,-2)", opts.ShortEdge, opts.ShortEdge)
	filter := fmt.Sprintf("%s,fps=%g,format=yuv420p", scale, opts.FPS)

	args := []string{
		"-i", input,
		"-vf", filter,
		"-an",
		"-c:v", DefaultVideoCodec,
		"-crf", fmt.Sprintf("%d", enc.CRF),
		"-preset", enc.Preset,
		opts.Output,
	}

	runOpts := RunOptions{
		Op:      "normalize",
		Args:    args,
		Timeout: e.clipTimeout,
		LogHandler: func(line string) {
			e.logger.Debug().Str("ffmpeg", line).Msg("normalize")
		},
	}

	if err := e.Run(ctx, runOpts); err != nil {
		return fmt.Errorf("normalize failed: %w", err)
	}

	return nil
}
