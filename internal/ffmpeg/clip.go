package ffmpeg

import (
	"context"
	"fmt"
	"time"

	"beatlock/pkg/util"
)

// TrimTail re-encodes a clip truncated to the target duration. Frames are
// dropped from the end only; the clip head is never cut.
func (e *Executor) TrimTail(ctx context.Context, input, output string, target time.Duration) error {
	if target <= 0 {
		return fmt.Errorf("invalid trim target: must be positive")
	}

	e.logger.Info().
		Str("input", input).
		Str("output", output).
		Dur("target", target).
		Msg("trimming clip tail")

	args := []string{
		"-i", input,
		"-t", util.FormatDuration(target),
		"-an",
		"-c:v", DefaultVideoCodec,
		"-crf", fmt.Sprintf("%d", DefaultCRF),
		"-preset", DefaultPreset,
		output,
	}

	runOpts := RunOptions{
		Op:      "trim",
		Args:    args,
		Timeout: e.clipTimeout,
		LogHandler: func(line string) {
			e.logger.Debug().Str("ffmpeg", line).Msg("trim")
		},
	}

	if err := e.Run(ctx, runOpts); err != nil {
		return fmt.Errorf("trim failed: %w", err)
	}

	return nil
}

// Loop repeats a clip from its start until the target duration is reached.
// extraLoops is the number of additional whole passes fed to the demuxer;
// the final pass is truncated by -t, so the output contains only whole or
// partial repeats of the original frames.
func (e *Executor) Loop(ctx context.Context, input, output string, extraLoops int, target time.Duration) error {
	if extraLoops < 1 {
		return fmt.Errorf("invalid loop count: need at least one extra pass")
	}
	if target <= 0 {
		return fmt.Errorf("invalid loop target: must be positive")
	}

	e.logger.Info().
		Str("input", input).
		Str("output", output).
		Int("extra_loops", extraLoops).
		Dur("target", target).
		Msg("looping clip")

	args := []string{
		"-stream_loop", fmt.Sprintf("%d", extraLoops),
		"-i", input,
		"-t", util.FormatDuration(target),
		"-an",
		"-c:v", DefaultVideoCodec,
		"-crf", fmt.Sprintf("%d", DefaultCRF),
		"-preset", DefaultPreset,
		output,
	}

	runOpts := RunOptions{
		Op:      "loop",
		Args:    args,
		Timeout: e.clipTimeout,
		LogHandler: func(line string) {
			e.logger.Debug().Str("ffmpeg", line).Msg("loop")
		},
	}

	if err := e.Run(ctx, runOpts); err != nil {
		return fmt.Errorf("loop failed: %w", err)
	}

	return nil
}
