package ffmpeg

import (
	"context"
	"fmt"
	"time"

	"beatlock/pkg/util"
)

// ExtractFrame grabs a single frame at the given timestamp as a JPEG
func (e *Executor) ExtractFrame(ctx context.Context, input string, at time.Duration, output string) error {
	if input == "" {
		return fmt.Errorf("input path is required")
	}
	if output == "" {
		return fmt.Errorf("output path is required")
	}

	args := []string{
		"-ss", util.FormatDuration(at),
		"-i", input,
		"-vframes", "1",
		"-q:v", "2",
		output,
	}

	runOpts := RunOptions{
		Op:      "extract-frame",
		Args:    args,
		Timeout: e.clipTimeout,
		LogHandler: func(line string) {
			e.logger.Debug().Str("ffmpeg", line).Msg("frame extraction")
		},
	}

	return e.Run(ctx, runOpts)
}

// ExtractLastFrame grabs the final frame of a clip by seeking from the end
func (e *Executor) ExtractLastFrame(ctx context.Context, input, output string) error {
	if input == "" {
		return fmt.Errorf("input path is required")
	}
	if output == "" {
		return fmt.Errorf("output path is required")
	}

	args := []string{
		"-sseof", "-0.2",
		"-i", input,
		"-update", "1",
		"-vframes", "1",
		"-q:v", "2",
		output,
	}

	runOpts := RunOptions{
		Op:      "extract-last-frame",
		Args:    args,
		Timeout: e.clipTimeout,
		LogHandler: func(line string) {
			e.logger.Debug().Str("ffmpeg", line).Msg("frame extraction")
		},
	}

	return e.Run(ctx, runOpts)
}
