package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Concat merges multiple video files into one using the concat demuxer.
// Inputs must already share codec, frame rate, and resolution, which the
// normalize stage guarantees, so streams are copied without re-encoding.
func (e *Executor) Concat(ctx context.Context, inputs []string, output string) error {
	if len(inputs) == 0 {
		return fmt.Errorf("no input files provided")
	}
	if output == "" {
		return fmt.Errorf("output path is required")
	}

	e.logger.Info().
		Int("inputs", len(inputs)).
		Str("output", output).
		Msg("concatenating clips")

	concatFile, err := e.createConcatFile(inputs)
	if err != nil {
		return fmt.Errorf("failed to create concat file: %w", err)
	}
	defer os.Remove(concatFile)

	args := []string{
		"-f", "concat",
		"-safe", "0",
		"-i", concatFile,
		"-c", "copy",
		output,
	}

	runOpts := RunOptions{
		Op:      "concat",
		Args:    args,
		Timeout: e.encodeTimeout,
		LogHandler: func(line string) {
			e.logger.Debug().Str("ffmpeg", line).Msg("concat")
		},
	}

	return e.Run(ctx, runOpts)
}

// Crossfade blends the tail of the first clip into the head of the second.
// The overlap is shared between the clips, so the output duration is
// firstDuration + secondDuration - overlap.
func (e *Executor) Crossfade(ctx context.Context, first, second, output string, overlap, firstDuration time.Duration) error {
	if overlap <= 0 {
		return fmt.Errorf("invalid crossfade overlap: must be positive")
	}
	if firstDuration <= overlap {
		return fmt.Errorf("crossfade overlap %v exceeds first clip duration %v", overlap, firstDuration)
	}

	e.logger.Info().
		Str("first", first).
		Str("second", second).
		Dur("overlap", overlap).
		Msg("crossfading clips")

	args := []string{
		"-i", first,
		"-i", second,
		"-filter_complex", XfadeFilter(overlap, firstDuration),
		"-map", "[v]",
		"-c:v", DefaultVideoCodec,
		"-crf", fmt.Sprintf("%d", DefaultCRF),
		"-preset", DefaultPreset,
		output,
	}

	runOpts := RunOptions{
		Op:      "crossfade",
		Args:    args,
		Timeout: e.encodeTimeout,
		LogHandler: func(line string) {
			e.logger.Debug().Str("ffmpeg", line).Msg("crossfade")
		},
	}

	return e.Run(ctx, runOpts)
}

// FadeEdges re-encodes a clip with a fade from black at its head and/or a
// fade to black at its tail, both within the clip's own span.
func (e *Executor) FadeEdges(ctx context.Context, input, output string, fadeIn, fadeOut time.Duration, clipDuration time.Duration) error {
	if fadeIn <= 0 && fadeOut <= 0 {
		return fmt.Errorf("no fade requested")
	}

	filter := FadeFilter(fadeIn, fadeOut, clipDuration)

	e.logger.Info().
		Str("input", input).
		Str("output", output).
		Str("filter", filter).
		Msg("applying edge fades")

	args := []string{
		"-i", input,
		"-vf", filter,
		"-c:v", DefaultVideoCodec,
		"-crf", fmt.Sprintf("%d", DefaultCRF),
		"-preset", DefaultPreset,
		output,
	}

	runOpts := RunOptions{
		Op:      "fade",
		Args:    args,
		Timeout: e.clipTimeout,
		LogHandler: func(line string) {
			e.logger.Debug().Str("ffmpeg", line).Msg("fade")
		},
	}

	return e.Run(ctx, runOpts)
}

// XfadeFilter builds the filter graph for a crossfade junction
func XfadeFilter(overlap, firstDuration time.Duration) string {
	offset := firstDuration - overlap
	return fmt.Sprintf("[0:v][1:v]xfade=transition=fade:duration=%.3f:offset=%.3f[v]",
		overlap.Seconds(), offset.Seconds())
}

// FadeFilter builds a chain of fade filters contained in the clip's span
func FadeFilter(fadeIn, fadeOut, clipDuration time.Duration) string {
	var filter string
	if fadeIn > 0 {
		filter = fmt.Sprintf("fade=t=in:st=0:d=%.3f", fadeIn.Seconds())
	}
	if fadeOut > 0 {
		start := clipDuration - fadeOut
		if start < 0 {
			start = 0
		}
		out := fmt.Sprintf("fade=t=out:st=%.3f:d=%.3f", start.Seconds(), fadeOut.Seconds())
		if filter != "" {
			filter += "," + out
		} else {
			filter = out
		}
	}
	return filter
}

// createConcatFile generates a temporary file list for ffmpeg concat
func (e *Executor) createConcatFile(inputs []string) (string, error) {
	tmpFile, err := os.CreateTemp("", "beatlock-concat-*.txt")
	if err != nil {
		return "", err
	}
	defer tmpFile.Close()

	for _, input := range inputs {
		absPath, err := filepath.Abs(input)
		if err != nil {
			return "", err
		}
		if _, err := fmt.Fprintf(tmpFile, "file '%s'\n", absPath); err != nil {
			return "", err
		}
	}

	return tmpFile.Name(), nil
}
