package ffmpeg

import (
	"context"
	"fmt"
)

// Mux combines the composed visual timeline with the audio track into the
// final container. The video stream is copied; audio is encoded with the
// fixed output codec.
func (e *Executor) Mux(ctx context.Context, video, audio, output string) error {
	if video == "" || audio == "" {
		return fmt.Errorf("video and audio paths are required")
	}
	if output == "" {
		return fmt.Errorf("output path is required")
	}

	e.logger.Info().
		Str("video", video).
		Str("audio", audio).
		Str("output", output).
		Msg("muxing final artifact")

	args := []string{
		"-i", video,
		"-i", audio,
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-c:v", "copy",
		"-c:a", DefaultAudioCodec,
		"-movflags", "+faststart",
		output,
	}

	runOpts := RunOptions{
		Op:      "mux",
		Args:    args,
		Timeout: e.encodeTimeout,
		LogHandler: func(line string) {
			e.logger.Debug().Str("ffmpeg", line).Msg("mux")
		},
	}

	if err := e.Run(ctx, runOpts); err != nil {
		return fmt.Errorf("mux failed: %w", err)
	}

	return nil
}

// AdjustSpeed applies a uniform playback-speed factor to the visual track.
// A factor above 1 speeds the video up (shrinks its duration), below 1
// slows it down. The output is resampled at the canonical frame rate so no
// frames are fabricated beyond the encoder's own resampling.
func (e *Executor) AdjustSpeed(ctx context.Context, input, output string, factor, fps float64) error {
	if factor <= 0 {
		return fmt.Errorf("invalid speed factor: must be positive")
	}
	if fps <= 0 {
		fps = 30
	}

	e.logger.Info().
		Str("input", input).
		Str("output", output).
		Float64("factor", factor).
		Msg("applying speed adjustment")

	args := []string{
		"-i", input,
		"-vf", SpeedFilter(factor, fps),
		"-an",
		"-c:v", DefaultVideoCodec,
		"-crf", fmt.Sprintf("%d", DefaultCRF),
		"-preset", DefaultPreset,
		output,
	}

	runOpts := RunOptions{
		Op:      "speed-adjust",
		Args:    args,
		Timeout: e.encodeTimeout,
		LogHandler: func(line string) {
			e.logger.Debug().Str("ffmpeg", line).Msg("speed adjustment")
		},
	}

	if err := e.Run(ctx, runOpts); err != nil {
		return fmt.Errorf("speed adjustment failed: %w", err)
	}

	return nil
}

// SpeedFilter builds the setpts chain for a uniform speed factor
func SpeedFilter(factor, fps float64) string {
	return fmt.Sprintf("setpts=PTS/%.6f,fps=%g", factor, fps)
}
