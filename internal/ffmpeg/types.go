package ffmpeg

import (
	"fmt"
	"time"
)

// VideoInfo contains metadata about a video file
type VideoInfo struct {
	FilePath   string
	Duration   time.Duration
	Width      int
	Height     int
	FPS        float64
	Bitrate    int64
	VideoCodec string
	HasAudio   bool
	AudioCodec string
}

// RunOptions configures a single ffmpeg invocation
type RunOptions struct {
	Op         string
	Args       []string
	Timeout    time.Duration
	LogHandler func(line string)
}

// Default encoding settings
const (
	DefaultCRF        = 23
	DefaultPreset     = "medium"
	DefaultVideoCodec = "libx264"
	DefaultAudioCodec = "aac"
)

// EncodeOptions holds the fixed encode settings applied to re-encoded output
type EncodeOptions struct {
	CRF    int
	Preset string
	FPS    float64
}

func (o EncodeOptions) withDefaults() EncodeOptions {
	if o.CRF == 0 {
		o.CRF = DefaultCRF
	}
	if o.Preset == "" {
		o.Preset = DefaultPreset
	}
	return o
}

// OpError describes a failed ffmpeg operation after retry handling.
// Timeout marks operations killed by their deadline; those were retried
// as transient before being escalated.
type OpError struct {
	Op       string
	Timeout  bool
	Attempts int
	Stderr   string
	Err      error
}

func (e *OpError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("ffmpeg %s timed out after %d attempt(s)", e.Op, e.Attempts)
	}
	return fmt.Sprintf("ffmpeg %s failed after %d attempt(s): %v", e.Op, e.Attempts, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}
