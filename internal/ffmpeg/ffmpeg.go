package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// stderrTail is how many trailing stderr lines are kept for error reporting
const stderrTail = 20

// Executor handles all ffmpeg subprocess operations. Every invocation runs
// under a deadline; a failed or timed-out invocation is retried once with a
// fixed backoff before the failure is escalated as permanent.
type Executor struct {
	logger        zerolog.Logger
	ffmpegPath    string
	ffprobePath   string
	threads       int
	clipTimeout   time.Duration
	encodeTimeout time.Duration
	backoff       time.Duration
}

// Options configures executor construction
type Options struct {
	Threads       int
	ClipTimeout   time.Duration
	EncodeTimeout time.Duration
	RetryBackoff  time.Duration
}

// New creates a new ffmpeg executor
func New(logger zerolog.Logger, opts Options) (*Executor, error) {
	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}

	ffprobePath, err := exec.LookPath("ffprobe")
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found in PATH: %w", err)
	}

	if opts.ClipTimeout <= 0 {
		opts.ClipTimeout = 60 * time.Second
	}
	if opts.EncodeTimeout <= 0 {
		opts.EncodeTimeout = 300 * time.Second
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 2 * time.Second
	}

	return &Executor{
		logger:        logger.With().Str("component", "ffmpeg").Logger(),
		ffmpegPath:    ffmpegPath,
		ffprobePath:   ffprobePath,
		threads:       opts.Threads,
		clipTimeout:   opts.ClipTimeout,
		encodeTimeout: opts.EncodeTimeout,
		backoff:       opts.RetryBackoff,
	}, nil
}

// Run executes ffmpeg with retry-once semantics. Cancellation of the parent
// context propagates immediately; deadline and subprocess failures get one
// more attempt after the backoff.
func (e *Executor) Run(ctx context.Context, opts RunOptions) error {
	if len(opts.Args) == 0 {
		return fmt.Errorf("no arguments provided")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = e.clipTimeout
	}

	var lastErr error
	var lastStderr string
	timedOut := false

	for attempt := 1; attempt <= 2; attempt++ {
		stderr, err := e.runOnce(ctx, opts)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			// parent cancelled, not a transient failure
			return ctx.Err()
		}

		lastErr = err
		lastStderr = stderr
		timedOut = errors.Is(err, context.DeadlineExceeded)

		if attempt == 1 {
			e.logger.Warn().
				Str("op", opts.Op).
				Err(err).
				Dur("backoff", e.backoff).
				Msg("ffmpeg operation failed, retrying")

			select {
			case <-time.After(e.backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	return &OpError{
		Op:       opts.Op,
		Timeout:  timedOut,
		Attempts: 2,
		Stderr:   lastStderr,
		Err:      lastErr,
	}
}

// runOnce performs a single invocation under the operation deadline and
// returns the trailing stderr for diagnostics.
func (e *Executor) runOnce(ctx context.Context, opts RunOptions) (string, error) {
	runCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	baseArgs := []string{"-y", "-hide_banner", "-loglevel", "info"}
	if e.threads > 0 {
		baseArgs = append(baseArgs, "-threads", fmt.Sprintf("%d", e.threads))
	}
	args := append(baseArgs, opts.Args...)

	e.logger.Debug().
		Str("op", opts.Op).
		Strs("args", args).
		Msg("executing ffmpeg")

	cmd := exec.CommandContext(runCtx, e.ffmpegPath, args...)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return "", fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	var wg sync.WaitGroup
	var tail []string
	wg.Add(1)
	go func() {
		defer wg.Done()
		tail = e.streamOutput(stderr, opts.LogHandler)
	}()
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return strings.Join(tail, "\n"), context.DeadlineExceeded
		}
		if ctx.Err() == context.Canceled {
			return "", ctx.Err()
		}
		return strings.Join(tail, "\n"), fmt.Errorf("ffmpeg execution failed: %w", err)
	}

	return "", nil
}

// streamOutput forwards stderr lines to the handler and keeps the tail
func (e *Executor) streamOutput(r io.Reader, logHandler func(string)) []string {
	scanner := bufio.NewScanner(r)
	var tail []string

	for scanner.Scan() {
		line := scanner.Text()
		if logHandler != nil {
			logHandler(line)
		}
		tail = append(tail, line)
		if len(tail) > stderrTail {
			tail = tail[1:]
		}
	}

	return tail
}
