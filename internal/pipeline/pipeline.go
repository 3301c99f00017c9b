package pipeline

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"beatlock/internal/compose"
	"beatlock/internal/config"
	"beatlock/internal/ffmpeg"
	"beatlock/internal/reconcile"
	"beatlock/internal/syncer"
	"beatlock/internal/timeline"
	"beatlock/pkg/util"
)

// MediaOps is everything the pipeline and its stages need from ffmpeg.
// Satisfied by *ffmpeg.Executor.
type MediaOps interface {
	Normalize(ctx context.Context, input string, opts ffmpeg.NormalizeOptions) error
	ProbeVideo(ctx context.Context, path string) (*ffmpeg.VideoInfo, error)
	reconcile.MediaOps
	compose.MediaOps
	syncer.MediaOps
}

// Pipeline drives one manifest through validation, normalization,
// reconciliation, compositing, sync, and encode. A pipeline is reusable
// across runs; per-run state lives in the run's scratch directory.
type Pipeline struct {
	logger zerolog.Logger
	cfg    *config.Config
	ops    MediaOps
	events chan<- Event
}

// New creates a pipeline
func New(logger zerolog.Logger, cfg *config.Config, ops MediaOps) *Pipeline {
	return &Pipeline{
		logger: logger.With().Str("component", "pipeline").Logger(),
		cfg:    cfg,
		ops:    ops,
	}
}

// SetEvents installs a progress channel. Delivery is best effort; the run
// never blocks on a slow consumer.
func (p *Pipeline) SetEvents(ch chan<- Event) {
	p.events = ch
}

// normalized carries one clip through the fan-out join
type normalized struct {
	clip     timeline.GeneratedClip
	path     string
	duration float64
	ok       bool
}

// Run executes a full composition. The returned Result is also written as
// a JSON sidecar next to the output file. All intermediates live in a
// per-run scratch directory that is removed whether the run succeeds,
// fails, or is cancelled.
func (p *Pipeline) Run(ctx context.Context, manifest *timeline.Manifest, outputPath string) (*timeline.Result, error) {
	if outputPath == "" {
		return nil, &InputError{Reason: "output path is required"}
	}

	// Validating
	p.emitStage(StageValidating, EventStarted)
	survivors, err := p.validate(ctx, manifest)
	if err != nil {
		p.emitStage(StageFailed, EventFailed)
		return nil, &StageError{Stage: StageValidating, Err: err}
	}
	p.emitStage(StageValidating, EventCompleted)

	runID := uuid.New().String()
	scratch := filepath.Join(p.cfg.WorkDir, "run-"+runID)
	if err := util.EnsureDir(scratch); err != nil {
		return nil, &StageError{Stage: StageValidating, Err: fmt.Errorf("failed to create scratch dir: %w", err)}
	}
	defer func() {
		if err := os.RemoveAll(scratch); err != nil {
			p.logger.Warn().Err(err).Str("dir", scratch).Msg("failed to remove scratch dir")
		}
	}()

	log := p.logger.With().Str("run", runID).Logger()
	log.Info().
		Int("clips", len(survivors)).
		Float64("audio_duration", manifest.AudioDuration).
		Str("output", outputPath).
		Msg("composition run starting")

	// Normalizing
	if err := ctx.Err(); err != nil {
		return nil, &StageError{Stage: StageNormalizing, Err: err}
	}
	p.emitStage(StageNormalizing, EventStarted)
	norm, err := p.normalizeAll(ctx, survivors, scratch)
	if err != nil {
		p.emitStage(StageFailed, EventFailed)
		return nil, &StageError{Stage: StageNormalizing, Err: err}
	}
	if err := p.ensureFloor(norm); err != nil {
		p.emitStage(StageFailed, EventFailed)
		return nil, &StageError{Stage: StageNormalizing, Err: err}
	}
	p.emitStage(StageNormalizing, EventCompleted)

	// Reconciling
	if err := ctx.Err(); err != nil {
		return nil, &StageError{Stage: StageReconciling, Err: err}
	}
	p.emitStage(StageReconciling, EventStarted)
	result := &timeline.Result{OutputPath: outputPath}
	reconciled, kept, err := p.reconcileAll(ctx, manifest, norm, scratch, result)
	if err != nil {
		p.emitStage(StageFailed, EventFailed)
		return nil, &StageError{Stage: StageReconciling, Err: err}
	}
	p.emitStage(StageReconciling, EventCompleted)

	// Compositing
	if err := ctx.Err(); err != nil {
		return nil, &StageError{Stage: StageCompositing, Err: err}
	}
	p.emitStage(StageCompositing, EventStarted)
	transitions := timeline.RekeyTransitions(kept, manifest.Transitions, p.cfg.Compose.TransitionDuration)
	compositor := compose.New(log, p.ops, scratch)
	composed, err := compositor.Compose(ctx, reconciled, transitions)
	if err != nil {
		p.emitStage(StageFailed, EventFailed)
		return nil, &StageError{Stage: StageCompositing, Err: err}
	}
	result.Degradations = append(result.Degradations, composed.Degradations...)
	for range composed.Degradations {
		p.emit(Event{Stage: StageCompositing, Status: EventDegraded, ClipIndex: -1})
	}

	// early warning before the sync stage commits to a speed factor: the
	// rendered timeline should land on the compositor's duration budget
	composedDur, err := p.ops.ProbeDuration(ctx, composed.Path)
	if err != nil {
		p.emitStage(StageFailed, EventFailed)
		return nil, &StageError{Stage: StageCompositing, Err: fmt.Errorf("composed timeline unreadable: %w", err)}
	}
	if delta := math.Abs(composedDur - composed.ExpectedDuration); delta > p.cfg.Compose.SyncToleranceSec {
		log.Warn().
			Float64("expected", composed.ExpectedDuration).
			Float64("measured", composedDur).
			Msg("composed timeline off its duration budget")
		p.emit(Event{
			Stage:     StageCompositing,
			Status:    EventDrift,
			ClipIndex: -1,
			Detail:    fmt.Sprintf("measured %.3fs against budget %.3fs", composedDur, composed.ExpectedDuration),
		})
	}
	p.emitStage(StageCompositing, EventCompleted)

	// Syncing
	if err := ctx.Err(); err != nil {
		return nil, &StageError{Stage: StageSyncing, Err: err}
	}
	p.emitStage(StageSyncing, EventStarted)
	synchronizer := syncer.New(log, p.ops, scratch,
		p.cfg.Compose.SyncToleranceSec, p.cfg.Compose.MaxSpeedDeviation, p.cfg.Output.FPS)
	correction, err := synchronizer.Correct(ctx, composed.Path, manifest.AudioDuration)
	if err != nil {
		p.emitStage(StageFailed, EventFailed)
		return nil, &StageError{Stage: StageSyncing, Err: err}
	}
	result.SyncDriftSeconds = correction.Drift
	result.SpeedAdjusted = correction.SpeedAdjusted
	result.SpeedFactor = correction.SpeedFactor
	p.emitStage(StageSyncing, EventCompleted)

	// Encoding
	if err := ctx.Err(); err != nil {
		return nil, &StageError{Stage: StageEncoding, Err: err}
	}
	p.emitStage(StageEncoding, EventStarted)
	if err := util.EnsureDir(filepath.Dir(outputPath)); err != nil {
		p.emitStage(StageFailed, EventFailed)
		return nil, &StageError{Stage: StageEncoding, Err: err}
	}
	if err := synchronizer.Finalize(ctx, correction.Path, manifest.AudioPath, outputPath); err != nil {
		p.emitStage(StageFailed, EventFailed)
		return nil, &StageError{Stage: StageEncoding, Err: err}
	}

	info, err := p.ops.ProbeVideo(ctx, outputPath)
	if err != nil {
		// never leave an unverified artifact behind
		util.CleanupFiles(outputPath)
		p.emitStage(StageFailed, EventFailed)
		return nil, &StageError{Stage: StageEncoding, Err: fmt.Errorf("failed to verify output: %w", err)}
	}
	result.TotalDuration = info.Duration.Seconds()
	result.Width = info.Width
	result.Height = info.Height
	result.FrameRate = info.FPS

	if drift := math.Abs(result.TotalDuration - manifest.AudioDuration); drift > p.cfg.Compose.SyncToleranceSec {
		util.CleanupFiles(outputPath)
		p.emitStage(StageFailed, EventFailed)
		return nil, &StageError{
			Stage: StageEncoding,
			Err:   fmt.Errorf("output duration %.3fs drifts %.3fs from audio", result.TotalDuration, drift),
		}
	}

	sidecar := outputPath + ".json"
	if err := timeline.WriteSidecar(sidecar, result); err != nil {
		log.Warn().Err(err).Str("path", sidecar).Msg("failed to write result sidecar")
	}
	p.emitStage(StageEncoding, EventCompleted)
	p.emitStage(StageDone, EventCompleted)

	log.Info().
		Float64("duration", result.TotalDuration).
		Int("trimmed", result.ClipsTrimmed).
		Int("looped", result.ClipsLooped).
		Bool("speed_adjusted", result.SpeedAdjusted).
		Int("degradations", len(result.Degradations)).
		Msg("composition run complete")

	return result, nil
}

// validate checks the manifest and the minimum-clip gate before any work
// is started
func (p *Pipeline) validate(ctx context.Context, manifest *timeline.Manifest) ([]timeline.GeneratedClip, error) {
	if manifest == nil {
		return nil, &InputError{Reason: "manifest is required"}
	}
	if err := manifest.Validate(); err != nil {
		return nil, &InputError{Reason: err.Error()}
	}
	if !util.FileExists(manifest.AudioPath) {
		return nil, &InputError{Reason: fmt.Sprintf("audio file not found: %s", manifest.AudioPath)}
	}

	survivors := manifest.Survivors()
	minClips := p.cfg.Compose.MinClips
	if len(survivors) < minClips {
		return nil, &InputError{
			Reason: fmt.Sprintf("only %d usable clips, need at least %d", len(survivors), minClips),
		}
	}

	for _, c := range survivors {
		if !util.FileExists(c.Path) {
			return nil, &InputError{Reason: fmt.Sprintf("clip %d not found: %s", c.Index, c.Path)}
		}
	}

	audioDur, err := p.ops.ProbeDuration(ctx, manifest.AudioPath)
	if err != nil {
		return nil, &InputError{Reason: fmt.Sprintf("audio track unreadable: %v", err)}
	}
	if math.Abs(audioDur-manifest.AudioDuration) > p.cfg.Compose.SyncToleranceSec {
		return nil, &InputError{
			Reason: fmt.Sprintf("audio runs %.3fs but manifest claims %.3fs", audioDur, manifest.AudioDuration),
		}
	}

	return survivors, nil
}

// normalizeAll brings every surviving clip to the canonical format, fanned
// out under the concurrency cap. A clip whose normalization fails after the
// executor's retry is demoted, not fatal; the floor check happens after the
// join. Results come back in boundary-index order regardless of completion
// order.
func (p *Pipeline) normalizeAll(ctx context.Context, survivors []timeline.GeneratedClip, scratch string) ([]normalized, error) {
	out := make([]normalized, len(survivors))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(int64(max(p.cfg.Concurrency, 1)))

	for i, clip := range survivors {
		i, clip := i, clip
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)

			path := filepath.Join(scratch, fmt.Sprintf("normalized_%03d.mp4", clip.Index))
			err := p.ops.Normalize(gctx, clip.Path, ffmpeg.NormalizeOptions{
				Output:    path,
				FPS:       p.cfg.Output.FPS,
				ShortEdge: p.cfg.Output.ShortEdge,
				CRF:       p.cfg.Output.CRF,
				Preset:    p.cfg.Output.Preset,
			})
			if err == nil {
				var dur float64
				dur, err = p.ops.ProbeDuration(gctx, path)
				if err == nil {
					mu.Lock()
					out[i] = normalized{clip: clip, path: path, duration: dur, ok: true}
					mu.Unlock()
					p.emit(Event{Stage: StageNormalizing, Status: EventClipDone, ClipIndex: clip.Index})
					return nil
				}
			}

			if gctx.Err() != nil {
				return gctx.Err()
			}

			p.logger.Warn().Err(err).Int("clip", clip.Index).Msg("normalization failed, demoting clip")
			p.emit(Event{Stage: StageNormalizing, Status: EventDemoted, ClipIndex: clip.Index, Detail: err.Error()})
			mu.Lock()
			out[i] = normalized{clip: clip}
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// ensureFloor re-validates the clip count after demotions
func (p *Pipeline) ensureFloor(norm []normalized) error {
	count := 0
	for _, n := range norm {
		if n.ok {
			count++
		}
	}
	floor := p.cfg.Compose.DegradedFloor
	if count < floor {
		return fmt.Errorf("only %d clips remain after demotions, floor is %d", count, floor)
	}
	return nil
}

// reconcileAll brings each normalized clip to its boundary target in index
// order, accumulating trim and loop totals into the result. A clip whose
// reconciliation fails is demoted and the floor re-checked.
func (p *Pipeline) reconcileAll(ctx context.Context, manifest *timeline.Manifest, norm []normalized, scratch string, result *timeline.Result) ([]*reconcile.ReconciledClip, []timeline.GeneratedClip, error) {
	rec := reconcile.New(p.logger, p.ops, scratch,
		p.cfg.Output.FPS, p.cfg.Compose.ClipToleranceSec, p.cfg.Compose.LoopSimilarity)

	var reconciled []*reconcile.ReconciledClip
	var kept []timeline.GeneratedClip

	for _, n := range norm {
		if !n.ok {
			continue
		}
		boundary, found := manifest.BoundaryFor(n.clip.Index)
		if !found {
			return nil, nil, fmt.Errorf("clip %d has no boundary", n.clip.Index)
		}

		rc, err := rec.Reconcile(ctx, n.clip, boundary, n.path, n.duration)
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, ctx.Err()
			}
			p.logger.Warn().Err(err).Int("clip", n.clip.Index).Msg("reconciliation failed, demoting clip")
			p.emit(Event{Stage: StageReconciling, Status: EventDemoted, ClipIndex: n.clip.Index, Detail: err.Error()})
			continue
		}

		switch rc.Strategy {
		case reconcile.StrategyTrimmed:
			result.ClipsTrimmed++
			result.TotalTrimSeconds += rc.Delta
		case reconcile.StrategyLooped:
			result.ClipsLooped++
			result.TotalLoopSeconds += -rc.Delta
		}

		reconciled = append(reconciled, rc)
		kept = append(kept, n.clip)
		p.emit(Event{Stage: StageReconciling, Status: EventClipDone, ClipIndex: n.clip.Index})
	}

	floor := p.cfg.Compose.DegradedFloor
	if len(reconciled) < floor {
		return nil, nil, fmt.Errorf("only %d clips remain after reconciliation, floor is %d", len(reconciled), floor)
	}

	return reconciled, kept, nil
}
