package pipeline

// Stage identifies where a composition run currently is. Stages advance
// strictly forward; a run ends in StageDone or StageFailed.
type Stage string

const (
	StageValidating  Stage = "validating"
	StageNormalizing Stage = "normalizing"
	StageReconciling Stage = "reconciling"
	StageCompositing Stage = "compositing"
	StageSyncing     Stage = "syncing"
	StageEncoding    Stage = "encoding"
	StageDone        Stage = "done"
	StageFailed      Stage = "failed"
)

// EventStatus qualifies what happened within a stage
type EventStatus string

const (
	EventStarted   EventStatus = "started"
	EventCompleted EventStatus = "completed"
	EventClipDone  EventStatus = "clip_done"
	EventDemoted   EventStatus = "clip_demoted"
	EventDegraded  EventStatus = "degraded"
	EventDrift     EventStatus = "drift_warning"
	EventFailed    EventStatus = "failed"
)

// Event is a progress notification emitted during a run. ClipIndex is -1
// for events not scoped to a single clip.
type Event struct {
	Stage     Stage
	Status    EventStatus
	ClipIndex int
	Detail    string
}

// emit delivers an event without ever blocking the run. A full or absent
// channel drops the event; progress reporting is advisory.
func (p *Pipeline) emit(e Event) {
	if p.events == nil {
		return
	}
	select {
	case p.events <- e:
	default:
	}
}

func (p *Pipeline) emitStage(stage Stage, status EventStatus) {
	p.emit(Event{Stage: stage, Status: status, ClipIndex: -1})
}
