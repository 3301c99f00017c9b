package timeline

// ClipStatus reports the upstream generation outcome for one clip slot
type ClipStatus string

const (
	StatusOK      ClipStatus = "ok"
	StatusMissing ClipStatus = "missing"
	StatusFailed  ClipStatus = "failed"
)

// Boundary is a beat-aligned time interval assigned to one clip slot.
// Boundaries are produced once by the upstream audio-analysis stage and
// are immutable for the lifetime of a composition run.
type Boundary struct {
	Index int     `json:"index"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Target returns the beat-derived duration the clip must be reconciled to
func (b Boundary) Target() float64 {
	return b.End - b.Start
}

// GeneratedClip is one upstream-generated video, keyed to a boundary index.
// Clips whose status is not ok are excluded from composition but still
// count against the minimum-clip threshold.
type GeneratedClip struct {
	Index    int        `json:"index"`
	Path     string     `json:"path"`
	Duration float64    `json:"duration"`
	Status   ClipStatus `json:"status"`
}

// TransitionKind selects how two adjacent clips are joined
type TransitionKind string

const (
	TransitionCut       TransitionKind = "cut"
	TransitionCrossfade TransitionKind = "crossfade"
	TransitionFade      TransitionKind = "fade"
)

// DefaultTransitionDuration applies to crossfade and fade junctions whose
// planned duration is zero or absent
const DefaultTransitionDuration = 0.5

// Transition is the planned join at one clip junction, keyed by original
// clip indices. Junctions are recomputed over survivors when clips drop out.
type Transition struct {
	FromIndex int            `json:"from_index"`
	ToIndex   int            `json:"to_index"`
	Kind      TransitionKind `json:"kind"`
	Duration  float64        `json:"duration"`
}

// Manifest is the handoff record from the upstream stages: the audio track,
// its beat-derived boundaries, the generated clips, and the transition plan.
type Manifest struct {
	AudioPath     string          `json:"audio_path"`
	AudioDuration float64         `json:"audio_duration"`
	Boundaries    []Boundary      `json:"boundaries"`
	Clips         []GeneratedClip `json:"clips"`
	Transitions   []Transition    `json:"transitions"`
}

// Degradation records a non-fatal fallback taken during composition
type Degradation struct {
	FromIndex int    `json:"from_index"`
	ToIndex   int    `json:"to_index"`
	Detail    string `json:"detail"`
}

// Result is the terminal artifact record, written once per successful run
type Result struct {
	OutputPath       string        `json:"output_path"`
	TotalDuration    float64       `json:"total_duration"`
	Width            int           `json:"width"`
	Height           int           `json:"height"`
	FrameRate        float64       `json:"frame_rate"`
	ClipsTrimmed     int           `json:"clips_trimmed"`
	ClipsLooped      int           `json:"clips_looped"`
	TotalTrimSeconds float64       `json:"total_trim_seconds"`
	TotalLoopSeconds float64       `json:"total_loop_seconds"`
	SyncDriftSeconds float64       `json:"sync_drift_seconds"`
	SpeedAdjusted    bool          `json:"speed_adjustment_applied"`
	SpeedFactor      float64       `json:"speed_factor"`
	Degradations     []Degradation `json:"degradations,omitempty"`
}
