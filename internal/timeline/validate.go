package timeline

import (
	"fmt"
	"math"
	"sort"
)

// boundaryGapTolerance is how much slack adjacent boundaries may leave
// between each other and at the track edges before the manifest is
// considered malformed.
const boundaryGapTolerance = 0.5

// Validate checks the structural invariants of the manifest: ordered,
// non-overlapping, near-contiguous boundaries covering the audio track,
// one clip per boundary slot, and well-formed transition entries.
func (m *Manifest) Validate() error {
	if m.AudioPath == "" {
		return fmt.Errorf("manifest has no audio path")
	}
	if m.AudioDuration <= 0 {
		return fmt.Errorf("invalid audio duration %.3f", m.AudioDuration)
	}
	if len(m.Boundaries) == 0 {
		return fmt.Errorf("manifest has no boundaries")
	}

	sorted := make([]Boundary, len(m.Boundaries))
	copy(sorted, m.Boundaries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })

	prevEnd := 0.0
	for i, b := range sorted {
		if b.Index != i {
			return fmt.Errorf("boundary indices are not dense: expected %d, got %d", i, b.Index)
		}
		if b.End <= b.Start {
			return fmt.Errorf("boundary %d is empty or inverted: [%.3f, %.3f]", b.Index, b.Start, b.End)
		}
		if b.Start < prevEnd-1e-9 {
			return fmt.Errorf("boundary %d overlaps its predecessor", b.Index)
		}
		if b.Start-prevEnd > boundaryGapTolerance {
			return fmt.Errorf("gap of %.3fs before boundary %d exceeds tolerance", b.Start-prevEnd, b.Index)
		}
		prevEnd = b.End
	}

	if math.Abs(prevEnd-m.AudioDuration) > boundaryGapTolerance {
		return fmt.Errorf("boundaries end at %.3fs but audio runs %.3fs", prevEnd, m.AudioDuration)
	}

	seen := make(map[int]bool, len(m.Clips))
	for _, c := range m.Clips {
		if c.Index < 0 || c.Index >= len(sorted) {
			return fmt.Errorf("clip index %d has no boundary", c.Index)
		}
		if seen[c.Index] {
			return fmt.Errorf("duplicate clip for boundary %d", c.Index)
		}
		seen[c.Index] = true
		switch c.Status {
		case StatusOK, StatusMissing, StatusFailed:
		default:
			return fmt.Errorf("clip %d has unknown status %q", c.Index, c.Status)
		}
		if c.Status == StatusOK && c.Path == "" {
			return fmt.Errorf("clip %d is ok but has no path", c.Index)
		}
	}

	for _, t := range m.Transitions {
		switch t.Kind {
		case TransitionCut, TransitionCrossfade, TransitionFade:
		default:
			return fmt.Errorf("transition %d->%d has unknown kind %q", t.FromIndex, t.ToIndex, t.Kind)
		}
		if t.Duration < 0 {
			return fmt.Errorf("transition %d->%d has negative duration", t.FromIndex, t.ToIndex)
		}
	}

	return nil
}

// Survivors returns the clips participating in composition, ordered by
// ascending boundary index
func (m *Manifest) Survivors() []GeneratedClip {
	var out []GeneratedClip
	for _, c := range m.Clips {
		if c.Status == StatusOK {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// BoundaryFor returns the boundary assigned to a clip index
func (m *Manifest) BoundaryFor(index int) (Boundary, bool) {
	for _, b := range m.Boundaries {
		if b.Index == index {
			return b, true
		}
	}
	return Boundary{}, false
}

// RekeyTransitions recomputes the transition plan over the surviving clip
// sequence. Adjacency is redefined over survivors: a junction keeps the
// planned transition leaving its left clip when one exists, and falls back
// to a hard cut when the plan has no entry for the new pairing.
// defaultDuration fills in crossfade/fade junctions whose planned duration
// is absent; zero or negative falls back to DefaultTransitionDuration.
func RekeyTransitions(survivors []GeneratedClip, planned []Transition, defaultDuration float64) []Transition {
	if len(survivors) < 2 {
		return nil
	}
	if defaultDuration <= 0 {
		defaultDuration = DefaultTransitionDuration
	}

	byFrom := make(map[int]Transition, len(planned))
	for _, t := range planned {
		byFrom[t.FromIndex] = t
	}

	out := make([]Transition, 0, len(survivors)-1)
	for i := 0; i < len(survivors)-1; i++ {
		from := survivors[i].Index
		to := survivors[i+1].Index

		t := Transition{FromIndex: from, ToIndex: to, Kind: TransitionCut}
		if p, ok := byFrom[from]; ok {
			t.Kind = p.Kind
			t.Duration = p.Duration
		}

		switch t.Kind {
		case TransitionCut:
			t.Duration = 0
		default:
			if t.Duration == 0 {
				t.Duration = defaultDuration
			}
		}

		out = append(out, t)
	}

	return out
}
