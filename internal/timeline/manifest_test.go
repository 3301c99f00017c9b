package timeline

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.json")

	data := `{
		"audio_path": "/tmp/track.mp3",
		"audio_duration": 8,
		"boundaries": [
			{"index": 0, "start": 0, "end": 4},
			{"index": 1, "start": 4, "end": 8}
		],
		"clips": [
			{"index": 0, "path": "/tmp/c0.mp4", "duration": 4.2, "status": "ok"},
			{"index": 1, "path": "", "duration": 0, "status": "missing"}
		],
		"transitions": [
			{"from_index": 0, "to_index": 1, "kind": "crossfade", "duration": 0.5}
		]
	}`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("LoadManifest failed: %v", err)
	}
	if len(m.Boundaries) != 2 || len(m.Clips) != 2 {
		t.Errorf("unexpected manifest shape: %+v", m)
	}
	if m.Clips[1].Status != StatusMissing {
		t.Errorf("expected missing status, got %s", m.Clips[1].Status)
	}
	if err := m.Validate(); err != nil {
		t.Errorf("loaded manifest failed validation: %v", err)
	}
}

func TestLoadManifestErrors(t *testing.T) {
	if _, err := LoadManifest("/nonexistent/manifest.json"); err == nil {
		t.Error("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.json")
	os.WriteFile(path, []byte("{not json"), 0644)
	if _, err := LoadManifest(path); err == nil {
		t.Error("expected error for malformed JSON")
	}
}

func TestWriteSidecar(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.mp4.json")
	result := &Result{
		OutputPath:    "/tmp/out.mp4",
		TotalDuration: 30.02,
		ClipsLooped:   2,
		Degradations: []Degradation{
			{FromIndex: 1, ToIndex: 2, Detail: "crossfade failed, joined with cut"},
		},
	}

	if err := WriteSidecar(path, result); err != nil {
		t.Fatalf("WriteSidecar failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) == 0 {
		t.Error("sidecar is empty")
	}
}
