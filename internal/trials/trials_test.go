package trials

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestEventAbsence(t *testing.T) {
	tr := Trial{Events: map[string]float64{"TargsOn": 1000, "SaccStart": math.NaN()}}

	if v, ok := tr.Event("TargsOn"); !ok || v != 1000 {
		t.Fatalf("TargsOn = %v %v", v, ok)
	}
	if _, ok := tr.Event("SaccStart"); ok {
		t.Fatalf("NaN event must read as absent")
	}
	if _, ok := tr.Event("Go"); ok {
		t.Fatalf("missing event must read as absent")
	}
}

func TestResolveTag(t *testing.T) {
	cases := map[string]Tag{
		"CO":                  TagCO,
		"delayed_saccade":     TagCO,
		"luminance_reward_selection": TagLum,
		"delayed_reach":       TagReach,
		"gaze_anchoring":      TagReach,
		"gaze_anchoring_fast": TagGazeAnchor,
		"null":                TagNull,
		"simple_touch_task":   TagTouch,
	}
	for s, want := range cases {
		got, ok := ResolveTag(s)
		if !ok || got != want {
			t.Fatalf("ResolveTag(%q) = %v %v, want %v", s, got, ok, want)
		}
	}
	if _, ok := ResolveTag("free_viewing"); ok {
		t.Fatalf("unknown task type must not resolve")
	}
}

func TestTaskOrderCoversAllTags(t *testing.T) {
	if len(TaskOrder) != len(taskSpecs) {
		t.Fatalf("TaskOrder has %d entries, specs %d", len(TaskOrder), len(taskSpecs))
	}
	seen := make(map[Tag]bool)
	for _, tag := range TaskOrder {
		if seen[tag] {
			t.Fatalf("duplicate tag %v in TaskOrder", tag)
		}
		seen[tag] = true
		if _, ok := taskSpecs[tag]; !ok {
			t.Fatalf("tag %v in order but not in specs", tag)
		}
	}
}

func TestSpecConstants(t *testing.T) {
	co := Spec(TagCO)
	if co.Primary != "TargsOn" || co.Fallback != "disTargsOn" {
		t.Fatalf("CO events = %q/%q", co.Primary, co.Fallback)
	}
	if co.Window != [2]float64{-300, 500} {
		t.Fatalf("CO window = %v", co.Window)
	}
	reach := Spec(TagReach)
	if reach.Primary != "ReachStart" || reach.Fallback != "" {
		t.Fatalf("Reach events = %q/%q", reach.Primary, reach.Fallback)
	}
	if reach.Window != [2]float64{-400, 400} {
		t.Fatalf("Reach window = %v", reach.Window)
	}
	null := Spec(TagNull)
	if null.Primary != "Pulse_start" || null.RTNumerator != "" {
		t.Fatalf("Null spec = %+v", null)
	}
}

func TestLoadFiltersRecording(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trials.jsonl")
	body := `{"recording_id": "007", "trial_index": 0, "task_type": "CO", "events": {"TargsOn": 1000}}
{"recording_id": "009", "trial_index": 0, "task_type": "CO", "events": {"TargsOn": 2000}}
{"recording_id": "007", "trial_index": 1, "task_type": "null", "events": {"Pulse_start": 500}}
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := Load(path, "007")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("trials = %d", len(got))
	}
	if got[1].TaskType != "null" || got[1].Index != 1 {
		t.Fatalf("second trial = %+v", got[1])
	}

	all, err := Load(path, "")
	if err != nil {
		t.Fatalf("Load all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("all trials = %d", len(all))
	}
}

func TestByTag(t *testing.T) {
	ts := []Trial{
		{TaskType: "CO"},
		{TaskType: "delayed_saccade"},
		{TaskType: "null"},
		{TaskType: "unknown_thing"},
	}
	grouped := ByTag(ts)
	if len(grouped[TagCO]) != 2 {
		t.Fatalf("CO trials = %d", len(grouped[TagCO]))
	}
	if len(grouped[TagNull]) != 1 {
		t.Fatalf("Null trials = %d", len(grouped[TagNull]))
	}
}
