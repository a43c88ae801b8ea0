package model

import "testing"

func TestNormalizeDefaults(t *testing.T) {
	req := MontageRequest{
		Directory:         "clips",
		Mode:              ModeMontage,
		TargetDurationSec: 30,
		MinDurationSec:    28,
		MaxDurationSec:    36,
		PerSegmentSec:     3,
		MaxFiles:          20,
		Aspect:            AspectPortrait,
		MusicURL:          "music.mp3",
	}
	req.Normalize()

	if req.MusicGainDB == nil || *req.MusicGainDB != DefaultMusicGainDB {
		t.Fatalf("music gain = %v, want %.1f", req.MusicGainDB, DefaultMusicGainDB)
	}
	if req.DuckMusic == nil || !*req.DuckMusic {
		t.Fatal("duck_music default should be true")
	}
	if req.EndWithLow == nil || !*req.EndWithLow {
		t.Fatal("end_with_low default should be true")
	}
	if req.TopKCandidates != DefaultTopKCandidates {
		t.Fatalf("top_k = %d, want %d", req.TopKCandidates, DefaultTopKCandidates)
	}
}

func TestNormalizeKeepsExplicitValues(t *testing.T) {
	gain := -20.0
	duck := false
	low := false
	req := MontageRequest{
		MusicGainDB:    &gain,
		DuckMusic:      &duck,
		EndWithLow:     &low,
		TopKCandidates: 3,
	}
	req.Normalize()

	if *req.MusicGainDB != -20.0 || *req.DuckMusic || *req.EndWithLow || req.TopKCandidates != 3 {
		t.Fatalf("explicit values overwritten: %+v", req)
	}
}

func TestAspectDims(t *testing.T) {
	cases := []struct {
		aspect string
		w, h   int
		ok     bool
	}{
		{AspectPortrait, 1080, 1920, true},
		{AspectSquare, 1080, 1080, true},
		{AspectWide, 1920, 1080, true},
		{"4:3", 0, 0, false},
		{"", 0, 0, false},
	}
	for _, tc := range cases {
		w, h, ok := AspectDims(tc.aspect)
		if w != tc.w || h != tc.h || ok != tc.ok {
			t.Errorf("AspectDims(%q) = (%d, %d, %v), want (%d, %d, %v)", tc.aspect, w, h, ok, tc.w, tc.h, tc.ok)
		}
	}
}

func TestJobStatusTerminal(t *testing.T) {
	if JobStatusQueued.Terminal() || JobStatusProcessing.Terminal() {
		t.Fatal("queued and processing are not terminal")
	}
	if !JobStatusCompleted.Terminal() || !JobStatusFailed.Terminal() {
		t.Fatal("completed and failed are terminal")
	}
}

func TestPlanDuration(t *testing.T) {
	plan := []Segment{
		{TrimStart: 2, TrimEnd: 5},
		{TrimStart: 0, TrimEnd: 1.5},
	}
	if got := PlanDuration(plan); got != 4.5 {
		t.Fatalf("duration = %.2f, want 4.5", got)
	}
	if got := PlanDuration(nil); got != 0 {
		t.Fatalf("empty plan duration = %.2f, want 0", got)
	}
}
