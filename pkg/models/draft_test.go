package models

import "testing"

func TestWizardStep_CanTransitionTo(t *testing.T) {
	tests := []struct {
		name string
		from WizardStep
		to   WizardStep
		want bool
	}{
		{"forward to next", StepBasics, StepIntent, true},
		{"forward skipping required step", StepBasics, StepScope, false},
		{"backward to any earlier step", StepReview, StepBasics, true},
		{"backward one step", StepScope, StepIntent, true},
		{"same step", StepIntent, StepIntent, false},
		{"forward over skippable run", StepPlayers, StepReview, true},
		{"forward over one skippable", StepPlayers, StepArcStructure, true},
		{"forward over required step", StepIntent, StepPlayers, false},
		{"unknown source", WizardStep("bogus"), StepIntent, false},
		{"unknown target", StepIntent, WizardStep("bogus"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
				t.Errorf("%s -> %s = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestWizardStep_NextPrevious(t *testing.T) {
	if got := StepBasics.Previous(); got != "" {
		t.Errorf("first step Previous() = %q, want empty", got)
	}
	if got := StepReview.Next(); got != "" {
		t.Errorf("last step Next() = %q, want empty", got)
	}
	if got := StepBasics.Next(); got != StepIntent {
		t.Errorf("StepBasics.Next() = %q, want %q", got, StepIntent)
	}

	// Walking Next from the first step visits every step exactly once.
	seen := 0
	for s := StepBasics; s != ""; s = s.Next() {
		seen++
	}
	if seen != len(WizardSteps()) {
		t.Errorf("walked %d steps, want %d", seen, len(WizardSteps()))
	}
}

func TestWizardStep_Skippable(t *testing.T) {
	skippable := map[WizardStep]bool{
		StepPartyComposition: true,
		StepArcStructure:     true,
		StepInitialContent:   true,
	}
	for _, step := range WizardSteps() {
		if got := step.Skippable(); got != skippable[step] {
			t.Errorf("%s.Skippable() = %v, want %v", step, got, skippable[step])
		}
	}
}

func TestPartialCampaign_ValidateForCompletion(t *testing.T) {
	players := 4

	tests := []struct {
		name     string
		campaign PartialCampaign
		missing  int
	}{
		{
			name:     "complete",
			campaign: PartialCampaign{Name: "Ashes of Eredor", System: "D&D 5e", PlayerCount: &players},
			missing:  0,
		},
		{
			name:     "empty draft",
			campaign: PartialCampaign{},
			missing:  3,
		},
		{
			name:     "missing player count",
			campaign: PartialCampaign{Name: "Ashes of Eredor", System: "D&D 5e"},
			missing:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.campaign.ValidateForCompletion(); len(got) != tt.missing {
				t.Errorf("ValidateForCompletion() = %v, want %d missing fields", got, tt.missing)
			}
		})
	}
}

func TestDraftSnapshot_Progress(t *testing.T) {
	d := &DraftSnapshot{CompletedSteps: []WizardStep{StepBasics, StepIntent}}

	if !d.StepCompleted(StepBasics) {
		t.Error("StepCompleted(StepBasics) = false, want true")
	}
	if d.StepCompleted(StepScope) {
		t.Error("StepCompleted(StepScope) = true, want false")
	}
	if got := d.ProgressPercent(); got != 25 {
		t.Errorf("ProgressPercent() = %d, want 25", got)
	}
}
