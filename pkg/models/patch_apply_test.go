package models

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/apperrors"
)

func patch(path, value string) Patch {
	return Patch{Path: path, Value: json.RawMessage(value)}
}

func TestApplyPatchSet(t *testing.T) {
	tests := []struct {
		name    string
		start   PartialCampaign
		patches []Patch
		check   func(t *testing.T, c *PartialCampaign)
		wantErr bool
	}{
		{
			name:    "top-level field",
			patches: []Patch{patch("name", `"Ashes of Eredor"`)},
			check: func(t *testing.T, c *PartialCampaign) {
				if c.Name != "Ashes of Eredor" {
					t.Errorf("Name = %q", c.Name)
				}
			},
		},
		{
			name:    "nested field creates intermediate object",
			patches: []Patch{patch("intent.fantasy", `"political intrigue in a dying empire"`)},
			check: func(t *testing.T, c *PartialCampaign) {
				if c.Intent == nil || c.Intent.Fantasy != "political intrigue in a dying empire" {
					t.Errorf("Intent = %+v", c.Intent)
				}
			},
		},
		{
			name:  "null value clears field",
			start: PartialCampaign{Name: "Old Name", System: "D&D 5e"},
			patches: []Patch{
				{Path: "name", Value: json.RawMessage("null")},
			},
			check: func(t *testing.T, c *PartialCampaign) {
				if c.Name != "" {
					t.Errorf("Name = %q, want cleared", c.Name)
				}
				if c.System != "D&D 5e" {
					t.Errorf("System = %q, want untouched", c.System)
				}
			},
		},
		{
			name: "later patch wins within a set",
			patches: []Patch{
				patch("name", `"First"`),
				patch("name", `"Second"`),
			},
			check: func(t *testing.T, c *PartialCampaign) {
				if c.Name != "Second" {
					t.Errorf("Name = %q, want Second", c.Name)
				}
			},
		},
		{
			name:    "unknown field rejected",
			patches: []Patch{patch("nonexistent_field", `"value"`)},
			wantErr: true,
		},
		{
			name:    "type mismatch rejected",
			patches: []Patch{patch("player_count", `"not a number"`)},
			wantErr: true,
		},
		{
			name:    "empty path rejected",
			patches: []Patch{patch("", `"value"`)},
			wantErr: true,
		},
		{
			name:    "scalar intermediate rejected",
			start:   PartialCampaign{Name: "Scalar"},
			patches: []Patch{patch("name.sub", `"value"`)},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			campaign := tt.start
			err := ApplyPatchSet(&campaign, PatchSet{Patches: tt.patches, Source: PatchSourceWizard})

			if tt.wantErr {
				var pe *apperrors.PatchValidationError
				if !errors.As(err, &pe) {
					t.Fatalf("expected PatchValidationError, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ApplyPatchSet() error = %v", err)
			}
			tt.check(t, &campaign)
		})
	}
}

func TestApplyPatchSet_AtomicOnFailure(t *testing.T) {
	campaign := PartialCampaign{Name: "Original"}
	set := PatchSet{
		Patches: []Patch{
			patch("name", `"Changed"`),
			patch("bogus_field", `"value"`),
		},
		Source: PatchSourceWizard,
	}

	if err := ApplyPatchSet(&campaign, set); err == nil {
		t.Fatal("expected error for invalid patch in set")
	}
	if campaign.Name != "Original" {
		t.Errorf("Name = %q, want Original; a failed set must not partially apply", campaign.Name)
	}
}

func TestApplyPatchSet_RoundTrip(t *testing.T) {
	campaign := PartialCampaign{}
	set := PatchSet{
		Patches: []Patch{
			patch("name", `"The Sunken Citadel"`),
			patch("system", `"D&D 5e"`),
			patch("player_count", `5`),
			patch("session_scope.pacing", `"balanced"`),
			patch("intent.themes", `["betrayal", "redemption"]`),
		},
		Source: PatchSourceSuggestion,
	}

	if err := ApplyPatchSet(&campaign, set); err != nil {
		t.Fatalf("ApplyPatchSet() error = %v", err)
	}

	if missing := campaign.ValidateForCompletion(); len(missing) != 0 {
		t.Errorf("ValidateForCompletion() = %v, want none", missing)
	}
	if campaign.SessionScope == nil || campaign.SessionScope.Pacing != PacingBalanced {
		t.Errorf("SessionScope = %+v", campaign.SessionScope)
	}
	if campaign.Intent == nil || len(campaign.Intent.Themes) != 2 {
		t.Errorf("Intent = %+v", campaign.Intent)
	}
}
