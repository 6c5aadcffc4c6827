package models

import "testing"

func TestCanonStatus_CanTransitionTo(t *testing.T) {
	statuses := []CanonStatus{StatusDraft, StatusApproved, StatusCanonical, StatusDeprecated}
	allowed := map[CanonStatus]map[CanonStatus]bool{
		StatusDraft:     {StatusApproved: true},
		StatusApproved:  {StatusCanonical: true, StatusDraft: true},
		StatusCanonical: {StatusDeprecated: true},
	}

	for _, from := range statuses {
		for _, to := range statuses {
			want := allowed[from][to]
			if got := from.CanTransitionTo(to); got != want {
				t.Errorf("%s -> %s = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestCanonStatus_Editable(t *testing.T) {
	tests := []struct {
		status CanonStatus
		want   bool
	}{
		{StatusDraft, true},
		{StatusApproved, true},
		{StatusCanonical, false},
		{StatusDeprecated, false},
	}
	for _, tt := range tests {
		if got := tt.status.Editable(); got != tt.want {
			t.Errorf("%s.Editable() = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestMinTrust(t *testing.T) {
	tests := []struct {
		a, b, want TrustLevel
	}{
		{TrustCanonical, TrustDerived, TrustDerived},
		{TrustDerived, TrustCanonical, TrustDerived},
		{TrustCreative, TrustUnverified, TrustUnverified},
		{TrustCanonical, TrustCanonical, TrustCanonical},
		{TrustUnverified, TrustCanonical, TrustUnverified},
	}
	for _, tt := range tests {
		if got := MinTrust(tt.a, tt.b); got != tt.want {
			t.Errorf("MinTrust(%s, %s) = %s, want %s", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestTrustLevel_Reliable(t *testing.T) {
	reliable := map[TrustLevel]bool{
		TrustCanonical:  true,
		TrustDerived:    true,
		TrustCreative:   false,
		TrustUnverified: false,
	}
	for level, want := range reliable {
		if got := level.Reliable(); got != want {
			t.Errorf("%s.Reliable() = %v, want %v", level, got, want)
		}
	}
}

func TestGenerationPurpose_EntityTypeFor(t *testing.T) {
	tests := []struct {
		purpose GenerationPurpose
		want    EntityType
	}{
		{PurposeNPC, EntityNPC},
		{PurposeCharacterBackground, EntityNPC},
		{PurposeSessionPlan, EntitySession},
	}
	for _, tt := range tests {
		if got := tt.purpose.EntityTypeFor(); got != tt.want {
			t.Errorf("%s.EntityTypeFor() = %s, want %s", tt.purpose, got, tt.want)
		}
	}
}
