package route

import (
	"testing"

	"github.com/spec-kit/family-session/internal/domain"
)

func TestDecide(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		state domain.SessionState
		want  Target
	}{
		{
			name:  "unauthenticated",
			state: domain.SessionState{Phase: domain.PhaseUnauthenticated},
			want:  TargetLogin,
		},
		{
			name:  "primary only",
			state: domain.SessionState{Phase: domain.PhasePrimaryOnly},
			want:  TargetProfilePicker,
		},
		{
			name:  "pending pin",
			state: domain.SessionState{Phase: domain.PhasePendingPin, ProfileRole: domain.RoleParent},
			want:  TargetPinEntry,
		},
		{
			name:  "active child",
			state: domain.SessionState{Phase: domain.PhaseProfileActive, ProfileRole: domain.RoleChild},
			want:  TargetChildHome,
		},
		{
			name:  "active parent",
			state: domain.SessionState{Phase: domain.PhaseProfileActive, ProfileRole: domain.RoleParent},
			want:  TargetParentHome,
		},
		{
			name:  "active owner",
			state: domain.SessionState{Phase: domain.PhaseProfileActive, ProfileRole: domain.RoleOwner},
			want:  TargetParentHome,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if got := Decide(tc.state); got != tc.want {
				t.Fatalf("Decide(%+v) = %q, want %q", tc.state, got, tc.want)
			}
		})
	}
}
