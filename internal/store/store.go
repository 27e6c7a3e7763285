package store

import "context"

// Kind enumerates the credential kinds the engine persists. ClearAll and
// every batch removal are generated from this closed set, so a kind added
// here is automatically covered by clear operations.
type Kind string

const (
	KindPrimaryToken      Kind = "primary_token"
	KindProfileToken      Kind = "profile_token"
	KindSelectedProfileID Kind = "selected_profile_id"
	KindCachedAccount     Kind = "cached_account"
	KindCachedProfile     Kind = "cached_profile"
)

// AllKinds returns every credential kind.
func AllKinds() []Kind {
	return []Kind{
		KindPrimaryToken,
		KindProfileToken,
		KindSelectedProfileID,
		KindCachedAccount,
		KindCachedProfile,
	}
}

// ProfileKinds returns the kinds scoped to the active profile, removed
// together when falling back from ProfileActive to the profile list.
func ProfileKinds() []Kind {
	return []Kind{
		KindProfileToken,
		KindSelectedProfileID,
		KindCachedProfile,
	}
}

// Store persists credential values keyed by kind. Implementations serialize
// writes to the same kind so a later write always wins whole; Load on a
// missing kind reports absence, not an error.
type Store interface {
	Save(ctx context.Context, kind Kind, value string) error
	Load(ctx context.Context, kind Kind) (string, bool, error)
	Clear(ctx context.Context, kinds ...Kind) error
	ClearAll(ctx context.Context) error
}
