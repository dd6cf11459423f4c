package authz

import "time"

// Class names the weight an action must accumulate before it executes.
type Class string

const (
	ClassLow    Class = "low"
	ClassMedium Class = "medium"
	ClassHigh   Class = "high"
)

// Valid reports whether the class is one of the three known tiers.
func (c Class) Valid() bool {
	switch c {
	case ClassLow, ClassMedium, ClassHigh:
		return true
	default:
		return false
	}
}

// SignerWeight is one authorized signer and its contribution toward quorum.
type SignerWeight struct {
	SignerID string
	Weight   int64
}

// Scope mirrors the authz_scopes table plus its signer set. A scope is
// only ever replaced wholesale by its owner, never partially mutated.
type Scope struct {
	ID        string
	OwnerID   string
	Low       int64
	Med       int64
	High      int64
	Signers   []SignerWeight
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ConfigureScopeParams carries a full scope configuration. Reconfiguration
// replaces any previous signer set and thresholds atomically.
type ConfigureScopeParams struct {
	ScopeID string
	OwnerID string
	Signers []SignerWeight
	Low     int64
	Med     int64
	High    int64
}
