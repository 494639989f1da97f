package model

import "time"

// IssuerRecord tracks one account's membership in the trusted issuer set.
// Removal flips Active to false instead of deleting the record, so a revoked
// issuer stays distinguishable from an identity that was never trusted and
// the grant/revoke trail survives on the ledger.
type IssuerRecord struct {
	ObjectType    string    `json:"objectType"` // Set to the composite key object type (IssuerRecord)
	Addr          string    `json:"addr"`       // Account identifier of the issuer
	Active        bool      `json:"active"`     // Current membership flag
	GrantedBy     string    `json:"grantedBy"`  // Administrator behind the most recent grant
	GrantedAt     time.Time `json:"grantedAt"`
	RevokedBy     string    `json:"revokedBy"` // Administrator behind the most recent removal, if any
	RevokedAt     time.Time `json:"revokedAt"`
	LastUpdatedAt time.Time `json:"lastUpdatedAt"`
}
