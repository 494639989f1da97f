package model

import "time"

// CredentialRecord is the per-subject vaccination credential kept on the
// ledger. A SequenceID of zero marks the record as unissued; queries hand
// back that zero-id sentinel for subjects that never went through issuance,
// and callers must treat it as "absent".
type CredentialRecord struct {
	ObjectType      string    `json:"objectType"`      // Set to the composite key object type (CredentialRecord)
	Subject         string    `json:"subject"`         // Account identifier the record is filed under
	SequenceID      uint64    `json:"sequenceId"`      // Globally unique issuance id, 0 = unissued
	IssuedBy        string    `json:"issuedBy"`        // Identity that issued the credential, kept for audit
	VaccineTypeCode uint8     `json:"vaccineTypeCode"` // Stored verbatim, never checked against the registry
	DoseCount       uint32    `json:"doseCount"`       // Starts at 1 on issuance, only ever increases
	Payload         string    `json:"payload"`         // Opaque issuer-supplied string
	IssuedAt        time.Time `json:"issuedAt"`        // Transaction time of issuance
	LastUpdatedAt   time.Time `json:"lastUpdatedAt"`   // Transaction time of the latest dose update
}

// VaccineType is one entry of the vaccine-type reference registry. A code
// bound to a non-empty name is immutable.
type VaccineType struct {
	ObjectType   string    `json:"objectType"` // Set to the composite key object type (VaccineType)
	Code         uint8     `json:"code"`
	Name         string    `json:"name"`
	RegisteredBy string    `json:"registeredBy"` // Issuer that bound the code
	RegisteredAt time.Time `json:"registeredAt"`
}

// CredentialHistoryEntry is one historical version of a credential record,
// replayed from the ledger's key history (most recent version first).
type CredentialHistoryEntry struct {
	TxID      string    `json:"txId"`
	Timestamp time.Time `json:"timestamp"`
	IsDelete  bool      `json:"isDelete"`
	Value     string    `json:"value"`     // Raw JSON value of the record at that version
	DoseCount uint32    `json:"doseCount"` // Dose count at that version
	Action    string    `json:"action"`    // ISSUED, DOSE_RECORDED or DELETED
}

// PaginatedCredentialResponse is the structure returned by paginated
// credential queries.
type PaginatedCredentialResponse struct {
	Credentials  []*CredentialRecord `json:"credentials"`
	NextBookmark string              `json:"nextBookmark"`
	FetchedCount int32               `json:"fetchedCount"`
}
