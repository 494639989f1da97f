package contract

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"vaxledger/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// credentialSequenceStateKey is the plain world-state key holding the next
// sequence id to hand out, stored as a decimal string. Bootstrap seeds it
// with firstCredentialSequence.
const credentialSequenceStateKey = "credentialSequence"

// firstCredentialSequence is the id assigned to the first issued credential.
// Zero stays reserved as the "unissued" marker on returned records.
const firstCredentialSequence uint64 = 1

// doseWaitingPeriod is how long a subject waits after issuance before
// HasElapsedWaitingPeriod answers true. The comparison is strict: at exactly
// two weeks the period has not yet elapsed.
const doseWaitingPeriod = 14 * 24 * time.Hour

// seedVaccineTypes are the stock registry entries bound at bootstrap, kept in
// code order so endorsers write them identically.
var seedVaccineTypes = []model.VaccineType{
	{Code: 0, Name: "Pfizer-BioNTech"},
	{Code: 1, Name: "Moderna"},
	{Code: 2, Name: "AstraZeneca"},
}

// --- Core Helper Methods (used across multiple operations) ---

// getCurrentTxTimestamp retrieves the current transaction timestamp from the stub.
func (s *VaccinationSmartContract) getCurrentTxTimestamp(ctx contractapi.TransactionContextInterface) (time.Time, error) {
	ts, err := ctx.GetStub().GetTxTimestamp()
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get transaction timestamp: %w", err)
	}
	return ts.AsTime(), nil
}

// normalizeSubject canonicalizes a subject identifier before it is used for
// keying or stored on a record, so lookups and writes agree on one form.
func (s *VaccinationSmartContract) normalizeSubject(subject string) (string, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", fmt.Errorf("%w: subject cannot be empty", ErrInvalidTarget)
	}
	if len(subject) > maxIdentifierLength {
		return "", fmt.Errorf("subject exceeds max length %d", maxIdentifierLength)
	}
	return subject, nil
}

// createCredentialCompositeKey creates a composite key for a credential record.
func (s *VaccinationSmartContract) createCredentialCompositeKey(ctx contractapi.TransactionContextInterface, subject string) (string, error) {
	return ctx.GetStub().CreateCompositeKey(credentialObjectType, []string{subject})
}

// createVaccineTypeCompositeKey creates a composite key for a vaccine type
// entry. The code attribute is zero padded so lexicographic iteration over
// composite keys walks codes in ascending numeric order.
func (s *VaccinationSmartContract) createVaccineTypeCompositeKey(ctx contractapi.TransactionContextInterface, code uint8) (string, error) {
	return ctx.GetStub().CreateCompositeKey(vaccineTypeObjectType, []string{fmt.Sprintf("%03d", code)})
}

// --- Validation Helper Functions ---

func (s *VaccinationSmartContract) validateRequiredString(input, field string, max int) error {
	if strings.TrimSpace(input) == "" {
		return fmt.Errorf("%s cannot be empty", field)
	}
	if len(input) > max {
		return fmt.Errorf("%s exceeds max length %d", field, max)
	}
	return nil
}

func (s *VaccinationSmartContract) validateOptionalString(input, field string, max int) error {
	if input != "" && len(input) > max {
		return fmt.Errorf("%s exceeds max length %d", field, max)
	}
	return nil
}

// parsePageSize converts a caller-supplied page size string into a usable
// value, falling back to a default of 10 and capping at 100.
func (s *VaccinationSmartContract) parsePageSize(pageSizeStr, caller string) int32 {
	pageSize, err := strconv.ParseInt(pageSizeStr, 10, 32)
	if err != nil || pageSize <= 0 {
		logger.Warningf("%s: Invalid pageSize '%s', using default of 10. Error: %v", caller, pageSizeStr, err)
		pageSize = 10
	}
	if pageSize > 100 {
		logger.Warningf("%s: Requested pageSize %d exceeds max of 100. Capping at 100.", caller, pageSize)
		pageSize = 100
	}
	return int32(pageSize)
}

// --- Vaccine Type State Helpers ---

// getVaccineTypeRecord returns the registry entry for code, or nil when the
// code has never been bound.
func (s *VaccinationSmartContract) getVaccineTypeRecord(ctx contractapi.TransactionContextInterface, code uint8) (*model.VaccineType, error) {
	typeKey, err := s.createVaccineTypeCompositeKey(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to create vaccine type key for code %d: %w", code, err)
	}
	typeBytes, err := ctx.GetStub().GetState(typeKey)
	if err != nil {
		return nil, fmt.Errorf("ledger error retrieving vaccine type for code %d: %w", code, err)
	}
	if typeBytes == nil {
		return nil, nil
	}
	var vaccineType model.VaccineType
	if err := json.Unmarshal(typeBytes, &vaccineType); err != nil {
		return nil, fmt.Errorf("failed to unmarshal vaccine type for code %d: %w", code, err)
	}
	return &vaccineType, nil
}

func (s *VaccinationSmartContract) putVaccineType(ctx contractapi.TransactionContextInterface, vaccineType *model.VaccineType) error {
	typeKey, err := s.createVaccineTypeCompositeKey(ctx, vaccineType.Code)
	if err != nil {
		return fmt.Errorf("failed to create vaccine type key for code %d: %w", vaccineType.Code, err)
	}
	typeBytes, err := json.Marshal(vaccineType)
	if err != nil {
		return fmt.Errorf("failed to marshal vaccine type for code %d: %w", vaccineType.Code, err)
	}
	if err := ctx.GetStub().PutState(typeKey, typeBytes); err != nil {
		return fmt.Errorf("failed to save vaccine type for code %d: %w", vaccineType.Code, err)
	}
	return nil
}

// --- Sequence Counter Helpers ---

// nextCredentialSequence reads the id the next issuance will receive. An
// absent counter falls back to firstCredentialSequence so a ledger
// bootstrapped before the counter existed still issues dense ids.
func (s *VaccinationSmartContract) nextCredentialSequence(ctx contractapi.TransactionContextInterface) (uint64, error) {
	seqBytes, err := ctx.GetStub().GetState(credentialSequenceStateKey)
	if err != nil {
		return 0, fmt.Errorf("ledger error retrieving credential sequence counter: %w", err)
	}
	if seqBytes == nil {
		logger.Warningf("Credential sequence counter not found on ledger. Starting from %d.", firstCredentialSequence)
		return firstCredentialSequence, nil
	}
	seq, err := strconv.ParseUint(string(seqBytes), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("credential sequence counter holds invalid value '%s': %w", string(seqBytes), err)
	}
	return seq, nil
}

func (s *VaccinationSmartContract) putCredentialSequence(ctx contractapi.TransactionContextInterface, seq uint64) error {
	if err := ctx.GetStub().PutState(credentialSequenceStateKey, []byte(strconv.FormatUint(seq, 10))); err != nil {
		return fmt.Errorf("failed to save credential sequence counter: %w", err)
	}
	return nil
}
