package contract

import (
	"encoding/json"
	"fmt"
	"time"

	"vaxledger/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// --- Issuer Operations ---
// Every operation in this file requires the caller to be a current member of
// the issuer set. Mutations return (true, nil) on success so gateway clients
// get an explicit acknowledgement value.

// RegisterVaccineType binds code to name in the vaccine type registry. A code
// already bound to a non-empty name is immutable; re-binding fails with
// ErrTypeAlreadyDefined and the stored name stays untouched.
func (s *VaccinationSmartContract) RegisterVaccineType(ctx contractapi.TransactionContextInterface, code uint8, name string) (bool, error) {
	acr := NewAccessControlRegistry(ctx)
	if err := acr.RequireIssuer(); err != nil {
		return false, fmt.Errorf("RegisterVaccineType: %w", err)
	}
	if err := s.validateRequiredString(name, "vaccine type name", maxVaccineNameLength); err != nil {
		return false, fmt.Errorf("RegisterVaccineType: %w", err)
	}

	existing, err := s.getVaccineTypeRecord(ctx, code)
	if err != nil {
		return false, fmt.Errorf("RegisterVaccineType: %w", err)
	}
	if existing != nil && existing.Name != "" {
		return false, fmt.Errorf("RegisterVaccineType: %w: code %d is bound to '%s'", ErrTypeAlreadyDefined, code, existing.Name)
	}

	callerID, err := acr.CallerID()
	if err != nil {
		return false, fmt.Errorf("RegisterVaccineType: %w", err)
	}
	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return false, fmt.Errorf("RegisterVaccineType: %w", err)
	}

	if err := s.putVaccineType(ctx, &model.VaccineType{
		ObjectType:   vaccineTypeObjectType,
		Code:         code,
		Name:         name,
		RegisteredBy: callerID,
		RegisteredAt: now,
	}); err != nil {
		return false, fmt.Errorf("RegisterVaccineType: %w", err)
	}

	logger.Infof("Vaccine type code %d bound to '%s' by issuer '%s'.", code, name, callerID)
	return true, nil
}

// IssueCredential creates the credential record for subject with the next
// sequence id and a dose count of one. The vaccine type code is stored
// verbatim without consulting the registry, and the payload is opaque to the
// ledger. Unlike issuer-set changes, issuance emits no chaincode event.
func (s *VaccinationSmartContract) IssueCredential(ctx contractapi.TransactionContextInterface, subject string, vaccineTypeCode uint8, payload string) (bool, error) {
	acr := NewAccessControlRegistry(ctx)
	if err := acr.RequireIssuer(); err != nil {
		return false, fmt.Errorf("IssueCredential: %w", err)
	}
	subject, err := s.normalizeSubject(subject)
	if err != nil {
		return false, fmt.Errorf("IssueCredential: %w", err)
	}
	if err := s.validateOptionalString(payload, "payload", maxPayloadLength); err != nil {
		return false, fmt.Errorf("IssueCredential: %w", err)
	}

	existing, err := s.getCredentialRecord(ctx, subject)
	if err != nil {
		return false, fmt.Errorf("IssueCredential: %w", err)
	}
	if existing != nil && existing.SequenceID > 0 {
		return false, fmt.Errorf("IssueCredential: %w: subject '%s' holds credential %d", ErrAlreadyIssued, subject, existing.SequenceID)
	}

	callerID, err := acr.CallerID()
	if err != nil {
		return false, fmt.Errorf("IssueCredential: %w", err)
	}
	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return false, fmt.Errorf("IssueCredential: %w", err)
	}
	sequenceID, err := s.nextCredentialSequence(ctx)
	if err != nil {
		return false, fmt.Errorf("IssueCredential: %w", err)
	}

	credential := model.CredentialRecord{
		ObjectType:      credentialObjectType,
		Subject:         subject,
		SequenceID:      sequenceID,
		IssuedBy:        callerID,
		VaccineTypeCode: vaccineTypeCode,
		DoseCount:       1,
		Payload:         payload,
		IssuedAt:        now,
		LastUpdatedAt:   now,
	}
	credentialKey, err := s.createCredentialCompositeKey(ctx, subject)
	if err != nil {
		return false, fmt.Errorf("IssueCredential: failed to create key for subject '%s': %w", subject, err)
	}
	credentialBytes, err := json.Marshal(credential)
	if err != nil {
		return false, fmt.Errorf("IssueCredential: failed to marshal credential for subject '%s': %w", subject, err)
	}
	if err := ctx.GetStub().PutState(credentialKey, credentialBytes); err != nil {
		return false, fmt.Errorf("IssueCredential: failed to save credential for subject '%s': %w", subject, err)
	}
	if err := s.putCredentialSequence(ctx, sequenceID+1); err != nil {
		return false, fmt.Errorf("IssueCredential: %w", err)
	}

	logger.Infof("Credential %d issued to subject '%s' (vaccine type code %d) by issuer '%s'.", sequenceID, subject, vaccineTypeCode, callerID)
	return true, nil
}

// IncrementDoseCount records one additional dose for subject. The count only
// ever moves up; there is no ceiling and no per-dose event.
func (s *VaccinationSmartContract) IncrementDoseCount(ctx contractapi.TransactionContextInterface, subject string) (bool, error) {
	acr := NewAccessControlRegistry(ctx)
	if err := acr.RequireIssuer(); err != nil {
		return false, fmt.Errorf("IncrementDoseCount: %w", err)
	}
	subject, err := s.normalizeSubject(subject)
	if err != nil {
		return false, fmt.Errorf("IncrementDoseCount: %w", err)
	}

	credential, err := s.getCredentialRecord(ctx, subject)
	if err != nil {
		return false, fmt.Errorf("IncrementDoseCount: %w", err)
	}
	if credential == nil || credential.DoseCount < 1 {
		return false, fmt.Errorf("IncrementDoseCount: %w: subject '%s'", ErrNotYetIssued, subject)
	}

	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return false, fmt.Errorf("IncrementDoseCount: %w", err)
	}
	credential.DoseCount++
	credential.LastUpdatedAt = now

	credentialKey, err := s.createCredentialCompositeKey(ctx, subject)
	if err != nil {
		return false, fmt.Errorf("IncrementDoseCount: failed to create key for subject '%s': %w", subject, err)
	}
	credentialBytes, err := json.Marshal(credential)
	if err != nil {
		return false, fmt.Errorf("IncrementDoseCount: failed to marshal credential for subject '%s': %w", subject, err)
	}
	if err := ctx.GetStub().PutState(credentialKey, credentialBytes); err != nil {
		return false, fmt.Errorf("IncrementDoseCount: failed to save credential for subject '%s': %w", subject, err)
	}

	logger.Infof("Dose %d recorded for subject '%s'.", credential.DoseCount, subject)
	return true, nil
}

// IsFullyDosed reports whether subject has at least one recorded dose. A
// single dose counts as fully dosed; subjects without a credential answer
// false.
func (s *VaccinationSmartContract) IsFullyDosed(ctx contractapi.TransactionContextInterface, subject string) (bool, error) {
	acr := NewAccessControlRegistry(ctx)
	if err := acr.RequireIssuer(); err != nil {
		return false, fmt.Errorf("IsFullyDosed: %w", err)
	}
	subject, err := s.normalizeSubject(subject)
	if err != nil {
		return false, fmt.Errorf("IsFullyDosed: %w", err)
	}

	credential, err := s.getCredentialRecord(ctx, subject)
	if err != nil {
		return false, fmt.Errorf("IsFullyDosed: %w", err)
	}
	return credential != nil && credential.DoseCount >= 1, nil
}

// HasElapsedWaitingPeriod reports whether more than two weeks have passed
// since subject's credential was issued, measured against the transaction
// timestamp. A subject without a credential answers true: the zero issuance
// time lies further than two weeks in the past.
func (s *VaccinationSmartContract) HasElapsedWaitingPeriod(ctx contractapi.TransactionContextInterface, subject string) (bool, error) {
	acr := NewAccessControlRegistry(ctx)
	if err := acr.RequireIssuer(); err != nil {
		return false, fmt.Errorf("HasElapsedWaitingPeriod: %w", err)
	}
	subject, err := s.normalizeSubject(subject)
	if err != nil {
		return false, fmt.Errorf("HasElapsedWaitingPeriod: %w", err)
	}

	credential, err := s.getCredentialRecord(ctx, subject)
	if err != nil {
		return false, fmt.Errorf("HasElapsedWaitingPeriod: %w", err)
	}
	var issuedAt time.Time
	if credential != nil {
		issuedAt = credential.IssuedAt
	}
	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return false, fmt.Errorf("HasElapsedWaitingPeriod: %w", err)
	}
	return now.Sub(issuedAt) > doseWaitingPeriod, nil
}
