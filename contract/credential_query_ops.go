package contract

import (
	"encoding/json"
	"fmt"

	"vaxledger/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// --- Query Functions ---
// Credential and vaccine type queries are open to any caller; only the
// issuer-side verification predicates (IsFullyDosed, HasElapsedWaitingPeriod)
// and the issuer listing are gated.

// getCredentialRecord is an internal helper returning the stored credential
// for subject, or nil when the subject has never been issued one. The subject
// must already be normalized.
func (s *VaccinationSmartContract) getCredentialRecord(ctx contractapi.TransactionContextInterface, subject string) (*model.CredentialRecord, error) {
	credentialKey, err := s.createCredentialCompositeKey(ctx, subject)
	if err != nil {
		return nil, fmt.Errorf("failed to create key for subject '%s': %w", subject, err)
	}
	credentialBytes, err := ctx.GetStub().GetState(credentialKey)
	if err != nil {
		return nil, fmt.Errorf("ledger error retrieving credential for subject '%s': %w", subject, err)
	}
	if credentialBytes == nil {
		return nil, nil
	}
	var credential model.CredentialRecord
	if err := json.Unmarshal(credentialBytes, &credential); err != nil {
		return nil, fmt.Errorf("failed to unmarshal credential for subject '%s': %w", subject, err)
	}
	return &credential, nil
}

// GetCredential returns subject's credential record. A subject that was never
// issued one gets a sentinel record with the subject filled in and every
// other field zero, SequenceID included; callers distinguish the two cases by
// SequenceID > 0 rather than by an error.
func (s *VaccinationSmartContract) GetCredential(ctx contractapi.TransactionContextInterface, subject string) (*model.CredentialRecord, error) {
	logger.Debugf("Chaincode Call: GetCredential for subject '%s'", subject)
	subject, err := s.normalizeSubject(subject)
	if err != nil {
		return nil, fmt.Errorf("GetCredential: %w", err)
	}
	credential, err := s.getCredentialRecord(ctx, subject)
	if err != nil {
		return nil, fmt.Errorf("GetCredential: %w", err)
	}
	if credential == nil {
		return &model.CredentialRecord{
			ObjectType: credentialObjectType,
			Subject:    subject,
		}, nil
	}
	return credential, nil
}

// GetVaccineType returns the name bound to code, or the empty string when the
// code is unbound.
func (s *VaccinationSmartContract) GetVaccineType(ctx contractapi.TransactionContextInterface, code uint8) (string, error) {
	logger.Debugf("Chaincode Call: GetVaccineType for code %d", code)
	vaccineType, err := s.getVaccineTypeRecord(ctx, code)
	if err != nil {
		return "", fmt.Errorf("GetVaccineType: %w", err)
	}
	if vaccineType == nil {
		return "", nil
	}
	return vaccineType.Name, nil
}

// ListVaccineTypes returns every bound registry entry in ascending code order.
func (s *VaccinationSmartContract) ListVaccineTypes(ctx contractapi.TransactionContextInterface) ([]model.VaccineType, error) {
	logger.Debug("Chaincode Call: ListVaccineTypes")

	resultsIterator, err := ctx.GetStub().GetStateByPartialCompositeKey(vaccineTypeObjectType, []string{})
	if err != nil {
		return nil, fmt.Errorf("ListVaccineTypes: failed to get vaccine type iterator: %w", err)
	}
	defer resultsIterator.Close()

	vaccineTypes := []model.VaccineType{}
	for resultsIterator.HasNext() {
		queryResponse, iterErr := resultsIterator.Next()
		if iterErr != nil {
			logger.Warningf("ListVaccineTypes: Error iterating results: %v. Skipping.", iterErr)
			continue
		}
		var vaccineType model.VaccineType
		if err := json.Unmarshal(queryResponse.Value, &vaccineType); err != nil {
			logger.Warningf("ListVaccineTypes: Error unmarshalling vaccine type for key '%s': %v. Skipping.", queryResponse.Key, err)
			continue
		}
		vaccineTypes = append(vaccineTypes, vaccineType)
	}
	return vaccineTypes, nil // Will be [] if empty, not null
}

// GetCredentialHistory replays every committed version of subject's
// credential from key history, most recent version first. Each entry carries
// the raw stored JSON plus a derived action label.
func (s *VaccinationSmartContract) GetCredentialHistory(ctx contractapi.TransactionContextInterface, subject string) ([]model.CredentialHistoryEntry, error) {
	logger.Debugf("Chaincode Call: GetCredentialHistory for subject '%s'", subject)
	subject, err := s.normalizeSubject(subject)
	if err != nil {
		return nil, fmt.Errorf("GetCredentialHistory: %w", err)
	}
	credentialKey, err := s.createCredentialCompositeKey(ctx, subject)
	if err != nil {
		return nil, fmt.Errorf("GetCredentialHistory: failed to create key for subject '%s': %w", subject, err)
	}

	historyIter, err := ctx.GetStub().GetHistoryForKey(credentialKey)
	if err != nil {
		return nil, fmt.Errorf("GetCredentialHistory: failed to get history for subject '%s': %w", subject, err)
	}
	defer historyIter.Close()

	entries := []model.CredentialHistoryEntry{}
	for historyIter.HasNext() {
		historyItem, iterErr := historyIter.Next()
		if iterErr != nil {
			logger.Warningf("GetCredentialHistory: Error iterating history for '%s': %v. Skipping entry.", subject, iterErr)
			continue
		}
		var pastCredential model.CredentialRecord
		_ = json.Unmarshal(historyItem.Value, &pastCredential)

		action := "DOSE_RECORDED"
		if pastCredential.DoseCount <= 1 {
			action = "ISSUED"
		}
		if historyItem.IsDelete {
			action = "DELETED"
		}

		entries = append(entries, model.CredentialHistoryEntry{
			TxID:      historyItem.TxId,
			Timestamp: historyItem.Timestamp.AsTime(),
			IsDelete:  historyItem.IsDelete,
			Value:     string(historyItem.Value),
			DoseCount: pastCredential.DoseCount,
			Action:    action,
		})
	}
	return entries, nil // Will be [] if no history, not null
}

// GetAllCredentials pages through every credential record on the ledger in
// subject order.
func (s *VaccinationSmartContract) GetAllCredentials(ctx contractapi.TransactionContextInterface, pageSizeStr string, bookmark string) (*model.PaginatedCredentialResponse, error) {
	pageSize := s.parsePageSize(pageSizeStr, "GetAllCredentials")
	logger.Infof("GetAllCredentials: Listing credentials (pageSize: %d, bookmark: '%s')", pageSize, bookmark)

	resultsIterator, metadata, err := ctx.GetStub().GetStateByPartialCompositeKeyWithPagination(credentialObjectType, []string{}, pageSize, bookmark)
	if err != nil {
		return nil, fmt.Errorf("GetAllCredentials: failed to get credential iterator: %w", err)
	}
	defer resultsIterator.Close()

	credentials := []*model.CredentialRecord{}
	fetchedCount := int32(0)

	for resultsIterator.HasNext() {
		queryResponse, iterErr := resultsIterator.Next()
		if iterErr != nil {
			logger.Warningf("GetAllCredentials: Error iterating results: %v. Skipping.", iterErr)
			continue
		}
		var credential model.CredentialRecord
		if errUnmarshal := json.Unmarshal(queryResponse.Value, &credential); errUnmarshal != nil {
			logger.Warningf("GetAllCredentials: Error unmarshalling credential for key '%s': %v. Skipping.", queryResponse.Key, errUnmarshal)
			continue
		}
		credentials = append(credentials, &credential)
		fetchedCount++
	}

	logger.Infof("GetAllCredentials: Retrieved %d credentials for this page.", fetchedCount)
	return &model.PaginatedCredentialResponse{
		Credentials:  credentials, // Will be [] if empty, not null
		NextBookmark: metadata.GetBookmark(),
		FetchedCount: fetchedCount,
	}, nil
}
