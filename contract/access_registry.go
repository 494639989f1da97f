package contract

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"vaxledger/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
	"github.com/hyperledger/fabric/common/flogging"
)

var acrLogger = flogging.MustGetLogger("vaxledger.accessregistry")

// Object types for composite keys, also usable as 'docType' or 'objectType' in CouchDB.
const (
	issuerObjectType = "IssuerRecord" // Stores IssuerRecord objects. Attribute for composite key: Addr.
)

// administratorStateKey is the plain world-state key holding the current
// administrator identity. Empty or absent means the ledger has not been
// bootstrapped yet.
const administratorStateKey = "administrator"

// Chaincode event names observed by off-ledger audit consumers. The
// administrator event keeps its proposal-style name even though the transfer
// is single-step and immediate; consumers match on this exact string.
const (
	EventAdministratorProposed = "AdministratorProposed"
	EventIssuerAdded           = "IssuerAdded"
	EventIssuerRemoved         = "IssuerRemoved"
)

// AccessControlRegistry is the single source of truth for who administers the
// issuer set and who may issue credentials. All state lives in world state
// reached through the transaction context; nothing is cached between
// invocations.
type AccessControlRegistry struct {
	Ctx contractapi.TransactionContextInterface
}

// NewAccessControlRegistry creates a registry bound to one transaction context.
func NewAccessControlRegistry(ctx contractapi.TransactionContextInterface) *AccessControlRegistry {
	return &AccessControlRegistry{Ctx: ctx}
}

// --- Internal Helper Functions ---

func (acr *AccessControlRegistry) getCurrentTxTimestamp() (time.Time, error) {
	ts, err := acr.Ctx.GetStub().GetTxTimestamp()
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get transaction timestamp: %w", err)
	}
	return ts.AsTime(), nil
}

func (acr *AccessControlRegistry) createIssuerCompositeKey(addr string) (string, error) {
	return acr.Ctx.GetStub().CreateCompositeKey(issuerObjectType, []string{addr})
}

// getIssuerRecord returns the stored record for addr, or nil when the
// identity has never been part of the issuer set.
func (acr *AccessControlRegistry) getIssuerRecord(addr string) (*model.IssuerRecord, error) {
	issuerKey, err := acr.createIssuerCompositeKey(addr)
	if err != nil {
		return nil, fmt.Errorf("failed to create issuer composite key for '%s': %w", addr, err)
	}
	recordBytes, err := acr.Ctx.GetStub().GetState(issuerKey)
	if err != nil {
		return nil, fmt.Errorf("ledger error retrieving issuer record for '%s': %w", addr, err)
	}
	if recordBytes == nil {
		return nil, nil
	}
	var record model.IssuerRecord
	if err := json.Unmarshal(recordBytes, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal issuer record for '%s': %w", addr, err)
	}
	return &record, nil
}

func (acr *AccessControlRegistry) putIssuerRecord(record *model.IssuerRecord) error {
	issuerKey, err := acr.createIssuerCompositeKey(record.Addr)
	if err != nil {
		return fmt.Errorf("failed to create issuer composite key for '%s': %w", record.Addr, err)
	}
	recordBytes, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal issuer record for '%s': %w", record.Addr, err)
	}
	if err := acr.Ctx.GetStub().PutState(issuerKey, recordBytes); err != nil {
		return fmt.Errorf("failed to save issuer record for '%s': %w", record.Addr, err)
	}
	return nil
}

func (acr *AccessControlRegistry) putAdministrator(addr string) error {
	if err := acr.Ctx.GetStub().PutState(administratorStateKey, []byte(addr)); err != nil {
		return fmt.Errorf("failed to save administrator '%s': %w", addr, err)
	}
	return nil
}

// emitRoleEvent sends a chaincode event for an administrator or issuer-set
// change. Event failures are logged, never returned; the state change stands
// on its own.
func (acr *AccessControlRegistry) emitRoleEvent(eventName string, payload map[string]interface{}) {
	eventBytes, err := json.Marshal(payload)
	if err != nil {
		acrLogger.Warningf("Failed to marshal payload for event '%s': %v. Event not emitted.", eventName, err)
		return
	}
	if err := acr.Ctx.GetStub().SetEvent(eventName, eventBytes); err != nil {
		acrLogger.Warningf("Failed to set event '%s': %v.", eventName, err)
	}
}

// --- Caller Identity ---

// CallerID retrieves the full identity string of the current transactor. The
// value is treated as an opaque account identifier throughout.
func (acr *AccessControlRegistry) CallerID() (string, error) {
	clientIdentity := acr.Ctx.GetClientIdentity()
	if clientIdentity == nil {
		return "", errors.New("client identity is nil from context")
	}
	id, err := clientIdentity.GetID()
	if err != nil {
		return "", fmt.Errorf("failed to get client identity ID from context: %w", err)
	}
	if id == "" { // GetID can sometimes return empty string without error if not properly set up
		return "", errors.New("client identity ID from context is empty")
	}
	return id, nil
}

// --- Role Queries ---

// Administrator returns the current administrator identity, or the empty
// string before the ledger has been bootstrapped.
func (acr *AccessControlRegistry) Administrator() (string, error) {
	adminBytes, err := acr.Ctx.GetStub().GetState(administratorStateKey)
	if err != nil {
		return "", fmt.Errorf("ledger error retrieving administrator: %w", err)
	}
	return string(adminBytes), nil
}

// IsIssuer reports whether addr currently holds issuer membership. Unknown
// and revoked identities both answer false.
func (acr *AccessControlRegistry) IsIssuer(addr string) (bool, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return false, nil
	}
	record, err := acr.getIssuerRecord(addr)
	if err != nil {
		return false, err
	}
	return record != nil && record.Active, nil
}

// RequireAdministrator returns ErrUnauthorized unless the caller is the
// current administrator. It performs no writes, so a failed check leaves the
// transaction with nothing to roll back.
func (acr *AccessControlRegistry) RequireAdministrator() error {
	callerID, err := acr.CallerID()
	if err != nil {
		return fmt.Errorf("failed to resolve caller for administrator check: %w", err)
	}
	admin, err := acr.Administrator()
	if err != nil {
		return err
	}
	if callerID != admin {
		return fmt.Errorf("%w: caller '%s' is not the administrator", ErrUnauthorized, callerID)
	}
	acrLogger.Debugf("Administrator check passed for '%s'.", callerID)
	return nil
}

// RequireIssuer returns ErrUnauthorized unless the caller is a current member
// of the issuer set. The administrator gets no bypass here; an administrator
// that should issue must also be added as an issuer.
func (acr *AccessControlRegistry) RequireIssuer() error {
	callerID, err := acr.CallerID()
	if err != nil {
		return fmt.Errorf("failed to resolve caller for issuer check: %w", err)
	}
	isIssuer, err := acr.IsIssuer(callerID)
	if err != nil {
		return fmt.Errorf("failed to check issuer membership for '%s': %w", callerID, err)
	}
	if !isIssuer {
		return fmt.Errorf("%w: caller '%s' is not a current issuer", ErrUnauthorized, callerID)
	}
	acrLogger.Debugf("Issuer check passed for '%s'.", callerID)
	return nil
}

// --- Administrator-Gated Mutations ---

// TransferAdministrator hands the administrator role to newAdmin in a single
// step. The role moves the moment the transaction commits; the named identity
// never accepts or confirms, even though the emitted event name suggests a
// proposal phase.
func (acr *AccessControlRegistry) TransferAdministrator(newAdmin string) error {
	if err := acr.RequireAdministrator(); err != nil {
		return fmt.Errorf("TransferAdministrator: %w", err)
	}
	currentAdmin, err := acr.Administrator()
	if err != nil {
		return fmt.Errorf("TransferAdministrator: %w", err)
	}

	newAdmin = strings.TrimSpace(newAdmin)
	if newAdmin == "" {
		return fmt.Errorf("TransferAdministrator: %w: new administrator cannot be empty", ErrInvalidTarget)
	}
	if newAdmin == currentAdmin {
		return fmt.Errorf("TransferAdministrator: %w: '%s' is already the administrator", ErrInvalidTarget, newAdmin)
	}

	now, err := acr.getCurrentTxTimestamp()
	if err != nil {
		return err
	}
	if err := acr.putAdministrator(newAdmin); err != nil {
		return fmt.Errorf("TransferAdministrator: %w", err)
	}

	acr.emitRoleEvent(EventAdministratorProposed, map[string]interface{}{
		"previousAdministrator": currentAdmin,
		"newAdministrator":      newAdmin,
		"transactionTimestamp":  now.Format(time.RFC3339),
	})
	acrLogger.Infof("Administrator role transferred from '%s' to '%s'.", currentAdmin, newAdmin)
	return nil
}

// AddIssuer grants issuer membership to addr. Re-granting a revoked identity
// reactivates its existing record so the earlier revocation trail survives.
func (acr *AccessControlRegistry) AddIssuer(addr string) error {
	if err := acr.RequireAdministrator(); err != nil {
		return fmt.Errorf("AddIssuer: %w", err)
	}

	addr = strings.TrimSpace(addr)
	if addr == "" {
		return fmt.Errorf("AddIssuer: %w: issuer identity cannot be empty", ErrInvalidTarget)
	}

	record, err := acr.getIssuerRecord(addr)
	if err != nil {
		return fmt.Errorf("AddIssuer: %w", err)
	}
	if record != nil && record.Active {
		return fmt.Errorf("AddIssuer: %w: '%s'", ErrAlreadyIssuer, addr)
	}

	callerID, err := acr.CallerID()
	if err != nil {
		return fmt.Errorf("AddIssuer: %w", err)
	}
	now, err := acr.getCurrentTxTimestamp()
	if err != nil {
		return err
	}

	if record == nil {
		record = &model.IssuerRecord{
			ObjectType: issuerObjectType,
			Addr:       addr,
		}
		acrLogger.Infof("Granting issuer membership to new identity '%s' by administrator '%s'.", addr, callerID)
	} else {
		acrLogger.Infof("Re-granting issuer membership to previously revoked identity '%s' by administrator '%s'.", addr, callerID)
	}
	record.Active = true
	record.GrantedBy = callerID
	record.GrantedAt = now
	record.LastUpdatedAt = now

	if err := acr.putIssuerRecord(record); err != nil {
		return fmt.Errorf("AddIssuer: %w", err)
	}

	acr.emitRoleEvent(EventIssuerAdded, map[string]interface{}{
		"issuer":               addr,
		"grantedBy":            callerID,
		"transactionTimestamp": now.Format(time.RFC3339),
	})
	return nil
}

// RemoveIssuer revokes issuer membership from addr. The record stays on the
// ledger with Active false; RemoveIssuer on an identity that was never an
// issuer, or is already revoked, fails with ErrNotIssuer.
func (acr *AccessControlRegistry) RemoveIssuer(addr string) error {
	if err := acr.RequireAdministrator(); err != nil {
		return fmt.Errorf("RemoveIssuer: %w", err)
	}

	addr = strings.TrimSpace(addr)
	if addr == "" {
		return fmt.Errorf("RemoveIssuer: %w: issuer identity cannot be empty", ErrInvalidTarget)
	}

	record, err := acr.getIssuerRecord(addr)
	if err != nil {
		return fmt.Errorf("RemoveIssuer: %w", err)
	}
	if record == nil || !record.Active {
		return fmt.Errorf("RemoveIssuer: %w: '%s'", ErrNotIssuer, addr)
	}

	callerID, err := acr.CallerID()
	if err != nil {
		return fmt.Errorf("RemoveIssuer: %w", err)
	}
	now, err := acr.getCurrentTxTimestamp()
	if err != nil {
		return err
	}

	record.Active = false
	record.RevokedBy = callerID
	record.RevokedAt = now
	record.LastUpdatedAt = now

	if err := acr.putIssuerRecord(record); err != nil {
		return fmt.Errorf("RemoveIssuer: %w", err)
	}

	acr.emitRoleEvent(EventIssuerRemoved, map[string]interface{}{
		"issuer":               addr,
		"revokedBy":            callerID,
		"transactionTimestamp": now.Format(time.RFC3339),
	})
	acrLogger.Infof("Issuer membership revoked from '%s' by administrator '%s'.", addr, callerID)
	return nil
}

// --- Administrator-Gated Queries ---

// ListIssuers returns every issuer record on the ledger, active and revoked,
// ordered by identity.
func (acr *AccessControlRegistry) ListIssuers() ([]model.IssuerRecord, error) {
	if err := acr.RequireAdministrator(); err != nil {
		return nil, fmt.Errorf("ListIssuers: %w", err)
	}

	resultsIterator, err := acr.Ctx.GetStub().GetStateByPartialCompositeKey(issuerObjectType, []string{})
	if err != nil {
		return nil, fmt.Errorf("failed to get issuer iterator using objectType '%s': %w", issuerObjectType, err)
	}
	defer resultsIterator.Close()

	issuers := []model.IssuerRecord{}
	for resultsIterator.HasNext() {
		queryResponse, iterErr := resultsIterator.Next()
		if iterErr != nil {
			acrLogger.Warningf("Failed to get next issuer record from iterator: %v. Skipping.", iterErr)
			continue
		}
		var record model.IssuerRecord
		if err := json.Unmarshal(queryResponse.Value, &record); err != nil {
			acrLogger.Warningf("Failed to unmarshal issuer record for key '%s': %v. Skipping.", queryResponse.Key, err)
			continue
		}
		issuers = append(issuers, record)
	}
	acrLogger.Debugf("Retrieved %d issuer records.", len(issuers))
	return issuers, nil
}
