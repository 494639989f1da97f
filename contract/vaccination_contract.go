package contract

import (
	"errors"
	"fmt"

	"vaxledger/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
	"github.com/hyperledger/fabric/common/flogging"
)

var logger = flogging.MustGetLogger("vaxledger.vaccinationcontract")

// Object types for credential-side composite keys, also usable as 'docType' for CouchDB queries.
const (
	credentialObjectType  = "CredentialRecord" // Attribute for composite key: Subject.
	vaccineTypeObjectType = "VaccineType"      // Attribute for composite key: zero-padded Code.
)

// Constants for input validation and limits
const (
	maxIdentifierLength  = 512 // Subject and issuer identity strings can be full X.509 IDs
	maxVaccineNameLength = 256
	maxPayloadLength     = 2048 // Opaque credential payload
)

// VaccinationSmartContract keeps per-subject vaccination credentials on the
// ledger. Issuance and dose updates are restricted to a trusted issuer set
// that a single administrator curates through the AccessControlRegistry.
// @contract:VaccinationSmartContract
type VaccinationSmartContract struct {
	contractapi.Contract
}

// Instantiate is called during chaincode instantiation.
// It's a lifecycle method of the contract.
func (s *VaccinationSmartContract) Instantiate(ctx contractapi.TransactionContextInterface) {
	logger.Info("VaccinationSmartContract Instantiated/Upgraded")
}

// --- Lifecycle: Bootstrap ---

// BootstrapLedger initializes the ledger exactly once: the calling identity
// becomes both the administrator and the first issuer, the stock vaccine
// types are bound, and the issuance counter starts at its first value. No
// role events are emitted for the bootstrap grants. Re-running after a
// successful bootstrap fails without touching state.
func (s *VaccinationSmartContract) BootstrapLedger(ctx contractapi.TransactionContextInterface) error {
	logger.Info("Attempting to bootstrap ledger with initial administrator...")
	acr := NewAccessControlRegistry(ctx)

	existingAdmin, err := acr.Administrator()
	if err != nil {
		return fmt.Errorf("BootstrapLedger: failed to check for existing administrator: %w", err)
	}
	if existingAdmin != "" {
		msg := "ledger is already bootstrapped. BootstrapLedger should not be re-run."
		logger.Info(msg)
		return errors.New(msg)
	}

	callerID, err := acr.CallerID()
	if err != nil {
		return fmt.Errorf("BootstrapLedger: failed to get caller identity for bootstrap: %w", err)
	}
	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return fmt.Errorf("BootstrapLedger: failed to get transaction timestamp: %w", err)
	}

	if err := acr.putAdministrator(callerID); err != nil {
		return fmt.Errorf("BootstrapLedger: %w", err)
	}
	if err := acr.putIssuerRecord(&model.IssuerRecord{
		ObjectType:    issuerObjectType,
		Addr:          callerID,
		Active:        true,
		GrantedBy:     callerID, // Self-granted during bootstrap
		GrantedAt:     now,
		LastUpdatedAt: now,
	}); err != nil {
		return fmt.Errorf("BootstrapLedger: %w", err)
	}
	logger.Infof("BootstrapLedger: Identity '%s' registered as administrator and first issuer.", callerID)

	for _, seed := range seedVaccineTypes {
		vaccineType := seed
		vaccineType.ObjectType = vaccineTypeObjectType
		vaccineType.RegisteredBy = callerID
		vaccineType.RegisteredAt = now
		if err := s.putVaccineType(ctx, &vaccineType); err != nil {
			return fmt.Errorf("BootstrapLedger: failed to seed vaccine type %d: %w", vaccineType.Code, err)
		}
	}
	logger.Infof("BootstrapLedger: Seeded %d stock vaccine types.", len(seedVaccineTypes))

	if err := s.putCredentialSequence(ctx, firstCredentialSequence); err != nil {
		return fmt.Errorf("BootstrapLedger: %w", err)
	}

	logger.Infof("BootstrapLedger: Ledger bootstrapped successfully. Identity '%s' is now administrator.", callerID)
	return nil
}

// --- Access Control Wrappers (Delegating to AccessControlRegistry) ---
// These are direct pass-throughs to AccessControlRegistry, keeping the
// contract API surface in one place.

func (s *VaccinationSmartContract) TransferAdministrator(ctx contractapi.TransactionContextInterface, newAdministrator string) error {
	logger.Infof("Chaincode Call: TransferAdministrator to '%s'", newAdministrator)
	return NewAccessControlRegistry(ctx).TransferAdministrator(newAdministrator)
}

func (s *VaccinationSmartContract) AddIssuer(ctx contractapi.TransactionContextInterface, issuer string) (bool, error) {
	logger.Infof("Chaincode Call: AddIssuer '%s'", issuer)
	if err := NewAccessControlRegistry(ctx).AddIssuer(issuer); err != nil {
		return false, err
	}
	return true, nil
}

func (s *VaccinationSmartContract) RemoveIssuer(ctx contractapi.TransactionContextInterface, issuer string) (bool, error) {
	logger.Infof("Chaincode Call: RemoveIssuer '%s'", issuer)
	if err := NewAccessControlRegistry(ctx).RemoveIssuer(issuer); err != nil {
		return false, err
	}
	return true, nil
}

// IsIssuer is open to any caller; verifiers use it to check an identity
// before trusting credentials it issued.
func (s *VaccinationSmartContract) IsIssuer(ctx contractapi.TransactionContextInterface, identity string) (bool, error) {
	logger.Debugf("Chaincode Call: IsIssuer for '%s'", identity)
	return NewAccessControlRegistry(ctx).IsIssuer(identity)
}

// GetAdministrator is open to any caller. Returns the empty string before
// bootstrap.
func (s *VaccinationSmartContract) GetAdministrator(ctx contractapi.TransactionContextInterface) (string, error) {
	logger.Debug("Chaincode Call: GetAdministrator")
	return NewAccessControlRegistry(ctx).Administrator()
}

func (s *VaccinationSmartContract) ListIssuers(ctx contractapi.TransactionContextInterface) ([]model.IssuerRecord, error) {
	logger.Debug("Chaincode Call: ListIssuers")
	return NewAccessControlRegistry(ctx).ListIssuers()
}
