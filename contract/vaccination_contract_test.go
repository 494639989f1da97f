package contract

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCredentialLifecycleScenario(t *testing.T) {
	h := newLedgerTestHarness(t)
	authority := testIdentity("health-authority")
	subject := "citizen-0451"
	h.bootstrapAs(authority)

	_, err := h.contract.IssueCredential(h.ctx(authority), subject, 0, "batch=EY2131")
	require.NoError(t, err)

	credential, err := h.contract.GetCredential(h.ctx(subject), subject)
	require.NoError(t, err)
	require.EqualValues(t, 1, credential.SequenceID)
	require.EqualValues(t, 1, credential.DoseCount)

	_, err = h.contract.IssueCredential(h.ctx(authority), subject, 1, "second try")
	require.ErrorIs(t, err, ErrAlreadyIssued)

	h.stub.advance(35 * 24 * time.Hour)
	_, err = h.contract.IncrementDoseCount(h.ctx(authority), subject)
	require.NoError(t, err)
	h.stub.advance(70 * 24 * time.Hour)
	_, err = h.contract.IncrementDoseCount(h.ctx(authority), subject)
	require.NoError(t, err)

	credential, err = h.contract.GetCredential(h.ctx(subject), subject)
	require.NoError(t, err)
	require.EqualValues(t, 3, credential.DoseCount)
	require.EqualValues(t, 1, credential.SequenceID)
	require.Equal(t, "batch=EY2131", credential.Payload)
	require.True(t, credential.LastUpdatedAt.After(credential.IssuedAt))

	dosed, err := h.contract.IsFullyDosed(h.ctx(authority), subject)
	require.NoError(t, err)
	require.True(t, dosed)
	elapsed, err := h.contract.HasElapsedWaitingPeriod(h.ctx(authority), subject)
	require.NoError(t, err)
	require.True(t, elapsed)
}

func TestIssuerDelegationScenario(t *testing.T) {
	h := newLedgerTestHarness(t)
	authority := testIdentity("health-authority")
	clinic := testIdentity("regional-clinic")
	h.bootstrapAs(authority)

	_, err := h.contract.AddIssuer(h.ctx(authority), clinic)
	require.NoError(t, err)

	// The delegate can work the full issuer surface.
	_, err = h.contract.RegisterVaccineType(h.ctx(clinic), 7, "Novavax")
	require.NoError(t, err)
	_, err = h.contract.IssueCredential(h.ctx(clinic), "citizen-0452", 7, "")
	require.NoError(t, err)

	_, err = h.contract.RemoveIssuer(h.ctx(authority), clinic)
	require.NoError(t, err)

	_, err = h.contract.IssueCredential(h.ctx(clinic), "citizen-0453", 7, "")
	require.ErrorIs(t, err, ErrUnauthorized)
	_, err = h.contract.IncrementDoseCount(h.ctx(clinic), "citizen-0452")
	require.ErrorIs(t, err, ErrUnauthorized)

	// Records the clinic issued outlive its membership.
	_, err = h.contract.IncrementDoseCount(h.ctx(authority), "citizen-0452")
	require.NoError(t, err)
	credential, err := h.contract.GetCredential(h.ctx(authority), "citizen-0452")
	require.NoError(t, err)
	require.Equal(t, clinic, credential.IssuedBy)
	require.EqualValues(t, 2, credential.DoseCount)
}

func TestAdministratorRoleIsSeparateFromIssuerSet(t *testing.T) {
	h := newLedgerTestHarness(t)
	founder := testIdentity("founder")
	successor := testIdentity("successor")
	h.bootstrapAs(founder)

	require.NoError(t, h.contract.TransferAdministrator(h.ctx(founder), successor))

	// The new administrator governs the issuer set but cannot issue until
	// granted membership like anyone else.
	_, err := h.contract.IssueCredential(h.ctx(successor), "citizen-0454", 0, "")
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = h.contract.AddIssuer(h.ctx(successor), successor)
	require.NoError(t, err)
	_, err = h.contract.IssueCredential(h.ctx(successor), "citizen-0454", 0, "")
	require.NoError(t, err)

	// The founder lost the administrator role but keeps issuer membership.
	_, err = h.contract.AddIssuer(h.ctx(founder), testIdentity("clinic"))
	require.ErrorIs(t, err, ErrUnauthorized)
	_, err = h.contract.IncrementDoseCount(h.ctx(founder), "citizen-0454")
	require.NoError(t, err)
}
