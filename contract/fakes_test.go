package contract

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/hyperledger/fabric-chaincode-go/pkg/cid"
	"github.com/hyperledger/fabric-chaincode-go/shim"
	"github.com/hyperledger/fabric-contract-api-go/contractapi"
	"github.com/hyperledger/fabric-protos-go/ledger/queryresult"
	"github.com/hyperledger/fabric-protos-go/peer"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// compositeKeyDelimiter mirrors the shim's composite key encoding: a zero
// byte namespace marker, then the object type and each attribute, each
// terminated by a zero byte.
const compositeKeyDelimiter = "\x00"

// testIdentity builds a full client identity string in the shape the peer
// reports for an enrolled X.509 identity.
func testIdentity(name string) string {
	return fmt.Sprintf("x509::CN=%s,OU=client::CN=ca.org1.example.com,O=Org1", name)
}

// fakeClientIdentity implements the slice of cid.ClientIdentity the contract
// touches. The embedded interface panics on anything else, which keeps the
// fake honest about what production code actually calls.
type fakeClientIdentity struct {
	cid.ClientIdentity
	id string
}

func (f *fakeClientIdentity) GetID() (string, error) { return f.id, nil }

// recordedEvent is one SetEvent call captured by the fake stub.
type recordedEvent struct {
	name    string
	payload []byte
}

// fakeStub is an in-memory world state implementing the slice of
// shim.ChaincodeStubInterface this chaincode exercises: plain and composite
// state access, partial composite key iteration with pagination, key history
// and chaincode events. State survives across invocations so multi-step
// scenarios read their own writes; every write appends a history entry.
type fakeStub struct {
	shim.ChaincodeStubInterface
	state     map[string][]byte
	history   map[string][]*queryresult.KeyModification
	events    []recordedEvent
	now       time.Time
	txCounter int
}

func newFakeStub() *fakeStub {
	return &fakeStub{
		state:   map[string][]byte{},
		history: map[string][]*queryresult.KeyModification{},
		now:     time.Date(2021, 3, 15, 9, 30, 0, 0, time.UTC),
	}
}

// advance moves the stub's transaction clock forward for subsequent calls.
func (f *fakeStub) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func (f *fakeStub) GetState(key string) ([]byte, error) {
	return f.state[key], nil
}

func (f *fakeStub) PutState(key string, value []byte) error {
	stored := make([]byte, len(value))
	copy(stored, value)
	f.state[key] = stored
	f.txCounter++
	f.history[key] = append(f.history[key], &queryresult.KeyModification{
		TxId:      fmt.Sprintf("tx%04d", f.txCounter),
		Value:     stored,
		Timestamp: timestamppb.New(f.now),
		IsDelete:  false,
	})
	return nil
}

func (f *fakeStub) DelState(key string) error {
	delete(f.state, key)
	f.txCounter++
	f.history[key] = append(f.history[key], &queryresult.KeyModification{
		TxId:      fmt.Sprintf("tx%04d", f.txCounter),
		Timestamp: timestamppb.New(f.now),
		IsDelete:  true,
	})
	return nil
}

func (f *fakeStub) CreateCompositeKey(objectType string, attributes []string) (string, error) {
	ck := compositeKeyDelimiter + objectType + compositeKeyDelimiter
	for _, attr := range attributes {
		ck += attr + compositeKeyDelimiter
	}
	return ck, nil
}

func (f *fakeStub) sortedKeysWithPrefix(prefix string) []string {
	keys := []string{}
	for key := range f.state {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

func (f *fakeStub) GetStateByPartialCompositeKey(objectType string, keys []string) (shim.StateQueryIteratorInterface, error) {
	prefix, err := f.CreateCompositeKey(objectType, keys)
	if err != nil {
		return nil, err
	}
	kvs := []*queryresult.KV{}
	for _, key := range f.sortedKeysWithPrefix(prefix) {
		kvs = append(kvs, &queryresult.KV{Namespace: "vaxledger", Key: key, Value: f.state[key]})
	}
	return &fakeStateIterator{kvs: kvs}, nil
}

// GetStateByPartialCompositeKeyWithPagination pages over matching keys in
// lexical order. The bookmark names the first key of the next page, matching
// the peer's resume semantics.
func (f *fakeStub) GetStateByPartialCompositeKeyWithPagination(objectType string, keys []string, pageSize int32, bookmark string) (shim.StateQueryIteratorInterface, *peer.QueryResponseMetadata, error) {
	prefix, err := f.CreateCompositeKey(objectType, keys)
	if err != nil {
		return nil, nil, err
	}
	matching := f.sortedKeysWithPrefix(prefix)

	start := 0
	if bookmark != "" {
		for start < len(matching) && matching[start] < bookmark {
			start++
		}
	}
	end := start + int(pageSize)
	if end > len(matching) {
		end = len(matching)
	}

	kvs := []*queryresult.KV{}
	for _, key := range matching[start:end] {
		kvs = append(kvs, &queryresult.KV{Namespace: "vaxledger", Key: key, Value: f.state[key]})
	}
	nextBookmark := ""
	if end < len(matching) {
		nextBookmark = matching[end]
	}
	metadata := &peer.QueryResponseMetadata{
		FetchedRecordsCount: int32(len(kvs)),
		Bookmark:            nextBookmark,
	}
	return &fakeStateIterator{kvs: kvs}, metadata, nil
}

// GetHistoryForKey serves committed versions newest first, the order the
// peer's history database iterates.
func (f *fakeStub) GetHistoryForKey(key string) (shim.HistoryQueryIteratorInterface, error) {
	mods := f.history[key]
	reversed := make([]*queryresult.KeyModification, 0, len(mods))
	for i := len(mods) - 1; i >= 0; i-- {
		reversed = append(reversed, mods[i])
	}
	return &fakeHistoryIterator{mods: reversed}, nil
}

func (f *fakeStub) GetTxTimestamp() (*timestamppb.Timestamp, error) {
	return timestamppb.New(f.now), nil
}

func (f *fakeStub) SetEvent(name string, payload []byte) error {
	f.events = append(f.events, recordedEvent{name: name, payload: payload})
	return nil
}

type fakeStateIterator struct {
	kvs []*queryresult.KV
	pos int
}

func (it *fakeStateIterator) HasNext() bool { return it.pos < len(it.kvs) }

func (it *fakeStateIterator) Next() (*queryresult.KV, error) {
	if !it.HasNext() {
		return nil, errors.New("no more items in iterator")
	}
	kv := it.kvs[it.pos]
	it.pos++
	return kv, nil
}

func (it *fakeStateIterator) Close() error { return nil }

type fakeHistoryIterator struct {
	mods []*queryresult.KeyModification
	pos  int
}

func (it *fakeHistoryIterator) HasNext() bool { return it.pos < len(it.mods) }

func (it *fakeHistoryIterator) Next() (*queryresult.KeyModification, error) {
	if !it.HasNext() {
		return nil, errors.New("no more items in iterator")
	}
	mod := it.mods[it.pos]
	it.pos++
	return mod, nil
}

func (it *fakeHistoryIterator) Close() error { return nil }

// ledgerTestHarness wires the contract to one fake stub so a test can play
// several identities against the same world state.
type ledgerTestHarness struct {
	t        *testing.T
	contract *VaccinationSmartContract
	stub     *fakeStub
}

func newLedgerTestHarness(t *testing.T) *ledgerTestHarness {
	return &ledgerTestHarness{t: t, contract: &VaccinationSmartContract{}, stub: newFakeStub()}
}

// ctx builds a transaction context for one invocation by the given identity.
func (h *ledgerTestHarness) ctx(identity string) *contractapi.TransactionContext {
	ctx := &contractapi.TransactionContext{}
	ctx.SetStub(h.stub)
	ctx.SetClientIdentity(&fakeClientIdentity{id: identity})
	return ctx
}

// bootstrapAs runs BootstrapLedger as the given identity and fails the test
// on error.
func (h *ledgerTestHarness) bootstrapAs(identity string) {
	h.t.Helper()
	require.NoError(h.t, h.contract.BootstrapLedger(h.ctx(identity)))
}

// lastEvent returns the most recently emitted chaincode event.
func (h *ledgerTestHarness) lastEvent() recordedEvent {
	h.t.Helper()
	require.NotEmpty(h.t, h.stub.events, "expected at least one chaincode event")
	return h.stub.events[len(h.stub.events)-1]
}
