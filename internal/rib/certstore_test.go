package rib

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/grapheo12/trustfabric/internal/wire"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestCertStore_InsertAndLookup(t *testing.T) {
	cs := NewCertStore(testLogger())
	cs.Insert(Assertion{Issuer: "AS0", Entity: "AS1", Kind: wire.CertKindTrust})

	entity, _, ok := cs.TrustEntityFor("AS0")
	assert.True(t, ok)
	assert.Equal(t, "AS1", entity)
}

func TestCertStore_TaggedIssuerInsertsReverseEdge(t *testing.T) {
	cs := NewCertStore(testLogger())
	cs.Insert(Assertion{Issuer: "owner:d", Entity: "11.0.0.2", Kind: wire.CertKindTrust})

	entity, _, ok := cs.TrustEntityFor("11.0.0.2")
	assert.True(t, ok)
	assert.Equal(t, "owner:d", entity)
}

func TestCertStore_BareTDIssuerNoReverseEdge(t *testing.T) {
	cs := NewCertStore(testLogger())
	cs.Insert(Assertion{Issuer: "AS0", Entity: "AS1", Kind: wire.CertKindTrust})

	_, _, ok := cs.TrustEntityFor("AS1")
	assert.False(t, ok)
}

func TestCertStore_DistrustNoReverseEdge(t *testing.T) {
	cs := NewCertStore(testLogger())
	cs.Insert(Assertion{Issuer: "user:X", Entity: "AS1", Kind: wire.CertKindDistrust})

	_, _, ok := cs.TrustEntityFor("AS1")
	assert.False(t, ok)

	d := cs.DistrustFor("user:X")
	assert.Len(t, d, 1)
}

func TestCertStore_SubmissionDefaultsTrustToInfinite(t *testing.T) {
	cs := NewCertStore(testLogger())
	cs.InsertSubmission(&wire.CertSubmission{Issuer: "AS0", Entity: "AS1", Type: wire.CertKindTrust})

	trust, _ := cs.Snapshot()
	if assert.Len(t, trust, 1) {
		assert.NotNil(t, trust[0].RTransitivity)
		assert.Equal(t, -1, *trust[0].RTransitivity)
	}
}

func TestCertStore_IdempotentResubmissionIncreasesMultiplicityOnly(t *testing.T) {
	cs := NewCertStore(testLogger())
	sub := &wire.CertSubmission{Issuer: "AS0", Entity: "AS1", Type: wire.CertKindTrust}
	cs.InsertSubmission(sub)
	cs.InsertSubmission(sub)

	trust, _ := cs.Snapshot()
	assert.Len(t, trust, 2)
	entity, _, ok := cs.TrustEntityFor("AS0")
	assert.True(t, ok)
	assert.Equal(t, "AS1", entity)
}
