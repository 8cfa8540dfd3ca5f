package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJoinTDPath_RoundTrip(t *testing.T) {
	path := []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"}
	joined := JoinTDPath(path)
	assert.Equal(t, "10.0.0.1->10.0.0.2->10.0.0.3", joined)
	assert.Equal(t, path, ParseTDPath(joined))
}

func TestParseTDPath_Empty(t *testing.T) {
	assert.Equal(t, []string{}, ParseTDPath(""))
}

func TestAdvertisement_EncodeDecodeRoundTrip(t *testing.T) {
	rt := 2
	ad := &Advertisement{
		DCName:       "library",
		OriginAS:     "AS0",
		OriginServer: "10.0.0.9",
		TDPath:       "10.0.0.1->10.0.0.2",
		TrustCert:    &Cert{Type: CertKindTrust, Issuer: "AS0", Entity: "AS1", RTransitivity: &rt},
	}
	raw, err := ad.Encode()
	require.NoError(t, err)

	got, err := DecodeAdvertisement(raw)
	require.NoError(t, err)
	assert.Equal(t, ad.DCName, got.DCName)
	assert.Equal(t, ad.TDPath, got.TDPath)
	require.NotNil(t, got.TrustCert)
	assert.Equal(t, CertKindTrust, got.TrustCert.Type)
	require.NotNil(t, got.TrustCert.RTransitivity)
	assert.Equal(t, 2, *got.TrustCert.RTransitivity)
}

func TestDecodeAdvertisement_MalformedJSON(t *testing.T) {
	_, err := DecodeAdvertisement([]byte("not json"))
	assert.Error(t, err)
}

func TestCertSubmission_Decode(t *testing.T) {
	raw := []byte(`{"issuer":"AS0","type":"distrust","entity":"AS1"}`)
	sub, err := DecodeCertSubmission(raw)
	require.NoError(t, err)
	assert.Equal(t, "AS0", sub.Issuer)
	assert.Equal(t, CertKindDistrust, sub.Type)
	assert.Nil(t, sub.RTransitivity)
}

func TestPathRequest_Decode(t *testing.T) {
	raw := []byte(`{"client_name":"user:alice","dc_name":"library"}`)
	req, err := DecodePathRequest(raw)
	require.NoError(t, err)
	assert.Equal(t, "user:alice", req.ClientName)
	assert.Equal(t, "library", req.DCName)
}

func TestEncodeDecodePathResponse_RoundTrip(t *testing.T) {
	s := EncodePathResponse([]string{"AS0", "AS1"}, "10.0.0.9")
	assert.Equal(t, "path:AS0,AS1,10.0.0.9,", s)

	tags, destIP, ok := DecodePathResponse(s)
	assert.True(t, ok)
	assert.Equal(t, []string{"AS0", "AS1"}, tags)
	assert.Equal(t, "10.0.0.9", destIP)
}

func TestEncodeDecodePathResponse_EmptySentinel(t *testing.T) {
	s := EncodePathResponse(nil, "")
	assert.Equal(t, "path:,", s)

	_, _, ok := DecodePathResponse(s)
	assert.False(t, ok)
}
