package wire

import (
	"encoding/json"
	"strings"
)

// CertKindTrust and CertKindDistrust are the two TrustAssertion kinds
// (spec §3, §6).
const (
	CertKindTrust    = "trust"
	CertKindDistrust = "distrust"
)

// Cert is the wire form of a trust or distrust assertion, shared by the
// certificate-submission schema and the trust_cert/distrust_certs fields
// of an Advertisement (spec §6).
type Cert struct {
	Type          string `json:"type"`
	Issuer        string `json:"issuer"`
	Entity        string `json:"entity"`
	RTransitivity *int   `json:"r_transitivity,omitempty"`
}

// Advertisement is the wire form of a NameDBEntry (spec §3, §6). TDPath
// is the arrow-joined address chain; ParseTDPath/JoinTDPath convert to
// and from the in-memory []string representation.
type Advertisement struct {
	DCName        string `json:"dc_name"`
	OriginAS      string `json:"origin_AS"`
	OriginServer  string `json:"origin_server"`
	TDPath        string `json:"td_path"`
	TrustCert     *Cert  `json:"trust_cert,omitempty"`
	DistrustCerts []Cert `json:"distrust_certs,omitempty"`
}

// tdPathSeparator joins the dotted-quad addresses in an advertisement's
// td_path field (spec §6).
const tdPathSeparator = "->"

// ParseTDPath splits a wire td_path string into its ordered address
// chain. An empty string yields an empty (not nil) slice.
func ParseTDPath(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.Split(s, tdPathSeparator)
}

// JoinTDPath is the inverse of ParseTDPath.
func JoinTDPath(path []string) string {
	return strings.Join(path, tdPathSeparator)
}

// DecodeAdvertisement parses a raw AdStore payload as JSON. Any error
// (including malformed JSON) is returned for the caller to drop on per
// spec §7 — AdStore never partially applies a malformed advertisement.
func DecodeAdvertisement(raw []byte) (*Advertisement, error) {
	var ad Advertisement
	if err := json.Unmarshal(raw, &ad); err != nil {
		return nil, err
	}
	return &ad, nil
}

// Encode serializes the advertisement back to its wire JSON form.
func (a *Advertisement) Encode() ([]byte, error) {
	return json.Marshal(a)
}

// CertSubmission is the wire payload accepted by CertStore (spec §6).
type CertSubmission struct {
	Issuer        string `json:"issuer"`
	Type          string `json:"type"`
	Entity        string `json:"entity"`
	RTransitivity *int   `json:"r_transitivity,omitempty"`
}

// DecodeCertSubmission parses a raw CertStore payload as JSON.
func DecodeCertSubmission(raw []byte) (*CertSubmission, error) {
	var c CertSubmission
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// PathRequest is the JSON body of a GIVEPATH command (spec §4.3, §6).
type PathRequest struct {
	ClientName string `json:"client_name"`
	DCName     string `json:"dc_name"`
}

// DecodePathRequest parses the JSON argument following "GIVEPATH ".
func DecodePathRequest(raw []byte) (*PathRequest, error) {
	var r PathRequest
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// EncodePathResponse formats a GIVEPATH reply: "path:" followed by the
// comma-separated TD tags, a trailing comma, the destination IP, and
// another trailing comma (spec §4.3 step 4, §6). An empty tdTags yields
// the empty-path sentinel "path:,".
func EncodePathResponse(tdTags []string, destIP string) string {
	if len(tdTags) == 0 || destIP == "" {
		return PathResponsePrefix + ","
	}
	parts := append(append([]string{}, tdTags...), destIP)
	return PathResponsePrefix + strings.Join(parts, ",") + ","
}

// DecodePathResponse parses a GIVEPATH reply into its TD-tag sequence
// and destination IP. It returns ok=false for the empty-path sentinel.
func DecodePathResponse(s string) (tdTags []string, destIP string, ok bool) {
	s = strings.TrimPrefix(s, PathResponsePrefix)
	s = strings.TrimSuffix(s, ",")
	if s == "" {
		return nil, "", false
	}
	parts := strings.Split(s, ",")
	if len(parts) < 2 {
		return nil, "", false
	}
	return parts[:len(parts)-1], parts[len(parts)-1], true
}
