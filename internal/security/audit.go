// Package security implements the Ed25519 audit signer and AES-256-GCM
// envelope encryption described in spec.md §4.5.
package security

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"errors"
	"sort"

	"github.com/hyphalmesh/substrate/internal/core"
)

// ErrInvalidSignature is returned when Verify fails to authenticate an event.
var ErrInvalidSignature = errors.New("security: invalid audit signature")

// AuditSigner canonicalizes and signs audit events with an Ed25519 key held
// in the process. Verification only ever needs the public key, so it can be
// handed to any downstream auditor without exposing the signing key.
type AuditSigner struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// NewAuditSigner constructs a signer from an existing Ed25519 private key
// (64 bytes).
func NewAuditSigner(priv ed25519.PrivateKey) *AuditSigner {
	return &AuditSigner{priv: priv, pub: priv.Public().(ed25519.PublicKey)}
}

// GenerateAuditKey creates a fresh Ed25519 keypair, for bootstrapping a new
// deployment or rotating keys.
func GenerateAuditKey() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, core.Wrap(core.CodeInternal, err, "generate audit key")
	}
	return pub, priv, nil
}

// PublicKey returns the verification key.
func (s *AuditSigner) PublicKey() ed25519.PublicKey { return s.pub }

// Event is one mutating-operation audit record, canonicalized before
// signing so the same logical event always produces the same signature.
type Event struct {
	TenantID  string            `json:"tenant_id"`
	EventType string            `json:"event_type"`
	ActorID   string            `json:"actor_id"`
	TraceID   string            `json:"trace_id,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
}

// Canonicalize renders e as stable, UTF-8 JSON: map keys are sorted and
// re-marshaled through an ordered structure so two equal Events always
// produce byte-identical output, independent of Go map iteration order.
func Canonicalize(e Event) ([]byte, error) {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ordered := struct {
		TenantID  string            `json:"tenant_id"`
		EventType string            `json:"event_type"`
		ActorID   string            `json:"actor_id"`
		TraceID   string            `json:"trace_id,omitempty"`
		FieldKeys []string          `json:"field_keys,omitempty"`
		Fields    map[string]string `json:"fields,omitempty"`
	}{
		TenantID:  e.TenantID,
		EventType: e.EventType,
		ActorID:   e.ActorID,
		TraceID:   e.TraceID,
		FieldKeys: keys,
		Fields:    e.Fields,
	}

	b, err := json.Marshal(ordered)
	if err != nil {
		return nil, core.Wrap(core.CodeInternal, err, "canonicalize audit event")
	}
	return b, nil
}

// Sign canonicalizes e and returns the canonical payload plus its Ed25519
// signature, ready for AuditStore.Append.
func (s *AuditSigner) Sign(e Event) (payload, signature []byte, err error) {
	payload, err = Canonicalize(e)
	if err != nil {
		return nil, nil, err
	}
	return payload, ed25519.Sign(s.priv, payload), nil
}

// Verify reports whether signature authenticates payload under pub. It
// does not require the private key, matching spec.md §4.5's requirement
// that verification be possible with only the public key.
func Verify(pub ed25519.PublicKey, payload, signature []byte) error {
	if !ed25519.Verify(pub, payload, signature) {
		return ErrInvalidSignature
	}
	return nil
}

// VerifyRoundTrip is a convenience check used by tests and admin tooling:
// it re-canonicalizes e and compares against payload before verifying the
// signature, guarding against a caller passing a payload that does not
// actually match the claimed event.
func VerifyRoundTrip(pub ed25519.PublicKey, e Event, payload, signature []byte) error {
	want, err := Canonicalize(e)
	if err != nil {
		return err
	}
	if !bytes.Equal(want, payload) {
		return errors.New("security: payload does not match canonicalized event")
	}
	return Verify(pub, payload, signature)
}
