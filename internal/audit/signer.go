package audit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/google/uuid"
)

// Signer computes tamper-evidence signatures over audit records using
// HMAC-SHA256 with a shared secret.
type Signer struct {
	secret []byte
}

// NewSigner constructs a Signer from the configured secret.
func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// canonical is the exact byte layout covered by the signature. Field order
// is fixed by the struct definition; changing it invalidates every stored
// signature.
type canonical struct {
	ID        uuid.UUID `json:"id"`
	At        int64     `json:"at"`
	EventType EventType `json:"event_type"`
	UserID    int64     `json:"user_id"`
	Payload   Payload   `json:"payload"`
}

// canonicalJSON re-renders raw JSON through encoding/json so the signed bytes
// do not depend on the producer's key order or whitespace. Stored payloads
// come back from a JSONB column in Postgres's canonical rendering, which
// differs from the bytes originally marshalled; both forms reduce to the same
// canonical bytes here.
func canonicalJSON(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return raw
	}
	out, err := json.Marshal(v)
	if err != nil {
		return raw
	}
	return out
}

// Sign computes the signature for the record, ignoring any signature already
// present.
func (s *Signer) Sign(rec Record) (string, error) {
	data, err := json.Marshal(canonical{
		ID:        rec.ID,
		At:        rec.At.UTC().UnixNano(),
		EventType: rec.EventType,
		UserID:    rec.UserID,
		Payload: Payload{
			Before: canonicalJSON(rec.Payload.Before),
			After:  canonicalJSON(rec.Payload.After),
			Reason: rec.Payload.Reason,
		},
	})
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Verify recomputes the signature and compares it in constant time.
func (s *Signer) Verify(rec Record) bool {
	want, err := s.Sign(rec)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(want), []byte(rec.Signature))
}
