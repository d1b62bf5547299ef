package security

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/goliatone/go-accounts/core"
)

const (
	envelopePrefix    = "accounts.secret.v1:"
	envelopeAlgorithm = "aes-256-gcm"
)

// envelope is the at-rest form of a sealed value. Purpose binds the value
// to one field so ciphertexts cannot be swapped between columns.
type envelope struct {
	KeyID      string `json:"kid"`
	Version    int    `json:"ver"`
	Algorithm  string `json:"alg"`
	Purpose    string `json:"purpose,omitempty"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

type EnvelopeMetadata struct {
	KeyID     string
	Version   int
	Algorithm string
	Purpose   string
}

// ParseEnvelopeMetadata reads the key id and version of a sealed value
// without decrypting it.
func ParseEnvelopeMetadata(ciphertext []byte) (EnvelopeMetadata, error) {
	env, err := decodeEnvelope(ciphertext)
	if err != nil {
		return EnvelopeMetadata{}, err
	}
	return EnvelopeMetadata{
		KeyID:     env.KeyID,
		Version:   env.Version,
		Algorithm: env.Algorithm,
		Purpose:   env.Purpose,
	}, nil
}

// IsSealed reports whether value carries the envelope prefix.
func IsSealed(value []byte) bool {
	return strings.HasPrefix(string(value), envelopePrefix)
}

func encodeEnvelope(env envelope) ([]byte, error) {
	data, err := json.Marshal(normalizeEnvelope(env))
	if err != nil {
		return nil, core.WrapError(err, core.ErrorInternal, "security: encode envelope")
	}
	return append([]byte(envelopePrefix), data...), nil
}

func decodeEnvelope(ciphertext []byte) (envelope, error) {
	if len(ciphertext) == 0 {
		return envelope{}, core.NewError(core.ErrorBadInput, "security: ciphertext is required")
	}
	payload, found := strings.CutPrefix(string(ciphertext), envelopePrefix)
	if !found {
		return envelope{}, core.NewError(core.ErrorBadInput, "security: invalid ciphertext envelope prefix")
	}

	parsed := envelope{}
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		return envelope{}, core.WrapError(err, core.ErrorBadInput, "security: decode envelope")
	}
	parsed = normalizeEnvelope(parsed)
	if parsed.Algorithm == "" {
		parsed.Algorithm = envelopeAlgorithm
	}
	if parsed.Algorithm != envelopeAlgorithm {
		return envelope{}, core.NewError(core.ErrorBadInput, "security: unsupported envelope algorithm "+parsed.Algorithm)
	}
	if parsed.Ciphertext == "" {
		return envelope{}, core.NewError(core.ErrorBadInput, "security: envelope ciphertext is required")
	}
	return parsed, nil
}

func normalizeEnvelope(in envelope) envelope {
	in.KeyID = strings.TrimSpace(in.KeyID)
	in.Algorithm = strings.ToLower(strings.TrimSpace(in.Algorithm))
	in.Purpose = strings.TrimSpace(in.Purpose)
	return in
}

func encodeCiphertextPayload(value []byte) string {
	if len(value) == 0 {
		return ""
	}
	return base64.StdEncoding.EncodeToString(value)
}

func decodeCiphertextPayload(value string) ([]byte, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, core.NewError(core.ErrorBadInput, "security: envelope payload is empty")
	}
	decoded, err := base64.StdEncoding.DecodeString(trimmed)
	if err != nil {
		return nil, core.WrapError(err, core.ErrorBadInput, "security: decode ciphertext payload")
	}
	return decoded, nil
}
