package security

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strings"

	"github.com/goliatone/go-accounts/core"
	"golang.org/x/crypto/hkdf"
)

const sessionTokenInfo = "identity.mozilla.com/picl/v1/sessionToken"

// HawkCredentials sign requests with the Hawk scheme.
type HawkCredentials struct {
	ID  string
	Key []byte
}

func (c HawkCredentials) Valid() bool {
	return strings.TrimSpace(c.ID) != "" && len(c.Key) > 0
}

// DeriveHawkCredentials expands a hex session token into the token id and
// request key used to sign requests to the auth server.
func DeriveHawkCredentials(sessionTokenHex string) (HawkCredentials, error) {
	token, err := hex.DecodeString(strings.TrimSpace(sessionTokenHex))
	if err != nil {
		return HawkCredentials{}, core.WrapError(err, core.ErrorInvalidCredentials, "security: session token is not valid hex")
	}
	if len(token) == 0 {
		return HawkCredentials{}, core.NewError(core.ErrorInvalidCredentials, "security: session token is empty")
	}
	out := make([]byte, 2*32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, token, nil, []byte(sessionTokenInfo)), out); err != nil {
		return HawkCredentials{}, core.WrapError(err, core.ErrorInternal, "security: derive hawk credentials")
	}
	return HawkCredentials{
		ID:  hex.EncodeToString(out[:32]),
		Key: out[32:],
	}, nil
}

// HawkCredentialsFromToken wraps the id and key a token server hands out.
// The key is used as given, not hex decoded.
func HawkCredentialsFromToken(id, key string) (HawkCredentials, error) {
	id = strings.TrimSpace(id)
	if id == "" || key == "" {
		return HawkCredentials{}, core.NewError(core.ErrorServer, "security: token server returned incomplete hawk credentials")
	}
	return HawkCredentials{ID: id, Key: []byte(key)}, nil
}
