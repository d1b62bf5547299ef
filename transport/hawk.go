package transport

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-accounts/core"
	"github.com/goliatone/go-accounts/security"
)

const hawkHeaderVersion = "hawk.1"

// hawkRequest is the part of a request covered by a Hawk MAC.
type hawkRequest struct {
	Method      string
	URL         string
	ContentType string
	Payload     []byte
	Timestamp   time.Time
	Nonce       string
}

// hawkAuthorization returns the Authorization header value for req.
// The payload hash is included only when the request has a body.
func hawkAuthorization(creds security.HawkCredentials, req hawkRequest) (string, error) {
	if !creds.Valid() {
		return "", core.NewError(core.ErrorInvalidCredentials, "transport: hawk credentials are incomplete")
	}
	target, err := url.Parse(req.URL)
	if err != nil || target.Host == "" {
		return "", transportWrapError(err, core.ErrorBadInput, "transport: hawk request url is invalid", 0, nil)
	}
	nonce := req.Nonce
	if nonce == "" {
		nonce, err = hawkNonce()
		if err != nil {
			return "", err
		}
	}
	ts := strconv.FormatInt(req.Timestamp.Unix(), 10)

	hash := ""
	if len(req.Payload) > 0 {
		hash = hawkPayloadHash(req.ContentType, req.Payload)
	}

	resource := target.EscapedPath()
	if resource == "" {
		resource = "/"
	}
	if target.RawQuery != "" {
		resource += "?" + target.RawQuery
	}
	normalized := strings.Join([]string{
		hawkHeaderVersion + ".header",
		ts,
		nonce,
		strings.ToUpper(req.Method),
		resource,
		strings.ToLower(target.Hostname()),
		hawkPort(target),
		hash,
		"",
	}, "\n") + "\n"

	mac := hmac.New(sha256.New, creds.Key)
	mac.Write([]byte(normalized))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	header := fmt.Sprintf(`Hawk id="%s", ts="%s", nonce="%s"`, creds.ID, ts, nonce)
	if hash != "" {
		header += fmt.Sprintf(`, hash="%s"`, hash)
	}
	header += fmt.Sprintf(`, mac="%s"`, signature)
	return header, nil
}

func hawkPayloadHash(contentType string, payload []byte) string {
	mediaType := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	sum := sha256.New()
	sum.Write([]byte(hawkHeaderVersion + ".payload\n" + mediaType + "\n"))
	sum.Write(payload)
	sum.Write([]byte("\n"))
	return base64.StdEncoding.EncodeToString(sum.Sum(nil))
}

func hawkPort(target *url.URL) string {
	if port := target.Port(); port != "" {
		return port
	}
	if strings.EqualFold(target.Scheme, "http") {
		return "80"
	}
	return "443"
}

func hawkNonce() (string, error) {
	raw := make([]byte, 6)
	if _, err := rand.Read(raw); err != nil {
		return "", core.WrapError(err, core.ErrorInternal, "transport: hawk nonce generation failed")
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
