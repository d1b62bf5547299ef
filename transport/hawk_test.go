package transport

import (
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-accounts/core"
	"github.com/goliatone/go-accounts/security"
)

var hawkVectorCreds = security.HawkCredentials{
	ID:  "dh37fgj492je",
	Key: []byte("werxhqb98rpaxn39848xrunpaw3489ruxnpa98w4rxn"),
}

func TestHawkAuthorization_HeaderVector(t *testing.T) {
	header, err := hawkAuthorization(hawkVectorCreds, hawkRequest{
		Method:    "GET",
		URL:       "http://example.com:8000/resource/1?b=1&a=2",
		Timestamp: time.Unix(1353832234, 0),
		Nonce:     "j4h3g2",
	})
	if err != nil {
		t.Fatalf("hawk authorization: %v", err)
	}
	want := `Hawk id="dh37fgj492je", ts="1353832234", nonce="j4h3g2", mac="nfp3t5BVkMvjhU3PrD0ftTp7NcVpETEX2HEi/Fo4S2g="`
	if header != want {
		t.Fatalf("unexpected header\n got: %s\nwant: %s", header, want)
	}
}

func TestHawkAuthorization_PayloadHash(t *testing.T) {
	header, err := hawkAuthorization(hawkVectorCreds, hawkRequest{
		Method:      "POST",
		URL:         "http://example.com:8000/resource/1?b=1&a=2",
		ContentType: "text/plain; charset=utf-8",
		Payload:     []byte("Thank you for flying Hawk"),
		Timestamp:   time.Unix(1353832234, 0),
		Nonce:       "j4h3g2",
	})
	if err != nil {
		t.Fatalf("hawk authorization: %v", err)
	}
	if !strings.Contains(header, `hash="Yi9LfIIFRtBEPt74PVmbTF/xVAwPn7ub15ePICfgnuY="`) {
		t.Fatalf("expected payload hash in header, got %s", header)
	}
	if !strings.HasSuffix(header, `mac="xMQacUaeJiezHpLu67V4Zc90BK53KGSS4VNYp2M3E3o="`) {
		t.Fatalf("unexpected mac in header %s", header)
	}
}

func TestHawkAuthorization_DefaultPortAndNonce(t *testing.T) {
	first, err := hawkAuthorization(hawkVectorCreds, hawkRequest{Method: "GET", URL: "https://example.com/a", Timestamp: time.Unix(1, 0)})
	if err != nil {
		t.Fatalf("hawk authorization: %v", err)
	}
	second, err := hawkAuthorization(hawkVectorCreds, hawkRequest{Method: "GET", URL: "https://example.com/a", Timestamp: time.Unix(1, 0)})
	if err != nil {
		t.Fatalf("hawk authorization: %v", err)
	}
	if first == second {
		t.Fatalf("expected a fresh nonce per request")
	}
	if got := hawkPort(mustParseURL(t, "http://example.com/x")); got != "80" {
		t.Fatalf("expected port 80, got %s", got)
	}
	if got := hawkPort(mustParseURL(t, "https://example.com/x")); got != "443" {
		t.Fatalf("expected port 443, got %s", got)
	}
}

func TestHawkAuthorization_RejectsIncompleteCredentials(t *testing.T) {
	_, err := hawkAuthorization(security.HawkCredentials{ID: "id"}, hawkRequest{Method: "GET", URL: "https://example.com"})
	if !core.IsKind(err, core.ErrorInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	_, err = hawkAuthorization(hawkVectorCreds, hawkRequest{Method: "GET", URL: "/relative"})
	if !core.IsKind(err, core.ErrorBadInput) {
		t.Fatalf("expected bad input for relative url, got %v", err)
	}
}
