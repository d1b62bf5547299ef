package core

import (
	"strings"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

func strPtr(value string) *string { return &value }

func TestLogin_ValidateExactlyOneTarget(t *testing.T) {
	base := Login{ID: "l1", Hostname: "https://example.com", Username: "u", Password: "p"}

	both := base
	both.HTTPRealm = strPtr("realm")
	both.FormSubmitURL = strPtr("https://example.com/login")
	err := both.Validate()
	if !IsKind(err, ErrorBadInput) || !strings.Contains(err.Error(), "both formSubmitURL and httpRealm") {
		t.Fatalf("expected both-targets rejection, got %v", err)
	}

	neither := base
	if err := neither.Validate(); err == nil || !strings.Contains(err.Error(), "neither") {
		t.Fatalf("expected neither-targets rejection, got %v", err)
	}

	valid := base
	valid.FormSubmitURL = strPtr("")
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected empty form url to count as set, got %v", err)
	}
}

func TestLogin_ValidateRequiredFields(t *testing.T) {
	login := Login{HTTPRealm: strPtr("realm")}
	err := login.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		t.Fatalf("expected rich error, got %T", err)
	}
	fields, _ := richErr.Metadata["fields"].(map[string]any)
	if _, ok := fields["hostname"]; !ok {
		t.Fatalf("expected hostname field error, got %v", fields)
	}
	if _, ok := fields["password"]; !ok {
		t.Fatalf("expected password field error, got %v", fields)
	}
}

func TestSyncCredentials_Validate(t *testing.T) {
	creds := SyncCredentials{
		DatabasePath:   "file::memory:",
		EncryptionKey:  strings.Repeat("ab", 32),
		KeyID:          "key-1",
		AccessToken:    "token",
		SyncKey:        strings.Repeat("01", 64),
		TokenServerURL: "https://token.example.com",
	}
	if err := creds.Validate(); err != nil {
		t.Fatalf("expected valid credentials, got %v", err)
	}

	malformed := creds
	malformed.EncryptionKey = "not-hex"
	if err := malformed.Validate(); !IsKind(err, ErrorInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	missing := creds
	missing.TokenServerURL = ""
	if err := missing.Validate(); !IsKind(err, ErrorInvalidCredentials) {
		t.Fatalf("expected invalid credentials for missing field, got %v", err)
	}
}

func TestLogin_DupeKeyAndClone(t *testing.T) {
	a := Login{Hostname: "h", Username: "u", FormSubmitURL: strPtr("f")}
	b := CloneLogin(a)
	*b.FormSubmitURL = "changed"
	if *a.FormSubmitURL != "f" {
		t.Fatalf("expected deep clone")
	}
	if a.DupeKey() == b.DupeKey() {
		t.Fatalf("expected dupe key to include form url")
	}
}
