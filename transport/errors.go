package transport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/goliatone/go-accounts/core"
)

// errnos the identity provider uses for tokens that will never work again.
var reauthErrnos = map[int]struct{}{
	102: {}, // unknown account
	108: {}, // invalid oauth token
	110: {}, // invalid authentication token
	111: {}, // invalid timestamp
}

func transportError(
	message string,
	kind core.ErrorKind,
	code int,
	metadata map[string]any,
) error {
	err := core.NewError(kind, message).WithCode(code)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func transportWrapError(
	source error,
	kind core.ErrorKind,
	message string,
	code int,
	metadata map[string]any,
) error {
	if source == nil {
		return transportError(message, kind, code, metadata)
	}
	err := core.WrapError(source, kind, message).WithCode(code)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

type providerErrorBody struct {
	Code             int    `json:"code"`
	Errno            int    `json:"errno"`
	Error            string `json:"error"`
	Message          string `json:"message"`
	ErrorDescription string `json:"error_description"`
}

// statusError maps a non-2xx response to an error kind. 401 and dead token
// errnos are Unauthorized and ask for reauthentication; everything else the
// server rejected is ErrorServer.
func statusError(operation string, res core.TransportResponse) error {
	body := providerErrorBody{}
	_ = json.Unmarshal(res.Body, &body)
	detail := strings.TrimSpace(body.Message)
	if detail == "" {
		detail = strings.TrimSpace(body.ErrorDescription)
	}
	if detail == "" {
		detail = strings.TrimSpace(body.Error)
	}
	if detail == "" {
		detail = http.StatusText(res.StatusCode)
	}
	metadata := map[string]any{
		"operation":   operation,
		"status_code": res.StatusCode,
	}
	if body.Errno != 0 {
		metadata["errno"] = body.Errno
	}
	message := fmt.Sprintf("transport: %s failed with status %d: %s", operation, res.StatusCode, detail)

	_, deadToken := reauthErrnos[body.Errno]
	if res.StatusCode == http.StatusUnauthorized || deadToken || strings.EqualFold(body.Error, "invalid_grant") {
		err := core.NewError(core.ErrorUnauthorized, message).WithCode(res.StatusCode).WithMetadata(metadata)
		return core.MarkReauthRequired(err)
	}
	return transportError(message, core.ErrorServer, res.StatusCode, metadata)
}

func successful(status int) bool {
	return status >= 200 && status < 300
}
