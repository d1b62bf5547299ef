package command

import (
	"strings"

	"github.com/goliatone/go-accounts/core"
)

const (
	accountService = "account"
	loginsService  = "logins"
)

func errMissingService(name string) error {
	return core.NewError(core.ErrorInternal, "command: "+name+" service is required")
}

func requireField(field, value, message string) error {
	if strings.TrimSpace(value) == "" {
		return core.NewFieldError("command", field, message)
	}
	return nil
}

// requireValidLogin keeps the record checks of core.Login and tags the
// failure with the command scope.
func requireValidLogin(login core.Login) error {
	if err := login.Validate(); err != nil {
		return core.WrapError(err, core.ErrorBadInput, "command: invalid login")
	}
	return nil
}
