package query

import (
	"strings"

	"github.com/goliatone/go-accounts/core"
)

const (
	accountReader = "account"
	loginsReader  = "logins"
)

func errMissingReader(name string) error {
	return core.NewError(core.ErrorInternal, "query: "+name+" reader is required")
}

func requireField(field, value, message string) error {
	if strings.TrimSpace(value) == "" {
		return core.NewFieldError("query", field, message)
	}
	return nil
}
