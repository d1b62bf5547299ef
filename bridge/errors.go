package bridge

import (
	"fmt"

	"github.com/goliatone/go-accounts/core"
)

// Stable error codes reported to hosts. They never change between releases.
const (
	CodeSuccess             int32 = 0
	CodeInternal            int32 = -1
	CodeInvalidHandle       int32 = 1
	CodeUnauthorized        int32 = 2
	CodeOAuthStateMismatch  int32 = 3
	CodeFlowAlreadyConsumed int32 = 4
	CodeInvalidCredentials  int32 = 5
	CodeNetwork             int32 = 6
	CodeServer              int32 = 7
	CodeSyncFailed          int32 = 8
	CodeNotFound            int32 = 9
	CodeBadInput            int32 = 10
)

var kindCodes = map[core.ErrorKind]int32{
	core.ErrorInvalidHandle:       CodeInvalidHandle,
	core.ErrorUnauthorized:        CodeUnauthorized,
	core.ErrorOAuthStateMismatch:  CodeOAuthStateMismatch,
	core.ErrorFlowAlreadyConsumed: CodeFlowAlreadyConsumed,
	core.ErrorInvalidCredentials:  CodeInvalidCredentials,
	core.ErrorNetwork:             CodeNetwork,
	core.ErrorServer:              CodeServer,
	core.ErrorSyncFailed:          CodeSyncFailed,
	core.ErrorNotFound:            CodeNotFound,
	core.ErrorBadInput:            CodeBadInput,
}

// ExternError is the error slot every boundary call fills. A zero value
// means success.
type ExternError struct {
	Code    int32  `json:"code"`
	Message string `json:"message,omitempty"`
}

func (e ExternError) IsSuccess() bool {
	return e.Code == CodeSuccess
}

func (e ExternError) Error() string {
	if e.IsSuccess() {
		return ""
	}
	return fmt.Sprintf("bridge error %d: %s", e.Code, e.Message)
}

// Kind maps the code back to the error kind it was built from.
func (e ExternError) Kind() core.ErrorKind {
	if e.IsSuccess() {
		return ""
	}
	for kind, code := range kindCodes {
		if code == e.Code {
			return kind
		}
	}
	return core.ErrorInternal
}

// CodeFor returns the stable code for err. Unknown and internal kinds map
// to CodeInternal.
func CodeFor(err error) int32 {
	if err == nil {
		return CodeSuccess
	}
	if code, ok := kindCodes[core.KindOf(err)]; ok {
		return code
	}
	return CodeInternal
}

func externError(err error) ExternError {
	if err == nil {
		return ExternError{}
	}
	return ExternError{Code: CodeFor(err), Message: err.Error()}
}

func panicError(op string, recovered any) ExternError {
	return ExternError{
		Code:    CodeInternal,
		Message: fmt.Sprintf("bridge: %s panicked: %v", op, recovered),
	}
}
