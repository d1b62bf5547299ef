package query

import (
	"context"
	"time"

	"github.com/goliatone/go-accounts/core"
)

type AccountReader interface {
	GetToken(ctx context.Context, accountID string, scopes []string) core.Result[core.AccessTokenInfo]
	GetProfile(ctx context.Context, accountID string) (core.Profile, error)
	SerializeAccount(ctx context.Context, accountID string) (string, error)
	AccountStatus(ctx context.Context, accountID string) (AccountStatus, error)
}

type LoginsReader interface {
	GetLogin(ctx context.Context, storeID, id string) core.Result[core.Login]
	ListLogins(ctx context.Context, storeID string) ([]core.Login, error)
	LastSync(ctx context.Context, storeID string) (time.Time, error)
}

// AccountStatus summarizes an account handle without exposing secrets.
type AccountStatus struct {
	AccountID string
	ClientID  string
	UID       string
	State     core.ResourceState
	Flow      core.FlowStatus
}

type GetTokenQuery struct {
	reader AccountReader
}

func NewGetTokenQuery(reader AccountReader) *GetTokenQuery {
	return &GetTokenQuery{reader: reader}
}

// Query keeps the three-way outcome: a found token, no usable token (a new
// flow is needed) or a failure.
func (q *GetTokenQuery) Query(ctx context.Context, msg GetTokenMessage) (core.Result[core.AccessTokenInfo], error) {
	if q == nil || q.reader == nil {
		return core.Result[core.AccessTokenInfo]{}, errMissingReader(accountReader)
	}
	result := q.reader.GetToken(ctx, msg.AccountID, msg.Scopes)
	return result, result.Err()
}

type GetProfileQuery struct {
	reader AccountReader
}

func NewGetProfileQuery(reader AccountReader) *GetProfileQuery {
	return &GetProfileQuery{reader: reader}
}

func (q *GetProfileQuery) Query(ctx context.Context, msg GetProfileMessage) (core.Profile, error) {
	if q == nil || q.reader == nil {
		return core.Profile{}, errMissingReader(accountReader)
	}
	return q.reader.GetProfile(ctx, msg.AccountID)
}

type SerializeAccountQuery struct {
	reader AccountReader
}

func NewSerializeAccountQuery(reader AccountReader) *SerializeAccountQuery {
	return &SerializeAccountQuery{reader: reader}
}

func (q *SerializeAccountQuery) Query(ctx context.Context, msg SerializeAccountMessage) (string, error) {
	if q == nil || q.reader == nil {
		return "", errMissingReader(accountReader)
	}
	return q.reader.SerializeAccount(ctx, msg.AccountID)
}

type AccountStatusQuery struct {
	reader AccountReader
}

func NewAccountStatusQuery(reader AccountReader) *AccountStatusQuery {
	return &AccountStatusQuery{reader: reader}
}

func (q *AccountStatusQuery) Query(ctx context.Context, msg AccountStatusMessage) (AccountStatus, error) {
	if q == nil || q.reader == nil {
		return AccountStatus{}, errMissingReader(accountReader)
	}
	return q.reader.AccountStatus(ctx, msg.AccountID)
}

type GetLoginQuery struct {
	reader LoginsReader
}

func NewGetLoginQuery(reader LoginsReader) *GetLoginQuery {
	return &GetLoginQuery{reader: reader}
}

func (q *GetLoginQuery) Query(ctx context.Context, msg GetLoginMessage) (core.Result[core.Login], error) {
	if q == nil || q.reader == nil {
		return core.Result[core.Login]{}, errMissingReader(loginsReader)
	}
	result := q.reader.GetLogin(ctx, msg.StoreID, msg.ID)
	return result, result.Err()
}

type ListLoginsQuery struct {
	reader LoginsReader
}

func NewListLoginsQuery(reader LoginsReader) *ListLoginsQuery {
	return &ListLoginsQuery{reader: reader}
}

func (q *ListLoginsQuery) Query(ctx context.Context, msg ListLoginsMessage) ([]core.Login, error) {
	if q == nil || q.reader == nil {
		return nil, errMissingReader(loginsReader)
	}
	return q.reader.ListLogins(ctx, msg.StoreID)
}

type LastSyncQuery struct {
	reader LoginsReader
}

func NewLastSyncQuery(reader LoginsReader) *LastSyncQuery {
	return &LastSyncQuery{reader: reader}
}

// Query returns the zero time when the store never synced.
func (q *LastSyncQuery) Query(ctx context.Context, msg LastSyncMessage) (time.Time, error) {
	if q == nil || q.reader == nil {
		return time.Time{}, errMissingReader(loginsReader)
	}
	return q.reader.LastSync(ctx, msg.StoreID)
}
