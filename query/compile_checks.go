package query

import (
	"time"

	"github.com/goliatone/go-accounts/core"
	gocmd "github.com/goliatone/go-command"
)

var (
	_ gocmd.Querier[GetTokenMessage, core.Result[core.AccessTokenInfo]] = (*GetTokenQuery)(nil)
	_ gocmd.Querier[GetProfileMessage, core.Profile]                    = (*GetProfileQuery)(nil)
	_ gocmd.Querier[SerializeAccountMessage, string]                    = (*SerializeAccountQuery)(nil)
	_ gocmd.Querier[AccountStatusMessage, AccountStatus]                = (*AccountStatusQuery)(nil)
	_ gocmd.Querier[GetLoginMessage, core.Result[core.Login]]           = (*GetLoginQuery)(nil)
	_ gocmd.Querier[ListLoginsMessage, []core.Login]                    = (*ListLoginsQuery)(nil)
	_ gocmd.Querier[LastSyncMessage, time.Time]                         = (*LastSyncQuery)(nil)
)
