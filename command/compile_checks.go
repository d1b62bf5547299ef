package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[BeginOAuthFlowMessage]        = (*BeginOAuthFlowCommand)(nil)
	_ gocmd.Commander[CompleteOAuthFlowMessage]     = (*CompleteOAuthFlowCommand)(nil)
	_ gocmd.Commander[ClearAccessTokenCacheMessage] = (*ClearAccessTokenCacheCommand)(nil)
	_ gocmd.Commander[ReleaseAccountMessage]        = (*ReleaseAccountCommand)(nil)
	_ gocmd.Commander[AddLoginMessage]              = (*AddLoginCommand)(nil)
	_ gocmd.Commander[UpdateLoginMessage]           = (*UpdateLoginCommand)(nil)
	_ gocmd.Commander[TouchLoginMessage]            = (*TouchLoginCommand)(nil)
	_ gocmd.Commander[DeleteLoginMessage]           = (*DeleteLoginCommand)(nil)
	_ gocmd.Commander[SyncLoginsMessage]            = (*SyncLoginsCommand)(nil)
	_ gocmd.Commander[WipeLoginsMessage]            = (*WipeLoginsCommand)(nil)
	_ gocmd.Commander[ResetLoginsMessage]           = (*ResetLoginsCommand)(nil)
	_ gocmd.Commander[CloseLoginsMessage]           = (*CloseLoginsCommand)(nil)
)
