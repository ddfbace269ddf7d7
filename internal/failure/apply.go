// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TrainerBot Contributors

package failure

import "github.com/trainerbot/trainerbot/internal/account"

// Effects is the worker state an outcome acts on. *account.Controller
// implements it.
type Effects interface {
	Halt()
	ReleaseProxy()
	FlagProxy()
	MarkProxyBanned()
	SetAccountState(account.State)
}

var _ Effects = (*account.Controller)(nil)

// Apply performs the side effects of o. The banned proxy is reported before
// any release so the handler still sees it assigned.
func Apply(o Outcome, e Effects) {
	if e == nil || o.Success {
		return
	}
	if o.MarkProxyBanned {
		e.MarkProxyBanned()
	}
	if o.FlagProxy {
		e.FlagProxy()
	}
	if o.ReleaseProxy {
		e.ReleaseProxy()
	}
	if o.AccountState != "" {
		e.SetAccountState(o.AccountState)
	}
	if o.Halt {
		e.Halt()
	}
}
