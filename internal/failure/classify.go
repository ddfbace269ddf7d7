// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TrainerBot Contributors

// Package failure maps establishment failures to outcomes. Classify is a
// pure function; Apply performs the outcome's side effects.
package failure

import (
	"github.com/trainerbot/trainerbot/internal/account"
	"github.com/trainerbot/trainerbot/internal/session"
)

// User-visible outcome messages.
const (
	MsgSuccess           = "Successfully logged into server."
	MsgStartupRejected   = "Session couldn't start up."
	MsgProviderOffline   = "Ptc server offline."
	MsgNotVerified       = "Account not verified."
	MsgTimedOut          = "Request has timed out."
	MsgHTTPProxy         = "Http proxy detected"
	MsgProxyOffline      = "Proxy is offline"
	MsgRequestError      = "Failed to login due to request error"
	MsgCancelled         = "Login request has timed out"
	MsgInvalidCredential = "Username or password incorrect"
	MsgProxyBanned       = "Proxy IP is banned."
	MsgIPBanned          = "IP address is banned."
	MsgLoginFailed       = "Failed to login"
)

// Severity selects how an outcome is logged.
type Severity string

// Severities.
const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityProxy   Severity = "proxy"
	SeverityError   Severity = "error"
)

// Input is the context the classifier needs besides the failure kind.
type Input struct {
	// ProxyPresent reports whether the settings configure a proxy.
	ProxyPresent bool
	// ProxyAssigned reports whether a proxy from the pool is currently
	// assigned to the account.
	ProxyAssigned bool
	// StopOnIPBan halts automation on an IP ban.
	StopOnIPBan bool
	// ProviderMessage is the login provider's own message, if any.
	ProviderMessage string
}

// Outcome is the result of one establishment attempt.
type Outcome struct {
	Success bool
	// Message is the one-line user-visible result.
	Message string
	// Detail is the log line, including remedy hints.
	Detail string
	Kind   session.FailureKind

	Halt            bool
	ReleaseProxy    bool
	FlagProxy       bool
	MarkProxyBanned bool
	// AccountState is empty when the state is unchanged.
	AccountState account.State
	Severity     Severity
}

// Succeeded returns the outcome of a successful establishment.
func Succeeded() Outcome {
	return Outcome{Success: true, Message: MsgSuccess, Detail: MsgSuccess, Severity: SeverityInfo}
}

// StartupRejected returns the outcome of a startup the server did not
// accept. It has no side effects.
func StartupRejected() Outcome {
	return Outcome{Message: MsgStartupRejected, Detail: MsgStartupRejected, Severity: SeverityWarning}
}

// Classify maps a failure kind to its outcome.
func Classify(kind session.FailureKind, in Input) Outcome {
	o := Outcome{Kind: kind}

	switch kind {
	case session.KindProviderOffline:
		o.Halt = true
		o.Message = MsgProviderOffline
		o.Detail = "Ptc server offline. Please try again later."
		o.Severity = SeverityWarning

	case session.KindAccountNotVerified:
		o.Halt = true
		o.ReleaseProxy = true
		o.AccountState = account.StateNotVerified
		o.Message = MsgNotVerified
		o.Detail = "Account not verified. Stopping ..."
		o.Severity = SeverityWarning

	case session.KindNetworkTimeout:
		timeout(&o, in, MsgTimedOut, "Login request has timed out.", "Login request has timed out. Possible bad proxy.")

	case session.KindRequestCancelled:
		timeout(&o, in, MsgCancelled, "Login request has timed out", "Login request has timed out. Possible bad proxy")

	case session.KindConnectionClosed:
		if !in.ProxyPresent {
			requestError(&o, in)
			break
		}
		o.FlagProxy = true
		o.Message = MsgHTTPProxy
		o.Detail = "Potential http proxy detected. Only https proxies will work."
		o.Severity = SeverityProxy

	case session.KindConnectFailure, session.KindProtocolError,
		session.KindReceiveFailure, session.KindServerProtocolViolation:
		if !in.ProxyPresent {
			requestError(&o, in)
			break
		}
		o.FlagProxy = true
		o.Message = MsgProxyOffline
		o.Detail = MsgProxyOffline
		o.Severity = SeverityProxy

	case session.KindGenericNetwork:
		requestError(&o, in)

	case session.KindInvalidCredentials:
		o.Halt = true
		o.ReleaseProxy = true
		o.Message = MsgInvalidCredential
		o.Detail = "Invalid credentials or account lockout. Stopping bot..."
		o.Severity = SeverityWarning

	case session.KindIPBanned:
		o.Halt = in.StopOnIPBan
		o.FlagProxy = true
		if in.ProxyPresent {
			o.MarkProxyBanned = in.ProxyAssigned
			o.Message = MsgProxyBanned
		} else {
			o.Message = MsgIPBanned
		}
		o.Detail = o.Message
		o.Severity = SeverityProxy

	case session.KindLoginProviderError:
		o.Halt = true
		o.ReleaseProxy = true
		o.Message = MsgLoginFailed
		if in.ProviderMessage != "" {
			o.Message = in.ProviderMessage
		}
		o.Detail = o.Message
		o.Severity = SeverityWarning

	case session.KindUnsupportedConfiguration:
		o.Halt = true
		o.Message = MsgLoginFailed
		if in.ProviderMessage != "" {
			o.Message = in.ProviderMessage
		}
		o.Detail = o.Message
		o.Severity = SeverityError

	default:
		o.Kind = session.KindUnclassified
		o.Halt = true
		o.Message = MsgLoginFailed
		o.Detail = MsgLoginFailed
		o.Severity = SeverityError
	}
	return o
}

func timeout(o *Outcome, in Input, msg, direct, proxied string) {
	o.Halt = true
	o.Message = msg
	if in.ProxyPresent {
		o.FlagProxy = true
		o.Detail = proxied
		o.Severity = SeverityProxy
		return
	}
	o.Detail = direct
	o.Severity = SeverityWarning
}

func requestError(o *Outcome, in Input) {
	o.FlagProxy = in.ProxyPresent
	o.Message = MsgRequestError
	o.Detail = MsgRequestError
	o.Severity = SeverityError
}
