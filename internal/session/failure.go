// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TrainerBot Contributors

package session

import (
	"context"
	"errors"
	"net"

	"github.com/samber/oops"
)

// FailureKind enumerates the establishment failures a Provider can report.
type FailureKind string

// Failure kinds.
const (
	KindProviderOffline          FailureKind = "PROVIDER_OFFLINE"
	KindAccountNotVerified       FailureKind = "ACCOUNT_NOT_VERIFIED"
	KindNetworkTimeout           FailureKind = "NETWORK_TIMEOUT"
	KindConnectionClosed         FailureKind = "CONNECTION_CLOSED"
	KindConnectFailure           FailureKind = "CONNECT_FAILURE"
	KindProtocolError            FailureKind = "PROTOCOL_ERROR"
	KindReceiveFailure           FailureKind = "RECEIVE_FAILURE"
	KindServerProtocolViolation  FailureKind = "SERVER_PROTOCOL_VIOLATION"
	KindGenericNetwork           FailureKind = "GENERIC_NETWORK"
	KindRequestCancelled         FailureKind = "REQUEST_CANCELLED"
	KindInvalidCredentials       FailureKind = "INVALID_CREDENTIALS"
	KindIPBanned                 FailureKind = "IP_BANNED"
	KindLoginProviderError       FailureKind = "LOGIN_PROVIDER_ERROR"
	KindUnsupportedConfiguration FailureKind = "UNSUPPORTED_CONFIGURATION"
	KindUnclassified             FailureKind = "UNCLASSIFIED"
)

var knownKinds = map[FailureKind]struct{}{
	KindProviderOffline:          {},
	KindAccountNotVerified:       {},
	KindNetworkTimeout:           {},
	KindConnectionClosed:         {},
	KindConnectFailure:           {},
	KindProtocolError:            {},
	KindReceiveFailure:           {},
	KindServerProtocolViolation:  {},
	KindGenericNetwork:           {},
	KindRequestCancelled:         {},
	KindInvalidCredentials:       {},
	KindIPBanned:                 {},
	KindLoginProviderError:       {},
	KindUnsupportedConfiguration: {},
	KindUnclassified:             {},
}

// ParseFailureKind converts a wire value back into a FailureKind.
// Unknown values map to KindUnclassified.
func ParseFailureKind(s string) FailureKind {
	k := FailureKind(s)
	if _, ok := knownKinds[k]; ok {
		return k
	}
	return KindUnclassified
}

// Fail builds the error a Provider returns for a classified failure.
func Fail(kind FailureKind, msg string) error {
	return oops.In("session").Code(kind).Errorf("%s", msg)
}

// FailProvider builds a login provider failure whose message is shown to the
// user as-is.
func FailProvider(msg string) error {
	return oops.In("session").Code(KindLoginProviderError).Public(msg).Errorf("%s", msg)
}

// KindOf classifies err. Errors built with Fail carry their kind directly;
// plain context and network errors are mapped on a best-effort basis.
func KindOf(err error) FailureKind {
	if err == nil {
		return ""
	}
	if oopsErr, ok := oops.AsOops(err); ok {
		if kind, ok := oopsErr.Code().(FailureKind); ok {
			return kind
		}
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindNetworkTimeout
	case errors.Is(err, context.Canceled):
		return KindRequestCancelled
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindNetworkTimeout
		}
		var opErr *net.OpError
		if errors.As(err, &opErr) && opErr.Op == "dial" {
			return KindConnectFailure
		}
		return KindGenericNetwork
	}
	return KindUnclassified
}

// PublicMessage returns the user-facing message attached by FailProvider,
// or an empty string.
func PublicMessage(err error) string {
	if oopsErr, ok := oops.AsOops(err); ok {
		return oopsErr.Public()
	}
	return ""
}
