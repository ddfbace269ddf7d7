// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TrainerBot Contributors

// Package session defines the boundary between TrainerBot and the remote
// game service.
//
// The Session Provider performs the network handshake, request signing and
// push delivery. TrainerBot never speaks the wire protocol itself; it drives
// a Provider and reacts to what the Provider reports:
//   - Provider - creates sessions, either by full authentication or from a
//     cached AccessToken
//   - Session - a live session handle with startup, push subscriptions and
//     shutdown
//   - FailureKind - the closed set of establishment failures a Provider may
//     report, carried as the oops error code
//
// Providers should report failures with Fail or FailProvider so that callers
// can classify them with KindOf without inspecting transport errors.
package session
