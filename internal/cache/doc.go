// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TrainerBot Contributors

// Package cache persists access tokens and template artifacts in a
// store.Store using the client's historical layout:
//
//	Cache/<ownerKey>.json          access token, indented JSON
//	data/<deviceId><Suffix>.json   artifact, Suffix one of IT, UR, AD, LCV
package cache
