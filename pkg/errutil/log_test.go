// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TrainerBot Contributors

package errutil_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trainerbot/trainerbot/pkg/errutil"
)

type kind string

func decodeEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestLogError_WithOopsError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	err := oops.In("cache").
		Code("TOKEN_DECODE_FAILED").
		With("owner", "ash-ptc").
		Errorf("unexpected end of JSON input")

	errutil.LogError(logger, "token load failed", err)

	entry := decodeEntry(t, &buf)
	assert.Equal(t, "ERROR", entry["level"])
	assert.Equal(t, "token load failed", entry["msg"])
	assert.Equal(t, "TOKEN_DECODE_FAILED", entry["code"])
	assert.Equal(t, "cache", entry["domain"])
}

func TestLogError_TypedCodeRendersAsString(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	errutil.LogError(logger, "login failed", oops.Code(kind("IP_BANNED")).Errorf("banned"))

	entry := decodeEntry(t, &buf)
	assert.Equal(t, "IP_BANNED", entry["code"])
}

func TestLogError_WithStandardError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	errutil.LogError(logger, "operation failed", errors.New("standard error"))

	entry := decodeEntry(t, &buf)
	assert.Equal(t, "ERROR", entry["level"])
	assert.Contains(t, entry["error"], "standard error")
}

func TestLogWarn_UsesWarnLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	errutil.LogWarn(logger, "artifact unreadable", errors.New("permission denied"))

	entry := decodeEntry(t, &buf)
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "artifact unreadable", entry["msg"])
}
