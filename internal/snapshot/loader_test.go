// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package snapshot_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/aibor/emuctl/internal/snapshot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoader_Fetch(t *testing.T) {
	zstdData := compressed(t, snapshot.CompressionZstd)

	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/state.bin.zst":
				_, _ = w.Write(zstdData)
			case "/state.bin":
				_, _ = w.Write(rawState)
			case "/empty":
				w.WriteHeader(http.StatusOK)
			case "/broken":
				w.WriteHeader(http.StatusInternalServerError)
			default:
				http.NotFound(w, r)
			}
		},
	))
	t.Cleanup(server.Close)

	tests := []struct {
		name           string
		path           string
		policy         snapshot.Compression
		expected       []byte
		expectedErr    error
		expectedStatus int
	}{
		{
			name:     "compressed auto",
			path:     "/state.bin.zst",
			policy:   snapshot.CompressionAuto,
			expected: rawState,
		},
		{
			name:     "compressed passthrough",
			path:     "/state.bin.zst",
			policy:   snapshot.CompressionNone,
			expected: zstdData,
		},
		{
			name:     "raw",
			path:     "/state.bin",
			policy:   snapshot.CompressionAuto,
			expected: rawState,
		},
		{
			name:           "not found",
			path:           "/bad-url",
			expectedErr:    &snapshot.FetchError{},
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "server error",
			path:           "/broken",
			expectedErr:    &snapshot.FetchError{},
			expectedStatus: http.StatusInternalServerError,
		},
		{
			name:        "empty",
			path:        "/empty",
			expectedErr: snapshot.ErrEmptySnapshot,
		},
		{
			name:        "corrupt",
			path:        "/state.bin",
			policy:      snapshot.CompressionZstd,
			expectedErr: &snapshot.DecompressionError{},
		},
		{
			name:        "invalid policy",
			path:        "/state.bin",
			policy:      "rar",
			expectedErr: snapshot.ErrUnknownCompression,
		},
	}

	loader := snapshot.NewLoader(server.Client(), nil)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actual, err := loader.Fetch(context.Background(), server.URL+tt.path, tt.policy)
			require.ErrorIs(t, err, tt.expectedErr)
			assert.Equal(t, tt.expected, actual)

			if tt.expectedStatus != 0 {
				var fetchErr *snapshot.FetchError
				require.ErrorAs(t, err, &fetchErr)
				assert.Equal(t, tt.expectedStatus, fetchErr.StatusCode)
				assert.Contains(t, err.Error(), "status")
			}
		})
	}
}

func TestLoader_FetchFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.bin.lz4")
	require.NoError(t, os.WriteFile(path, compressed(t, snapshot.CompressionLZ4), 0o600))

	loader := snapshot.NewLoader(nil, nil, snapshot.WithFileURLs())

	actual, err := loader.Fetch(context.Background(), "file://"+path, snapshot.CompressionAuto)
	require.NoError(t, err)
	assert.Equal(t, rawState, actual)

	_, err = loader.Fetch(context.Background(), "file://"+path+".missing", snapshot.CompressionAuto)
	require.ErrorIs(t, err, &snapshot.FetchError{})
}

func TestLoader_FetchUnsupportedScheme(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.bin")
	require.NoError(t, os.WriteFile(path, rawState, 0o600))

	tests := []struct {
		name   string
		url    string
		client *http.Client
	}{
		{
			name: "file",
			url:  "file://" + path,
		},
		{
			name:   "file with custom client",
			url:    "file://" + path,
			client: &http.Client{Transport: http.NewFileTransport(http.Dir("/"))},
		},
		{
			name: "ftp",
			url:  "ftp://example.com/state.bin",
		},
		{
			name: "relative",
			url:  "state.bin",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loader := snapshot.NewLoader(tt.client, nil)

			actual, err := loader.Fetch(context.Background(), tt.url, snapshot.CompressionNone)
			require.ErrorIs(t, err, snapshot.ErrUnsupportedScheme)
			require.ErrorIs(t, err, &snapshot.FetchError{})
			assert.Nil(t, actual)
		})
	}
}

func TestLoader_FetchCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	loader := snapshot.NewLoader(nil, nil)

	_, err := loader.Fetch(ctx, "http://127.0.0.1:1/state", snapshot.CompressionAuto)
	require.ErrorIs(t, err, context.Canceled)
	require.ErrorIs(t, err, &snapshot.FetchError{})
}
