// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package snapshot_test

import (
	"bytes"
	"sync"
	"testing"

	"github.com/aibor/emuctl/internal/snapshot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var rawState = bytes.Repeat([]byte("machine state 0123456789 "), 512)

func compressed(t *testing.T, codec snapshot.Compression) []byte {
	t.Helper()

	data, err := snapshot.Compress(rawState, codec)
	require.NoError(t, err)

	return data
}

func TestParseCompression(t *testing.T) {
	for _, name := range []string{"auto", "none", "zstd", "lz4"} {
		c, err := snapshot.ParseCompression(name)
		require.NoError(t, err, name)
		assert.Equal(t, name, c.String())
	}

	c, err := snapshot.ParseCompression("")
	require.NoError(t, err)
	assert.Equal(t, snapshot.CompressionAuto, c)

	_, err = snapshot.ParseCompression("gzip")
	require.ErrorIs(t, err, snapshot.ErrUnknownCompression)
}

func TestCompression_Set(t *testing.T) {
	var c snapshot.Compression

	assert.Equal(t, "auto", c.String())
	require.NoError(t, c.Set("lz4"))
	assert.Equal(t, snapshot.CompressionLZ4, c)
	require.Error(t, c.Set("brotli"))
	assert.Equal(t, "compression", c.Type())
}

func TestDetect(t *testing.T) {
	assert.Equal(t, snapshot.CompressionZstd, snapshot.Detect(compressed(t, snapshot.CompressionZstd)))
	assert.Equal(t, snapshot.CompressionLZ4, snapshot.Detect(compressed(t, snapshot.CompressionLZ4)))
	assert.Equal(t, snapshot.CompressionNone, snapshot.Detect(rawState))
	assert.Equal(t, snapshot.CompressionNone, snapshot.Detect(nil))
}

func TestDecompress(t *testing.T) {
	tests := []struct {
		name   string
		data   []byte
		policy snapshot.Compression
	}{
		{"zstd explicit", compressed(t, snapshot.CompressionZstd), snapshot.CompressionZstd},
		{"zstd sniffed", compressed(t, snapshot.CompressionZstd), snapshot.CompressionAuto},
		{"lz4 explicit", compressed(t, snapshot.CompressionLZ4), snapshot.CompressionLZ4},
		{"lz4 sniffed", compressed(t, snapshot.CompressionLZ4), ""},
		{"raw passthrough", rawState, snapshot.CompressionNone},
		{"raw sniffed", rawState, snapshot.CompressionAuto},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actual, err := snapshot.Decompress(tt.data, tt.policy)
			require.NoError(t, err)
			assert.Equal(t, rawState, actual)
		})
	}
}

func TestDecompress_NoneKeepsCompressed(t *testing.T) {
	data := compressed(t, snapshot.CompressionZstd)

	actual, err := snapshot.Decompress(data, snapshot.CompressionNone)
	require.NoError(t, err)
	assert.Equal(t, data, actual)
}

func TestDecompress_Corrupt(t *testing.T) {
	tests := []struct {
		name   string
		data   []byte
		policy snapshot.Compression
	}{
		{"zstd forced on raw", rawState, snapshot.CompressionZstd},
		{"lz4 forced on raw", rawState, snapshot.CompressionLZ4},
		{
			name:   "truncated zstd",
			data:   compressed(t, snapshot.CompressionZstd)[:16],
			policy: snapshot.CompressionAuto,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actual, err := snapshot.Decompress(tt.data, tt.policy)
			require.ErrorIs(t, err, &snapshot.DecompressionError{})
			assert.Nil(t, actual, "no partial data")
		})
	}
}

func TestDecompress_Concurrent(t *testing.T) {
	data := compressed(t, snapshot.CompressionZstd)

	var wg sync.WaitGroup

	results := make([][]byte, 8)
	for idx := range results {
		wg.Add(1)

		go func() {
			defer wg.Done()

			results[idx], _ = snapshot.Decompress(data, snapshot.CompressionZstd)
		}()
	}

	wg.Wait()

	for _, result := range results {
		assert.Equal(t, rawState, result)
	}
}

func TestDigest(t *testing.T) {
	digest := snapshot.Digest([]byte("state"))
	assert.Regexp(t, `^blake3:[0-9a-f]{64}$`, digest)
	assert.Equal(t, digest, snapshot.Digest([]byte("state")))
	assert.NotEqual(t, digest, snapshot.Digest([]byte("other")))
	assert.Equal(t, "size=5 "+digest, snapshot.Details([]byte("state")))
}
