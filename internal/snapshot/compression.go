// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package snapshot

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression is the policy deciding how a fetched snapshot is
// decompressed.
type Compression string

const (
	// CompressionAuto detects the compression from the frame magic number
	// and passes unknown content through.
	CompressionAuto Compression = "auto"
	// CompressionNone passes the content through unchanged.
	CompressionNone Compression = "none"
	// CompressionZstd decompresses zstd frames.
	CompressionZstd Compression = "zstd"
	// CompressionLZ4 decompresses lz4 frames.
	CompressionLZ4 Compression = "lz4"
)

var (
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
	lz4Magic  = []byte{0x04, 0x22, 0x4d, 0x18}
)

// ParseCompression parses the name of a [Compression]. The empty string is
// [CompressionAuto].
func ParseCompression(name string) (Compression, error) {
	switch c := Compression(name); c {
	case "":
		return CompressionAuto, nil
	case CompressionAuto, CompressionNone, CompressionZstd, CompressionLZ4:
		return c, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownCompression, name)
	}
}

// String implements [fmt.Stringer].
func (c Compression) String() string {
	if c == "" {
		return string(CompressionAuto)
	}

	return string(c)
}

// Set implements the flag value interface.
func (c *Compression) Set(name string) error {
	parsed, err := ParseCompression(name)
	if err != nil {
		return err
	}

	*c = parsed

	return nil
}

// Type implements the pflag value interface.
func (*Compression) Type() string {
	return "compression"
}

// Detect returns the compression of the given data by its frame magic
// number. It returns [CompressionNone] for unknown content.
func Detect(data []byte) Compression {
	switch {
	case bytes.HasPrefix(data, zstdMagic):
		return CompressionZstd
	case bytes.HasPrefix(data, lz4Magic):
		return CompressionLZ4
	default:
		return CompressionNone
	}
}

// zstdDecoder is initialized once per process. Concurrent callers wait for
// the same initialization. [zstd.Decoder.DecodeAll] is safe for concurrent
// use.
var zstdDecoder = sync.OnceValues(func() (*zstd.Decoder, error) {
	return zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
})

var zstdEncoder = sync.OnceValues(func() (*zstd.Encoder, error) {
	return zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
})

// Decompress returns the raw snapshot for the given data according to the
// [Compression] policy.
//
// On failure, it returns a [DecompressionError] and no data.
func Decompress(data []byte, policy Compression) ([]byte, error) {
	codec, err := ParseCompression(string(policy))
	if err != nil {
		return nil, err
	}

	if codec == CompressionAuto {
		codec = Detect(data)
	}

	var raw []byte

	switch codec {
	case CompressionNone:
		return data, nil
	case CompressionZstd:
		raw, err = decompressZstd(data)
	case CompressionLZ4:
		raw, err = io.ReadAll(lz4.NewReader(bytes.NewReader(data)))
	}

	if err != nil {
		return nil, &DecompressionError{Codec: codec, Err: err}
	}

	return raw, nil
}

func decompressZstd(data []byte) ([]byte, error) {
	decoder, err := zstdDecoder()
	if err != nil {
		return nil, fmt.Errorf("init decoder: %w", err)
	}

	return decoder.DecodeAll(data, nil) //nolint:wrapcheck
}

// Compress compresses the raw snapshot for storage. [CompressionAuto]
// compresses with zstd.
func Compress(data []byte, codec Compression) ([]byte, error) {
	codec, err := ParseCompression(string(codec))
	if err != nil {
		return nil, err
	}

	switch codec {
	case CompressionNone:
		return data, nil
	case CompressionLZ4:
		return compressLZ4(data)
	default:
		encoder, err := zstdEncoder()
		if err != nil {
			return nil, fmt.Errorf("zstd init encoder: %w", err)
		}

		return encoder.EncodeAll(data, nil), nil
	}
}

func compressLZ4(data []byte) ([]byte, error) {
	var buf bytes.Buffer

	writer := lz4.NewWriter(&buf)

	_, err := writer.Write(data)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}

	err = writer.Close()
	if err != nil {
		return nil, fmt.Errorf("lz4 close: %w", err)
	}

	return buf.Bytes(), nil
}
