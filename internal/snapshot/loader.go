// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package snapshot

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
)

// Loader fetches snapshots.
type Loader struct {
	client  *http.Client
	logger  *slog.Logger
	schemes []string
}

// LoaderOption configures a [Loader].
type LoaderOption func(*Loader)

// WithFileURLs allows file URLs that are read from the local filesystem.
// Only use it for URLs the host operator provides.
func WithFileURLs() LoaderOption {
	return func(l *Loader) {
		l.schemes = append(l.schemes, "file")
	}
}

// NewLoader creates a new [Loader] that uses the given client. It accepts
// http and https URLs only, unless other schemes are allowed by options.
//
// If client is nil, a client based on [http.DefaultTransport] is used. It
// reads file URLs from the local filesystem if [WithFileURLs] is given.
func NewLoader(client *http.Client, logger *slog.Logger, opts ...LoaderOption) *Loader {
	loader := &Loader{
		client:  client,
		logger:  logger,
		schemes: []string{"http", "https"},
	}

	for _, opt := range opts {
		opt(loader)
	}

	if loader.client == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone() //nolint:forcetypeassert
		if slices.Contains(loader.schemes, "file") {
			transport.RegisterProtocol("file", http.NewFileTransport(http.Dir("/")))
		}

		loader.client = &http.Client{Transport: transport}
	}

	if loader.logger == nil {
		loader.logger = slog.Default()
	}

	return loader
}

// Fetch fetches the snapshot from the given URL and returns it ready to be
// restored according to the given [Compression] policy.
//
// It returns a [FetchError] if the request fails or the response status is
// not successful and a [DecompressionError] if the content can not be
// decompressed. URLs with a scheme the loader does not accept are rejected
// with [ErrUnsupportedScheme].
func (l *Loader) Fetch(
	ctx context.Context,
	rawURL string,
	policy Compression,
) ([]byte, error) {
	// Reject invalid requests before any traffic.
	_, err := ParseCompression(string(policy))
	if err != nil {
		return nil, err
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}

	if !slices.Contains(l.schemes, parsed.Scheme) {
		return nil, &FetchError{
			URL: rawURL,
			Err: fmt.Errorf("%w: %q", ErrUnsupportedScheme, parsed.Scheme),
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: fmt.Errorf("read body: %w", err)}
	}

	if len(data) == 0 {
		return nil, &FetchError{URL: rawURL, Err: ErrEmptySnapshot}
	}

	l.logger.Debug("Fetched snapshot",
		slog.String("url", rawURL),
		slog.Int("size", len(data)),
		slog.String("compression", Detect(data).String()))

	return Decompress(data, policy)
}
