//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Copyright (C) 2025 Aaron Mathis aaron.mathis@gmail.com
//
// This file is part of AssetFlow.
//
// AssetFlow is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// AssetFlow is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with AssetFlow. If not, see https://www.gnu.org/licenses/.

package readers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/aaronlmathis/assetflow/core"
)

// Package readers provides implementations of core.DataSource for reading data from various sources.
//
// This file implements the HTTP reader used to download a dataset in one request.
// It supports authentication headers, retries with backoff and CSV or JSON-lines bodies.

// HTTPReaderStats holds statistics about the HTTP reader's performance
type HTTPReaderStats struct {
	RequestCount int64         // Total HTTP requests made, retries included
	RetryCount   int64         // Number of retries performed
	BytesRead    int64         // Size of the accepted response body
	ReadDuration time.Duration // Time spent downloading
	StatusCode   int           // Status of the accepted response
}

// AuthConfig defines authentication configuration
type AuthConfig struct {
	Type        string // "bearer", "basic", "apikey"
	Token       string // Bearer token
	Username    string // For basic auth
	Password    string // For basic auth
	HeaderName  string // Header name for API key
	HeaderValue string // Header value for API key
}

// HTTPReaderOptions configures the HTTP reader
type HTTPReaderOptions struct {
	Method          string            // HTTP method (default: GET)
	Headers         map[string]string // Additional headers
	Auth            *AuthConfig       // Authentication configuration
	Timeout         time.Duration     // Whole-request timeout per attempt
	RetryAttempts   int               // Retries after the first attempt
	RetryDelay      time.Duration     // Base delay between retries, doubled per attempt
	ResponseFormat  string            // "csv", "jsonl" or "auto"
	MaxResponseSize int64             // Maximum response size in bytes
	UserAgent       string            // User agent string
	CustomClient    *http.Client      // Custom HTTP client
}

// ReaderOptionHTTP is a functional option for HTTPReaderOptions
type ReaderOptionHTTP func(*HTTPReaderOptions)

func WithHTTPMethod(method string) ReaderOptionHTTP {
	return func(opts *HTTPReaderOptions) {
		opts.Method = method
	}
}

func WithHTTPHeaders(headers map[string]string) ReaderOptionHTTP {
	return func(opts *HTTPReaderOptions) {
		if opts.Headers == nil {
			opts.Headers = make(map[string]string)
		}
		for k, v := range headers {
			opts.Headers[k] = v
		}
	}
}

func WithHTTPBearerToken(token string) ReaderOptionHTTP {
	return func(opts *HTTPReaderOptions) {
		opts.Auth = &AuthConfig{Type: "bearer", Token: token}
	}
}

func WithHTTPBasicAuth(username, password string) ReaderOptionHTTP {
	return func(opts *HTTPReaderOptions) {
		opts.Auth = &AuthConfig{Type: "basic", Username: username, Password: password}
	}
}

func WithHTTPAPIKey(headerName, apiKey string) ReaderOptionHTTP {
	return func(opts *HTTPReaderOptions) {
		opts.Auth = &AuthConfig{Type: "apikey", HeaderName: headerName, HeaderValue: apiKey}
	}
}

func WithHTTPTimeout(timeout time.Duration) ReaderOptionHTTP {
	return func(opts *HTTPReaderOptions) {
		opts.Timeout = timeout
	}
}

func WithHTTPRetries(attempts int, delay time.Duration) ReaderOptionHTTP {
	return func(opts *HTTPReaderOptions) {
		opts.RetryAttempts = attempts
		opts.RetryDelay = delay
	}
}

func WithHTTPResponseFormat(format string) ReaderOptionHTTP {
	return func(opts *HTTPReaderOptions) {
		opts.ResponseFormat = format
	}
}

func WithHTTPMaxResponseSize(n int64) ReaderOptionHTTP {
	return func(opts *HTTPReaderOptions) {
		opts.MaxResponseSize = n
	}
}

func WithHTTPUserAgent(userAgent string) ReaderOptionHTTP {
	return func(opts *HTTPReaderOptions) {
		opts.UserAgent = userAgent
	}
}

func WithHTTPClient(client *http.Client) ReaderOptionHTTP {
	return func(opts *HTTPReaderOptions) {
		opts.CustomClient = client
	}
}

// HTTPReader implements core.DataSource for a remote CSV or JSON-lines document.
// The body is downloaded on the first Read and then decoded record by record.
type HTTPReader struct {
	url    string
	client *http.Client
	opts   *HTTPReaderOptions
	stats  HTTPReaderStats
	inner  core.DataSource
}

// NewHTTPReader creates a new HTTP reader with configurable options
func NewHTTPReader(rawURL string, options ...ReaderOptionHTTP) (*HTTPReader, error) {
	opts := &HTTPReaderOptions{
		Method:          http.MethodGet,
		Headers:         make(map[string]string),
		Timeout:         30 * time.Second,
		RetryAttempts:   2,
		RetryDelay:      time.Second,
		ResponseFormat:  "auto",
		MaxResponseSize: 512 * 1024 * 1024,
		UserAgent:       "AssetFlow-HTTPReader/1.0",
	}

	for _, option := range options {
		option(opts)
	}

	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, &FetchError{Op: "parse_url", URL: rawURL, Err: fmt.Errorf("not an http(s) URL")}
	}

	client := opts.CustomClient
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}

	return &HTTPReader{url: rawURL, client: client, opts: opts}, nil
}

// Read implements the core.DataSource interface
func (hr *HTTPReader) Read(ctx context.Context) (core.Record, error) {
	if hr.inner == nil {
		if err := hr.load(ctx); err != nil {
			return nil, err
		}
	}
	return hr.inner.Read(ctx)
}

// Columns returns the column order of CSV responses.
func (hr *HTTPReader) Columns() []string {
	if cs, ok := hr.inner.(core.ColumnSource); ok {
		return cs.Columns()
	}
	return nil
}

// Close implements the core.DataSource interface
func (hr *HTTPReader) Close() error {
	if hr.inner != nil {
		return hr.inner.Close()
	}
	return nil
}

// Stats returns HTTP reader statistics
func (hr *HTTPReader) Stats() HTTPReaderStats {
	return hr.stats
}

// load downloads the body and prepares the decoder for it.
func (hr *HTTPReader) load(ctx context.Context) error {
	start := time.Now()
	body, contentType, err := hr.executeRequestWithRetry(ctx)
	hr.stats.ReadDuration = time.Since(start)
	if err != nil {
		return err
	}
	hr.stats.BytesRead = int64(len(body))

	rc := io.NopCloser(bytes.NewReader(body))
	switch hr.format(contentType) {
	case "jsonl":
		hr.inner = NewJSONReader(rc)
	default:
		csvReader, err := NewCSVReader(rc)
		if err != nil {
			return &FetchError{Op: "parse", URL: hr.url, Err: err}
		}
		hr.inner = csvReader
	}
	return nil
}

// executeRequestWithRetry retries transport errors, 429 and 5xx responses.
func (hr *HTTPReader) executeRequestWithRetry(ctx context.Context) ([]byte, string, error) {
	var lastErr error
	for attempt := 0; attempt <= hr.opts.RetryAttempts; attempt++ {
		if attempt > 0 {
			hr.stats.RetryCount++
			delay := hr.opts.RetryDelay * time.Duration(1<<uint(attempt-1))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, "", &FetchError{Op: "request", URL: hr.url, Err: ctx.Err(), transport: true}
			}
		}

		body, contentType, err := hr.executeRequest(ctx)
		if err == nil {
			return body, contentType, nil
		}
		lastErr = err

		var fe *FetchError
		if errors.As(err, &fe) && !fe.retryable() {
			return nil, "", err
		}
		if ctx.Err() != nil {
			break
		}
	}
	return nil, "", lastErr
}

func (hr *HTTPReader) executeRequest(ctx context.Context) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, hr.opts.Method, hr.url, nil)
	if err != nil {
		return nil, "", &FetchError{Op: "create_request", URL: hr.url, Err: err}
	}
	hr.applyHeaders(req)

	hr.stats.RequestCount++
	resp, err := hr.client.Do(req)
	if err != nil {
		return nil, "", &FetchError{Op: "request", URL: hr.url, Err: err, transport: true}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, "", &FetchError{
			Op:         "status",
			URL:        hr.url,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %s: %s", resp.Status, strings.TrimSpace(string(snippet))),
			transport:  true,
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, hr.opts.MaxResponseSize+1))
	if err != nil {
		return nil, "", &FetchError{Op: "read_body", URL: hr.url, Err: err, transport: true}
	}
	if int64(len(body)) > hr.opts.MaxResponseSize {
		return nil, "", &FetchError{Op: "read_body", URL: hr.url, Err: fmt.Errorf("response exceeds %d bytes", hr.opts.MaxResponseSize)}
	}
	hr.stats.StatusCode = resp.StatusCode
	return body, resp.Header.Get("Content-Type"), nil
}

func (hr *HTTPReader) applyHeaders(req *http.Request) {
	req.Header.Set("User-Agent", hr.opts.UserAgent)
	for k, v := range hr.opts.Headers {
		req.Header.Set(k, v)
	}
	if hr.opts.Auth == nil {
		return
	}
	switch hr.opts.Auth.Type {
	case "bearer":
		req.Header.Set("Authorization", "Bearer "+hr.opts.Auth.Token)
	case "basic":
		req.SetBasicAuth(hr.opts.Auth.Username, hr.opts.Auth.Password)
	case "apikey":
		req.Header.Set(hr.opts.Auth.HeaderName, hr.opts.Auth.HeaderValue)
	}
}

// format resolves "auto" from the content type, then the URL path.
func (hr *HTTPReader) format(contentType string) string {
	if hr.opts.ResponseFormat != "auto" && hr.opts.ResponseFormat != "" {
		return hr.opts.ResponseFormat
	}
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "ndjson"), strings.Contains(ct, "jsonl"), strings.Contains(ct, "application/json"):
		return "jsonl"
	case strings.Contains(ct, "csv"):
		return "csv"
	}
	if u, err := url.Parse(hr.url); err == nil {
		switch strings.ToLower(path.Ext(u.Path)) {
		case ".json", ".jsonl", ".ndjson":
			return "jsonl"
		}
	}
	return "csv"
}
