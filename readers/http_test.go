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
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/assetflow/core"
)

const covidCSV = "country,date,new_cases\nPeru,2021-01-01,5\nPeru,2021-01-02,7\n"

func TestHTTPReader_CSV(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "text/csv")
		fmt.Fprint(w, covidCSV)
	}))
	defer server.Close()

	reader, err := NewHTTPReader(server.URL+"/compact.csv", WithHTTPBearerToken("secret"))
	require.NoError(t, err)

	table, err := core.Drain(context.Background(), reader)
	require.NoError(t, err)
	assert.Equal(t, []string{"country", "date", "new_cases"}, table.Columns())
	assert.Equal(t, 2, table.Len())
	assert.Equal(t, 7, table.Row(1)["new_cases"])

	stats := reader.Stats()
	assert.Equal(t, int64(1), stats.RequestCount)
	assert.Equal(t, http.StatusOK, stats.StatusCode)
}

func TestHTTPReader_JSONLines(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-ndjson")
		fmt.Fprint(w, "{\"country\":\"Peru\"}\n{\"country\":\"Ecuador\"}\n")
	}))
	defer server.Close()

	reader, err := NewHTTPReader(server.URL)
	require.NoError(t, err)

	table, err := core.Drain(context.Background(), reader)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"Peru", "Ecuador"}, table.Column("country"))
}

func TestHTTPReader_RetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, "try later", http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, covidCSV)
	}))
	defer server.Close()

	reader, err := NewHTTPReader(server.URL, WithHTTPRetries(2, time.Millisecond))
	require.NoError(t, err)

	table, err := core.Drain(context.Background(), reader)
	require.NoError(t, err)
	assert.Equal(t, 2, table.Len())
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Equal(t, int64(1), reader.Stats().RetryCount)
}

func TestHTTPReader_ClientErrorNotRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.NotFound(w, r)
	}))
	defer server.Close()

	reader, err := NewHTTPReader(server.URL, WithHTTPRetries(3, time.Millisecond))
	require.NoError(t, err)

	_, err = reader.Read(context.Background())
	require.Error(t, err)

	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, http.StatusNotFound, fe.StatusCode)
	assert.True(t, fe.Transport())
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestHTTPReader_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	reader, err := NewHTTPReader(server.URL,
		WithHTTPTimeout(50*time.Millisecond),
		WithHTTPRetries(0, 0),
	)
	require.NoError(t, err)

	_, err = reader.Read(context.Background())
	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.True(t, fe.Transport())
	assert.Equal(t, "request", fe.Op)
}

func TestHTTPReader_RejectsNonHTTPURL(t *testing.T) {
	_, err := NewHTTPReader("ftp://example.com/data.csv")
	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.False(t, fe.Transport())
}

func TestFetchError_Retryable(t *testing.T) {
	tests := []struct {
		name string
		err  *FetchError
		want bool
	}{
		{"network", &FetchError{transport: true}, true},
		{"too many requests", &FetchError{StatusCode: 429, transport: true}, true},
		{"server error", &FetchError{StatusCode: 503, transport: true}, true},
		{"not found", &FetchError{StatusCode: 404, transport: true}, false},
		{"parse", &FetchError{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.retryable())
		})
	}
}
