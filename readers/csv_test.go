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
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/assetflow/core"
)

type closeTracker struct {
	io.Reader
	closed bool
}

func (c *closeTracker) Close() error {
	c.closed = true
	return nil
}

func newCSV(t *testing.T, data string, options ...ReaderOptionCSV) (*CSVReader, *closeTracker) {
	t.Helper()
	rc := &closeTracker{Reader: strings.NewReader(data)}
	reader, err := NewCSVReader(rc, options...)
	require.NoError(t, err)
	return reader, rc
}

func TestCSVReader_TypeInference(t *testing.T) {
	reader, _ := newCSV(t, "country,date,new_cases,rate,flag\nPeru,2021-01-01,12,0.5,true\n")

	rec, err := reader.Read(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "Peru", rec["country"])
	assert.Equal(t, "2021-01-01", rec["date"])
	assert.Equal(t, 12, rec["new_cases"])
	assert.Equal(t, 0.5, rec["rate"])
	assert.Equal(t, true, rec["flag"])

	_, err = reader.Read(context.Background())
	assert.True(t, errors.Is(err, io.EOF))
}

func TestCSVReader_NullsAndShortRows(t *testing.T) {
	reader, _ := newCSV(t, "a,b,c\n1,NA,\n2\n")

	rec, err := reader.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rec["a"])
	assert.Nil(t, rec["b"])
	assert.Nil(t, rec["c"])

	rec, err = reader.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, rec["a"])
	assert.Contains(t, rec, "b")
	assert.Nil(t, rec["b"])

	stats := reader.Stats()
	assert.Equal(t, int64(2), stats.RecordsRead)
	assert.Equal(t, int64(2), stats.NullValueCounts["b"])
}

func TestCSVReader_Options(t *testing.T) {
	reader, _ := newCSV(t, "\ufeffa;b\n01;x\n",
		WithCSVComma(';'),
		WithCSVInferTypes(false),
	)

	assert.Equal(t, []string{"a", "b"}, reader.Columns())

	rec, err := reader.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "01", rec["a"])
}

func TestCSVReader_CustomNullValues(t *testing.T) {
	reader, _ := newCSV(t, "a\n-\n", WithCSVNullValues("-"))

	rec, err := reader.Read(context.Background())
	require.NoError(t, err)
	assert.Nil(t, rec["a"])
}

func TestCSVReader_EmptyInput(t *testing.T) {
	reader, _ := newCSV(t, "")
	assert.Empty(t, reader.Columns())

	_, err := reader.Read(context.Background())
	assert.True(t, errors.Is(err, io.EOF))
}

func TestCSVReader_DrainKeepsHeaderOrder(t *testing.T) {
	reader, rc := newCSV(t, "z,a,m\n1,2,3\n4,5,6\n")

	table, err := core.Drain(context.Background(), reader)
	require.NoError(t, err)

	assert.Equal(t, []string{"z", "a", "m"}, table.Columns())
	assert.Equal(t, 2, table.Len())
	assert.True(t, rc.closed)
}

func TestCSVReader_ContextCancelled(t *testing.T) {
	reader, _ := newCSV(t, "a\n1\n")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := reader.Read(ctx)
	var csvErr *CSVReaderError
	require.True(t, errors.As(err, &csvErr))
	assert.Equal(t, "read", csvErr.Op)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestInferValue(t *testing.T) {
	tests := []struct {
		in   string
		want interface{}
	}{
		{"42", 42},
		{"-3", -3},
		{"1.25", 1.25},
		{"true", true},
		{"1", 1},
		{"t", "t"},
		{"Peru", "Peru"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, inferValue(tt.in))
		})
	}
}
