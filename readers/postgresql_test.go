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
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresReader_Validation(t *testing.T) {
	_, err := NewPostgresReader(WithPostgresTable("cases"))
	var pgErr *PostgresReaderError
	require.True(t, errors.As(err, &pgErr))
	assert.Equal(t, "validate", pgErr.Op)

	_, err = NewPostgresReader(WithPostgresDSN("postgres://localhost/covid"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query or table is required")
}

func TestPostgresReader_BuildQuery(t *testing.T) {
	tests := []struct {
		name    string
		options []PostgresReaderOption
		want    string
	}{
		{
			name:    "table",
			options: []PostgresReaderOption{WithPostgresTable("cases")},
			want:    `SELECT * FROM "cases"`,
		},
		{
			name:    "schema qualified",
			options: []PostgresReaderOption{WithPostgresTable("public.cases")},
			want:    `SELECT * FROM "public"."cases"`,
		},
		{
			name:    "hostile identifier",
			options: []PostgresReaderOption{WithPostgresTable(`x"; DROP TABLE y; --`)},
			want:    `SELECT * FROM "x""; DROP TABLE y; --"`,
		},
		{
			name: "query wins",
			options: []PostgresReaderOption{
				WithPostgresTable("cases"),
				WithPostgresQuery("SELECT country FROM cases WHERE new_cases > $1", 10),
			},
			want: "SELECT country FROM cases WHERE new_cases > $1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := append([]PostgresReaderOption{WithPostgresDSN("postgres://localhost/covid")}, tt.options...)
			reader, err := NewPostgresReader(opts...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, reader.Query())
			assert.NoError(t, reader.Close())
		})
	}
}

func TestConvertSQLValue(t *testing.T) {
	ts := time.Date(2021, 3, 1, 12, 0, 0, 0, time.FixedZone("PET", -5*3600))

	assert.Equal(t, 12.5, convertSQLValue([]byte("12.5"), "NUMERIC"))
	assert.Equal(t, "abc", convertSQLValue([]byte("abc"), "NUMERIC"))
	assert.Equal(t, "Peru", convertSQLValue([]byte("Peru"), "TEXT"))
	assert.Equal(t, []byte{1, 2}, convertSQLValue([]byte{1, 2}, "BYTEA"))
	assert.Equal(t, 7, convertSQLValue(int64(7), "INT8"))
	assert.Equal(t, ts.UTC(), convertSQLValue(ts, "TIMESTAMPTZ"))
}
