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

package core

import (
	"context"
	"errors"
	"io"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Mock source returning a fixed set of records
type mockSource struct {
	records []Record
	columns []string
	pos     int
	closed  bool
	failAt  int
}

func (m *mockSource) Read(ctx context.Context) (Record, error) {
	if m.failAt > 0 && m.pos == m.failAt {
		return nil, errors.New("boom")
	}
	if m.pos >= len(m.records) {
		return nil, io.EOF
	}
	r := m.records[m.pos]
	m.pos++
	return r, nil
}

func (m *mockSource) Close() error {
	m.closed = true
	return nil
}

type columnSource struct {
	mockSource
}

func (c *columnSource) Columns() []string { return c.columns }

// Mock sink recording writes
type mockSink struct {
	written  []Record
	flushed  bool
	closed   bool
	failFrom int
}

func (m *mockSink) Write(ctx context.Context, record Record) error {
	if m.failFrom > 0 && len(m.written) >= m.failFrom {
		return errors.New("disk full")
	}
	m.written = append(m.written, record)
	return nil
}

func (m *mockSink) Flush() error {
	m.flushed = true
	return nil
}

func (m *mockSink) Close() error {
	m.closed = true
	return nil
}

func TestTable_CopiesAreIndependent(t *testing.T) {
	rows := []Record{{"country": "Peru", "n": 1}}
	table := NewTable([]string{"country", "n"}, rows)

	rows[0]["country"] = "changed"
	assert.Equal(t, "Peru", table.Row(0)["country"])

	row := table.Row(0)
	row["n"] = 2
	assert.Equal(t, 1, table.Row(0)["n"])

	cols := table.Columns()
	cols[0] = "x"
	assert.True(t, table.HasColumn("country"))

	clone := table.Clone()
	assert.Equal(t, table.Rows(), clone.Rows())
}

func TestTable_FromRecordsSortsColumns(t *testing.T) {
	table := NewTableFromRecords([]Record{{"b": 1}, {"a": 2, "c": 3}})
	assert.Equal(t, []string{"a", "b", "c"}, table.Columns())
	assert.Equal(t, []interface{}{nil, 2}, table.Column("a"))
}

func TestTable_ProjectAndRequire(t *testing.T) {
	table := NewTable([]string{"a", "b", "c"}, []Record{{"a": 1, "b": 2, "c": 3}})

	p := table.Project("c", "a")
	assert.Equal(t, []string{"c", "a"}, p.Columns())
	assert.Equal(t, Record{"c": 3, "a": 1}, p.Row(0))

	assert.NoError(t, table.Require("t", "a", "b"))
	err := p.Require("projected", "a", "b")
	var sv *SchemaViolationError
	require.True(t, errors.As(err, &sv))
	assert.Equal(t, "projected", sv.Subject)
	assert.Equal(t, []string{"b"}, sv.Missing)
	assert.Equal(t, "schema violation in projected: missing columns [b]", sv.Error())
}

func TestTable_Nil(t *testing.T) {
	var table *Table
	assert.Equal(t, 0, table.Len())
	assert.Nil(t, table.Columns())
	assert.Nil(t, table.Clone())
}

func TestDrain(t *testing.T) {
	src := &mockSource{records: []Record{{"b": 1, "a": 2}, {"a": 3}}}
	table, err := Drain(context.Background(), src)
	require.NoError(t, err)
	assert.True(t, src.closed)
	assert.Equal(t, []string{"a", "b"}, table.Columns())
	assert.Equal(t, 2, table.Len())

	csrc := &columnSource{mockSource{records: []Record{{"b": 1, "a": 2}}, columns: []string{"b", "a"}}}
	table, err = Drain(context.Background(), csrc)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, table.Columns())
}

func TestDrain_Errors(t *testing.T) {
	src := &mockSource{records: []Record{{"a": 1}, {"a": 2}}, failAt: 1}
	_, err := Drain(context.Background(), src)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 1 records")
	assert.True(t, src.closed)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Drain(ctx, &mockSource{records: []Record{{"a": 1}}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPour(t *testing.T) {
	table := NewTable([]string{"a"}, []Record{{"a": 1}, {"a": 2}})
	sink := &mockSink{}
	require.NoError(t, Pour(context.Background(), table, sink))
	assert.Len(t, sink.written, 2)
	assert.True(t, sink.flushed)
	assert.True(t, sink.closed)

	sink.written[0]["a"] = 99
	assert.Equal(t, 1, table.Row(0)["a"])

	failing := &mockSink{failFrom: 1}
	err := Pour(context.Background(), table, failing)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 1")
	assert.False(t, failing.flushed)
	assert.True(t, failing.closed)
}

func TestValues(t *testing.T) {
	assert.True(t, IsNull(nil))
	assert.True(t, IsNull("  "))
	assert.True(t, IsNull(math.NaN()))
	assert.False(t, IsNull(0))

	f, ok := ToFloat("2.5")
	assert.True(t, ok)
	assert.Equal(t, 2.5, f)
	_, ok = ToFloat("Peru")
	assert.False(t, ok)
	_, ok = ToFloat(math.NaN())
	assert.False(t, ok)

	ts, ok := ToTime("2021-01-04")
	require.True(t, ok)
	assert.Equal(t, time.Date(2021, 1, 4, 0, 0, 0, 0, time.UTC), ts)
	_, ok = ToTime(20210104)
	assert.False(t, ok)

	assert.Equal(t, -1, Compare(nil, 1))
	assert.Equal(t, -1, Compare(2, 10.5))
	assert.Equal(t, 1, Compare("b", "a"))
	assert.Equal(t, 0, Compare(time.Unix(0, 0), time.Unix(0, 0)))

	r := Record{"country": "Peru", "date": time.Date(2021, 1, 4, 0, 0, 0, 0, time.UTC)}
	assert.Equal(t, KeyOf(r, "country", "date"), KeyOf(r.Clone(), "country", "date"))
	assert.NotEqual(t, KeyOf(Record{"a": "x", "b": "y"}, "a", "b"), KeyOf(Record{"a": "xy", "b": ""}, "a", "b"))
}
