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
	"fmt"
	"io"
)

// Drain reads every record from source into a Table and closes the source.
// The column order comes from the source when it implements ColumnSource,
// otherwise it is inferred from the records.
func Drain(ctx context.Context, source DataSource) (*Table, error) {
	defer source.Close()

	var rows []Record
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		record, err := source.Read(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("source read failed after %d records: %w", len(rows), err)
		}
		rows = append(rows, record)
	}

	if cs, ok := source.(ColumnSource); ok {
		if cols := cs.Columns(); len(cols) > 0 {
			return NewTable(cols, rows), nil
		}
	}
	return NewTableFromRecords(rows), nil
}

// Pour writes every row of t to sink, then flushes and closes it.
// The sink is closed even when a write fails.
func Pour(ctx context.Context, t *Table, sink DataSink) (err error) {
	defer func() {
		if cerr := sink.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("sink close failed: %w", cerr)
		}
	}()

	for i := 0; i < t.Len(); i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := sink.Write(ctx, t.rows[i].Clone()); err != nil {
			return fmt.Errorf("sink write failed at row %d: %w", i, err)
		}
	}
	if err := sink.Flush(); err != nil {
		return fmt.Errorf("sink flush failed: %w", err)
	}
	return nil
}
