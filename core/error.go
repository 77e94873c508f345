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
	"fmt"
	"strings"
)

// SchemaViolationError reports that a table is missing columns a consumer requires.
// It is a structural problem, distinct from a failed quality check.
type SchemaViolationError struct {
	Subject string   // Name of the table (usually the producing asset)
	Missing []string // Columns that were required but absent
	Reason  string   // Set instead of Missing when the value is not a table at all
}

func (e *SchemaViolationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("schema violation in %s: %s", e.Subject, e.Reason)
	}
	return fmt.Sprintf("schema violation in %s: missing columns [%s]", e.Subject, strings.Join(e.Missing, ", "))
}
