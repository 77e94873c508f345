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

package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/assetflow/config"
	"github.com/aaronlmathis/assetflow/readers"
)

func writeDataset(t *testing.T, dir string) string {
	t.Helper()
	var sb strings.Builder
	sb.WriteString("country,date,new_cases,people_vaccinated,population\n")
	for i := 0; i < 14; i++ {
		date := fmt.Sprintf("2021-01-%02d", 4+i)
		fmt.Fprintf(&sb, "Ecuador,%s,%d,%d,17000000\n", date, 100+i, 1000*i)
		fmt.Fprintf(&sb, "Peru,%s,%d,%d,33000000\n", date, 200, 2000*i)
	}
	path := filepath.Join(dir, "compact.csv")
	require.NoError(t, os.WriteFile(path, []byte(sb.String()), 0644))
	return path
}

func writeConfig(t *testing.T, dir, sourceURL string) string {
	t.Helper()
	body := fmt.Sprintf("source:\n  url: %q\nreport:\n  dir: %q\nlog:\n  level: error\n", sourceURL, filepath.Join(dir, "reports"))
	path := filepath.Join(dir, "assetflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv(config.SourceURLEnv, "")

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	err := cmd.Execute()
	return out.String(), err
}

func TestRunCmd_LocalDataset(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, writeDataset(t, dir))

	out, err := execute(t, "run", "--config", cfgPath)
	require.NoError(t, err, out)

	workbook := filepath.Join(dir, "reports", "covid_report.xlsx")
	assert.Contains(t, out, "Report written to "+workbook)
	assert.Contains(t, out, "0 failed, 0 skipped")

	sheets, err := readers.WorkbookSheets(workbook)
	require.NoError(t, err)
	assert.Equal(t, []string{"CleanData", "Incidence7d", "WeeklyGrowth", "Profile"}, sheets)
	assert.FileExists(t, filepath.Join(dir, "reports", "profile.csv"))
}

func TestRunCmd_MissingSource(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, filepath.Join(dir, "missing.csv"))

	out, err := execute(t, "run", "--config", cfgPath)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errReportNotProduced))
	assert.Contains(t, out, "ingest")
	assert.Contains(t, out, "Report not produced: export skipped because ingest failed")
	assert.NoFileExists(t, filepath.Join(dir, "reports", "covid_report.xlsx"))
}

func TestRunCmd_StrictFlag(t *testing.T) {
	dir := t.TempDir()
	data := writeDataset(t, dir)
	// A duplicated row fails the raw uniqueness check.
	f, err := os.OpenFile(data, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString("Peru,2021-01-04,200,0,33000000\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())
	cfgPath := writeConfig(t, dir, data)

	out, err := execute(t, "run", "--config", cfgPath)
	require.NoError(t, err, out)
	assert.Contains(t, out, "(1 failed checks)")

	out, err = execute(t, "run", "--config", cfgPath, "--strict")
	require.Error(t, err)
	assert.Contains(t, out, "Report not produced")
}

func TestRunCmd_InvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("report:\n  format: xml\n"), 0644))

	_, err := execute(t, "run", "--config", path)
	require.Error(t, err)
	assert.False(t, errors.Is(err, errReportNotProduced))
	assert.Contains(t, err.Error(), "report.format")
}

func TestGraphCmd(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, writeDataset(t, dir))

	out, err := execute(t, "graph", "--config", cfgPath)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Order: ingest → "))
	assert.Contains(t, out, "export [asset, reporting]")
	assert.Contains(t, out, "input_checks [checks, quality]")
	assert.NoFileExists(t, filepath.Join(dir, "reports", "covid_report.xlsx"))
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "Version:    "+Version)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger("debug", "json", &buf)
	logger.Debug("hello", "asset", "ingest")
	assert.Contains(t, buf.String(), `"msg":"hello"`)
	assert.Contains(t, buf.String(), `"app":"assetflow"`)

	buf.Reset()
	logger = newLogger("nonsense", "text", &buf)
	logger.Debug("hidden")
	logger.Info("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "msg=shown")
}
