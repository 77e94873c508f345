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

package writers

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockPutter struct {
	objects map[string][]byte
	types   map[string]string
	err     error
}

func newMockPutter() *mockPutter {
	return &mockPutter{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (m *mockPutter) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.err != nil {
		return nil, m.err
	}
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	key := aws.ToString(params.Bucket) + "/" + aws.ToString(params.Key)
	m.objects[key] = data
	m.types[key] = aws.ToString(params.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func TestS3Uploader_UploadFile(t *testing.T) {
	putter := newMockPutter()
	uploader, err := NewS3Uploader(context.Background(),
		WithUploadBucket("reports"),
		WithUploadPrefix("covid/"),
		WithUploadClient(putter),
	)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "profile.csv")
	require.NoError(t, os.WriteFile(path, []byte("num_rows\n3\n"), 0o644))

	url, err := uploader.UploadFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "s3://reports/covid/profile.csv", url)
	assert.Equal(t, []byte("num_rows\n3\n"), putter.objects["reports/covid/profile.csv"])
	assert.Equal(t, "text/csv", putter.types["reports/covid/profile.csv"])
}

func TestS3Uploader_Errors(t *testing.T) {
	_, err := NewS3Uploader(context.Background(), WithUploadClient(newMockPutter()))
	assert.Error(t, err)

	putter := newMockPutter()
	putter.err = errors.New("access denied")
	uploader, err := NewS3Uploader(context.Background(), WithUploadBucket("b"), WithUploadClient(putter))
	require.NoError(t, err)

	_, err = uploader.Upload(context.Background(), "x.csv", []byte("a"), "text/csv")
	var upErr *S3UploaderError
	require.ErrorAs(t, err, &upErr)
	assert.Equal(t, "x.csv", upErr.Key)
	assert.ErrorContains(t, err, "access denied")
}
