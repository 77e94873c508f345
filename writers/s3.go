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
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/aaronlmathis/assetflow/readers"
)

// S3UploaderError wraps upload failures with the object key.
type S3UploaderError struct {
	Op  string
	Key string
	Err error
}

func (e *S3UploaderError) Error() string {
	return fmt.Sprintf("s3 uploader %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *S3UploaderError) Unwrap() error {
	return e.Err
}

// ObjectPutter is the part of the S3 client the uploader needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3UploaderOptions configures S3Uploader.
type S3UploaderOptions struct {
	Bucket         string
	Prefix         string // Key prefix, e.g. "reports/"
	AWS            readers.AWSOptions
	EndpointURL    string
	ForcePathStyle bool
	Client         ObjectPutter // Overrides the client built from the other options
}

// UploaderOptionS3 is a functional option for S3UploaderOptions.
type UploaderOptionS3 func(*S3UploaderOptions)

func WithUploadBucket(bucket string) UploaderOptionS3 {
	return func(o *S3UploaderOptions) { o.Bucket = bucket }
}

func WithUploadPrefix(prefix string) UploaderOptionS3 {
	return func(o *S3UploaderOptions) { o.Prefix = prefix }
}

func WithUploadAWS(opts readers.AWSOptions) UploaderOptionS3 {
	return func(o *S3UploaderOptions) { o.AWS = opts }
}

func WithUploadEndpoint(endpoint string, pathStyle bool) UploaderOptionS3 {
	return func(o *S3UploaderOptions) {
		o.EndpointURL = endpoint
		o.ForcePathStyle = pathStyle
	}
}

func WithUploadClient(client ObjectPutter) UploaderOptionS3 {
	return func(o *S3UploaderOptions) { o.Client = client }
}

// S3Uploader copies report files to a bucket.
type S3Uploader struct {
	client ObjectPutter
	opts   S3UploaderOptions
}

// NewS3Uploader builds the S3 client from the default AWS configuration chain.
func NewS3Uploader(ctx context.Context, options ...UploaderOptionS3) (*S3Uploader, error) {
	opts := S3UploaderOptions{}
	for _, option := range options {
		option(&opts)
	}
	if opts.Bucket == "" {
		return nil, &S3UploaderError{Op: "validate", Err: fmt.Errorf("bucket is required")}
	}

	client := opts.Client
	if client == nil {
		cfg, err := readers.LoadAWSConfig(ctx, opts.AWS)
		if err != nil {
			return nil, &S3UploaderError{Op: "create_aws_config", Err: err}
		}
		client = s3.NewFromConfig(cfg, func(o *s3.Options) {
			if opts.EndpointURL != "" {
				o.BaseEndpoint = aws.String(opts.EndpointURL)
			}
			o.UsePathStyle = opts.ForcePathStyle
		})
	}
	return &S3Uploader{client: client, opts: opts}, nil
}

// Key returns the object key used for name.
func (u *S3Uploader) Key(name string) string {
	if u.opts.Prefix == "" {
		return name
	}
	return path.Join(strings.TrimSuffix(u.opts.Prefix, "/"), name)
}

// Upload stores body under the prefixed key and returns the s3:// URL.
func (u *S3Uploader) Upload(ctx context.Context, name string, body []byte, contentType string) (string, error) {
	key := u.Key(name)
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.opts.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", &S3UploaderError{Op: "put_object", Key: key, Err: err}
	}
	return "s3://" + u.opts.Bucket + "/" + key, nil
}

// UploadFile uploads a local file under its base name.
func (u *S3Uploader) UploadFile(ctx context.Context, filename string) (string, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return "", &S3UploaderError{Op: "read_file", Key: u.Key(filepath.Base(filename)), Err: err}
	}
	return u.Upload(ctx, filepath.Base(filename), data, contentTypeFor(filename))
}

func contentTypeFor(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".csv":
		return "text/csv"
	case ".json", ".jsonl":
		return "application/x-ndjson"
	case ".parquet":
		return "application/vnd.apache.parquet"
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/octet-stream"
	}
}
