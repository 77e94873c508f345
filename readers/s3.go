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
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/aaronlmathis/assetflow/core"
)

// S3ReaderError provides structured error information for S3 reader operations
type S3ReaderError struct {
	Op  string // Operation that failed (e.g., "list_objects", "get_object", "read")
	Key string // Object key, when known
	Err error  // Underlying error
}

func (e *S3ReaderError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("s3 reader %s %s: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("s3 reader %s: %v", e.Op, e.Err)
}

func (e *S3ReaderError) Unwrap() error {
	return e.Err
}

// S3ReaderStats holds statistics about the S3 reader
type S3ReaderStats struct {
	ObjectsListed  int64         // Objects selected for reading
	ObjectsRead    int64         // Objects successfully opened
	RecordsRead    int64         // Records read across all objects
	BytesRead      int64         // Object bytes downloaded
	ReadDuration   time.Duration // Time spent reading
	ProcessedFiles []string      // Keys opened so far
}

// S3ReaderOptions configures the S3 reader behavior
type S3ReaderOptions struct {
	Bucket         string          // S3 bucket name
	Key            string          // Single object to read; takes precedence over Prefix
	Prefix         string          // Key prefix filter
	Suffix         string          // Key suffix filter (e.g., ".csv")
	Region         string          // AWS region
	Profile        string          // AWS profile to use
	Credentials    aws.Credentials // Explicit credentials
	EndpointURL    string          // Custom endpoint (for S3-compatible services)
	ForcePathStyle bool            // Use path-style addressing
	Sheet          string          // Sheet to read from .xlsx objects
}

// ReaderOptionS3 represents a configuration function for S3Reader
type ReaderOptionS3 func(*S3ReaderOptions)

func WithS3Bucket(bucket string) ReaderOptionS3 {
	return func(opts *S3ReaderOptions) {
		opts.Bucket = bucket
	}
}

func WithS3Key(key string) ReaderOptionS3 {
	return func(opts *S3ReaderOptions) {
		opts.Key = key
	}
}

func WithS3Prefix(prefix string) ReaderOptionS3 {
	return func(opts *S3ReaderOptions) {
		opts.Prefix = prefix
	}
}

func WithS3Suffix(suffix string) ReaderOptionS3 {
	return func(opts *S3ReaderOptions) {
		opts.Suffix = suffix
	}
}

func WithS3Region(region string) ReaderOptionS3 {
	return func(opts *S3ReaderOptions) {
		opts.Region = region
	}
}

func WithS3Profile(profile string) ReaderOptionS3 {
	return func(opts *S3ReaderOptions) {
		opts.Profile = profile
	}
}

func WithS3Credentials(creds aws.Credentials) ReaderOptionS3 {
	return func(opts *S3ReaderOptions) {
		opts.Credentials = creds
	}
}

func WithS3Endpoint(endpoint string) ReaderOptionS3 {
	return func(opts *S3ReaderOptions) {
		opts.EndpointURL = endpoint
	}
}

func WithS3PathStyle(pathStyle bool) ReaderOptionS3 {
	return func(opts *S3ReaderOptions) {
		opts.ForcePathStyle = pathStyle
	}
}

func WithS3Sheet(sheet string) ReaderOptionS3 {
	return func(opts *S3ReaderOptions) {
		opts.Sheet = sheet
	}
}

// S3Reader implements core.DataSource for one object or every object under a prefix.
// Objects are decoded by extension; records from consecutive objects are concatenated.
type S3Reader struct {
	client        *s3.Client
	keys          []string
	currentIndex  int
	currentReader core.DataSource
	columns       []string
	stats         S3ReaderStats
	opts          S3ReaderOptions
	mu            sync.Mutex
}

// NewS3Reader creates a new S3 reader. Objects are listed lazily on the first Read.
func NewS3Reader(options ...ReaderOptionS3) (*S3Reader, error) {
	opts := S3ReaderOptions{}
	for _, option := range options {
		option(&opts)
	}

	if opts.Bucket == "" {
		return nil, &S3ReaderError{Op: "validate_options", Err: fmt.Errorf("bucket is required")}
	}
	if opts.Key == "" && opts.Prefix == "" {
		return nil, &S3ReaderError{Op: "validate_options", Err: fmt.Errorf("key or prefix is required")}
	}

	cfg, err := LoadAWSConfig(context.Background(), AWSOptions{
		Region:      opts.Region,
		Profile:     opts.Profile,
		Credentials: opts.Credentials,
	})
	if err != nil {
		return nil, &S3ReaderError{Op: "create_aws_config", Err: err}
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.EndpointURL != "" {
			o.BaseEndpoint = aws.String(opts.EndpointURL)
		}
		o.UsePathStyle = opts.ForcePathStyle
	})

	return &S3Reader{client: client, opts: opts, keys: nil}, nil
}

// Read implements the core.DataSource interface
func (s *S3Reader) Read(ctx context.Context) (core.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	defer func() { s.stats.ReadDuration += time.Since(start) }()

	if s.keys == nil {
		if err := s.listObjects(ctx); err != nil {
			return nil, err
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil, &S3ReaderError{Op: "read", Err: ctx.Err()}
		default:
		}

		if s.currentReader == nil {
			if s.currentIndex >= len(s.keys) {
				return nil, io.EOF
			}
			if err := s.openNextObject(ctx); err != nil {
				return nil, err
			}
		}

		record, err := s.currentReader.Read(ctx)
		if errors.Is(err, io.EOF) {
			s.closeCurrentReader()
			continue
		}
		if err != nil {
			return nil, &S3ReaderError{Op: "read_record", Key: s.keys[s.currentIndex], Err: err}
		}
		s.stats.RecordsRead++
		return record, nil
	}
}

// Columns returns the column order of the first object, when its format has one.
func (s *S3Reader) Columns() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.columns...)
}

// Close implements the core.DataSource interface
func (s *S3Reader) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCurrentReader()
}

// Stats returns S3 reader statistics
func (s *S3Reader) Stats() S3ReaderStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Keys returns the object keys selected for reading.
func (s *S3Reader) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.keys...)
}

// listObjects resolves the keys to read, sorted by name.
func (s *S3Reader) listObjects(ctx context.Context) error {
	if s.opts.Key != "" {
		s.keys = []string{s.opts.Key}
		s.stats.ObjectsListed = 1
		return nil
	}

	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.opts.Bucket),
		Prefix: aws.String(s.opts.Prefix),
	}

	keys := make([]string, 0)
	paginator := s3.NewListObjectsV2Paginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return &S3ReaderError{Op: "list_objects", Err: err}
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if strings.HasSuffix(key, "/") {
				continue
			}
			if s.opts.Suffix != "" && !strings.HasSuffix(key, s.opts.Suffix) {
				continue
			}
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	s.keys = keys
	s.stats.ObjectsListed = int64(len(keys))
	return nil
}

// openNextObject downloads the current object and creates a decoder for it.
func (s *S3Reader) openNextObject(ctx context.Context) error {
	key := s.keys[s.currentIndex]

	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.opts.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return &FetchError{Op: "get_object", URL: "s3://" + s.opts.Bucket + "/" + key, Err: err, transport: true}
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return &FetchError{Op: "read_object", URL: "s3://" + s.opts.Bucket + "/" + key, Err: err, transport: true}
	}

	reader, err := decodeBytes(key, data, s.opts.Sheet)
	if err != nil {
		return &S3ReaderError{Op: "decode", Key: key, Err: err}
	}

	if s.columns == nil {
		if cs, ok := reader.(core.ColumnSource); ok {
			s.columns = cs.Columns()
		}
	}
	s.currentReader = reader
	s.stats.ObjectsRead++
	s.stats.BytesRead += int64(len(data))
	s.stats.ProcessedFiles = append(s.stats.ProcessedFiles, key)
	return nil
}

func (s *S3Reader) closeCurrentReader() error {
	if s.currentReader != nil {
		err := s.currentReader.Close()
		s.currentReader = nil
		s.currentIndex++
		return err
	}
	return nil
}

// AWSOptions selects how AWS configuration is loaded.
type AWSOptions struct {
	Region      string
	Profile     string
	Credentials aws.Credentials
}

// LoadAWSConfig loads the default AWS configuration chain with optional overrides.
func LoadAWSConfig(ctx context.Context, opts AWSOptions) (aws.Config, error) {
	configOpts := []func(*config.LoadOptions) error{}

	if opts.Region != "" {
		configOpts = append(configOpts, config.WithRegion(opts.Region))
	}
	if opts.Profile != "" {
		configOpts = append(configOpts, config.WithSharedConfigProfile(opts.Profile))
	}

	cfg, err := config.LoadDefaultConfig(ctx, configOpts...)
	if err != nil {
		return aws.Config{}, err
	}

	if opts.Credentials.AccessKeyID != "" {
		cfg.Credentials = aws.NewCredentialsCache(
			credentials.NewStaticCredentialsProvider(
				opts.Credentials.AccessKeyID,
				opts.Credentials.SecretAccessKey,
				opts.Credentials.SessionToken,
			),
		)
	}
	return cfg, nil
}
