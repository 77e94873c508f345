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
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/aaronlmathis/assetflow/core"
)

// Package readers provides implementations of core.DataSource for reading data from various sources.
//
// This file implements the MongoDB reader: a find query or an aggregation pipeline over one
// collection, streamed through a driver cursor.

// MongoReaderError provides structured error information for MongoDB reader operations
type MongoReaderError struct {
	Op         string // Operation that failed (e.g., "connect", "query", "decode", "aggregate")
	Collection string // Collection being accessed when error occurred
	Err        error  // Underlying error
}

func (e *MongoReaderError) Error() string {
	if e.Collection != "" {
		return fmt.Sprintf("mongo reader %s [%s]: %v", e.Op, e.Collection, e.Err)
	}
	return fmt.Sprintf("mongo reader %s: %v", e.Op, e.Err)
}

func (e *MongoReaderError) Unwrap() error {
	return e.Err
}

// MongoReaderStats holds statistics about the MongoDB reader's performance
type MongoReaderStats struct {
	RecordsRead     int64            // Total records read
	ReadDuration    time.Duration    // Total time spent reading
	NullValueCounts map[string]int64 // Count of null values per field
}

// MongoReaderOptions configures the MongoDB reader
type MongoReaderOptions struct {
	URI            string        // MongoDB connection URI
	Database       string        // Database name
	Collection     string        // Collection name
	Filter         bson.M        // Query filter for find operations
	Projection     bson.M        // Field projection
	Sort           bson.D        // Sort specification
	Pipeline       []bson.M      // Aggregation pipeline; replaces find when set
	BatchSize      int32         // Batch size for cursor
	Limit          int64         // Maximum number of documents to read
	Timeout        time.Duration // Connect timeout
	ReadPreference string        // primary, primaryPreferred, secondary, secondaryPreferred, nearest
	KeepID         bool          // Keep the _id field in records
}

// ReaderOptionMongo is a functional option for MongoReaderOptions
type ReaderOptionMongo func(*MongoReaderOptions)

func WithMongoURI(uri string) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) {
		opts.URI = uri
	}
}

func WithMongoDB(database string) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) {
		opts.Database = database
	}
}

func WithMongoCollection(collection string) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) {
		opts.Collection = collection
	}
}

func WithMongoFilter(filter bson.M) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) {
		opts.Filter = filter
	}
}

func WithMongoProjection(projection bson.M) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) {
		opts.Projection = projection
	}
}

func WithMongoSort(sort bson.D) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) {
		opts.Sort = sort
	}
}

func WithMongoPipeline(pipeline []bson.M) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) {
		opts.Pipeline = pipeline
	}
}

func WithMongoLimit(limit int64) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) {
		opts.Limit = limit
	}
}

func WithMongoBatchSize(batchSize int32) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) {
		opts.BatchSize = batchSize
	}
}

func WithMongoTimeout(timeout time.Duration) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) {
		opts.Timeout = timeout
	}
}

func WithMongoReadPreference(preference string) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) {
		opts.ReadPreference = preference
	}
}

func WithMongoKeepID(keep bool) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) {
		opts.KeepID = keep
	}
}

// MongoReader implements core.DataSource for a MongoDB collection.
type MongoReader struct {
	opts       *MongoReaderOptions
	client     *mongo.Client
	collection *mongo.Collection
	cursor     *mongo.Cursor
	stats      MongoReaderStats
}

// NewMongoReader validates options. The connection is opened on the first Read.
func NewMongoReader(options ...ReaderOptionMongo) (*MongoReader, error) {
	opts := &MongoReaderOptions{
		URI:            "mongodb://localhost:27017",
		BatchSize:      1000,
		Timeout:        30 * time.Second,
		ReadPreference: "primary",
	}
	for _, option := range options {
		option(opts)
	}

	if opts.Database == "" {
		return nil, &MongoReaderError{Op: "validate", Err: fmt.Errorf("database name is required")}
	}
	if opts.Collection == "" {
		return nil, &MongoReaderError{Op: "validate", Err: fmt.Errorf("collection name is required")}
	}
	if _, err := readPreference(opts.ReadPreference); err != nil {
		return nil, &MongoReaderError{Op: "validate", Err: err}
	}

	return &MongoReader{
		opts:  opts,
		stats: MongoReaderStats{NullValueCounts: make(map[string]int64)},
	}, nil
}

// Options returns a copy of the reader configuration.
func (mr *MongoReader) Options() MongoReaderOptions {
	return *mr.opts
}

// Connect establishes the client connection.
func (mr *MongoReader) Connect(ctx context.Context) error {
	if mr.client != nil {
		return nil
	}

	rp, _ := readPreference(mr.opts.ReadPreference)
	clientOpts := options.Client().
		ApplyURI(mr.opts.URI).
		SetConnectTimeout(mr.opts.Timeout).
		SetServerSelectionTimeout(mr.opts.Timeout).
		SetReadPreference(rp)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return &MongoReaderError{Op: "connect", Err: err}
	}
	if err := client.Ping(ctx, rp); err != nil {
		client.Disconnect(ctx)
		return &MongoReaderError{Op: "ping", Err: err}
	}

	mr.client = client
	mr.collection = client.Database(mr.opts.Database).Collection(mr.opts.Collection)
	return nil
}

// Read implements the core.DataSource interface
func (mr *MongoReader) Read(ctx context.Context) (core.Record, error) {
	start := time.Now()
	defer func() { mr.stats.ReadDuration += time.Since(start) }()

	select {
	case <-ctx.Done():
		return nil, &MongoReaderError{Op: "read", Collection: mr.opts.Collection, Err: ctx.Err()}
	default:
	}

	if err := mr.Connect(ctx); err != nil {
		return nil, err
	}
	if mr.cursor == nil {
		if err := mr.initializeCursor(ctx); err != nil {
			return nil, &MongoReaderError{Op: "init_cursor", Collection: mr.opts.Collection, Err: err}
		}
	}

	if !mr.cursor.Next(ctx) {
		if err := mr.cursor.Err(); err != nil {
			return nil, &MongoReaderError{Op: "cursor_next", Collection: mr.opts.Collection, Err: err}
		}
		return nil, io.EOF
	}

	var doc bson.M
	if err := mr.cursor.Decode(&doc); err != nil {
		return nil, &MongoReaderError{Op: "decode", Collection: mr.opts.Collection, Err: err}
	}

	record := convertBSONToRecord(doc, mr.opts.KeepID)
	for key, val := range record {
		if val == nil {
			mr.stats.NullValueCounts[key]++
		}
	}
	mr.stats.RecordsRead++
	return record, nil
}

// Close implements the core.DataSource interface
func (mr *MongoReader) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var errs []string
	if mr.cursor != nil {
		if err := mr.cursor.Close(ctx); err != nil {
			errs = append(errs, fmt.Sprintf("cursor close: %v", err))
		}
		mr.cursor = nil
	}
	if mr.client != nil {
		if err := mr.client.Disconnect(ctx); err != nil {
			errs = append(errs, fmt.Sprintf("client disconnect: %v", err))
		}
		mr.client = nil
	}

	if len(errs) > 0 {
		return &MongoReaderError{Op: "close", Err: fmt.Errorf("%s", strings.Join(errs, "; "))}
	}
	return nil
}

// Stats returns MongoDB reader statistics
func (mr *MongoReader) Stats() MongoReaderStats {
	return mr.stats
}

func (mr *MongoReader) initializeCursor(ctx context.Context) error {
	if len(mr.opts.Pipeline) > 0 {
		aggOpts := options.Aggregate()
		if mr.opts.BatchSize > 0 {
			aggOpts.SetBatchSize(mr.opts.BatchSize)
		}
		cursor, err := mr.collection.Aggregate(ctx, mr.opts.Pipeline, aggOpts)
		if err != nil {
			return err
		}
		mr.cursor = cursor
		return nil
	}

	findOpts := options.Find()
	if mr.opts.BatchSize > 0 {
		findOpts.SetBatchSize(mr.opts.BatchSize)
	}
	if mr.opts.Limit > 0 {
		findOpts.SetLimit(mr.opts.Limit)
	}
	if mr.opts.Projection != nil {
		findOpts.SetProjection(mr.opts.Projection)
	}
	if mr.opts.Sort != nil {
		findOpts.SetSort(mr.opts.Sort)
	}

	filter := mr.opts.Filter
	if filter == nil {
		filter = bson.M{}
	}
	cursor, err := mr.collection.Find(ctx, filter, findOpts)
	if err != nil {
		return err
	}
	mr.cursor = cursor
	return nil
}

func readPreference(name string) (*readpref.ReadPref, error) {
	switch name {
	case "", "primary":
		return readpref.Primary(), nil
	case "primaryPreferred":
		return readpref.PrimaryPreferred(), nil
	case "secondary":
		return readpref.Secondary(), nil
	case "secondaryPreferred":
		return readpref.SecondaryPreferred(), nil
	case "nearest":
		return readpref.Nearest(), nil
	default:
		return nil, fmt.Errorf("invalid read preference: %s", name)
	}
}

func convertBSONToRecord(doc bson.M, keepID bool) core.Record {
	record := make(core.Record, len(doc))
	for key, value := range doc {
		if key == "_id" && !keepID {
			continue
		}
		record[key] = convertBSONValue(value)
	}
	return record
}

// convertBSONValue converts BSON values to the cell types used by core.
func convertBSONValue(value interface{}) interface{} {
	switch v := value.(type) {
	case primitive.ObjectID:
		return v.Hex()
	case primitive.DateTime:
		return v.Time().UTC()
	case primitive.Decimal128:
		if f, err := strconv.ParseFloat(v.String(), 64); err == nil {
			return f
		}
		return v.String()
	case primitive.Timestamp:
		return time.Unix(int64(v.T), 0).UTC()
	case primitive.Binary:
		return v.Data
	case primitive.Undefined, primitive.Null:
		return nil
	case int32:
		return int(v)
	case int64:
		return int(v)
	case bson.M:
		result := make(map[string]interface{}, len(v))
		for k, val := range v {
			result[k] = convertBSONValue(val)
		}
		return result
	case bson.A:
		result := make([]interface{}, len(v))
		for i, val := range v {
			result[i] = convertBSONValue(val)
		}
		return result
	default:
		return v
	}
}
