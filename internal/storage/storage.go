// Package storage abstracts the partitioned object store the pipeline reads
// raw batches from and writes processed, rejected and analyzed artifacts to.
package storage

import (
	"context"
	"errors"
	"path"
	"strings"
)

// ErrNotFound indicates the requested object does not exist.
var ErrNotFound = errors.New("object not found")

// ObjectStore is the narrow interface the stages depend on.
type ObjectStore interface {
	// Get returns the full body of an object, or ErrNotFound.
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	// Put writes an object, overwriting any previous version.
	Put(ctx context.Context, bucket, key string, body []byte, contentType string) error
}

// Content types used by the pipeline artifacts.
const (
	ContentTypeCSV  = "text/csv"
	ContentTypeJSON = "application/json"
)

// baseName strips the directory part of a key.
func baseName(key string) string {
	return path.Base(key)
}

// ProcessedKey derives the accepted-partition key for a raw object.
func ProcessedKey(processedPrefix, rawKey string) string {
	return processedPrefix + baseName(rawKey)
}

// RejectedKey derives the rejected-partition key for a raw object.
func RejectedKey(rejectedPrefix, rawKey string) string {
	return rejectedPrefix + strings.TrimSuffix(baseName(rawKey), ".csv") + "_rejected.csv"
}

// ManifestKey derives the manifest key written next to the processed object.
func ManifestKey(processedPrefix, rawKey string) string {
	return processedPrefix + strings.TrimSuffix(baseName(rawKey), ".csv") + "_manifest.json"
}

// ManifestKeyForProcessed recovers the manifest key from a processed key.
// Both live under the same prefix and share the raw object's base name.
func ManifestKeyForProcessed(processedKey string) string {
	return strings.TrimSuffix(processedKey, ".csv") + "_manifest.json"
}

// AnalysisKey derives the analyzed-artifact key for a processed object.
func AnalysisKey(analysisPrefix, processedKey string) string {
	return analysisPrefix + strings.TrimSuffix(baseName(processedKey), ".csv") + "_analysis.json"
}
