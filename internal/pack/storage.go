package pack

import (
	"context"
	"errors"
)

// ErrFileTooLarge is returned by Storage.Upload when the file exceeds
// the storage's object size limit.
var ErrFileTooLarge = errors.New("file too large")

// Storage is the persistent object storage benchmarks read input from
// and write output to.
type Storage interface {
	AllocateBuckets(ctx context.Context, params *StorageAllocateBucketsParams) (*StorageAllocateBucketsResult, error)
	Upload(ctx context.Context, params *StorageUploadParams) error
}

type StorageAllocateBucketsParams struct {
	Benchmark   string
	InputCount  int
	OutputCount int
}

type StorageAllocateBucketsResult struct {
	InputBuckets  []string
	OutputBuckets []string
}

type StorageUploadParams struct {
	Bucket string
	Key    string
	// File is the path of the local file to upload.
	File string
}
