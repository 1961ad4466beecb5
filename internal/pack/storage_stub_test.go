package pack

import (
	"context"
	"fmt"
)

var _ Storage = (*StubStorage)(nil)

// StubStorage implements Storage in memory and records its calls.
type StubStorage struct {
	AllocateCalls []StorageAllocateBucketsParams
	UploadCalls   []StorageUploadParams
}

func NewStubStorage() *StubStorage {
	return &StubStorage{}
}

func (s *StubStorage) AllocateBuckets(_ context.Context, params *StorageAllocateBucketsParams) (*StorageAllocateBucketsResult, error) {
	s.AllocateCalls = append(s.AllocateCalls, *params)

	result := &StorageAllocateBucketsResult{}
	for i := 0; i < params.InputCount; i++ {
		result.InputBuckets = append(result.InputBuckets, fmt.Sprintf("%s-%d-input", params.Benchmark, i))
	}
	for i := 0; i < params.OutputCount; i++ {
		result.OutputBuckets = append(result.OutputBuckets, fmt.Sprintf("%s-%d-output", params.Benchmark, i))
	}
	return result, nil
}

func (s *StubStorage) Upload(_ context.Context, params *StorageUploadParams) error {
	s.UploadCalls = append(s.UploadCalls, *params)
	return nil
}
