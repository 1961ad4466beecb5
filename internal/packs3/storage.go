package packs3

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"slices"
	"time"

	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	transport "github.com/aws/smithy-go/endpoints"
	"golang.org/x/sync/errgroup"

	"github.com/fnpack/fnpack/internal/pack"
)

var _ pack.Storage = (*Storage)(nil)

// endpointResolver implements s3.EndpointResolverV2.
// It resolves endpoints for S3-compatible object storage like MinIO.
type endpointResolver struct {
	BaseURL *url.URL // required
}

func (r *endpointResolver) ResolveEndpoint(_ context.Context, params s3.EndpointParameters) (transport.Endpoint, error) {
	u := *r.BaseURL
	u.Path += "/" + *params.Bucket
	return transport.Endpoint{URI: u}, nil
}

// NewClient creates a new s3.Client using the provided connection string.
// The connection string must be a valid URL in the format: http://key:secret@s3:9000.
// For MinIO, the key and secret are the username and password respectively.
// It panics if the connection string is not a valid URL.
func NewClient(connectionString string) *s3.Client {
	u, err := url.Parse(connectionString)
	if err != nil {
		panic(err)
	}

	username := u.User.Username()
	password, _ := u.User.Password()
	u.User = nil

	client := s3.New(
		s3.Options{
			Credentials:        credentials.NewStaticCredentialsProvider(username, password, ""),
			EndpointResolverV2: &endpointResolver{BaseURL: u},
		},
	)
	return client
}

// Storage is an S3-backed pack.Storage.
type Storage struct {
	client *s3.Client

	// uploadPartSize should be greater than or equal 5MB.
	// See github.com/aws/aws-sdk-go-v2/feature/s3/manager.
	uploadPartSize int
}

// NewStorage creates a new Storage using the provided connection string.
// It panics if the connection string is not a valid URL.
func NewStorage(connectionString string) *Storage {
	return &Storage{
		client:         NewClient(connectionString),
		uploadPartSize: 10 * 1024 * 1024, // 10MB
	}
}

// AllocateBuckets creates the benchmark's input and output buckets.
// Buckets that already exist are kept as is.
func (s *Storage) AllocateBuckets(ctx context.Context, params *pack.StorageAllocateBucketsParams) (*pack.StorageAllocateBucketsResult, error) {
	inputBuckets := make([]string, params.InputCount)
	for i := range inputBuckets {
		inputBuckets[i] = fmt.Sprintf("%s-%d-input", params.Benchmark, i)
	}
	outputBuckets := make([]string, params.OutputCount)
	for i := range outputBuckets {
		outputBuckets[i] = fmt.Sprintf("%s-%d-output", params.Benchmark, i)
	}

	g, groupCtx := errgroup.WithContext(ctx)
	for _, bucket := range slices.Concat(inputBuckets, outputBuckets) {
		g.Go(func() error {
			return s.createBucket(groupCtx, bucket)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("packs3.Storage: %w", err)
	}

	return &pack.StorageAllocateBucketsResult{
		InputBuckets:  inputBuckets,
		OutputBuckets: outputBuckets,
	}, nil
}

func (s *Storage) createBucket(ctx context.Context, name string) error {
	_, err := s.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: &name,
	})
	if ownedErr := (*types.BucketAlreadyOwnedByYou)(nil); errors.As(err, &ownedErr) {
		// continue
	} else if err != nil {
		return fmt.Errorf("create bucket %q: %w", name, err)
	}

	err = s3.NewBucketExistsWaiter(s.client).Wait(
		ctx,
		&s3.HeadBucketInput{Bucket: &name},
		time.Minute,
	)
	if err != nil {
		return fmt.Errorf("create bucket %q: %w", name, err)
	}

	return nil
}

// Upload uploads the local file from params.File to the bucket
// under the given key.
func (s *Storage) Upload(ctx context.Context, params *pack.StorageUploadParams) error {
	f, err := os.Open(params.File)
	if err != nil {
		return fmt.Errorf("packs3.Storage: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	uploader := manager.NewUploader(s.client, func(u *manager.Uploader) {
		u.PartSize = int64(s.uploadPartSize)
	})

	_, err = uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: &params.Bucket,
		Key:    &params.Key,
		Body:   f,
	})
	if err != nil {
		if apiErr := smithy.APIError(nil); errors.As(err, &apiErr) && apiErr.ErrorCode() == "EntityTooLarge" {
			err = errors.Join(pack.ErrFileTooLarge, err)
		}
		return fmt.Errorf("packs3.Storage: %w", err)
	}

	err = s3.NewObjectExistsWaiter(s.client).Wait(ctx, &s3.HeadObjectInput{
		Bucket: &params.Bucket,
		Key:    &params.Key,
	}, time.Minute)
	if err != nil {
		return fmt.Errorf("packs3.Storage: %w", err)
	}

	return nil
}
