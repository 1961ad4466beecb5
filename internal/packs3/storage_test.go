package packs3

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/fnpack/fnpack/internal/pack"
)

func TestStorage(t *testing.T) {
	t.Run("allocates buckets", func(t *testing.T) {
		if testing.Short() {
			t.Skip("skipping in short mode")
		}

		ctx := context.Background()
		storage, _ := NewTestStorage(t, ctx)

		result, err := storage.AllocateBuckets(ctx, &pack.StorageAllocateBucketsParams{
			Benchmark:   "110.dynamic-html",
			InputCount:  1,
			OutputCount: 2,
		})
		if err != nil {
			t.Fatalf("didn't want %q", err)
		}
		if got, want := result.InputBuckets, []string{"110.dynamic-html-0-input"}; !reflect.DeepEqual(got, want) {
			t.Fatalf("got %v, want %v", got, want)
		}
		wantOutput := []string{"110.dynamic-html-0-output", "110.dynamic-html-1-output"}
		if got, want := result.OutputBuckets, wantOutput; !reflect.DeepEqual(got, want) {
			t.Fatalf("got %v, want %v", got, want)
		}

		// Allocating again keeps the existing buckets.
		again, err := storage.AllocateBuckets(ctx, &pack.StorageAllocateBucketsParams{
			Benchmark:   "110.dynamic-html",
			InputCount:  1,
			OutputCount: 2,
		})
		if err != nil {
			t.Fatalf("didn't want %q", err)
		}
		if got, want := again.InputBuckets, result.InputBuckets; !reflect.DeepEqual(got, want) {
			t.Fatalf("got %v, want %v", got, want)
		}
	})

	t.Run("uploads a file", func(t *testing.T) {
		if testing.Short() {
			t.Skip("skipping in short mode")
		}

		ctx := context.Background()
		storage, connectionString := NewTestStorage(t, ctx)

		result, err := storage.AllocateBuckets(ctx, &pack.StorageAllocateBucketsParams{
			Benchmark:   "210.thumbnailer",
			InputCount:  1,
			OutputCount: 0,
		})
		if err != nil {
			t.Fatalf("didn't want %q", err)
		}

		file := filepath.Join(t.TempDir(), "apple.md")
		if err = os.WriteFile(file, []byte("apples"), 0o666); err != nil {
			t.Fatalf("didn't want %q", err)
		}

		bucket := result.InputBuckets[0]
		key := "data/apple.md"
		err = storage.Upload(ctx, &pack.StorageUploadParams{
			Bucket: bucket,
			Key:    key,
			File:   file,
		})
		if err != nil {
			t.Fatalf("didn't want %q", err)
		}

		client := NewClient(connectionString)
		head, err := client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: &bucket,
			Key:    &key,
		})
		if err != nil {
			t.Fatalf("didn't want %q", err)
		}
		if head.ContentLength == nil || *head.ContentLength != int64(len("apples")) {
			t.Fatalf("didn't want %v content length", head.ContentLength)
		}
	})
}

func NewTestStorage(tb testing.TB, ctx context.Context) (*Storage, string) {
	tb.Helper()

	username := "minioadmin"
	password := "minioadmin"

	req := testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "quay.io/minio/minio:latest",
			ExposedPorts: []string{"9000/tcp"},
			WaitingFor:   wait.ForHTTP("/minio/health/live").WithPort("9000"),
			Env: map[string]string{
				"MINIO_ROOT_USER":     username,
				"MINIO_ROOT_PASSWORD": password,
			},
			Cmd: []string{"server", "/data"},
		},
		Started: true,
	}

	c, err := testcontainers.GenericContainer(ctx, req)
	testcontainers.CleanupContainer(tb, c)
	if err != nil {
		tb.Fatalf("didn't want %q", err)
	}

	host, err := c.Host(ctx)
	if err != nil {
		tb.Fatalf("didn't want %q", err)
	}
	port, err := c.MappedPort(ctx, "9000/tcp")
	if err != nil {
		tb.Fatalf("didn't want %q", err)
	}
	connectionString := fmt.Sprintf("http://%s:%s@%s:%s", username, password, host, port.Port())

	return NewStorage(connectionString), connectionString
}
