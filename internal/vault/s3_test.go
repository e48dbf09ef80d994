package vault

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type fakeObject struct {
	data     []byte
	metadata map[string]string
}

// fakeS3 is an in-memory bucket. Snapshots in tests stay under the
// uploader's part size, so multipart calls are never expected.
type fakeS3 struct {
	mu        sync.Mutex
	objects   map[string]fakeObject
	bucketErr error
	puts      []*s3.PutObjectInput
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string]fakeObject)}
}

var errMultipart = errors.New("fake s3: multipart upload not supported")

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = fakeObject{data: data, metadata: in.Metadata}
	f.puts = append(f.puts, in)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(obj.data)), Metadata: obj.metadata}, nil
}

func (f *fakeS3) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{Metadata: obj.metadata}, nil
}

func (f *fakeS3) HeadBucket(ctx context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	if f.bucketErr != nil {
		return nil, f.bucketErr
	}
	return &s3.HeadBucketOutput{}, nil
}

func (f *fakeS3) UploadPart(context.Context, *s3.UploadPartInput, ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	return nil, errMultipart
}

func (f *fakeS3) CreateMultipartUpload(context.Context, *s3.CreateMultipartUploadInput, ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	return nil, errMultipart
}

func (f *fakeS3) CompleteMultipartUpload(context.Context, *s3.CompleteMultipartUploadInput, ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	return nil, errMultipart
}

func (f *fakeS3) AbortMultipartUpload(context.Context, *s3.AbortMultipartUploadInput, ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	return nil, errMultipart
}

func TestS3Vault_ObjectLayout(t *testing.T) {
	fake := newFakeS3()
	v := newS3VaultWithClient("offsite", "backups", "sft/hosts", fake)

	if err := v.PutSnapshot("laptop", strings.NewReader("db"), 2, 9); err != nil {
		t.Fatalf("PutSnapshot() error = %v", err)
	}
	if len(fake.puts) != 1 {
		t.Fatalf("PutObject calls = %d, want 1", len(fake.puts))
	}
	in := fake.puts[0]
	if got := aws.ToString(in.Bucket); got != "backups" {
		t.Errorf("Bucket = %q, want backups", got)
	}
	if got := aws.ToString(in.Key); got != "sft/hosts/laptop.db" {
		t.Errorf("Key = %q, want sft/hosts/laptop.db", got)
	}
	if got := in.Metadata[versionMetaKey]; got != "9" {
		t.Errorf("version metadata = %q, want 9", got)
	}
}

func TestS3Vault_NoPrefix(t *testing.T) {
	v := newS3VaultWithClient("offsite", "backups", "", newFakeS3())
	if got := v.key("laptop"); got != "laptop.db" {
		t.Errorf("key() = %q, want laptop.db", got)
	}
}

func TestS3Vault_ObjectWithoutVersion(t *testing.T) {
	fake := newFakeS3()
	fake.objects["laptop.db"] = fakeObject{data: []byte("x")}
	v := newS3VaultWithClient("offsite", "backups", "", fake)

	got, err := v.SnapshotVersion("laptop")
	if err != nil {
		t.Fatalf("SnapshotVersion() error = %v", err)
	}
	if got != 0 {
		t.Errorf("SnapshotVersion() = %d, want 0", got)
	}
}

func TestS3Vault_ValidateSetup(t *testing.T) {
	fake := newFakeS3()
	fake.bucketErr = errors.New("403 Forbidden")
	v := newS3VaultWithClient("offsite", "backups", "", fake)

	if err := v.ValidateSetup(); err == nil {
		t.Error("ValidateSetup() error = nil for inaccessible bucket")
	}
}
