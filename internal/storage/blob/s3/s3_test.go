package s3blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/zanzhit/securecam/internal/domain/errs"
)

type fakeS3 struct {
	objects map[string][]byte
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestStorage(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{}}
	s := NewWithClient(fake, "videos")
	ctx := context.Background()

	if err := s.Write(ctx, "1/a.mp4", bytes.NewReader([]byte("abc")), 3); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if _, ok := fake.objects["videos/1/a.mp4"]; !ok {
		t.Fatalf("object not stored under bucket/key: %v", fake.objects)
	}

	rc, err := s.Open(ctx, "1/a.mp4")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "abc" {
		t.Errorf("Open() content = %q", data)
	}

	if err := s.Delete(ctx, "1/a.mp4"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	if _, err := s.Open(ctx, "1/a.mp4"); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("Open() after delete error = %v, want ErrNotFound", err)
	}
}
