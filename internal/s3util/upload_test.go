package s3util

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type fakePut struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakePut) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	f.body, _ = io.ReadAll(params.Body)
	return &s3.PutObjectOutput{}, nil
}

type fakePresign struct {
	expires time.Duration
}

func (f *fakePresign) PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	opts := &s3.PresignOptions{}
	for _, fn := range optFns {
		fn(opts)
	}
	f.expires = opts.Expires
	return &v4.PresignedHTTPRequest{URL: "https://" + aws.ToString(params.Bucket) + ".s3.amazonaws.com/" + aws.ToString(params.Key)}, nil
}

func TestUploadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bundle.zip")
	if err := os.WriteFile(path, []byte("zip-bytes"), 0600); err != nil {
		t.Fatal(err)
	}

	fake := &fakePut{}
	n, err := UploadFile(context.Background(), fake, "archive", "bundles/s1/bundle.zip", path, "application/zip")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 9 {
		t.Errorf("expected 9 bytes, got %d", n)
	}
	if string(fake.body) != "zip-bytes" {
		t.Errorf("unexpected body %q", fake.body)
	}
	if aws.ToString(fake.input.Tagging) != "Project=speech-enhancer" {
		t.Errorf("expected project tag, got %q", aws.ToString(fake.input.Tagging))
	}
	if aws.ToString(fake.input.ContentType) != "application/zip" {
		t.Errorf("expected application/zip, got %q", aws.ToString(fake.input.ContentType))
	}
}

func TestUploadFileMissing(t *testing.T) {
	fake := &fakePut{}
	if _, err := UploadFile(context.Background(), fake, "b", "k", filepath.Join(t.TempDir(), "nope"), "x"); err == nil {
		t.Error("expected error for missing file")
	}
	if fake.input != nil {
		t.Error("expected no PutObject call")
	}
}

func TestUploadFilePutError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	os.WriteFile(path, []byte("x"), 0600)
	fake := &fakePut{err: errors.New("AccessDenied")}
	if _, err := UploadFile(context.Background(), fake, "b", "k", path, "x"); err == nil {
		t.Error("expected upload error")
	}
}

func TestGeneratePresignedURL(t *testing.T) {
	fake := &fakePresign{}
	url, err := GeneratePresignedURL(context.Background(), fake, "archive", "bundles/s1/bundle.zip", time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if url != "https://archive.s3.amazonaws.com/bundles/s1/bundle.zip" {
		t.Errorf("unexpected url %s", url)
	}
	if fake.expires != time.Hour {
		t.Errorf("expected 1h expiry, got %s", fake.expires)
	}
}
