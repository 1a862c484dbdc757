// Package blobstore stores receipt images and other binary attachments.
// It backs onto S3-compatible object storage when configured, falling back
// to local disk for single-user/offline installs.
package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gabriel-vasile/mimetype"

	"github.com/honecore/core/internal/config"
	"github.com/honecore/core/internal/honeerr"
)

// Store persists and retrieves blobs by content-addressed reference.
type Store interface {
	// Put stores data and returns a storage reference, content hash, and
	// detected MIME type.
	Put(ctx context.Context, data []byte) (ref, contentHash, mimeType string, err error)
	Get(ctx context.Context, ref string) ([]byte, error)
}

// New returns an S3-backed Store when cfg.StorageEnabled, otherwise a
// local-disk Store rooted at localDir.
func New(ctx context.Context, cfg *config.Config, localDir string) (Store, error) {
	if !cfg.StorageEnabled {
		return newDiskStore(localDir)
	}
	return newS3Store(ctx, cfg)
}

func contentRef(data []byte) (hash, ref string) {
	sum := sha256.Sum256(data)
	hash = "sha256:" + hex.EncodeToString(sum[:])
	// Two-level fan-out keeps any single directory from accumulating
	// millions of entries as receipts accumulate.
	h := hex.EncodeToString(sum[:])
	ref = fmt.Sprintf("receipts/%s/%s/%s", h[0:2], h[2:4], h)
	return hash, ref
}

func detectMimeType(data []byte) string {
	return mimetype.Detect(data).String()
}

// diskStore is the local-disk fallback for single-user installs without
// object storage configured.
type diskStore struct {
	root string
}

func newDiskStore(root string) (*diskStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, honeerr.Fatal("blobstore.newDiskStore", fmt.Errorf("create blob root %q: %w", root, err))
	}
	return &diskStore{root: root}, nil
}

func (d *diskStore) Put(ctx context.Context, data []byte) (string, string, string, error) {
	hash, ref := contentRef(data)
	path := filepath.Join(d.root, filepath.FromSlash(ref))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", "", "", honeerr.Transient("blobstore.Put", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", "", "", honeerr.Transient("blobstore.Put", err)
	}
	return ref, hash, detectMimeType(data), nil
}

func (d *diskStore) Get(ctx context.Context, ref string) ([]byte, error) {
	path := filepath.Join(d.root, filepath.FromSlash(ref))
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, honeerr.NotFound("blobstore.Get", fmt.Errorf("blob %q not found", ref))
		}
		return nil, honeerr.Transient("blobstore.Get", err)
	}
	return data, nil
}

// s3Store stores blobs in an S3-compatible bucket (AWS S3, R2, MinIO, etc,
// selected via AWS_ENDPOINT_URL_S3 / HONE_STORAGE_BUCKET).
type s3Store struct {
	client *s3.Client
	bucket string
}

func newS3Store(ctx context.Context, cfg *config.Config) (*s3Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.StorageRegion),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.StorageAccessKey, cfg.StorageSecretKey, "",
		)),
	)
	if err != nil {
		return nil, honeerr.Fatal("blobstore.newS3Store", fmt.Errorf("load AWS config: %w", err))
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.StorageEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.StorageEndpoint)
		}
		o.UsePathStyle = true
	})

	return &s3Store{client: client, bucket: cfg.StorageBucket}, nil
}

func (s *s3Store) Put(ctx context.Context, data []byte) (string, string, string, error) {
	hash, ref := contentRef(data)
	contentType := detectMimeType(data)

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(ref),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", "", "", honeerr.Transport("blobstore.Put", err)
	}
	return ref, hash, contentType, nil
}

func (s *s3Store) Get(ctx context.Context, ref string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(ref),
	})
	if err != nil {
		var apiErr interface{ ErrorCode() string }
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NoSuchKey" {
			return nil, honeerr.NotFound("blobstore.Get", fmt.Errorf("blob %q not found", ref))
		}
		return nil, honeerr.Transport("blobstore.Get", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, honeerr.Transport("blobstore.Get", err)
	}
	return data, nil
}
