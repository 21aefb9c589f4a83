package minio

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"time"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/ysrdora/nextframe/internal/domain/port"
)

const defaultURLExpiry = 24 * time.Hour

// ErrVideoNotFound is returned by FetchVideo when the source key does not exist.
var ErrVideoNotFound = errors.New("video not found")

// Storage reads uploaded videos from one bucket and writes capture exports
// to another.
type Storage struct {
	client    *miniogo.Client
	uploads   string
	exports   string
	urlExpiry time.Duration
}

type StorageConfig struct {
	Endpoint     string
	AccessKey    string
	SecretKey    string
	UseSSL       bool
	UploadBucket string
	ExportBucket string
	// URLExpiry is the lifetime of presigned export links.
	URLExpiry time.Duration
}

func NewStorage(cfg StorageConfig) (*Storage, error) {
	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	if cfg.URLExpiry <= 0 {
		cfg.URLExpiry = defaultURLExpiry
	}
	return &Storage{
		client:    client,
		uploads:   cfg.UploadBucket,
		exports:   cfg.ExportBucket,
		urlExpiry: cfg.URLExpiry,
	}, nil
}

// EnsureBuckets creates the upload and export buckets when missing.
func (s *Storage) EnsureBuckets(ctx context.Context) error {
	for _, bucket := range []string{s.uploads, s.exports} {
		err := s.client.MakeBucket(ctx, bucket, miniogo.MakeBucketOptions{})
		if err == nil {
			continue
		}
		exists, existsErr := s.client.BucketExists(ctx, bucket)
		if existsErr != nil || !exists {
			return fmt.Errorf("make bucket %s: %w", bucket, err)
		}
	}
	return nil
}

// FetchVideo copies an uploaded video to destPath.
func (s *Storage) FetchVideo(ctx context.Context, key, destPath string) error {
	if _, err := s.client.StatObject(ctx, s.uploads, key, miniogo.StatObjectOptions{}); err != nil {
		if miniogo.ToErrorResponse(err).Code == "NoSuchKey" {
			return fmt.Errorf("%w: %s", ErrVideoNotFound, key)
		}
		return fmt.Errorf("stat video %s: %w", key, err)
	}
	if err := s.client.FGetObject(ctx, s.uploads, key, destPath, miniogo.GetObjectOptions{}); err != nil {
		return fmt.Errorf("fetch video %s: %w", key, err)
	}
	return nil
}

// PutExport stores an export as a download attachment tagged with its job.
func (s *Storage) PutExport(ctx context.Context, obj port.ExportObject) error {
	opts := miniogo.PutObjectOptions{
		ContentType:        obj.ContentType,
		ContentDisposition: fmt.Sprintf("attachment; filename=%q", path.Base(obj.Key)),
	}
	if obj.JobID != "" {
		opts.UserMetadata = map[string]string{"job-id": obj.JobID}
	}
	if _, err := s.client.PutObject(ctx, s.exports, obj.Key, obj.Body, obj.Size, opts); err != nil {
		return fmt.Errorf("put export %s: %w", obj.Key, err)
	}
	return nil
}

func (s *Storage) ExportURL(ctx context.Context, key string) (string, error) {
	params := url.Values{}
	params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", path.Base(key)))
	u, err := s.client.PresignedGetObject(ctx, s.exports, key, s.urlExpiry, params)
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return u.String(), nil
}
