// Package objectstore wraps the public bucket behind the three primitives
// asset migration needs: exists, copy and delete.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/ACMILabs/acmi-api/internal/config"
	"github.com/ACMILabs/acmi-api/internal/logger"
	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Interface is the narrow object store contract the migrator depends on.
type Interface interface {
	// Exists reports whether the object is present. A missing object is
	// not an error.
	Exists(ctx context.Context, bucket, key string) (bool, error)
	// Copy performs a server-side copy with public-read visibility.
	Copy(ctx context.Context, srcBucket, srcKey, destBucket, destKey string) error
	// Delete removes the object.
	Delete(ctx context.Context, bucket, key string) error
}

// Store implements Interface on an S3-compatible endpoint.
type Store struct {
	client *miniogo.Client
	log    logger.Interface
}

// New creates an object store client from configuration.
func New(cfg config.StorageConfig, log logger.Interface) (*Store, error) {
	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create object store client: %w", err)
	}
	return &Store{client: client, log: log}, nil
}

// Exists checks the destination bucket for the object.
func (s *Store) Exists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := s.client.StatObject(ctx, bucket, key, miniogo.StatObjectOptions{})
	if err != nil {
		var errRes miniogo.ErrorResponse
		if errors.As(err, &errRes) && errRes.StatusCode == http.StatusNotFound {
			return false, nil
		}
		return false, fmt.Errorf("stat %s/%s: %w", bucket, key, err)
	}
	return true, nil
}

// Copy copies the source object to the destination key and marks it
// public-read so the rewritten record links resolve without signing.
func (s *Store) Copy(ctx context.Context, srcBucket, srcKey, destBucket, destKey string) error {
	src := miniogo.CopySrcOptions{
		Bucket: srcBucket,
		Object: srcKey,
	}
	dest := miniogo.CopyDestOptions{
		Bucket:          destBucket,
		Object:          destKey,
		ReplaceMetadata: true,
		UserMetadata: map[string]string{
			"x-amz-acl": "public-read",
		},
	}

	if _, err := s.client.CopyObject(ctx, dest, src); err != nil {
		return fmt.Errorf("copy %s/%s to %s/%s: %w", srcBucket, srcKey, destBucket, destKey, err)
	}

	s.log.Info("Copied asset to public bucket",
		"source", srcBucket+"/"+srcKey,
		"destination", destBucket+"/"+destKey,
	)
	return nil
}

// Delete removes the object from the bucket.
func (s *Store) Delete(ctx context.Context, bucket, key string) error {
	if err := s.client.RemoveObject(ctx, bucket, key, miniogo.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete %s/%s: %w", bucket, key, err)
	}
	s.log.Info("Deleted asset from public bucket", "key", bucket+"/"+key)
	return nil
}
