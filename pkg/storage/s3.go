// Package storage handles the S3 side of the presigned upload workflow:
// PUT URLs for browser uploads, GET URLs for the transcription provider to
// fetch files, and object verification after upload.
//
// File keys are tenant-scoped (tenant/{tenant_id}/uploads/{job_id}/{filename})
// and the bucket has no public access; every read and write goes through a
// presigned URL.
package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"

	"github.com/eq-labs/interactions-gateway/pkg/config"
)

// Default URL lifetimes. PUT URLs are short-lived; GET URLs must survive
// until the transcription provider fetches the object.
const (
	DefaultPutURLTTL = 5 * time.Minute
	DefaultGetURLTTL = time.Hour
)

// maxFilenameLength caps sanitized filenames inside object keys.
const maxFilenameLength = 100

type headObjectAPI interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

type presignAPI interface {
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Store provides presigned-URL generation and object checks against the
// upload bucket.
type Store struct {
	head    headObjectAPI
	presign presignAPI
	bucket  string
	putTTL  time.Duration
}

// NewFromClients wires explicit clients. Used by tests.
func NewFromClients(head headObjectAPI, presign presignAPI, bucket string, putTTL time.Duration) *Store {
	return &Store{head: head, presign: presign, bucket: bucket, putTTL: putTTL}
}

// New creates a Store using the ambient AWS credential chain.
func New(ctx context.Context, cfg config.UploadConfig) (*Store, error) {
	if cfg.BucketName == "" {
		return nil, fmt.Errorf("storage: bucket name is required")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("storage: load AWS config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg)
	putTTL := cfg.URLTTL
	if putTTL <= 0 {
		putTTL = DefaultPutURLTTL
	}
	slog.Info("S3 store initialized", "bucket", cfg.BucketName, "region", cfg.Region)
	return &Store{
		head:    client,
		presign: s3.NewPresignClient(client),
		bucket:  cfg.BucketName,
		putTTL:  putTTL,
	}, nil
}

// FileKey builds the tenant-scoped object key for an upload. The filename is
// sanitized: path separators replaced, length capped with the extension kept.
func FileKey(tenantID, jobID uuid.UUID, filename string) string {
	safe := strings.ReplaceAll(filename, "/", "_")
	safe = strings.ReplaceAll(safe, "\\", "_")
	if len(safe) > maxFilenameLength {
		if dot := strings.LastIndex(safe, "."); dot > 0 {
			name, ext := safe[:dot], safe[dot+1:]
			if len(name) > 90 {
				name = name[:90]
			}
			safe = name + "." + ext
		} else {
			safe = safe[:maxFilenameLength]
		}
	}
	return fmt.Sprintf("tenant/%s/uploads/%s/%s", tenantID, jobID, safe)
}

// TenantFromKey extracts the tenant ID segment from a file key, or "" when
// the key does not match the expected layout.
func TenantFromKey(fileKey string) string {
	parts := strings.Split(fileKey, "/")
	if len(parts) >= 2 && parts[0] == "tenant" {
		return parts[1]
	}
	return ""
}

// KeyBelongsToTenant reports whether a file key sits under the tenant's
// prefix. Guards against cross-tenant access on job completion.
func KeyBelongsToTenant(fileKey string, tenantID uuid.UUID) bool {
	return strings.HasPrefix(fileKey, fmt.Sprintf("tenant/%s/", tenantID))
}

// PresignPut generates a presigned PUT URL for a browser upload. The URL is
// bound to the given content type; the browser must send it unchanged.
func (s *Store) PresignPut(ctx context.Context, fileKey, contentType string) (string, time.Time, error) {
	req, err := s.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &fileKey,
		ContentType: &contentType,
	}, s3.WithPresignExpires(s.putTTL))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("storage: presign PUT: %w", err)
	}
	return req.URL, time.Now().UTC().Add(s.putTTL), nil
}

// PresignGet generates a presigned GET URL long-lived enough for the
// transcription provider to fetch the object.
func (s *Store) PresignGet(ctx context.Context, fileKey string) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &fileKey,
	}, s3.WithPresignExpires(DefaultGetURLTTL))
	if err != nil {
		return "", fmt.Errorf("storage: presign GET: %w", err)
	}
	return req.URL, nil
}

// ObjectExists verifies an object landed in the bucket after a browser
// upload.
func (s *Store) ObjectExists(ctx context.Context, fileKey string) (bool, error) {
	_, err := s.head.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: &s.bucket,
		Key:    &fileKey,
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("storage: head object: %w", err)
	}
	return true, nil
}
