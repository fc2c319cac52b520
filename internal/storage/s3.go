package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/sakif/media-backend/internal/apperror"
)

var _ Store = (*S3Store)(nil)

// objectAPI is the slice of *s3.Client that S3Store uses. Tests substitute a fake.
type objectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Config describes the bucket. Endpoint is only set for S3-compatible
// services (R2, MinIO); AccessKey/SecretKey fall back to the default AWS
// credential chain when empty.
type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	// PublicURL is the origin objects are served from, e.g. a CDN or the
	// bucket's public domain. Object URLs are PublicURL + "/" + key.
	PublicURL string
}

// S3Store keeps media in an S3-compatible bucket.
type S3Store struct {
	client    objectAPI
	bucket    string
	publicURL string
}

// NewS3Store builds an S3 client from cfg.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage: loading aws config: %w", err)
	}

	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	return newS3Store(client, cfg.Bucket, cfg.PublicURL), nil
}

func newS3Store(client objectAPI, bucket, publicURL string) *S3Store {
	return &S3Store{
		client:    client,
		bucket:    bucket,
		publicURL: strings.TrimRight(publicURL, "/"),
	}
}

func (s *S3Store) Save(ctx context.Context, folder string, f File) (string, error) {
	key := objectKey(folder, f.Name)

	in := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   f.Body,
	}
	if f.ContentType != "" {
		in.ContentType = aws.String(f.ContentType)
	}
	if f.Size > 0 {
		in.ContentLength = aws.Int64(f.Size)
	}

	if _, err := s.client.PutObject(ctx, in); err != nil {
		return "", fmt.Errorf("storage: putting %s in bucket %s: %w", key, s.bucket, err)
	}

	return s.publicURL + "/" + key, nil
}

func (s *S3Store) Owns(rawURL string) bool {
	return strings.HasPrefix(rawURL, s.publicURL+"/"+uploadsPrefix+"/")
}

// Delete maps a public URL back to its object key and removes the object.
func (s *S3Store) Delete(ctx context.Context, rawURL string) error {
	key, ok := strings.CutPrefix(rawURL, s.publicURL+"/")
	if !ok || !strings.HasPrefix(key, uploadsPrefix+"/") {
		return apperror.ValidationFailed("url", "media url does not belong to this bucket")
	}

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("storage: deleting %s from bucket %s: %w", key, s.bucket, err)
	}
	return nil
}
