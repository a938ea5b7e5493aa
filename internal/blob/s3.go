package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"meetingflow/internal/config"
	"meetingflow/internal/services"
)

// S3Store talks to AWS S3 or any S3-compatible endpoint (MinIO, Scaleway,
// OVH).
type S3Store struct {
	bucket  string
	client  *s3.Client
	presign *s3.PresignClient
}

var _ Store = (*S3Store)(nil)

// NewS3Store builds a client from cfg. Static credentials are used when an
// access key is configured; otherwise the default AWS credential chain
// applies.
func NewS3Store(ctx context.Context, cfg config.Blob) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, services.Wrap(services.ErrConfiguration, "blob", "open s3", "blob.bucket is required", nil)
	}
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "blob", "open s3", "load aws config", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return &S3Store{
		bucket:  cfg.Bucket,
		client:  client,
		presign: s3.NewPresignClient(client),
	}, nil
}

func (s *S3Store) Put(ctx context.Context, key, contentType string, data []byte) (Descriptor, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return Descriptor{}, fmt.Errorf("put %s: %w", key, err)
	}
	return Descriptor{Bucket: s.bucket, Key: key, ContentType: contentType, Size: int64(len(data))}, nil
}

func (s *S3Store) Get(ctx context.Context, key string) ([]byte, Descriptor, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var missing *types.NoSuchKey
		if errors.As(err, &missing) {
			return nil, Descriptor{}, services.Wrap(services.ErrNotFound, "blob", "get", key, err)
		}
		return nil, Descriptor{}, fmt.Errorf("get %s: %w", key, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, Descriptor{}, fmt.Errorf("read %s: %w", key, err)
	}
	return data, Descriptor{
		Bucket:      s.bucket,
		Key:         key,
		ContentType: aws.ToString(out.ContentType),
		Size:        int64(len(data)),
	}, nil
}

func (s *S3Store) List(ctx context.Context, prefix string) ([]Descriptor, error) {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	var out []Descriptor
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			out = append(out, Descriptor{
				Bucket: s.bucket,
				Key:    aws.ToString(obj.Key),
				Size:   aws.ToInt64(obj.Size),
			})
		}
	}
	return out, nil
}

func (s *S3Store) Presign(ctx context.Context, key string, ttl time.Duration) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return req.URL, nil
}
