package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/ragnarcb/chatclip/internal/pipelineerr"
)

// S3Config configures an S3-compatible backend, including non-AWS endpoints
// reachable with path-style addressing (MinIO, LocalStack, and similar).
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string // Optional: custom S3-compatible endpoint
	AccessKeyID     string // Optional: static credentials
	SecretAccessKey string
}

// S3Backend is the alternate object-store backend, used in place of the
// primary HTTP store when the deployment points voice-cloning storage at S3
// directly.
type S3Backend struct {
	client *s3.Client
	region string
}

var _ Backend = (*S3Backend)(nil)

// NewS3Backend builds an S3Backend from cfg.
func NewS3Backend(ctx context.Context, cfg S3Config) (*S3Backend, error) {
	var configOpts []func(*config.LoadOptions) error
	configOpts = append(configOpts, config.WithRegion(cfg.Region))

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		configOpts = append(configOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, configOpts...)
	if err != nil {
		return nil, fmt.Errorf("storage: load AWS config: %w", err)
	}

	var clientOpts []func(*s3.Options)
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	return &S3Backend{
		client: s3.NewFromConfig(awsCfg, clientOpts...),
		region: cfg.Region,
	}, nil
}

func (b *S3Backend) Upload(ctx context.Context, bucket, key string, data io.Reader) (string, error) {
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   data,
	})
	if err != nil {
		return "", pipelineerr.StorageUpload(fmt.Errorf("s3 put %s/%s: %w", bucket, key, err))
	}
	return fmt.Sprintf("%s/%s", bucket, key), nil
}

func (b *S3Backend) Download(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, pipelineerr.Protocol("object %s/%s not found", bucket, key)
		}
		return nil, fmt.Errorf("storage: s3 get %s/%s: %w", bucket, key, err)
	}
	return out.Body, nil
}

func (b *S3Backend) Delete(ctx context.Context, bucket, key string) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("storage: s3 delete %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (b *S3Backend) Info(ctx context.Context, bucket, key string) (Info, error) {
	out, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return Info{}, pipelineerr.Protocol("object %s/%s not found", bucket, key)
		}
		return Info{}, fmt.Errorf("storage: s3 head %s/%s: %w", bucket, key, err)
	}

	size := int64(0)
	if out.ContentLength != nil {
		size = *out.ContentLength
	}
	return Info{Bucket: bucket, Key: key, Size: size}, nil
}

// Health probes S3 reachability with a ListBuckets call; any error from that
// call, including an authorization rejection, is reported as a transport
// failure.
func (b *S3Backend) Health(ctx context.Context) error {
	_, err := b.client.ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return pipelineerr.Transport("s3", err)
	}
	return nil
}

func isNotFound(err error) bool {
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		return respErr.HTTPStatusCode() == 404
	}
	return false
}
