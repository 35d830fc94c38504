package publish

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// S3Client defines the interface for S3 operations we need
type S3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Publisher uploads calendars as objects under a key prefix.
type S3Publisher struct {
	client S3Client
	bucket string
	prefix string
}

func NewS3Publisher(client S3Client, bucket, prefix string) *S3Publisher {
	return &S3Publisher{
		client: client,
		bucket: bucket,
		prefix: prefix,
	}
}

func (p *S3Publisher) Publish(ctx context.Context, name string, payload []byte, contentType string) (string, error) {
	if p.bucket == "" {
		return "", fmt.Errorf("empty bucket name")
	}
	if err := checkName(name); err != nil {
		return "", err
	}

	key := p.prefix + name
	_, err := p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:             aws.String(p.bucket),
		Key:                aws.String(key),
		Body:               bytes.NewReader(payload),
		ContentType:        aws.String(contentType),
		ContentDisposition: aws.String(fmt.Sprintf("attachment; filename=%q", name)),
	})
	if err != nil {
		return "", fmt.Errorf("saving to S3: %w", err)
	}

	location := fmt.Sprintf("s3://%s/%s", p.bucket, key)
	log.Debug().Str("location", location).Int("bytes", len(payload)).Msg("Saved calendar to S3")
	return location, nil
}

// NewS3Client builds a client from the default AWS configuration. A non-empty
// endpoint targets a local S3-compatible server with static test credentials.
func NewS3Client(ctx context.Context, endpoint string) (*s3.Client, error) {
	if endpoint != "" {
		log.Debug().Str("endpoint", endpoint).Msg("Using local S3 endpoint")
		cfg, err := config.LoadDefaultConfig(ctx,
			config.WithRegion("us-east-1"),
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("test", "test", "")),
			config.WithClientLogMode(aws.LogRetries),
		)
		if err != nil {
			return nil, fmt.Errorf("loading AWS config: %w", err)
		}
		return s3.NewFromConfig(cfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}), nil
	}

	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return s3.NewFromConfig(cfg), nil
}
