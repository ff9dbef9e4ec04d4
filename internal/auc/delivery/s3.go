package delivery

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config selects the bucket acting as the downstream inbox.
type S3Config struct {
	Bucket       string
	Prefix       string
	Region       string
	Endpoint     string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
}

// S3 delivers batches as objects in an S3-compatible bucket.
type S3 struct {
	client *s3.Client
	bucket string
	prefix string
	namer  Namer
	logger *slog.Logger
}

// NewS3 builds an S3 channel from cfg using the default credential chain
// unless static keys are configured.
func NewS3(ctx context.Context, cfg S3Config, namer Namer, logger *slog.Logger) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewS3WithClient(client, cfg.Bucket, cfg.Prefix, namer, logger), nil
}

// NewS3WithClient wraps an existing client.
func NewS3WithClient(client *s3.Client, bucket, prefix string, namer Namer, logger *slog.Logger) *S3 {
	return &S3{client: client, bucket: bucket, prefix: prefix, namer: namer, logger: logger}
}

// Deliver implements Channel.
func (c *S3) Deliver(ctx context.Context, payload []byte) (string, error) {
	name := c.namer.Name()
	key := name
	if c.prefix != "" {
		key = path.Join(c.prefix, name)
	}
	_, err := c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/xml"),
	})
	if err != nil {
		return "", deliveryError("put "+key, err)
	}
	c.logger.InfoContext(ctx, "batch delivered",
		"channel", "s3",
		"bucket", c.bucket,
		"filename", name,
		"bytes", len(payload),
	)
	return name, nil
}
