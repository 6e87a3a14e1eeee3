package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"github.com/mjm/serverless-blog/internal/config"
)

// Publisher writes rendered artifacts to a tenant's bucket. Writes always
// overwrite and objects are always publicly readable.
type Publisher interface {
	Put(ctx context.Context, bucket, key string, body []byte, contentType string) error
}

// TemplateLoader fetches a tenant's template sources from blob storage.
type TemplateLoader interface {
	LoadTemplates(ctx context.Context, bucket string) (map[string]string, error)
}

// Client talks to S3-compatible object storage. The bucket for every
// operation is the tenant id.
type Client struct {
	s3             *s3.Client
	templatePrefix string
	logger         *zap.Logger
}

func NewClient(ctx context.Context, cfg config.BlobConfig, templatePrefix string, logger *zap.Logger) (*Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})

	return &Client{
		s3:             client,
		templatePrefix: templatePrefix,
		logger:         logger.With(zap.String("component", "blob")),
	}, nil
}

func (c *Client) Put(ctx context.Context, bucket, key string, body []byte, contentType string) error {
	_, err := c.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
		ACL:         types.ObjectCannedACLPublicRead,
	})
	if err != nil {
		return fmt.Errorf("failed to put %s/%s: %w", bucket, key, err)
	}

	c.logger.Debug("Published object",
		zap.String("bucket", bucket),
		zap.String("key", key),
		zap.Int("size", len(body)))
	return nil
}

// LoadTemplates fetches every object under the template prefix, keyed by
// name relative to the prefix.
func (c *Client) LoadTemplates(ctx context.Context, bucket string) (map[string]string, error) {
	templates := make(map[string]string)

	paginator := s3.NewListObjectsV2Paginator(c.s3, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(c.templatePrefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list templates for %s: %w", bucket, err)
		}

		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			name := strings.TrimPrefix(key, c.templatePrefix)
			if name == "" {
				continue
			}

			src, err := c.getObject(ctx, bucket, key)
			if err != nil {
				return nil, err
			}
			templates[name] = src
		}
	}

	if len(templates) == 0 {
		return nil, fmt.Errorf("no templates found for %s under %s", bucket, c.templatePrefix)
	}

	return templates, nil
}

func (c *Client) getObject(ctx context.Context, bucket, key string) (string, error) {
	out, err := c.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", fmt.Errorf("failed to get %s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read %s/%s: %w", bucket, key, err)
	}
	return string(data), nil
}
