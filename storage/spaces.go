package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	appconfig "github.com/nijaru/autoclip/config"
)

// SpacesClient mirrors generated clips to an S3-compatible bucket.
type SpacesClient struct {
	client    *s3.Client
	bucket    string
	prefix    string
	publicURL string
}

func NewSpacesClient(ctx context.Context, cfg appconfig.SpacesConfig) (*SpacesClient, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %v", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = true
	})

	publicURL := strings.TrimRight(cfg.PublicURL, "/")
	if publicURL == "" {
		publicURL = strings.TrimRight(cfg.Endpoint, "/") + "/" + cfg.Bucket
	}

	return &SpacesClient{
		client:    client,
		bucket:    cfg.Bucket,
		prefix:    strings.Trim(cfg.Prefix, "/"),
		publicURL: publicURL,
	}, nil
}

func (s *SpacesClient) key(jobID, filename string) string {
	return path.Join(s.prefix, jobID, filename)
}

// UploadClip stores the clip at <prefix>/<jobID>/<file> and returns its
// public URL.
func (s *SpacesClient) UploadClip(ctx context.Context, jobID, clipPath string) (string, error) {
	f, err := os.Open(clipPath)
	if err != nil {
		return "", fmt.Errorf("failed to open clip: %v", err)
	}
	defer f.Close()

	key := s.key(jobID, filepath.Base(clipPath))
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String("video/mp4"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to save to Spaces: %v", err)
	}

	return s.publicURL + "/" + key, nil
}
