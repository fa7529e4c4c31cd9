package media

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type S3Config struct {
	Bucket       string
	Region       string
	Endpoint     string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
	// PublicURL is the base under which uploaded objects are served.
	PublicURL string
	Folder    string
}

type objectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3 stores images as objects named folder/<uuid>. The public id is the
// object key.
type S3 struct {
	client objectAPI
	cfg    S3Config
	newID  func() string
	logger *logrus.Logger
}

func NewS3(ctx context.Context, cfg S3Config, logger *logrus.Logger) (*S3, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return newS3WithClient(client, cfg, logger), nil
}

func newS3WithClient(client objectAPI, cfg S3Config, logger *logrus.Logger) *S3 {
	cfg.PublicURL = strings.TrimRight(cfg.PublicURL, "/")
	return &S3{
		client: client,
		cfg:    cfg,
		newID:  func() string { return uuid.New().String() },
		logger: logger,
	}
}

func (s *S3) Upload(ctx context.Context, body io.Reader, filename, contentType string) (*UploadResult, error) {
	key := path.Join(s.cfg.Folder, s.newID())

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
		Metadata: map[string]string{
			"original-filename": filename,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload to s3: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"bucket": s.cfg.Bucket,
		"key":    key,
	}).Info("Image uploaded to S3")
	return &UploadResult{URL: s.cfg.PublicURL + "/" + key, PublicID: key}, nil
}

func (s *S3) Delete(ctx context.Context, publicID string) (*DeleteResult, error) {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(publicID),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to delete from s3: %w", err)
	}
	return &DeleteResult{Result: "ok"}, nil
}
