package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/cryptoperf/pkg/config"
)

// ErrDisabled is returned when publishing is not configured.
var ErrDisabled = errors.New("publishing to s3 is disabled")

const defaultPrefix = "cryptoperf"

// s3Uploader implements Uploader for S3-compatible storage.
type s3Uploader struct {
	log    logrus.FieldLogger
	cfg    *config.S3Config
	client *s3.Client
	now    func() time.Time
}

// Ensure interface compliance.
var _ Uploader = (*s3Uploader)(nil)

// NewS3Uploader creates an uploader from cfg. It fails with ErrDisabled
// when cfg is not enabled.
func NewS3Uploader(
	log logrus.FieldLogger,
	cfg *config.S3Config,
) (Uploader, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, ErrDisabled
	}

	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	opts := []func(*s3.Options){
		func(o *s3.Options) {
			if cfg.Region != "" {
				o.Region = cfg.Region
			} else {
				o.Region = "us-east-1"
			}

			if cfg.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.EndpointURL)
			}

			if cfg.ForcePathStyle {
				o.UsePathStyle = true
			}

			if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
				o.Credentials = credentials.NewStaticCredentialsProvider(
					cfg.AccessKeyID, cfg.SecretAccessKey, "",
				)
			}
		},
	}

	return &s3Uploader{
		log:    log.WithField("component", "s3-uploader"),
		cfg:    cfg,
		client: s3.New(s3.Options{}, opts...),
		now:    time.Now,
	}, nil
}

// Preflight verifies S3 connectivity by writing a small test object.
func (u *s3Uploader) Preflight(ctx context.Context) error {
	content := fmt.Sprintf("cryptoperf write test: %s", u.now().UTC().Format(time.RFC3339))

	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.cfg.Bucket),
		Key:         aws.String(u.resolveKey("", ".write-test")),
		Body:        strings.NewReader(content),
		ContentType: aws.String("text/plain"),
	})
	if err != nil {
		return fmt.Errorf("writing test object to s3://%s: %w", u.cfg.Bucket, err)
	}

	return nil
}

// Upload stores data under the configured prefix.
func (u *s3Uploader) Upload(
	ctx context.Context, kind, name string, data []byte,
) (string, error) {
	if name == "" {
		return "", fmt.Errorf("object name is required")
	}

	key := u.resolveKey(kind, name)

	input := &s3.PutObjectInput{
		Bucket:        aws.String(u.cfg.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(detectContentType(name)),
	}

	if u.cfg.StorageClass != "" {
		input.StorageClass = s3types.StorageClass(u.cfg.StorageClass)
	}

	if _, err := u.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("PutObject %s: %w", key, err)
	}

	u.log.WithFields(logrus.Fields{
		"key":    key,
		"bucket": u.cfg.Bucket,
		"bytes":  len(data),
	}).Info("Upload completed")

	return key, nil
}

// resolveKey builds the object key for kind and name.
func (u *s3Uploader) resolveKey(kind, name string) string {
	prefix := strings.Trim(u.cfg.Prefix, "/")
	if prefix == "" {
		prefix = defaultPrefix
	}

	return path.Join(prefix, kind, strings.TrimLeft(name, "/"))
}

// detectContentType returns a MIME type based on file extension.
func detectContentType(name string) string {
	switch ext := path.Ext(name); ext {
	case "":
		return "application/octet-stream"
	case ".md":
		return "text/markdown; charset=utf-8"
	case ".yaml", ".yml":
		return "application/yaml"
	default:
		if ct := mime.TypeByExtension(ext); ct != "" {
			return ct
		}

		return "application/octet-stream"
	}
}
