package s3

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"go.uber.org/zap"
)

type Option func(*Repository)

func WithRegion(region string) Option {
	return func(r *Repository) {
		r.Region = region
	}
}

func WithBucket(bucket string) Option {
	return func(r *Repository) {
		r.Bucket = bucket
	}
}

func WithPrefix(prefix string) Option {
	return func(r *Repository) {
		r.Prefix = prefix
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(r *Repository) {
		r.logger = l
	}
}

func WithForcePathStyle(forcePathStyle bool) Option {
	return func(r *Repository) {
		r.ForcePathStyle = forcePathStyle
	}
}

func WithEndpoint(endpoint string) Option {
	return func(r *Repository) {
		r.Endpoint = endpoint
	}
}

// Repository writes run records and exports to a bucket.
type Repository struct {
	logger   *zap.Logger
	session  *session.Session
	uploader *s3manager.Uploader

	Endpoint       string
	Region         string
	Bucket         string
	Prefix         string
	ForcePathStyle bool
}

func New(opts ...Option) (*Repository, error) {
	r := &Repository{
		logger: zap.NewNop(),
	}

	for _, o := range opts {
		o(r)
	}
	if r.Bucket == "" {
		return nil, fmt.Errorf("s3: bucket is required")
	}

	awsConfig := &aws.Config{
		Region:           aws.String(r.Region),
		S3ForcePathStyle: aws.Bool(r.ForcePathStyle),
	}

	if r.Endpoint != "" {
		awsConfig.Endpoint = aws.String(r.Endpoint)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, err
	}
	r.session = sess
	r.uploader = s3manager.NewUploader(sess)

	return r, nil
}

// OptionsFromURL reads s3://bucket/prefix?region=..&endpoint=..&force_path_style=true.
func OptionsFromURL(u *url.URL) ([]Option, error) {
	if u.Scheme != "s3" {
		return nil, fmt.Errorf("s3: unsupported scheme %q", u.Scheme)
	}
	q := u.Query()
	opts := []Option{
		WithBucket(u.Host),
		WithPrefix(strings.Trim(u.Path, "/")),
		WithRegion(q.Get("region")),
		WithEndpoint(q.Get("endpoint")),
	}
	if v := q.Get("force_path_style"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("s3: force_path_style: %w", err)
		}
		opts = append(opts, WithForcePathStyle(b))
	}
	return opts, nil
}

func (r *Repository) key(name string) string {
	return path.Join(r.Prefix, name)
}

func (r *Repository) Write(ctx context.Context, key string, reader io.Reader) error {
	objPath := r.key(key)

	r.logger.Debug(
		"S3 write",
		zap.String("key", key),
		zap.String("object_path", objPath),
		zap.String("bucket", r.Bucket),
	)

	_, err := r.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(r.Bucket),
		Key:    aws.String(objPath),
		Body:   bufio.NewReader(reader),
	})
	return err
}
