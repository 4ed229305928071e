package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	awss3 "github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/turbolytics/docket/internal/index"
	"go.uber.org/zap"
)

var _ index.Store = (*IndexStore)(nil)

// IndexStore keeps one index object per dataset. A single PUT replaces an
// object atomically, so readers never observe a partial index.
type IndexStore struct {
	api    s3iface.S3API
	bucket string
	prefix string
	logger *zap.Logger
	now    func() time.Time
}

func NewIndexStore(r *Repository) *IndexStore {
	return newIndexStore(awss3.New(r.session), r.Bucket, r.Prefix, r.logger)
}

func newIndexStore(api s3iface.S3API, bucket, prefix string, logger *zap.Logger) *IndexStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IndexStore{
		api:    api,
		bucket: bucket,
		prefix: prefix,
		logger: logger,
		now:    time.Now,
	}
}

func (s *IndexStore) key(dataset int) string {
	r := Repository{Prefix: s.prefix}
	return r.key(index.Filename(dataset))
}

func (s *IndexStore) Load(ctx context.Context, dataset int) (*index.Index, error) {
	out, err := s.api.GetObjectWithContext(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(dataset)),
	})
	if isNotFound(err) {
		s.logger.Info("No index found", zap.Int("dataset", dataset), zap.String("key", s.key(dataset)))
		return index.New(dataset), nil
	}
	if err != nil {
		return nil, err
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, err
	}
	idx, err := index.Decode(data, dataset)
	if err != nil {
		return nil, fmt.Errorf("decode s3://%s/%s: %w", s.bucket, s.key(dataset), err)
	}
	return idx, nil
}

func (s *IndexStore) Save(ctx context.Context, idx *index.Index) error {
	record := *idx
	record.UpdatedAt = s.now().UTC()

	data, err := json.Marshal(&record)
	if err != nil {
		return err
	}

	_, err = s.api.PutObjectWithContext(ctx, &awss3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(idx.Dataset)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return err
	}
	idx.UpdatedAt = record.UpdatedAt
	return nil
}

func isNotFound(err error) bool {
	var aerr awserr.Error
	if !errors.As(err, &aerr) {
		return false
	}
	switch aerr.Code() {
	case awss3.ErrCodeNoSuchKey, "NotFound":
		return true
	}
	return false
}
