package parquet

import (
	"bytes"
	"context"
	"fmt"

	"github.com/turbolytics/docket/internal"
	"github.com/turbolytics/docket/internal/index"
	"github.com/xitongsys/parquet-go/writer"
	"go.uber.org/zap"
)

// ExportKey is where the inventory of a dataset is written.
func ExportKey(dataset int) string {
	return fmt.Sprintf("exports/dataset%d-references.parquet", dataset)
}

type Exporter struct {
	repo   internal.Repository
	logger *zap.Logger
}

func NewExporter(repo internal.Repository, logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{repo: repo, logger: logger}
}

// Export writes one row per indexed reference, ordered by number. sizes maps
// local filenames to their size; references without a non-empty local file
// are exported as not downloaded.
func (e *Exporter) Export(ctx context.Context, idx *index.Index, sizes map[string]int64) (string, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, idx, sizes); err != nil {
		return "", err
	}

	key := ExportKey(idx.Dataset)
	if err := e.repo.Write(ctx, key, &buf); err != nil {
		return "", err
	}

	e.logger.Info("Exported index",
		zap.Int("dataset", idx.Dataset),
		zap.Int("rows", idx.Len()),
		zap.String("key", key),
	)
	return key, nil
}

// Encode writes the parquet inventory of idx to buf.
func Encode(buf *bytes.Buffer, idx *index.Index, sizes map[string]int64) error {
	pw, err := writer.NewCSVWriterFromWriter(ReferenceSchema.ToGoParquetSchema(), buf, 1)
	if err != nil {
		return err
	}

	for _, ref := range idx.Sorted() {
		if err := pw.Write(referenceRow(idx.Dataset, ref, sizes[ref.Filename])); err != nil {
			return fmt.Errorf("write %s: %w", ref.ID, err)
		}
	}
	return pw.WriteStop()
}

func referenceRow(dataset int, ref internal.Reference, size int64) []interface{} {
	return []interface{}{
		int32(dataset),
		ref.ID,
		ref.Number,
		ref.URL,
		ref.Filename,
		size > 0,
		size,
	}
}
