package writer

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	"storeprice/models"
	"storeprice/processor"
	"storeprice/reader"
)

// memoryFileWriter implements ParquetFile for in-memory writing.
type memoryFileWriter struct {
	buffer *bytes.Buffer
}

func newMemoryFileWriter() *memoryFileWriter {
	return &memoryFileWriter{buffer: &bytes.Buffer{}}
}

func (mfw *memoryFileWriter) Create(string) (source.ParquetFile, error) { return mfw, nil }
func (mfw *memoryFileWriter) Open(string) (source.ParquetFile, error)   { return mfw, nil }

// Seek reports the write offset; the writer only appends.
func (mfw *memoryFileWriter) Seek(int64, int) (int64, error) { return int64(mfw.buffer.Len()), nil }

func (mfw *memoryFileWriter) Read(b []byte) (int, error)  { return mfw.buffer.Read(b) }
func (mfw *memoryFileWriter) Write(b []byte) (int, error) { return mfw.buffer.Write(b) }
func (mfw *memoryFileWriter) Close() error                { return nil }
func (mfw *memoryFileWriter) Bytes() []byte               { return mfw.buffer.Bytes() }

// Codec maps a compression name to a parquet codec. Unknown names mean
// uncompressed.
func Codec(name string) parquet.CompressionCodec {
	switch strings.ToLower(name) {
	case "snappy":
		return parquet.CompressionCodec_SNAPPY
	case "gzip":
		return parquet.CompressionCodec_GZIP
	default:
		return parquet.CompressionCodec_UNCOMPRESSED
	}
}

// EncodeParquet writes rows as a parquet row file. Rows that would be
// skipped by normalization are left out; the count of written rows is
// returned.
func EncodeParquet(rows []models.RawRow, compression string) ([]byte, int, error) {
	mw := newMemoryFileWriter()
	pw, err := writer.NewParquetWriter(mw, new(reader.RowRecord), 4)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create parquet writer: %w", err)
	}
	pw.CompressionType = Codec(compression)

	written := 0
	for _, raw := range rows {
		name, market, price, reason := processor.ParseRow(raw)
		if reason != "" {
			continue
		}
		rec := reader.RowRecord{Name: name, Market: market, Price: price}
		if err := pw.Write(rec); err != nil {
			return nil, 0, fmt.Errorf("failed to write parquet record: %w", err)
		}
		written++
	}
	if err := pw.WriteStop(); err != nil {
		return nil, 0, fmt.Errorf("failed to finalize parquet file: %w", err)
	}
	return mw.Bytes(), written, nil
}
