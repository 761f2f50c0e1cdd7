package reader

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	preader "github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/source"

	"storeprice/models"
)

// ErrUnsupportedFormat is returned for row files with an unknown extension.
var ErrUnsupportedFormat = errors.New("unsupported row file format")

// RowRecord is the parquet schema shared by row files on disk and in S3.
type RowRecord struct {
	Name   string  `parquet:"name=name, type=BYTE_ARRAY, convertedtype=UTF8"`
	Market string  `parquet:"name=market, type=BYTE_ARRAY, convertedtype=UTF8"`
	Price  float64 `parquet:"name=price, type=DOUBLE"`
}

// Supported reports whether DecodeRows understands the file name's extension.
func Supported(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".js", ".csv", ".parquet":
		return true
	}
	return false
}

// DecodeRows turns the content of a row file into raw feed rows. The format
// is picked from the extension of name. Rows are not validated here; the feed
// and the normalizer drop whatever is malformed.
func DecodeRows(name string, data []byte) ([]models.RawRow, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		return decodeJSON(data)
	case ".js":
		return decodeScript(data)
	case ".csv":
		return decodeCSV(data)
	case ".parquet":
		return decodeParquet(data)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
}

// DecodeJSON parses a JSON array of rows.
func DecodeJSON(data []byte) ([]models.RawRow, error) {
	return decodeJSON(data)
}

func decodeJSON(data []byte) ([]models.RawRow, error) {
	var rows []any
	if err := json.Unmarshal(bytes.TrimSpace(data), &rows); err != nil {
		return nil, fmt.Errorf("decode json rows: %w", err)
	}
	return rows, nil
}

// decodeScript reads row scripts made of one or more addRows([...]) calls.
// Line and block comments are ignored and trailing commas are tolerated.
// A script without any call is parsed as a bare array.
func decodeScript(data []byte) ([]models.RawRow, error) {
	clean := stripComments(data)

	var out []models.RawRow
	calls := 0
	rest := clean
	for {
		idx := bytes.Index(rest, []byte("addRows"))
		if idx < 0 {
			break
		}
		rest = rest[idx+len("addRows"):]
		open := bytes.IndexByte(rest, '[')
		if open < 0 {
			break
		}
		arr, n, err := balancedArray(rest[open:])
		if err != nil {
			return nil, fmt.Errorf("decode script rows: %w", err)
		}
		rows, err := decodeJSON(dropTrailingCommas(arr))
		if err != nil {
			return nil, fmt.Errorf("decode script rows: call %d: %w", calls+1, err)
		}
		out = append(out, rows...)
		calls++
		rest = rest[open+n:]
	}
	if calls == 0 {
		return decodeJSON(dropTrailingCommas(clean))
	}
	return out, nil
}

// stripComments removes // and /* */ comments that are outside string literals.
func stripComments(src []byte) []byte {
	out := make([]byte, 0, len(src))
	var quote byte
	for i := 0; i < len(src); i++ {
		c := src[i]
		if quote != 0 {
			out = append(out, c)
			if c == '\\' && i+1 < len(src) {
				i++
				out = append(out, src[i])
			} else if c == quote {
				quote = 0
			}
			continue
		}
		switch {
		case c == '"' || c == '\'':
			quote = c
			out = append(out, c)
		case c == '/' && i+1 < len(src) && src[i+1] == '/':
			for i < len(src) && src[i] != '\n' {
				i++
			}
			if i < len(src) {
				out = append(out, '\n')
			}
		case c == '/' && i+1 < len(src) && src[i+1] == '*':
			end := bytes.Index(src[i+2:], []byte("*/"))
			if end < 0 {
				return out
			}
			i += end + 3
		default:
			out = append(out, c)
		}
	}
	return out
}

// balancedArray returns the bracketed array at the start of src and its length.
func balancedArray(src []byte) ([]byte, int, error) {
	depth := 0
	var quote byte
	for i := 0; i < len(src); i++ {
		c := src[i]
		if quote != 0 {
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			quote = c
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return src[:i+1], i + 1, nil
			}
		}
	}
	return nil, 0, errors.New("unterminated array")
}

// dropTrailingCommas removes commas directly followed by a closing bracket.
func dropTrailingCommas(src []byte) []byte {
	out := make([]byte, 0, len(src))
	var quote byte
	for i := 0; i < len(src); i++ {
		c := src[i]
		if quote != 0 {
			out = append(out, c)
			if c == '\\' && i+1 < len(src) {
				i++
				out = append(out, src[i])
			} else if c == quote {
				quote = 0
			}
			continue
		}
		if c == '"' {
			quote = c
		}
		if c == ',' {
			j := i + 1
			for j < len(src) && isSpace(src[j]) {
				j++
			}
			if j < len(src) && (src[j] == ']' || src[j] == '}') {
				continue
			}
		}
		out = append(out, c)
	}
	return out
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// decodeCSV reads name, market, price records. A first record whose first
// column is "name" is treated as a header.
func decodeCSV(data []byte) ([]models.RawRow, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	r.Comment = '#'

	var rows []models.RawRow
	first := true
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode csv rows: %w", err)
		}
		if first {
			first = false
			if len(rec) > 0 && strings.EqualFold(strings.TrimSpace(rec[0]), "name") {
				continue
			}
		}
		row := make([]any, len(rec))
		for i, field := range rec {
			row[i] = field
		}
		if len(rec) >= 3 {
			if p, err := strconv.ParseFloat(strings.TrimSpace(rec[2]), 64); err == nil {
				row[2] = p
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func decodeParquet(data []byte) ([]models.RawRow, error) {
	pf := newBytesFile(data)
	pr, err := preader.NewParquetReader(pf, new(RowRecord), 4)
	if err != nil {
		return nil, fmt.Errorf("open parquet rows: %w", err)
	}
	defer pr.ReadStop()

	num := int(pr.GetNumRows())
	records := make([]RowRecord, num)
	if num > 0 {
		if err := pr.Read(&records); err != nil {
			return nil, fmt.Errorf("read parquet rows: %w", err)
		}
	}

	rows := make([]models.RawRow, 0, len(records))
	for _, rec := range records {
		rows = append(rows, []any{rec.Name, rec.Market, rec.Price})
	}
	return rows, nil
}

// bytesFile is a read-only in-memory source.ParquetFile.
type bytesFile struct {
	data []byte
	r    *bytes.Reader
}

func newBytesFile(data []byte) *bytesFile {
	return &bytesFile{data: data, r: bytes.NewReader(data)}
}

func (f *bytesFile) Create(string) (source.ParquetFile, error) {
	return nil, errors.New("bytes file is read-only")
}

// Open returns an independent cursor over the same bytes; the parquet reader
// opens one per column.
func (f *bytesFile) Open(string) (source.ParquetFile, error) {
	return newBytesFile(f.data), nil
}

func (f *bytesFile) Seek(offset int64, whence int) (int64, error) {
	return f.r.Seek(offset, whence)
}

func (f *bytesFile) Read(p []byte) (int, error) { return f.r.Read(p) }

func (f *bytesFile) Write([]byte) (int, error) {
	return 0, errors.New("bytes file is read-only")
}

func (f *bytesFile) Close() error { return nil }
