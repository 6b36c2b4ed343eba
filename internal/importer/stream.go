package importer

import (
	"compress/gzip"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/timeport-io/timeport/internal/blob"
	"github.com/timeport-io/timeport/internal/models"
)

const (
	csvExtension     = ".csv"
	gzipCsvExtension = ".csv.gz"
)

// ErrUnsupportedFormat indicates a file whose extension is neither .csv
// nor .csv.gz.
var ErrUnsupportedFormat = errors.New("unsupported format: must be CSV or gzip of CSV")

// openTypedStream wraps the raw blob stream according to the file name's
// extension. A nil stream means the named blob could not be retrieved.
func openTypedStream(raw io.ReadCloser, fileName string) (io.ReadCloser, error) {
	if raw == nil {
		return nil, fmt.Errorf("%w: %s", blob.ErrNotFound, fileName)
	}
	switch {
	case strings.HasSuffix(fileName, gzipCsvExtension):
		gz, err := gzip.NewReader(raw)
		if err != nil {
			return nil, fmt.Errorf("open gzip stream %s: %w", fileName, err)
		}
		return &gzipStream{gz: gz, raw: raw}, nil
	case strings.HasSuffix(fileName, csvExtension):
		return raw, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, fileName)
	}
}

// gzipStream closes both the decompressor and the underlying blob stream.
type gzipStream struct {
	gz  *gzip.Reader
	raw io.ReadCloser
}

func (s *gzipStream) Read(p []byte) (int, error) { return s.gz.Read(p) }

func (s *gzipStream) Close() error {
	gzErr := s.gz.Close()
	rawErr := s.raw.Close()
	if gzErr != nil {
		return gzErr
	}
	return rawErr
}

// timestampLayouts are accepted source timestamp formats, tried in order.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func parseTimestamp(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

// rowReader decodes time-series rows from a delimited text stream with a
// header row. Header matching is case-insensitive so source files are not
// fragile to header casing.
type rowReader struct {
	r *csv.Reader
	// column index per lower-cased header name; -1 when absent
	externalID int
	trendID    int
	sourceTS   int
	scalar     int
	// line is the current physical row number, counting the header as 1.
	line int
}

func newRowReader(stream io.Reader) (*rowReader, error) {
	r := csv.NewReader(stream)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("empty file: missing header row")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	rr := &rowReader{r: r, externalID: -1, trendID: -1, sourceTS: -1, scalar: -1, line: 1}
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "externalid":
			rr.externalID = i
		case "trendid":
			rr.trendID = i
		case "sourcetimestamp":
			rr.sourceTS = i
		case "scalarvalue":
			rr.scalar = i
		}
	}
	return rr, nil
}

func field(record []string, idx int) string {
	if idx < 0 || idx >= len(record) {
		return ""
	}
	return record[idx]
}

// Read decodes the next row and its physical line number. Returns io.EOF
// at end of stream; any other error is a fatal decode failure.
func (rr *rowReader) Read() (models.TimeSeriesRow, int, error) {
	record, err := rr.r.Read()
	if err != nil {
		return models.TimeSeriesRow{}, rr.line, err
	}
	rr.line++

	row := models.TimeSeriesRow{
		ExternalID:      field(record, rr.externalID),
		TrendID:         field(record, rr.trendID),
		SourceTimestamp: parseTimestamp(field(record, rr.sourceTS)),
		ScalarValue:     field(record, rr.scalar),
	}
	return row, rr.line, nil
}
