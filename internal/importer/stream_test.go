package importer

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/timeport-io/timeport/internal/blob"
)

func TestOpenTypedStream(t *testing.T) {
	t.Run("plain csv passes through", func(t *testing.T) {
		raw := io.NopCloser(strings.NewReader("a,b\n"))
		stream, err := openTypedStream(raw, "data.csv")
		if err != nil {
			t.Fatalf("openTypedStream: %v", err)
		}
		defer stream.Close()
		data, _ := io.ReadAll(stream)
		if string(data) != "a,b\n" {
			t.Errorf("read %q, want %q", data, "a,b\n")
		}
	})

	t.Run("gzip csv is decompressed", func(t *testing.T) {
		raw := io.NopCloser(bytes.NewReader(gzipBytes(t, "a,b\n")))
		stream, err := openTypedStream(raw, "data.csv.gz")
		if err != nil {
			t.Fatalf("openTypedStream: %v", err)
		}
		defer stream.Close()
		data, _ := io.ReadAll(stream)
		if string(data) != "a,b\n" {
			t.Errorf("read %q, want %q", data, "a,b\n")
		}
	})

	t.Run("other extensions are rejected", func(t *testing.T) {
		for _, name := range []string{"data.txt", "data.json", "data.gz", "data"} {
			raw := io.NopCloser(strings.NewReader("x"))
			if _, err := openTypedStream(raw, name); !errors.Is(err, ErrUnsupportedFormat) {
				t.Errorf("%s: err = %v, want ErrUnsupportedFormat", name, err)
			}
		}
	})

	t.Run("nil stream means not found", func(t *testing.T) {
		if _, err := openTypedStream(nil, "data.csv"); !errors.Is(err, blob.ErrNotFound) {
			t.Errorf("err = %v, want blob.ErrNotFound", err)
		}
	})
}

func TestRowReaderHeaderCase(t *testing.T) {
	// Header casing must not matter.
	csvData := "EXTERNALID,trendid,SourceTimestamp,scalarVALUE\n" +
		"ext1,tr1,2024-01-01T00:00:00Z,42\n"

	rr, err := newRowReader(strings.NewReader(csvData))
	if err != nil {
		t.Fatalf("newRowReader: %v", err)
	}

	row, line, err := rr.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if line != 2 {
		t.Errorf("line = %d, want 2", line)
	}
	if row.ExternalID != "ext1" || row.TrendID != "tr1" || row.ScalarValue != "42" {
		t.Errorf("unexpected row: %+v", row)
	}
	if row.SourceTimestamp == nil || row.SourceTimestamp.Year() != 2024 {
		t.Errorf("SourceTimestamp = %v", row.SourceTimestamp)
	}

	if _, _, err := rr.Read(); err != io.EOF {
		t.Errorf("err = %v, want io.EOF", err)
	}
}

func TestRowReaderMissingColumns(t *testing.T) {
	// Absent columns yield empty fields; validation handles them later.
	csvData := "ExternalId,ScalarValue\next1,7\n"

	rr, err := newRowReader(strings.NewReader(csvData))
	if err != nil {
		t.Fatalf("newRowReader: %v", err)
	}
	row, _, err := rr.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if row.SourceTimestamp != nil {
		t.Errorf("SourceTimestamp = %v, want nil", row.SourceTimestamp)
	}
	if row.ExternalID != "ext1" || row.ScalarValue != "7" {
		t.Errorf("unexpected row: %+v", row)
	}
}

func TestParseTimestampLayouts(t *testing.T) {
	for _, in := range []string{
		"2024-01-01T00:00:00Z",
		"2024-01-01T00:00:00.123456Z",
		"2024-01-01T00:00:00+02:00",
		"2024-01-01T00:00:00",
		"2024-01-01 00:00:00",
	} {
		if got := parseTimestamp(in); got == nil {
			t.Errorf("parseTimestamp(%q) = nil", in)
		}
	}
	if got := parseTimestamp("not a time"); got != nil {
		t.Errorf("parseTimestamp garbage = %v, want nil", got)
	}
	if got := parseTimestamp(""); got != nil {
		t.Errorf("parseTimestamp empty = %v, want nil", got)
	}
}
