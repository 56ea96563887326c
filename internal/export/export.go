// Package export writes and reads gated CSV exports, optionally compressed
// with gzip or zstd.
package export

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cytobridge/client/internal/gating"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Codec selects the compression of an export.
type Codec int

const (
	CodecNone Codec = iota
	CodecGzip
	CodecZstd
)

// Extension returns the filename suffix appended for the codec.
func (c Codec) Extension() string {
	switch c {
	case CodecGzip:
		return ".gz"
	case CodecZstd:
		return ".zst"
	default:
		return ""
	}
}

// ContentEncoding returns the HTTP Content-Encoding token for the codec.
func (c Codec) ContentEncoding() string {
	switch c {
	case CodecGzip:
		return "gzip"
	case CodecZstd:
		return "zstd"
	default:
		return ""
	}
}

// CodecFor picks a codec from a file path's extension.
func CodecFor(path string) Codec {
	switch {
	case strings.HasSuffix(path, ".gz"):
		return CodecGzip
	case strings.HasSuffix(path, ".zst"):
		return CodecZstd
	default:
		return CodecNone
	}
}

// ParseCodec parses a codec name as used in query strings and flags.
func ParseCodec(name string) (Codec, error) {
	switch strings.ToLower(name) {
	case "", "none", "0", "false":
		return CodecNone, nil
	case "gzip", "gz", "1", "true":
		return CodecGzip, nil
	case "zstd", "zst":
		return CodecZstd, nil
	default:
		return CodecNone, fmt.Errorf("unknown compression %q", name)
	}
}

// Filename returns the download name of an export for clusterCount
// populations under codec.
func Filename(clusterCount int, codec Codec) string {
	return gating.ExportFilename(clusterCount) + codec.Extension()
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// NewWriter wraps w so that bytes written are compressed with codec. Close
// flushes the compressed stream but does not close w.
func NewWriter(w io.Writer, codec Codec) (io.WriteCloser, error) {
	switch codec {
	case CodecGzip:
		return gzip.NewWriter(w), nil
	case CodecZstd:
		zw, err := zstd.NewWriter(w)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
		}
		return zw, nil
	default:
		return nopCloser{w}, nil
	}
}

// Write writes sample as CSV to w through codec. It reports false and writes
// nothing for an empty sample.
func Write(w io.Writer, sample gating.Sample, codec Codec) (bool, error) {
	if len(sample) == 0 {
		return false, nil
	}

	zw, err := NewWriter(w, codec)
	if err != nil {
		return false, err
	}
	if _, err := gating.WriteCSV(zw, sample); err != nil {
		zw.Close()
		return true, fmt.Errorf("write export: %w", err)
	}
	return true, zw.Close()
}

// Compress returns data compressed with codec.
func Compress(data []byte, codec Codec) ([]byte, error) {
	if codec == CodecNone {
		return data, nil
	}
	var buf bytes.Buffer
	zw, err := NewWriter(&buf, codec)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(data); err != nil {
		zw.Close()
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteFile writes sample to path, compressed according to the path's
// extension. No file is created for an empty sample.
func WriteFile(path string, sample gating.Sample) (bool, error) {
	if len(sample) == 0 {
		return false, nil
	}

	f, err := os.Create(path)
	if err != nil {
		return false, fmt.Errorf("create %s: %w", path, err)
	}
	bw := bufio.NewWriter(f)
	if _, err := Write(bw, sample, CodecFor(path)); err != nil {
		f.Close()
		return true, err
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return true, err
	}
	return true, f.Close()
}

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// ReadAll reads an export, transparently decompressing gzip or zstd input.
func ReadAll(r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}

	switch {
	case bytes.HasPrefix(data, gzipMagic):
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return "", fmt.Errorf("gzip: %w", err)
		}
		defer zr.Close()
		data, err = io.ReadAll(zr)
		if err != nil {
			return "", fmt.Errorf("gzip: %w", err)
		}
	case bytes.HasPrefix(data, zstdMagic):
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return "", fmt.Errorf("failed to create zstd decoder: %w", err)
		}
		defer dec.Close()
		data, err = dec.DecodeAll(data, nil)
		if err != nil {
			return "", fmt.Errorf("zstd decompress failed: %w", err)
		}
	}
	return string(data), nil
}

// PopulationCount is the number of exported events in one population.
type PopulationCount struct {
	ID    int    `json:"population_id"`
	Label string `json:"label"`
	Color string `json:"color"`
	Count int    `json:"count"`
}

// Summary describes an export file.
type Summary struct {
	Columns     []string          `json:"columns"`
	Events      int               `json:"events"`
	Populations []PopulationCount `json:"populations"`
}

// ErrNoPopulationColumn is returned when an export lacks Population_Gate.
var ErrNoPopulationColumn = errors.New("export has no " + gating.PopulationField + " column")

// Inspect summarizes an export. Populations are listed in order of first
// appearance; unusable labels count towards Unassigned.
func Inspect(r io.Reader) (*Summary, error) {
	text, err := ReadAll(r)
	if err != nil {
		return nil, err
	}
	header, rows := gating.ParseCSV(strings.TrimRight(text, "\n"))
	if len(header) == 0 {
		return &Summary{}, nil
	}

	col := -1
	for i, name := range header {
		if name == gating.PopulationField {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, ErrNoPopulationColumn
	}

	s := &Summary{Columns: header, Events: len(rows)}
	index := make(map[int]int)
	for _, row := range rows {
		id := gating.Unassigned
		if col < len(row) {
			if n, ok := gating.ParsePopulation(row[col]); ok {
				id = n
			}
		}
		i, ok := index[id]
		if !ok {
			i = len(s.Populations)
			index[id] = i
			s.Populations = append(s.Populations, PopulationCount{
				ID:    id,
				Label: gating.PopulationLabel(id),
				Color: gating.PopulationColor(id),
			})
		}
		s.Populations[i].Count++
	}
	return s, nil
}
