package export

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cytobridge/client/internal/gating"
	"github.com/google/go-cmp/cmp"
)

const scenarioCSV = "FSC-A,SSC-A,Population_Gate\n1,2,0\n3,4,1\n5,6,0"

func scenarioSample(t *testing.T) gating.Sample {
	t.Helper()
	var s gating.Sample
	body := `[{"FSC-A":1,"SSC-A":2,"Population_Gate":0},{"FSC-A":3,"SSC-A":4,"Population_Gate":1},{"FSC-A":5,"SSC-A":6,"Population_Gate":0}]`
	if err := json.Unmarshal([]byte(body), &s); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return s
}

func TestWriteCodecs(t *testing.T) {
	for _, codec := range []Codec{CodecNone, CodecGzip, CodecZstd} {
		t.Run(codec.ContentEncoding(), func(t *testing.T) {
			var buf bytes.Buffer
			ok, err := Write(&buf, scenarioSample(t), codec)
			if err != nil || !ok {
				t.Fatalf("Write: ok=%v err=%v", ok, err)
			}
			if codec == CodecGzip && !bytes.HasPrefix(buf.Bytes(), gzipMagic) {
				t.Fatalf("expected gzip stream")
			}
			if codec == CodecZstd && !bytes.HasPrefix(buf.Bytes(), zstdMagic) {
				t.Fatalf("expected zstd frame")
			}
			text, err := ReadAll(&buf)
			if err != nil {
				t.Fatalf("ReadAll: %v", err)
			}
			if text != scenarioCSV {
				t.Fatalf("expected %q, got %q", scenarioCSV, text)
			}
		})
	}
}

func TestWriteEmpty(t *testing.T) {
	var buf bytes.Buffer
	ok, err := Write(&buf, nil, CodecGzip)
	if err != nil || ok || buf.Len() != 0 {
		t.Fatalf("expected no output, got ok=%v err=%v len=%d", ok, err, buf.Len())
	}

	path := filepath.Join(t.TempDir(), "out.csv")
	if ok, err := WriteFile(path, gating.Sample{}); err != nil || ok {
		t.Fatalf("WriteFile: ok=%v err=%v", ok, err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected no file for empty sample")
	}
}

func TestWriteFileInspect(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"out.csv", "out.csv.gz", "out.csv.zst"} {
		path := filepath.Join(dir, name)
		if ok, err := WriteFile(path, scenarioSample(t)); err != nil || !ok {
			t.Fatalf("WriteFile(%s): ok=%v err=%v", name, ok, err)
		}

		f, err := os.Open(path)
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		sum, err := Inspect(f)
		f.Close()
		if err != nil {
			t.Fatalf("Inspect(%s): %v", name, err)
		}

		want := &Summary{
			Columns: []string{"FSC-A", "SSC-A", "Population_Gate"},
			Events:  3,
			Populations: []PopulationCount{
				{ID: 0, Label: "Pop 1", Color: "#3498db", Count: 2},
				{ID: 1, Label: "Pop 2", Color: "#e74c3c", Count: 1},
			},
		}
		if diff := cmp.Diff(want, sum); diff != "" {
			t.Fatalf("%s summary mismatch (-want +got):\n%s", name, diff)
		}
	}
}

func TestInspectUnassignedAndMissingColumn(t *testing.T) {
	sum, err := Inspect(strings.NewReader("FSC-A,Population_Gate\n1,2.0\n2,\n3,x\n"))
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if len(sum.Populations) != 2 || sum.Populations[0].ID != 2 || sum.Populations[1].ID != gating.Unassigned || sum.Populations[1].Count != 2 {
		t.Fatalf("unexpected populations %+v", sum.Populations)
	}

	if _, err := Inspect(strings.NewReader("FSC-A,SSC-A\n1,2")); err != ErrNoPopulationColumn {
		t.Fatalf("expected ErrNoPopulationColumn, got %v", err)
	}
}

func TestCodecNames(t *testing.T) {
	if CodecFor("a.csv.gz") != CodecGzip || CodecFor("a.csv.zst") != CodecZstd || CodecFor("a.csv") != CodecNone {
		t.Fatalf("unexpected codec detection")
	}
	if c, err := ParseCodec("1"); err != nil || c != CodecGzip {
		t.Fatalf("ParseCodec(1) = %v, %v", c, err)
	}
	if _, err := ParseCodec("brotli"); err == nil {
		t.Fatalf("expected error for unknown codec")
	}
	if got := Filename(4, CodecGzip); got != "CytoBridge_Gated_Results_4_Pops.csv.gz" {
		t.Fatalf("unexpected filename %q", got)
	}
}

func TestCompress(t *testing.T) {
	for _, codec := range []Codec{CodecNone, CodecGzip, CodecZstd} {
		data, err := Compress([]byte(scenarioCSV), codec)
		if err != nil {
			t.Fatalf("Compress(%d): %v", codec, err)
		}
		text, err := ReadAll(bytes.NewReader(data))
		if err != nil {
			t.Fatalf("ReadAll(%d): %v", codec, err)
		}
		if text != scenarioCSV {
			t.Fatalf("codec %d: expected %q, got %q", codec, scenarioCSV, text)
		}
	}
}
