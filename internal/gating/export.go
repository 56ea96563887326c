package gating

import (
	"fmt"
	"io"
	"strings"
)

// ExportFilename returns the download name of a CSV export.
func ExportFilename(clusterCount int) string {
	return fmt.Sprintf("CytoBridge_Gated_Results_%d_Pops.csv", clusterCount)
}

// Header returns the CSV header of sample: the first record's keys in order.
func Header(sample Sample) []string {
	if len(sample) == 0 {
		return nil
	}
	return sample[0].Keys()
}

// WriteCSV writes sample as comma-separated text to w. Columns are the first
// record's keys; later records are read by those keys, so their own key order
// does not matter and a missing key yields an empty field. Values are written
// without quoting. It reports false and writes nothing for an empty sample.
func WriteCSV(w io.Writer, sample Sample) (bool, error) {
	if len(sample) == 0 {
		return false, nil
	}

	header := Header(sample)
	if _, err := io.WriteString(w, strings.Join(header, ",")); err != nil {
		return true, err
	}

	values := make([]string, len(header))
	for _, rec := range sample {
		for i, key := range header {
			values[i], _ = rec.Text(key)
		}
		if _, err := io.WriteString(w, "\n"+strings.Join(values, ",")); err != nil {
			return true, err
		}
	}
	return true, nil
}

// Export renders sample as CSV text. The bool is false for an empty or nil
// sample, in which case no export should be offered.
func Export(sample Sample) (string, bool) {
	var b strings.Builder
	ok, _ := WriteCSV(&b, sample)
	return b.String(), ok
}

// ParseCSV splits text produced by Export back into header and rows.
func ParseCSV(text string) (header []string, rows [][]string) {
	if text == "" {
		return nil, nil
	}
	lines := strings.Split(text, "\n")
	header = strings.Split(lines[0], ",")
	rows = make([][]string, 0, len(lines)-1)
	for _, line := range lines[1:] {
		rows = append(rows, strings.Split(line, ","))
	}
	return header, rows
}

// DelimiterUnsafe returns the header names and values of sample that contain
// a comma or newline and would therefore not survive ParseCSV.
func DelimiterUnsafe(sample Sample) []string {
	var bad []string
	for _, key := range Header(sample) {
		if strings.ContainsAny(key, ",\n") {
			bad = append(bad, key)
		}
	}
	for _, rec := range sample {
		for _, f := range rec.fields {
			if v := rawText(f.Raw); strings.ContainsAny(v, ",\n") {
				bad = append(bad, v)
			}
		}
	}
	return bad
}
