package pipeline

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"
)

// sampleSize is how many data rows schema inference sees.
const sampleSize = 10

// readCSV loads the header and all data rows. Ragged rows are tolerated;
// the per-row builder reports them individually instead.
func readCSV(path string) (header []string, rows [][]string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("readCSV: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("readCSV: parsing %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("readCSV: %s is empty", path)
	}

	header = make([]string, len(records[0]))
	for i, h := range records[0] {
		header[i] = strings.TrimSpace(h)
	}
	return header, records[1:], nil
}

func sampleRows(rows [][]string) [][]string {
	if len(rows) <= sampleSize {
		return rows
	}
	return rows[:sampleSize]
}
