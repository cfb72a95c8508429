package ingest

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// CSVExtractor converts tabular data to labeled paragraphs. The first row is
// taken as headers; each following row becomes "Header1: v1, Header2: v2" so
// that chunk boundaries keep column meaning attached to every value.
type CSVExtractor struct{}

var _ Extractor = CSVExtractor{}

func (CSVExtractor) Extract(content []byte) (string, error) {
	content = bytes.TrimPrefix(content, []byte("\xef\xbb\xbf"))
	if len(bytes.TrimSpace(content)) == 0 {
		return "", nil
	}

	r := csv.NewReader(bytes.NewReader(content))
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	headers, err := r.Read()
	if err != nil {
		if err == io.EOF {
			return "", nil
		}
		return "", fmt.Errorf("csv headers: %w", err)
	}

	var rows []string
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("csv row: %w", err)
		}

		var fields []string
		for i, val := range record {
			if i >= len(headers) {
				break
			}
			val = strings.TrimSpace(val)
			if val == "" {
				continue
			}
			fields = append(fields, headers[i]+": "+val)
		}
		if len(fields) > 0 {
			rows = append(rows, strings.Join(fields, ", "))
		}
	}
	return strings.Join(rows, "\n\n"), nil
}
