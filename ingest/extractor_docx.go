package ingest

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// DOCXExtractor pulls plain text out of OOXML word processing documents.
// It streams XML tokens from word/document.xml rather than building a DOM:
// paragraphs become double-newline separated blocks, and tables are rendered
// as labeled "Header: Value" rows using the first table row as headers.
type DOCXExtractor struct{}

var _ Extractor = DOCXExtractor{}

// maxZipEntrySize caps the decompressed size of a single archive entry so a
// zip bomb cannot exhaust memory (100 MB).
const maxZipEntrySize = 100 << 20

func (DOCXExtractor) Extract(content []byte) (string, error) {
	if len(content) == 0 {
		return "", fmt.Errorf("empty docx content")
	}

	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open zip: %w", err)
	}

	data, err := docxDocumentXML(zr)
	if err != nil {
		return "", err
	}
	return docxText(data)
}

// docxDocumentXML locates and reads word/document.xml from the archive.
func docxDocumentXML(zr *zip.Reader) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("read document.xml: %w", err)
		}
		defer rc.Close()

		data, err := io.ReadAll(io.LimitReader(rc, maxZipEntrySize+1))
		if err != nil {
			return nil, fmt.Errorf("read document.xml: %w", err)
		}
		if len(data) > maxZipEntrySize {
			return nil, fmt.Errorf("document.xml exceeds %d byte limit", maxZipEntrySize)
		}
		return data, nil
	}
	return nil, fmt.Errorf("missing word/document.xml")
}

// docxWalker accumulates text while streaming through the document tokens.
type docxWalker struct {
	out strings.Builder

	inParagraph bool
	inRun       bool
	paraTexts   []string

	inTable      bool
	inTableRow   bool
	tableHeaders []string
	tableRowIdx  int
	cellTexts    []string
	currentCell  strings.Builder
}

func docxText(data []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	w := &docxWalker{}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			w.start(t)
		case xml.EndElement:
			w.end(t)
		case xml.CharData:
			w.chars(t)
		}
	}
	return strings.TrimSpace(w.out.String()), nil
}

func (w *docxWalker) start(t xml.StartElement) {
	switch t.Name.Local {
	case "p":
		w.inParagraph = true
		w.paraTexts = nil
	case "r":
		w.inRun = true
	case "tbl":
		w.inTable = true
		w.tableHeaders = nil
		w.tableRowIdx = 0
	case "tr":
		w.inTableRow = true
		w.cellTexts = nil
	case "tc":
		w.currentCell.Reset()
	}
}

func (w *docxWalker) end(t xml.EndElement) {
	switch t.Name.Local {
	case "r":
		w.inRun = false
	case "tc":
		w.cellTexts = append(w.cellTexts, strings.TrimSpace(w.currentCell.String()))
	case "tr":
		w.inTableRow = false
		if !w.inTable {
			return
		}
		if w.tableRowIdx == 0 {
			w.tableHeaders = append([]string(nil), w.cellTexts...)
		} else {
			w.emitTableRow()
		}
		w.tableRowIdx++
	case "tbl":
		w.inTable = false
	case "p":
		w.endParagraph()
	}
}

func (w *docxWalker) chars(data xml.CharData) {
	if w.inTable && w.inTableRow {
		w.currentCell.WriteString(string(data))
		return
	}
	if w.inParagraph && w.inRun {
		w.paraTexts = append(w.paraTexts, string(data))
	}
}

func (w *docxWalker) emitTableRow() {
	var fields []string
	for i, val := range w.cellTexts {
		val = strings.TrimSpace(val)
		if val == "" {
			continue
		}
		if i < len(w.tableHeaders) && w.tableHeaders[i] != "" {
			fields = append(fields, w.tableHeaders[i]+": "+val)
		} else {
			fields = append(fields, val)
		}
	}
	if len(fields) == 0 {
		return
	}
	w.writeBlock(strings.Join(fields, ", "))
}

func (w *docxWalker) endParagraph() {
	w.inParagraph = false
	if w.inTable {
		return
	}
	text := strings.TrimSpace(strings.Join(w.paraTexts, ""))
	if text == "" {
		return
	}
	w.writeBlock(text)
}

func (w *docxWalker) writeBlock(s string) {
	if w.out.Len() > 0 {
		w.out.WriteString("\n\n")
	}
	w.out.WriteString(s)
}
