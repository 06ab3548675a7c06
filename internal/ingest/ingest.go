// Package ingest reads extracted financial line items from the formats the
// extraction step emits: JSON documents and xlsx worksheets.
package ingest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/snf-deal-cli/internal/model"
)

// ReadFile dispatches on the file extension: .json or .xlsx.
func ReadFile(path string) ([]model.ExtractedLineItem, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return ReadJSON(path)
	case ".xlsx":
		return ReadXLSX(path, XLSXOptions{})
	default:
		return nil, eris.Errorf("ingest: unsupported file type %q", filepath.Ext(path))
	}
}

// ReadJSON reads a JSON array of extracted line items.
func ReadJSON(path string) ([]model.ExtractedLineItem, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: read json")
	}

	var items []model.ExtractedLineItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, eris.Wrap(err, "ingest: parse json")
	}
	return sanitize(items), nil
}

// XLSXOptions configures the xlsx reader.
type XLSXOptions struct {
	SheetIndex int    // default 0
	SheetName  string // if set, overrides SheetIndex
}

// reserved column headings; every other column is treated as a monthly
// period keyed by its heading.
const (
	colLabel      = "label"
	colCategory   = "category"
	colConfidence = "confidence"
)

// ReadXLSX reads line items from a worksheet. The first row is the header:
// a "label" column is required, "category" and "confidence" are optional,
// and all remaining columns are monthly value periods. Rows without a label
// and cells that do not parse as numbers are skipped.
func ReadXLSX(path string, opts XLSXOptions) ([]model.ExtractedLineItem, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: open xlsx")
	}

	sheet, err := getSheet(f, opts)
	if err != nil {
		return nil, err
	}
	if len(sheet.Rows) == 0 {
		return nil, eris.New("ingest: worksheet is empty")
	}

	labelCol, categoryCol, confidenceCol := -1, -1, -1
	periods := make(map[int]string)
	for j, cell := range sheet.Rows[0].Cells {
		heading := strings.TrimSpace(cell.String())
		switch strings.ToLower(heading) {
		case colLabel:
			labelCol = j
		case colCategory:
			categoryCol = j
		case colConfidence:
			confidenceCol = j
		case "":
		default:
			periods[j] = heading
		}
	}
	if labelCol < 0 {
		return nil, eris.New("ingest: worksheet has no label column")
	}

	var items []model.ExtractedLineItem
	for _, row := range sheet.Rows[1:] {
		item := model.ExtractedLineItem{Confidence: 1}
		for j, cell := range row.Cells {
			text := strings.TrimSpace(cell.String())
			switch {
			case j == labelCol:
				item.Label = text
			case j == categoryCol:
				item.CategoryHint = text
			case j == confidenceCol:
				if v, err := strconv.ParseFloat(text, 64); err == nil {
					item.Confidence = v
				}
			default:
				period, ok := periods[j]
				if !ok || text == "" {
					continue
				}
				v, err := cell.Float()
				if err != nil {
					continue
				}
				if item.Monthly == nil {
					item.Monthly = make(map[string]float64)
				}
				item.Monthly[period] = v
			}
		}
		if item.Label != "" {
			items = append(items, item)
		}
	}

	return sanitize(items), nil
}

func getSheet(f *xlsx.File, opts XLSXOptions) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		sheet, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("ingest: sheet %q not found", opts.SheetName)
		}
		return sheet, nil
	}
	if opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("ingest: sheet index %d out of range (file has %d sheets)", opts.SheetIndex, len(f.Sheets))
	}
	return f.Sheets[opts.SheetIndex], nil
}

// sanitize drops blank labels and clamps out-of-range confidences to 1,
// matching how the classifier treats an absent extraction confidence.
func sanitize(items []model.ExtractedLineItem) []model.ExtractedLineItem {
	out := items[:0]
	for _, item := range items {
		item.Label = strings.TrimSpace(item.Label)
		if item.Label == "" {
			continue
		}
		if item.Confidence <= 0 || item.Confidence > 1 {
			item.Confidence = 1
		}
		out = append(out, item)
	}
	return out
}
