// Package export turns the lead table into downloadable files and guards the
// destructive export-then-erase sequence.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/Skryldev/lead-manager/models"
)

// Format is a supported export encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat accepts "csv" (also the empty string), "xlsx" and "excel".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "csv":
		return FormatCSV, nil
	case "xlsx", "excel":
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("export: unknown format %q: must be csv or xlsx", s)
	}
}

// ContentType is the MIME type served for the format.
func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// Filename is the suggested download name.
func (f Format) Filename() string { return "leads." + string(f) }

// Header lists the exported columns in schema order.
var Header = []string{"id", "name", "email", "phone", "source", "status", "score", "last_contact", "notes"}

func record(l *models.Lead) []string {
	return []string{
		strconv.FormatInt(l.ID, 10),
		l.Name,
		l.Email,
		l.Phone,
		string(l.Source),
		string(l.Status),
		strconv.Itoa(l.Score),
		l.LastContact.String(),
		l.Notes,
	}
}

// Encode serializes leads in the given format.
func Encode(leads []*models.Lead, format Format) ([]byte, error) {
	switch format {
	case FormatCSV:
		return EncodeCSV(leads)
	case FormatXLSX:
		return EncodeXLSX(leads)
	default:
		return nil, fmt.Errorf("export: unknown format %q", format)
	}
}

// EncodeCSV writes a UTF-8 CSV document: the header row, then one line per
// lead in the order given. Lines end in LF and fields are quoted only when
// they contain commas, quotes or line breaks.
func EncodeCSV(leads []*models.Lead) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(Header); err != nil {
		return nil, fmt.Errorf("export: write csv header: %w", err)
	}
	for _, l := range leads {
		if err := w.Write(record(l)); err != nil {
			return nil, fmt.Errorf("export: write csv row %d: %w", l.ID, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("export: flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// SheetName is the worksheet holding the leads in XLSX exports.
const SheetName = "Leads"

// EncodeXLSX writes a workbook with a single "Leads" sheet: a bold header row
// followed by one row per lead. Numeric columns are stored as numbers.
func EncodeXLSX(leads []*models.Lead) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return nil, fmt.Errorf("export: rename sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E0E0E0"}, Pattern: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("export: create style: %w", err)
	}

	header := make([]any, len(Header))
	for i, h := range Header {
		header[i] = h
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return nil, fmt.Errorf("export: write header: %w", err)
	}
	last, _ := excelize.CoordinatesToCellName(len(Header), 1)
	if err := f.SetCellStyle(SheetName, "A1", last, headerStyle); err != nil {
		return nil, fmt.Errorf("export: style header: %w", err)
	}

	for i, l := range leads {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		row := []any{
			l.ID, l.Name, l.Email, l.Phone, string(l.Source), string(l.Status),
			l.Score, l.LastContact.String(), l.Notes,
		}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return nil, fmt.Errorf("export: write row %d: %w", l.ID, err)
		}
	}

	lastCol, _ := excelize.ColumnNumberToName(len(Header))
	if err := f.SetColWidth(SheetName, "A", lastCol, 18); err != nil {
		return nil, fmt.Errorf("export: set column width: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("export: write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
