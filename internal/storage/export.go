package storage

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tealeg/xlsx/v3"
	"github.com/xaenox/commission-scout/internal/models"
)

const (
	exportSheetName = "Commissions"
	exportTextLimit = 500
)

var exportHeader = []string{"timestamp", "author", "url", "text", "is_commission", "confidence", "reason"}

// Export writes posts to path as XLSX when the extension is .xlsx and as
// CSV otherwise.
func Export(path string, posts []models.StoredPost) error {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return ExportXLSX(path, posts)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	if err := ExportCSV(f, posts); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func ExportCSV(w io.Writer, posts []models.StoredPost) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, p := range posts {
		if err := cw.Write(exportRecord(p)); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func ExportXLSX(path string, posts []models.StoredPost) error {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet(exportSheetName)
	if err != nil {
		return fmt.Errorf("add sheet: %w", err)
	}

	header := sheet.AddRow()
	for _, h := range exportHeader {
		header.AddCell().SetString(h)
	}

	for _, p := range posts {
		row := sheet.AddRow()
		row.AddCell().SetString(p.AI.Timestamp)
		row.AddCell().SetString(p.Author)
		row.AddCell().SetString(p.Link())
		row.AddCell().SetString(truncateRunes(p.Text, exportTextLimit))
		row.AddCell().SetBool(p.AI.IsCommission)
		row.AddCell().SetFloat(p.AI.Confidence)
		row.AddCell().SetString(p.AI.Reason)
	}

	if err := file.Save(path); err != nil {
		return fmt.Errorf("save xlsx: %w", err)
	}
	return nil
}

func exportRecord(p models.StoredPost) []string {
	return []string{
		p.AI.Timestamp,
		p.Author,
		p.Link(),
		truncateRunes(p.Text, exportTextLimit),
		strconv.FormatBool(p.AI.IsCommission),
		strconv.FormatFloat(p.AI.Confidence, 'f', -1, 64),
		p.AI.Reason,
	}
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
