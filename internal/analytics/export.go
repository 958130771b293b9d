package analytics

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/xuri/excelize/v2"
)

const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"

	ContentTypeCSV  = "text/csv; charset=utf-8"
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	sheetSummary    = "Summary"
	sheetByCategory = "By Category"
	sheetByMonth    = "By Month"
)

func summaryRows(r *Report) [][]string {
	rows := [][]string{
		{"metric", "value"},
		{"scope", r.Scope},
		{"from", r.From},
		{"to", r.To},
		{"status", r.Status},
		{"count", strconv.FormatInt(r.Count, 10)},
		{"total", r.Total.StringFixed(2)},
		{"average", r.Average.StringFixed(2)},
	}
	for _, currency := range sortedKeys(r.ByCurrency) {
		rows = append(rows, []string{"total_" + currency, r.ByCurrency[currency].Total.StringFixed(2)})
	}
	return rows
}

func categoryRows(r *Report) [][]string {
	rows := [][]string{{"category", "count", "total", "percentage"}}
	for _, c := range r.ByCategory {
		rows = append(rows, []string{c.Category, strconv.FormatInt(c.Count, 10), c.Total.StringFixed(2), c.Percentage.StringFixed(2)})
	}
	return rows
}

func monthRows(r *Report) [][]string {
	rows := [][]string{{"month", "count", "total"}}
	for _, m := range r.ByMonth {
		rows = append(rows, []string{m.Month, strconv.FormatInt(m.Count, 10), m.Total.StringFixed(2)})
	}
	return rows
}

// WriteCSV writes the summary, category and month tables one after the
// other, separated by a blank record.
func WriteCSV(w io.Writer, r *Report) error {
	cw := csv.NewWriter(w)
	sections := [][][]string{summaryRows(r), categoryRows(r), monthRows(r)}
	for i, section := range sections {
		if i > 0 {
			if err := cw.Write([]string{}); err != nil {
				return err
			}
		}
		if err := cw.WriteAll(section); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteXLSX renders the report as a workbook with one sheet per table.
func WriteXLSX(w io.Writer, r *Report) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetSummary); err != nil {
		return err
	}
	if err := writeSheet(f, sheetSummary, summaryRows(r), false); err != nil {
		return err
	}

	for _, sheet := range []struct {
		name string
		rows [][]string
	}{
		{sheetByCategory, categoryRows(r)},
		{sheetByMonth, monthRows(r)},
	} {
		if _, err := f.NewSheet(sheet.name); err != nil {
			return err
		}
		if err := writeSheet(f, sheet.name, sheet.rows, true); err != nil {
			return err
		}
	}

	_, err := f.WriteTo(w)
	return err
}

// writeSheet fills a sheet row by row; with numeric set, every column
// after the first is written as a number.
func writeSheet(f *excelize.File, sheet string, rows [][]string, numeric bool) error {
	for i, row := range rows {
		values := make([]interface{}, len(row))
		for j, v := range row {
			values[j] = v
			if numeric && i > 0 && j > 0 {
				if n, err := strconv.ParseFloat(v, 64); err == nil {
					values[j] = n
				}
			}
		}

		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

func sortedKeys(m map[string]Bucket) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
