// Package export renders stage views and the dashboard as xlsx workbooks.
package export

import (
	"bytes"
	"fmt"
	"pumptrack/internal/workflow"

	"github.com/xuri/excelize/v2"
)

// Column is one exported column: its header and the view field it reads.
type Column struct {
	Header string
	Field  string
}

// StageColumns lists the columns of a stage export in display order.
func StageColumns(stage workflow.Stage) []Column {
	cols := []Column{
		{"Reg ID", "reg_id"},
		{"IP Name", "ip_name"},
		{"District", "district"},
		{"Block", "block"},
		{"Village", "village"},
		{"Beneficiary Name", "beneficiary_name"},
		{"Father's Name", "father_name"},
		{"Mobile Number", "mobile_number"},
		{"Pump Capacity", "pump_capacity"},
		{"Pump Head", "pump_head"},
		{"Planned", stage.PlannedColumn()},
		{"Actual", stage.ActualColumn()},
	}
	for _, c := range stage.Columns {
		cols = append(cols, Column{Header: c, Field: c})
	}
	if stage.AttachmentColumn != "" {
		cols = append(cols, Column{Header: stage.AttachmentColumn, Field: stage.AttachmentColumn})
	}
	cols = append(cols, Column{"Remarks", "remarks"})
	return cols
}

// StageWorkbook writes rows of one stage bucket into a single-sheet workbook.
// Delay columns are appended after the stage columns.
func StageWorkbook(stage workflow.Stage, rows []workflow.ViewRow) ([]byte, error) {
	cols := StageColumns(stage)
	headers := make([]string, 0, len(cols)+2)
	for _, c := range cols {
		headers = append(headers, c.Header)
	}
	headers = append(headers, "Status", "Delay (days)")

	records := make([][]interface{}, 0, len(rows))
	for _, row := range rows {
		record := make([]interface{}, 0, len(headers))
		for _, c := range cols {
			v, _ := row.Field(c.Field)
			record = append(record, v)
		}
		record = append(record, row.Status.String())
		if row.Delay.Known {
			record = append(record, row.Delay.Days)
		} else {
			record = append(record, "")
		}
		records = append(records, record)
	}
	return writeSheet(stage.Page, headers, records)
}

// DashboardWorkbook writes group summaries followed by one totals row.
func DashboardWorkbook(d *workflow.Dashboard) ([]byte, error) {
	headers := []string{
		"Company", "District", "Total Beneficiaries", "Sanction",
		"Foundation Dispatch", "Foundation Complete",
		"Installation Dispatch", "Installation Complete", "Payment Done",
	}
	records := make([][]interface{}, 0, len(d.Summaries)+1)
	for _, s := range d.Summaries {
		records = append(records, []interface{}{
			s.Company, s.District, s.TotalBeneficiaries, s.Sanction,
			s.FoundationDispatch, s.FoundationComplete,
			s.InstallationDispatch, s.InstallationComplete, s.PaymentDone,
		})
	}
	records = append(records,
		[]interface{}{"Total Projects", d.Totals.TotalProjects, "Total Sanctioned", d.Totals.TotalSanctioned, "Completion Rate (%)", d.Totals.CompletionRate},
	)
	return writeSheet("Dashboard", headers, records)
}

// writeSheet 生成单工作表的 Excel 文件
func writeSheet(sheetName string, headers []string, records [][]interface{}) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	if sheetName != "Sheet1" {
		if err := f.DeleteSheet("Sheet1"); err != nil {
			return nil, fmt.Errorf("failed to delete default sheet: %w", err)
		}
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for col, header := range headers {
		if err := setCellValue(f, sheetName, col+1, 1, header); err != nil {
			return nil, err
		}
	}
	last, err := excelize.CoordinatesToCellName(len(headers), 1)
	if err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(sheetName, "A1", last, headerStyle); err != nil {
		return nil, fmt.Errorf("failed to set header style: %w", err)
	}
	lastCol, err := excelize.ColumnNumberToName(len(headers))
	if err != nil {
		return nil, err
	}
	if err := f.SetColWidth(sheetName, "A", lastCol, 18); err != nil {
		return nil, fmt.Errorf("failed to set column width: %w", err)
	}

	for i, record := range records {
		for j, value := range record {
			if value == nil || value == "" {
				continue
			}
			if err := setCellValue(f, sheetName, j+1, i+2, value); err != nil {
				return nil, fmt.Errorf("failed to set cell at row %d: %w", i+2, err)
			}
		}
	}

	// 冻结表头
	if err := f.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return nil, fmt.Errorf("failed to freeze panes: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func setCellValue(f *excelize.File, sheet string, col, row int, value interface{}) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	return f.SetCellValue(sheet, cell, value)
}
