package utils

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"

	"github.com/renowix/surveyor-api/calc"
	"github.com/renowix/surveyor-api/models"
)

// ExportRow is one line of the flat export: one row per measurement item.
type ExportRow struct {
	ServiceName string  `json:"service_name"`
	RoomLabel   string  `json:"room_label"`
	Quantity    float64 `json:"quantity"`
	Unit        string  `json:"unit"`
	Rate        float64 `json:"rate"`
	Cost        float64 `json:"cost"`
}

// FlattenProject derives the flat line-item representation of a project:
// every measurement item of every service becomes one row, in document
// order. Quantities and costs are the stored snapshots, untouched.
func FlattenProject(project *models.Project) []ExportRow {
	rows := []ExportRow{}
	for i := range project.Services {
		svc := &project.Services[i]
		for _, item := range svc.Items {
			rows = append(rows, ExportRow{
				ServiceName: svc.Name,
				RoomLabel:   item.Name,
				Quantity:    item.NetArea,
				Unit:        svc.Unit,
				Rate:        item.Rate,
				Cost:        item.Cost,
			})
		}
	}
	return rows
}

// WriteCSV renders export rows as CSV with a header line. Costs are rounded
// to whole currency units here, at the presentation boundary.
func WriteCSV(rows []ExportRow) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write([]string{"Service", "Room", "Quantity", "Unit", "Rate", "Cost"}); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, row := range rows {
		record := []string{
			row.ServiceName,
			row.RoomLabel,
			strconv.FormatFloat(row.Quantity, 'f', 2, 64),
			row.Unit,
			strconv.FormatFloat(row.Rate, 'f', 2, 64),
			strconv.FormatFloat(calc.RoundCurrency(row.Cost), 'f', 0, 64),
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush CSV: %w", err)
	}

	return buf.Bytes(), nil
}
