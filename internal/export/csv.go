// Package export renders call listings as CSV for download.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"machine-alert-backend/internal/calls"
)

// ContentType of the rendered export.
const ContentType = "text/csv; charset=utf-8"

var header = []string{
	"Nº DE MÁQUINA",
	"FECHA",
	"HORA LLAMADA",
	"DURACIÓN (MIN)",
	"TIPO",
	"TIEMPO RESTANTE",
	"ESTATUS",
	"CREADO POR",
	"HORA TAREA TERMINADA",
}

// WriteCSV writes one row per call. Times are shown in loc.
func WriteCSV(w io.Writer, views []calls.CallView, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, v := range views {
		if err := cw.Write(row(v, loc)); err != nil {
			return fmt.Errorf("failed to write csv row for call %s: %w", v.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Filename is the suggested download name for an export taken at now.
func Filename(now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return "llamadas_" + now.In(loc).Format(time.DateOnly) + ".csv"
}

func row(v calls.CallView, loc *time.Location) []string {
	names := make([]string, 0, len(v.Machines))
	for _, m := range v.Machines {
		names = append(names, m.Name)
	}
	machine := strings.Join(names, ", ")
	if machine == "" {
		machine = calls.MissingName
	}

	completed := calls.MissingName
	if v.CompletionTime != nil {
		completed = v.CompletionTime.In(loc).Format(time.TimeOnly)
	}
	createdBy := v.CreatedBy
	if createdBy == "" {
		createdBy = calls.MissingName
	}

	return []string{
		machine,
		v.Date,
		v.CallTime.In(loc).Format(time.TimeOnly),
		strconv.Itoa(v.Duration),
		strings.ToUpper(string(v.CallType)),
		FormatRemaining(v.RemainingTime),
		string(v.Status),
		createdBy,
		completed,
	}
}

// FormatRemaining renders seconds as m:ss.
func FormatRemaining(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
