// Package export writes loaded records to a flat CSV file for inspection.
package export

import (
	"bufio"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/teranos/paysync/errors"
	"github.com/teranos/paysync/normalize"
)

// ProfileHeaders is the header row of the profile export
var ProfileHeaders = []string{
	"Facility Name", "Department", "Department Code", "Employee First Name", "Employee Middle Name",
	"Employee Last Name", "Hire Date", "Rehire Date", "Termination Date", "Leave Date",
	"Seniority Date", "Position", "Position ID", "Employee ID", "Status", "Status Type",
	"Email", "Pay Type", "Hourly Rate",
}

// CheckHeaders is the header row of the check export
var CheckHeaders = []string{
	"Facility Name", "Department", "Department Code", "Employee First Name", "Employee Last Name",
	"Position", "Position Code", "Employee ID", "Hours", "Dollars", "Earning Code",
	"Earning Group", "Check Date", "Period End Date", "Check Type", "Check Number",
}

// FileName returns the export file name of a mode
func FileName(mode string) string {
	return fmt.Sprintf("paysync_%s.csv", mode)
}

// Writer appends records to one CSV file with every field quoted
type Writer struct {
	mu   sync.Mutex
	file *os.File
	buf  *bufio.Writer
	path string
	rows int
}

// Create truncates dir/paysync_<mode>.csv and writes the header row
func Create(dir, mode string, headers []string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrapf(err, "create export directory %s", dir)
	}
	path := filepath.Join(dir, FileName(mode))
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "create export file %s", path)
	}

	w := &Writer{file: f, buf: bufio.NewWriter(f), path: path}
	if err := writeQuoted(w.buf, headers); err != nil {
		f.Close()
		return nil, errors.Wrap(err, "write header")
	}
	if err := w.buf.Flush(); err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "flush %s", path)
	}
	return w, nil
}

// Path returns the file being written
func (w *Writer) Path() string { return w.path }

// Rows returns the number of data rows written
func (w *Writer) Rows() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rows
}

// WriteProfile appends a profile row. Type-B rows have an empty hourly rate.
func (w *Writer) WriteProfile(variant normalize.Variant, rec normalize.ProfileRecord) error {
	rate := ""
	if variant == normalize.VariantA {
		rate = formatFloat(rec.HourlyRate)
	}
	return w.write([]string{
		rec.FacilityName, rec.Department, rec.DepartmentCode, rec.EmployeeFirstName, rec.EmployeeMiddleName,
		rec.EmployeeLastName, date(rec.HireDate), date(rec.RehireDate), date(rec.TerminationDate), date(rec.LeaveDate),
		date(rec.SeniorityDate), rec.Position, rec.PositionID, rec.EmployeeID, rec.Status, rec.StatusType,
		rec.Email, rec.PayType, rate,
	})
}

// WriteCheckLine appends a check line row
func (w *Writer) WriteCheckLine(rec normalize.CheckLineRecord) error {
	return w.write([]string{
		rec.FacilityName, rec.Department, rec.DepartmentCode, rec.EmployeeFirstName, rec.EmployeeLastName,
		rec.Position, rec.PositionCode, rec.EmployeeID, formatFloat(rec.Hours), formatFloat(rec.Dollars), rec.EarningCode,
		rec.EarningGroup, date(rec.CheckDate), date(rec.PeriodEndDate), rec.CheckType, rec.CheckNumber,
	})
}

func (w *Writer) write(fields []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := writeQuoted(w.buf, fields); err != nil {
		return errors.Wrapf(err, "write %s", w.path)
	}
	// Check mode never closes the writer, so every row reaches the file at once
	if err := w.buf.Flush(); err != nil {
		return errors.Wrapf(err, "flush %s", w.path)
	}
	w.rows++
	return nil
}

// Close flushes and closes the file
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.buf.Flush(); err != nil {
		w.file.Close()
		return errors.Wrapf(err, "flush %s", w.path)
	}
	return w.file.Close()
}

// writeQuoted writes one record with every field quoted and inner quotes doubled
func writeQuoted(w io.Writer, fields []string) error {
	var b strings.Builder
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(strings.ReplaceAll(f, `"`, `""`))
		b.WriteByte('"')
	}
	b.WriteString("\r\n")
	_, err := io.WriteString(w, b.String())
	return err
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func date(d sql.NullString) string {
	if !d.Valid {
		return ""
	}
	return d.String
}
