package attendance

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/hitoshi/attendman/internal/model"
)

const (
	csvDateLayout = "2006-01-02"
	csvTimeLayout = "15:04:05"
)

var csvHeader = []string{"Name", "Date", "Sign In", "Sign Out"}

// WriteCSV は出退勤記録をCSVとしてwに書き出す。
// 時刻はlocで表示し、未退勤の記録のSign Outは空欄にする。
func WriteCSV(w io.Writer, rows []model.AttendanceRow, loc *time.Location) error {
	if loc == nil {
		loc = time.Local
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}

	for _, row := range rows {
		signOut := ""
		if row.SignOut != nil {
			signOut = row.SignOut.In(loc).Format(csvTimeLayout)
		}
		record := []string{
			row.EmployeeName,
			row.WorkDate.Format(csvDateLayout),
			row.SignIn.In(loc).Format(csvTimeLayout),
			signOut,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush csv: %w", err)
	}
	return nil
}
