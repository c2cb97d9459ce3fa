package db

import (
	"context"

	"github.com/teranos/paysync/errors"
)

// Report tables written by the loader
const (
	TableProfileTypeA = "employee_list_type_1"
	TableProfileTypeB = "employee_list_type_2"
	TableCheckLines   = "employee_checks"
)

// ReportTables lists the report tables in display order
var ReportTables = []string{TableProfileTypeA, TableProfileTypeB, TableCheckLines}

// TableCount is the row count of one table
type TableCount struct {
	Table string
	Rows  int64
}

// CountReportRows returns the row count of every report table
func CountReportRows(ctx context.Context, s *Session) ([]TableCount, error) {
	db := s.DB()
	if db == nil {
		return nil, ErrSessionClosed
	}

	counts := make([]TableCount, 0, len(ReportTables))
	for _, table := range ReportTables {
		var n int64
		// Table names come from the fixed list above
		if err := db.GetContext(ctx, &n, "SELECT COUNT(*) FROM "+table); err != nil {
			return nil, errors.Wrapf(err, "count %s", table)
		}
		counts = append(counts, TableCount{Table: table, Rows: n})
	}
	return counts, nil
}
