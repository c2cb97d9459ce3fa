package normalize

import (
	"database/sql"

	"github.com/teranos/paysync/remote"
	"github.com/teranos/paysync/resolve"
)

// Variant selects the profile table
type Variant int

const (
	// VariantA rows carry the hourly rate
	VariantA Variant = iota + 1
	// VariantB rows are exception facilities or employees without a facility
	VariantB
)

func (v Variant) String() string {
	switch v {
	case VariantA:
		return "type-A"
	case VariantB:
		return "type-B"
	default:
		return "unknown"
	}
}

// Earning groups of check lines
const (
	GroupGarnishments   = "Garnishments"
	GroupDeductions     = "Deductions"
	GroupDirectDeposits = "Direct Deposits"
	GroupTaxes          = "Taxes"
	GroupEarning        = "Earning"
	GroupNetPay         = "NetPay"
)

// ProfileRecord is one employee snapshot for one load day
type ProfileRecord struct {
	FacilityName       string         `db:"facility_name"`
	Department         string         `db:"department"`
	DepartmentCode     string         `db:"department_code"`
	EmployeeFirstName  string         `db:"employee_first_name"`
	EmployeeMiddleName string         `db:"employee_middle_name"`
	EmployeeLastName   string         `db:"employee_last_name"`
	HireDate           sql.NullString `db:"hire_date"`
	RehireDate         sql.NullString `db:"rehire_date"`
	TerminationDate    sql.NullString `db:"termination_date"`
	LeaveDate          sql.NullString `db:"leave_date"`     // No upstream source, always NULL
	SeniorityDate      sql.NullString `db:"seniority_date"` // No upstream source, always NULL
	Position           string         `db:"position"`
	PositionID         string         `db:"position_id"`
	SystemID           string         `db:"system_id"`
	EmployeeID         string         `db:"employee_id"`
	Status             string         `db:"status"`
	StatusType         string         `db:"status_type"`
	Email              string         `db:"email"`
	PayType            string         `db:"pay_type"`
	HourlyRate         float64        `db:"hourly_rate"` // Stored for type-A only
	LoadDate           string         `db:"load_date"`
}

// CheckLineRecord is one earning, deduction or payment line of a check
type CheckLineRecord struct {
	FacilityName      string         `db:"facility_name"`
	Department        string         `db:"department"`
	DepartmentCode    string         `db:"department_code"`
	EmployeeFirstName string         `db:"employee_first_name"`
	EmployeeLastName  string         `db:"employee_last_name"`
	Position          string         `db:"position"`
	PositionCode      string         `db:"position_code"`
	SystemID          string         `db:"system_id"`
	EmployeeID        string         `db:"employee_id"`
	Hours             float64        `db:"hours"`
	Dollars           float64        `db:"dollars"`
	EarningCode       string         `db:"earning_code"`
	EarningGroup      string         `db:"earning_group"`
	CheckDate         sql.NullString `db:"check_date"`
	PeriodEndDate     sql.NullString `db:"period_end_date"`
	CheckType         string         `db:"check_type"`
	CheckNumber       string         `db:"check_number"`
	LoadDate          string         `db:"load_date"`
}

// ClassifyProfile builds the profile record of an employee and picks its table.
// The facility is the legal name of the employee's legal code; type-A applies
// when it is known and not an exception facility.
func ClassifyProfile(detail *remote.EmployeeDetail, resolved resolve.Resolved, legals map[string]string, exceptions ExceptionSet, loadDate string) (Variant, ProfileRecord) {
	facility := Clean(legals[detail.LegalCode.String()])
	department := resolved.Get(resolve.TitleDepartment)
	position := resolved.Get(resolve.TitlePosition)

	rec := ProfileRecord{
		FacilityName:       facility,
		Department:         Clean(department.Description),
		DepartmentCode:     Clean(department.Code),
		EmployeeFirstName:  Text(detail.NameAddress.FirstName),
		EmployeeMiddleName: Text(detail.NameAddress.MiddleName),
		EmployeeLastName:   Text(detail.NameAddress.LastName),
		HireDate:           Date(detail.HireDate),
		RehireDate:         Date(detail.RehireDate),
		TerminationDate:    Date(detail.TerminationDate),
		Position:           Clean(position.Description),
		PositionID:         Clean(position.Code),
		SystemID:           Text(detail.ID),
		EmployeeID:         Text(detail.EmployeeNumber),
		Status:             StatusCode(Text(detail.EmploymentStatus)),
		StatusType:         Text(detail.EmploymentCategoryCode),
		Email:              Text(detail.EmailAddress),
		PayType:            Text(detail.PayType),
		HourlyRate:         Number(detail.HourlyRate),
		LoadDate:           loadDate,
	}

	if facility != "" && !exceptions.Contains(facility) {
		return VariantA, rec
	}
	rec.HourlyRate = 0
	return VariantB, rec
}

// ClassifyCheckLines expands a check into one line per item of every earning
// group plus a NetPay line with an empty code and zero hours.
func ClassifyCheckLines(check *remote.Check, resolved resolve.Resolved, loadDate string) []CheckLineRecord {
	department := resolved.Get(resolve.TitleDepartment)
	position := resolved.Get(resolve.TitlePosition)
	first, last := SplitName(Text(check.EmployeeName))

	base := CheckLineRecord{
		FacilityName:      Text(check.LegalCompanyName),
		Department:        Clean(department.Description),
		DepartmentCode:    Clean(department.Code),
		EmployeeFirstName: first,
		EmployeeLastName:  last,
		Position:          Clean(position.Description),
		PositionCode:      Clean(position.Code),
		SystemID:          Text(check.ID),
		EmployeeID:        Text(check.EmployeeNumber),
		CheckDate:         Date(check.CheckDate),
		PeriodEndDate:     Date(check.PeriodEndDate),
		CheckType:         Text(check.CheckTypeDescription),
		CheckNumber:       Text(check.CheckNumber),
		LoadDate:          loadDate,
	}

	line := func(group, code string, hours, dollars float64) CheckLineRecord {
		rec := base
		rec.EarningGroup = group
		rec.EarningCode = code
		rec.Hours = hours
		rec.Dollars = dollars
		return rec
	}

	n := len(check.Garnishments) + len(check.Deductions) + len(check.DirectDeposits) +
		len(check.Taxes) + len(check.Earnings) + 1
	lines := make([]CheckLineRecord, 0, n)

	for _, item := range check.Garnishments {
		lines = append(lines, line(GroupGarnishments, Text(item.ItemCode), Number(item.CheckHours), Number(item.CheckDollars)))
	}
	for _, item := range check.Deductions {
		lines = append(lines, line(GroupDeductions, Text(item.ItemCode), Number(item.CheckHours), Number(item.CheckDollars)))
	}
	for _, dd := range check.DirectDeposits {
		lines = append(lines, line(GroupDirectDeposits, Text(dd.ItemDescription), 0.0, Number(dd.DepositAmount)))
	}
	for _, item := range check.Taxes {
		lines = append(lines, line(GroupTaxes, codeOrDescription(item), Number(item.CheckHours), Number(item.CheckDollars)))
	}
	for _, item := range check.Earnings {
		lines = append(lines, line(GroupEarning, codeOrDescription(item), Number(item.CheckHours), Number(item.CheckDollars)))
	}
	lines = append(lines, line(GroupNetPay, "", 0.0, Number(check.NetPay)))

	return lines
}

func codeOrDescription(item remote.CheckItem) string {
	if code := Text(item.ItemCode); code != "" {
		return code
	}
	return Text(item.ItemDescription)
}
