package remote

// Relation names used by the payroll API
const (
	RelSelf      = "self"
	RelEmployees = "Employees"
	RelChecks    = "Checks"
)

// Link is one hypermedia link
type Link struct {
	Rel  string `json:"rel"`
	Href string `json:"href"`
}

// FollowRelation returns the href of the first link whose rel matches exactly
func FollowRelation(links []Link, rel string) (string, bool) {
	for _, l := range links {
		if l.Rel == rel && l.Href != "" {
			return l.Href, true
		}
	}
	return "", false
}

// Page is one page of a collection
type Page[T any] struct {
	Results     []T     `json:"results"`
	NextPageURL *string `json:"nextPageUrl"`
}

// Client is a tenant as it appears in the client list
type Client struct {
	ID    Scalar `json:"id"`
	Links []Link `json:"links"`
}

// ClientDetail carries the client's lookup tables
type ClientDetail struct {
	ID             Scalar         `json:"id"`
	Organizations  []Organization `json:"organizations"`
	LegalCompanies []LegalCompany `json:"legalCompanies"`
}

// Organization is one organization category with its code table
type Organization struct {
	Title   Scalar   `json:"title"`
	Lookups []Lookup `json:"lookups"`
}

// Lookup is one code in an organization category
type Lookup struct {
	Code        Scalar `json:"code"`
	Description Scalar `json:"description"`
}

// LegalCompany maps a legal code to the facility name
type LegalCompany struct {
	LegalCode Scalar `json:"legalCode"`
	LegalName Scalar `json:"legalName"`
}

// Employee is an item of a client's employee collection
type Employee struct {
	ID             Scalar `json:"id"`
	EmployeeNumber Scalar `json:"employeeNumber"`
	LegalCode      Scalar `json:"legalCode"`
	Links          []Link `json:"links"`
}

// NameAddress holds the name parts of an employee detail
type NameAddress struct {
	FirstName  Scalar `json:"firstName"`
	MiddleName Scalar `json:"middleName"`
	LastName   Scalar `json:"lastName"`
}

// EmployeeDetail is the employee resource behind the self link
type EmployeeDetail struct {
	ID                     Scalar      `json:"id"`
	EmployeeNumber         Scalar      `json:"employeeNumber"`
	LegalCode              Scalar      `json:"legalCode"`
	NameAddress            NameAddress `json:"nameAddress"`
	HireDate               Scalar      `json:"hireDate"`
	RehireDate             Scalar      `json:"rehireDate"`
	TerminationDate        Scalar      `json:"terminationDate"`
	EmploymentStatus       Scalar      `json:"employmentStatus"`
	EmploymentCategoryCode Scalar      `json:"employmentCategoryCode"`
	EmailAddress           Scalar      `json:"emailAddress"`
	PayType                Scalar      `json:"payType"`
	HourlyRate             Scalar      `json:"hourlyRate"`
}

// Job is one employee assignment
type Job struct {
	Organizations []JobOrganization `json:"organizations"`
}

// JobOrganization references a lookup by category title and code
type JobOrganization struct {
	ClientOrganizationField struct {
		Title Scalar `json:"title"`
	} `json:"clientOrganizationField"`
	OrganizationValue Scalar `json:"organizationValue"`
}

// CheckSummary is an item of an employee's check collection
type CheckSummary struct {
	Links []Link `json:"links"`
}

// Check is one paycheck with its line collections
type Check struct {
	ID                    Scalar              `json:"id"`
	EmployeeNumber        Scalar              `json:"employeeNumber"`
	EmployeeName          Scalar              `json:"employeeName"`
	LegalCompanyName      Scalar              `json:"legalCompanyName"`
	CheckDate             Scalar              `json:"checkDate"`
	PeriodEndDate         Scalar              `json:"periodEndDate"`
	CheckTypeDescription  Scalar              `json:"checkTypeDescription"`
	CheckNumber           Scalar              `json:"checkNumber"`
	NetPay                Scalar              `json:"netPay"`
	EmployeeOrganizations []CheckOrganization `json:"employeeOrganizations"`
	Garnishments          []CheckItem         `json:"garnishments"`
	Deductions            []CheckItem         `json:"deductions"`
	Taxes                 []CheckItem         `json:"taxes"`
	Earnings              []CheckItem         `json:"earnings"`
	DirectDeposits        []DirectDeposit     `json:"directDeposits"`
}

// IsEmpty reports whether the check payload carried no details
func (c *Check) IsEmpty() bool {
	return c == nil || (!c.ID.Valid() && len(c.EmployeeOrganizations) == 0 &&
		len(c.Garnishments) == 0 && len(c.Deductions) == 0 && len(c.Taxes) == 0 &&
		len(c.Earnings) == 0 && len(c.DirectDeposits) == 0 && !c.NetPay.Valid())
}

// CheckOrganization references a lookup from the check itself
type CheckOrganization struct {
	Title Scalar `json:"title"`
	Value Scalar `json:"value"`
}

// CheckItem is a garnishment, deduction, tax or earning line
type CheckItem struct {
	ItemCode        Scalar `json:"itemCode"`
	ItemDescription Scalar `json:"itemDescription"`
	CheckHours      Scalar `json:"checkHours"`
	CheckDollars    Scalar `json:"checkDollars"`
}

// DirectDeposit is a direct deposit line
type DirectDeposit struct {
	ItemDescription Scalar `json:"itemDescription"`
	DepositAmount   Scalar `json:"depositAmount"`
}
