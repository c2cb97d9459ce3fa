// Package resolve turns organization references into lookup entries.
//
// Each client declares its own code tables. Employees, jobs and checks refer
// to them by category title and code. Tables are plain values built per
// client, so nothing from one client can leak into the next.
package resolve

import (
	"github.com/teranos/paysync/errors"
	"github.com/teranos/paysync/remote"
)

// Category titles read by the record builders
const (
	TitleDepartment = "Department"
	TitlePosition   = "Position"
)

// LookupEntry is one code of an organization category
type LookupEntry struct {
	Code        string
	Description string
}

// Tables are the lookup tables of one client
type Tables struct {
	// Organizations maps category title -> code -> entry
	Organizations map[string]map[string]LookupEntry
	// Legals maps legal code -> legal (facility) name
	Legals map[string]string
}

// BuildLookupTables builds fresh tables from a client detail
func BuildLookupTables(detail *remote.ClientDetail) Tables {
	t := Tables{
		Organizations: map[string]map[string]LookupEntry{},
		Legals:        map[string]string{},
	}
	if detail == nil {
		return t
	}

	for _, org := range detail.Organizations {
		codes := make(map[string]LookupEntry, len(org.Lookups))
		for _, l := range org.Lookups {
			codes[l.Code.String()] = LookupEntry{
				Code:        l.Code.String(),
				Description: l.Description.String(),
			}
		}
		t.Organizations[org.Title.String()] = codes
	}
	for _, legal := range detail.LegalCompanies {
		t.Legals[legal.LegalCode.String()] = legal.LegalName.String()
	}
	return t
}

// Facility returns the legal name for a legal code, empty when unknown
func (t Tables) Facility(legalCode string) string {
	return t.Legals[legalCode]
}

// Reference points at one lookup entry
type Reference struct {
	Title string
	Value string
}

// Source tells where the references of a record came from
type Source int

const (
	SourceNone Source = iota
	SourceJobs
	SourceCheck
)

func (s Source) String() string {
	switch s {
	case SourceJobs:
		return "jobs"
	case SourceCheck:
		return "check"
	default:
		return "none"
	}
}

// HasJobReferences reports whether the first job carries organizations
func HasJobReferences(jobs []remote.Job) bool {
	return len(jobs) > 0 && len(jobs[0].Organizations) > 0
}

// JobReferences reads the references of the first job only
func JobReferences(jobs []remote.Job) []Reference {
	if !HasJobReferences(jobs) {
		return nil
	}
	refs := make([]Reference, 0, len(jobs[0].Organizations))
	for _, o := range jobs[0].Organizations {
		refs = append(refs, Reference{
			Title: o.ClientOrganizationField.Title.String(),
			Value: o.OrganizationValue.String(),
		})
	}
	return refs
}

// CheckReferences reads a check's own employeeOrganizations
func CheckReferences(c *remote.Check) []Reference {
	if c == nil {
		return nil
	}
	refs := make([]Reference, 0, len(c.EmployeeOrganizations))
	for _, o := range c.EmployeeOrganizations {
		refs = append(refs, Reference{Title: o.Title.String(), Value: o.Value.String()})
	}
	return refs
}

// Select applies the reference precedence: job references whenever the
// first job has organizations, otherwise whatever fallback yields.
// fallback is not called when jobs win.
func Select(jobs []remote.Job, fallback func() ([]Reference, error)) ([]Reference, Source, error) {
	if HasJobReferences(jobs) {
		return JobReferences(jobs), SourceJobs, nil
	}
	if fallback == nil {
		return nil, SourceNone, nil
	}
	refs, err := fallback()
	if err != nil {
		return nil, SourceNone, err
	}
	if len(refs) == 0 {
		return nil, SourceNone, nil
	}
	return refs, SourceCheck, nil
}

// Resolved maps category title to its resolved entry
type Resolved map[string]LookupEntry

// Get returns the entry for title, zero when the record has none
func (r Resolved) Get(title string) LookupEntry {
	return r[title]
}

// Resolve looks every reference up in the client's tables.
// References with an empty title or value are skipped. A title or code the
// client never declared is a data-integrity fault and fails the whole record.
func Resolve(refs []Reference, t Tables) (Resolved, error) {
	out := make(Resolved, len(refs))
	for _, ref := range refs {
		if ref.Title == "" || ref.Value == "" {
			continue
		}
		codes, ok := t.Organizations[ref.Title]
		if !ok {
			return nil, errors.Wrapf(errors.ErrUnknownReference, "organization %q", ref.Title)
		}
		entry, ok := codes[ref.Value]
		if !ok {
			return nil, errors.Wrapf(errors.ErrUnknownReference, "%s code %q", ref.Title, ref.Value)
		}
		out[ref.Title] = entry
	}
	return out, nil
}
