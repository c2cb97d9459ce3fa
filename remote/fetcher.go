// Package remote walks the payroll API's hypermedia resource graph.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/paysync/errors"
)

// maxErrorBody bounds how much of a failed response is kept for logging
const maxErrorBody = 64 << 10

// Getter issues authenticated GETs against the API
type Getter interface {
	Get(ctx context.Context, url string) (*http.Response, error)
}

// StatusError is a non-2xx response
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: status %d", e.URL, e.StatusCode)
}

// Fetcher decodes API resources
type Fetcher struct {
	client  Getter
	baseURL string
	logger  *zap.SugaredLogger
}

// NewFetcher creates a fetcher rooted at baseURL
func NewFetcher(client Getter, baseURL string, logger *zap.SugaredLogger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Fetcher{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

// BaseURL returns the API root without a trailing slash
func (f *Fetcher) BaseURL() string { return f.baseURL }

// GetJSON fetches url and decodes the body into out.
// A non-2xx status is logged with its body and returned as *StatusError.
func (f *Fetcher) GetJSON(ctx context.Context, url string, out interface{}) error {
	resp, err := f.client.Get(ctx, url)
	if err != nil {
		return errors.Wrapf(err, "GET %s", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		f.logger.Errorw("Request failed",
			"url", url,
			"status", resp.StatusCode,
			"body", string(body),
		)
		return &StatusError{URL: url, StatusCode: resp.StatusCode, Body: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "decode %s", url)
	}
	return nil
}

// FetchCollection fetches one page of a collection.
// next is empty when the page is the last one.
func FetchCollection[T any](ctx context.Context, f *Fetcher, url string) ([]T, string, error) {
	var page Page[T]
	if err := f.GetJSON(ctx, url, &page); err != nil {
		return nil, "", err
	}
	next := ""
	if page.NextPageURL != nil {
		next = *page.NextPageURL
	}
	return page.Results, next, nil
}

// Clients returns a pager over the client list
func (f *Fetcher) Clients() *Pager[Client] {
	return NewPager[Client](f, f.baseURL+"/clients")
}

// ClientDetail fetches a client's lookup tables
func (f *Fetcher) ClientDetail(ctx context.Context, clientID string) (*ClientDetail, error) {
	var detail ClientDetail
	url := fmt.Sprintf("%s/clients/%s?includeDetails=True", f.baseURL, clientID)
	if err := f.GetJSON(ctx, url, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// EmployeesURL derives a client's employee collection from its self link
func EmployeesURL(c Client) (string, bool) {
	self, ok := FollowRelation(c.Links, RelSelf)
	if !ok {
		return "", false
	}
	return strings.TrimRight(self, "/") + "/employees", true
}

// EmployeesPageURL constructs the URL of one employee page for resuming
func EmployeesPageURL(baseURL, clientID string, page int) string {
	return fmt.Sprintf("%s/clients/%s/employees?page=%d", strings.TrimRight(baseURL, "/"), clientID, page)
}

// Employees returns a pager over an employee collection starting at url
func (f *Fetcher) Employees(url string) *Pager[Employee] {
	return NewPager[Employee](f, url)
}

func selfLink(links []Link, what string) (string, error) {
	self, ok := FollowRelation(links, RelSelf)
	if !ok {
		return "", errors.Wrapf(errors.ErrNotFound, "%s has no self link", what)
	}
	return strings.TrimRight(self, "/"), nil
}

// EmployeeJobs fetches the employee's jobs, a plain JSON array
func (f *Fetcher) EmployeeJobs(ctx context.Context, e Employee) ([]Job, error) {
	self, err := selfLink(e.Links, "employee")
	if err != nil {
		return nil, err
	}
	var jobs []Job
	if err := f.GetJSON(ctx, self+"/jobs", &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// EmployeeDetail fetches the employee resource behind the self link
func (f *Fetcher) EmployeeDetail(ctx context.Context, e Employee) (*EmployeeDetail, error) {
	self, err := selfLink(e.Links, "employee")
	if err != nil {
		return nil, err
	}
	var detail EmployeeDetail
	if err := f.GetJSON(ctx, self, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// CheckPager returns a pager over the employee's checks.
// ok is false when the employee carries no Checks relation.
func (f *Fetcher) CheckPager(e Employee) (*Pager[CheckSummary], bool) {
	url, ok := FollowRelation(e.Links, RelChecks)
	if !ok {
		return nil, false
	}
	return NewPager[CheckSummary](f, url), true
}

// Checks collects every check summary of the employee.
// On a failed page the summaries gathered so far are returned with the error.
func (f *Fetcher) Checks(ctx context.Context, e Employee) ([]CheckSummary, error) {
	pager, ok := f.CheckPager(e)
	if !ok {
		return nil, nil
	}
	var all []CheckSummary
	for {
		items, more, err := pager.Next(ctx)
		if err != nil {
			return all, err
		}
		if !more {
			return all, nil
		}
		all = append(all, items...)
	}
}

// CheckDetail fetches the check behind the summary's self link
func (f *Fetcher) CheckDetail(ctx context.Context, c CheckSummary) (*Check, error) {
	self, err := selfLink(c.Links, "check")
	if err != nil {
		return nil, err
	}
	var check Check
	if err := f.GetJSON(ctx, self, &check); err != nil {
		return nil, err
	}
	return &check, nil
}
