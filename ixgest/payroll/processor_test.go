package payroll

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/paysync/auth"
	"github.com/teranos/paysync/db"
	"github.com/teranos/paysync/errors"
	"github.com/teranos/paysync/internal/httpclient"
	testutil "github.com/teranos/paysync/internal/testing"
	"github.com/teranos/paysync/load"
	"github.com/teranos/paysync/normalize"
	"github.com/teranos/paysync/remote"
)

// fakeAPI serves JSON bodies by request URI. {{base}} in a body is replaced
// with the server URL so hypermedia links point back at the fake.
type fakeAPI struct {
	*httptest.Server
	mu          sync.Mutex
	routes      map[string]string
	status      map[string]int
	hits        map[string]int
	tokenStatus int

	// clock moves forward by advance[uri] each time uri is served
	clock   time.Time
	advance map[string]time.Duration
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	a := &fakeAPI{
		routes:      defaultRoutes(),
		status:      map[string]int{},
		hits:        map[string]int{},
		tokenStatus: http.StatusOK,
		clock:       testNow,
		advance:     map[string]time.Duration{},
	}
	a.Server = httptest.NewServer(http.HandlerFunc(a.serve))
	t.Cleanup(a.Close)
	return a
}

func (a *fakeAPI) serve(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	key := r.URL.RequestURI()
	a.hits[key]++
	body, ok := a.routes[key]
	code, failing := a.status[key]
	tokenStatus := a.tokenStatus
	a.clock = a.clock.Add(a.advance[key])
	a.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if r.URL.Path == "/token" {
		if tokenStatus != http.StatusOK {
			w.WriteHeader(tokenStatus)
			fmt.Fprint(w, `{"error":"invalid_client"}`)
			return
		}
		fmt.Fprint(w, `{"access_token":"tok","token_type":"bearer","expires_in":3600}`)
		return
	}
	if r.Header.Get("Authorization") != "Bearer tok" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if failing {
		w.WriteHeader(code)
		fmt.Fprint(w, `{"message":"boom"}`)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	fmt.Fprint(w, strings.ReplaceAll(body, "{{base}}", a.URL))
}

func (a *fakeAPI) set(uri, body string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.routes[uri] = body
}

func (a *fakeAPI) fail(uri string, code int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.status[uri] = code
}

func (a *fakeAPI) now() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.clock
}

func (a *fakeAPI) elapseOn(uri string, d time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.advance[uri] = d
}

func (a *fakeAPI) hitsFor(uri string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.hits[uri]
}

func employeeJSON(id int, legalCode string) string {
	return fmt.Sprintf(`{"id":%d,"employeeNumber":"E%d","legalCode":"%s","links":[
		{"rel":"self","href":"{{base}}/employees/%d"},
		{"rel":"Checks","href":"{{base}}/employees/%d/checks"}]}`, id, id, legalCode, id, id)
}

const jobsD1P1 = `[{"organizations":[
	{"clientOrganizationField":{"title":"Department"},"organizationValue":"D1"},
	{"clientOrganizationField":{"title":"Position"},"organizationValue":"P1"}]}]`

// defaultRoutes: client 83 with two employees. Employee 1 works at Acme
// Health with one check; employee 2 belongs to an exception facility.
func defaultRoutes() map[string]string {
	return map[string]string{
		"/clients": `{"results":[{"id":83,"links":[{"rel":"self","href":"{{base}}/clients/83"}]}],"nextPageUrl":null}`,
		"/clients/83?includeDetails=True": `{"id":83,
			"organizations":[
				{"title":"Department","lookups":[{"code":"D1","description":"Nursing"}]},
				{"title":"Position","lookups":[{"code":"P1","description":"RN"}]}],
			"legalCompanies":[
				{"legalCode":"ACME","legalName":"Acme Health"},
				{"legalCode":"BHC1","legalName":"Beecan Health LLC"}]}`,
		"/clients/83/employees": `{"results":[` + employeeJSON(1, "ACME") + `,` + employeeJSON(2, "BHC1") + `],"nextPageUrl":null}`,

		"/employees/1/jobs": jobsD1P1,
		"/employees/1": `{"id":1,"employeeNumber":"E1","legalCode":"ACME",
			"nameAddress":{"firstName":"Mary","middleName":null,"lastName":"O'Brien"},
			"hireDate":"2020-01-02T00:00:00","employmentStatus":"Active","hourlyRate":31.5}`,
		"/employees/1/checks": `{"results":[{"links":[{"rel":"self","href":"{{base}}/checks/10"}]}],"nextPageUrl":null}`,
		"/checks/10": `{"id":10,"employeeNumber":"E1","employeeName":"Mary Ann O'Brien",
			"legalCompanyName":"Acme Health","checkDate":"2023-05-05T00:00:00","checkNumber":"1001",
			"netPay":900.5,"earnings":[{"itemCode":"REG","checkHours":80,"checkDollars":1200}]}`,

		"/employees/2/jobs": `[]`,
		"/employees/2": `{"id":2,"employeeNumber":"E2","legalCode":"BHC1",
			"nameAddress":{"firstName":"Ann","lastName":"Lee"},"employmentStatus":"Terminated","hourlyRate":20}`,
		"/employees/2/checks": `{"results":[],"nextPageUrl":null}`,
	}
}

var testNow = time.Date(2023, 5, 1, 6, 30, 0, 0, time.UTC)

func newTestProcessor(t *testing.T, api *fakeAPI, mode Mode) (*Processor, *db.Session) {
	t.Helper()
	session := testutil.CreateTestDB(t)
	p, _ := newProcessorOn(t, api, mode, session, load.RetryPolicy{MaxAttempts: 1})
	return p, session
}

// newProcessorOn wires a processor over session and returns its token manager
func newProcessorOn(t *testing.T, api *fakeAPI, mode Mode, session *db.Session, policy load.RetryPolicy) (*Processor, *auth.Manager) {
	t.Helper()
	creds := auth.NewManager(api.URL, "id", "secret", api.Client(), nil)
	client, err := httpclient.New(api.URL, creds, httpclient.Options{Timeout: 5 * time.Second})
	require.NoError(t, err)
	fetcher := remote.NewFetcher(client, api.URL, nil)
	loader := load.New(session, policy, nil)

	p := NewProcessor(fetcher, creds, loader, Options{
		Mode:             mode,
		ProfileThreshold: 240 * time.Second,
		CheckThreshold:   260 * time.Second,
		ExceptionNames:   []string{"beecan health llc"},
		ExceptionCodes:   []string{"BHC", "BHCO"},
		ProgressInterval: 1,
	}, zaptest.NewLogger(t).Sugar())
	p.SetRunLog(load.NewRunStore(session))
	p.SetClock(func() time.Time { return testNow })
	return p, creds
}

func countRows(t *testing.T, s *db.Session, table string) int {
	t.Helper()
	var n int
	require.NoError(t, s.DB().Get(&n, "SELECT COUNT(*) FROM "+table))
	return n
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in   string
		want Mode
	}{
		{"profile", ModeProfile},
		{"details", ModeProfile},
		{"check", ModeCheck},
		{"checks", ModeCheck},
		{" CHECK ", ModeCheck},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseMode("payroll")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidMode))
	assert.True(t, errors.IsFatal(err))
}

func TestPageNumber(t *testing.T) {
	assert.Equal(t, 3, PageNumber("https://api/clients/83/employees?page=3"))
	assert.Equal(t, 0, PageNumber("https://api/clients/83/employees"))
	assert.Equal(t, 0, PageNumber("https://api/clients/83/employees?page=x"))
}

func TestRunOnce_Profile(t *testing.T) {
	api := newFakeAPI(t)
	p, session := newTestProcessor(t, api, ModeProfile)
	ctx := context.Background()

	result, err := p.RunOnce(ctx, Checkpoint{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Clients)
	assert.Equal(t, 2, result.Employees)
	assert.Equal(t, 2, result.Loaded)
	assert.Equal(t, 0, result.Failed)
	assert.NotEmpty(t, result.RunID)

	assert.Equal(t, 1, countRows(t, session, db.TableProfileTypeA))
	assert.Equal(t, 1, countRows(t, session, db.TableProfileTypeB))

	var row struct {
		Facility   string  `db:"facility_name"`
		Department string  `db:"department"`
		Position   string  `db:"position"`
		LastName   string  `db:"employee_last_name"`
		Status     string  `db:"status"`
		HourlyRate float64 `db:"hourly_rate"`
	}
	require.NoError(t, session.DB().Get(&row,
		"SELECT facility_name, department, position, employee_last_name, status, hourly_rate FROM "+db.TableProfileTypeA))
	assert.Equal(t, "Acme Health", row.Facility)
	assert.Equal(t, "Nursing", row.Department)
	assert.Equal(t, "RN", row.Position)
	assert.Equal(t, "O`Brien", row.LastName)
	assert.Equal(t, "A", row.Status)
	assert.Equal(t, 31.5, row.HourlyRate)

	var facilityB string
	require.NoError(t, session.DB().Get(&facilityB, "SELECT facility_name FROM "+db.TableProfileTypeB))
	assert.Equal(t, "Beecan Health LLC", facilityB)

	// Same load day: nothing new
	again, err := p.RunOnce(ctx, Checkpoint{})
	require.NoError(t, err)
	assert.Equal(t, 0, again.Loaded)
	assert.Equal(t, 2, again.Skipped)
	assert.Equal(t, 1, countRows(t, session, db.TableProfileTypeA))
	assert.Equal(t, 1, countRows(t, session, db.TableProfileTypeB))

	// Employee 2 has no job references, so its checks were consulted
	assert.Equal(t, 2, api.hitsFor("/employees/2/checks"))
	assert.Equal(t, 0, api.hitsFor("/employees/1/checks"), "job references win over checks")
}

func TestRunOnce_ProfileNextDayAddsRows(t *testing.T) {
	api := newFakeAPI(t)
	p, session := newTestProcessor(t, api, ModeProfile)
	ctx := context.Background()

	_, err := p.RunOnce(ctx, Checkpoint{})
	require.NoError(t, err)

	p.SetClock(func() time.Time { return testNow.Add(24 * time.Hour) })
	result, err := p.RunOnce(ctx, Checkpoint{})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Loaded)
	assert.Equal(t, 2, countRows(t, session, db.TableProfileTypeA))
}

func TestRunOnce_ProfileFallsBackToFirstUsableCheck(t *testing.T) {
	api := newFakeAPI(t)
	api.set("/employees/1/jobs", `[{"organizations":[]}]`)
	api.set("/employees/1/checks", `{"results":[
		{"links":[{"rel":"self","href":"{{base}}/checks/20"}]},
		{"links":[{"rel":"self","href":"{{base}}/checks/21"}]},
		{"links":[{"rel":"self","href":"{{base}}/checks/22"}]}],"nextPageUrl":null}`)
	api.fail("/checks/20", http.StatusInternalServerError)
	api.set("/checks/21", `{"id":21,"employeeOrganizations":[
		{"title":"Department","value":"D1"},{"title":"Position","value":""}]}`)

	p, session := newTestProcessor(t, api, ModeProfile)
	result, err := p.RunOnce(context.Background(), Checkpoint{})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Loaded)

	var row struct {
		Department string `db:"department"`
		Position   string `db:"position"`
	}
	require.NoError(t, session.DB().Get(&row, "SELECT department, position FROM "+db.TableProfileTypeA))
	assert.Equal(t, "Nursing", row.Department)
	assert.Empty(t, row.Position, "empty reference values are skipped")
	assert.Equal(t, 0, api.hitsFor("/checks/22"), "the first usable check wins")
}

func TestRunOnce_UnknownReferenceFailsRecord(t *testing.T) {
	api := newFakeAPI(t)
	api.set("/employees/1/jobs", `[{"organizations":[
		{"clientOrganizationField":{"title":"Department"},"organizationValue":"D9"}]}]`)

	p, session := newTestProcessor(t, api, ModeProfile)
	result, err := p.RunOnce(context.Background(), Checkpoint{})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Loaded)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, OpResolve, result.Failures[0].Op)
	assert.Equal(t, "1", result.Failures[0].EmployeeID)
	assert.True(t, errors.Is(result.Failures[0].Err, errors.ErrUnknownReference))
	assert.Equal(t, 0, countRows(t, session, db.TableProfileTypeA))
}

func TestRunOnce_Check(t *testing.T) {
	api := newFakeAPI(t)
	p, session := newTestProcessor(t, api, ModeCheck)
	ctx := context.Background()

	result, err := p.RunOnce(ctx, Checkpoint{})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Loaded, "one earning line plus net pay")
	assert.Equal(t, 1, result.Checks)
	assert.Equal(t, 2, countRows(t, session, db.TableCheckLines))

	var row struct {
		First string `db:"employee_first_name"`
		Last  string `db:"employee_last_name"`
		Dept  string `db:"department"`
	}
	require.NoError(t, session.DB().Get(&row,
		"SELECT employee_first_name, employee_last_name, department FROM "+db.TableCheckLines+" WHERE earning_group = 'NetPay'"))
	assert.Equal(t, "Mary", row.First)
	assert.Equal(t, "O`Brien", row.Last)
	assert.Equal(t, "Nursing", row.Dept)

	// Exception facility: skipped before any employee call
	assert.Equal(t, 0, api.hitsFor("/employees/2/jobs"))
	assert.Equal(t, 0, api.hitsFor("/employees/2/checks"))
	assert.Equal(t, 1, result.Skipped)

	again, err := p.RunOnce(ctx, Checkpoint{})
	require.NoError(t, err)
	assert.Equal(t, 0, again.Loaded)
	assert.Equal(t, 2, countRows(t, session, db.TableCheckLines))
}

func TestRunOnce_ResumeFromPage(t *testing.T) {
	api := newFakeAPI(t)
	api.set("/clients", `{"results":[
		{"id":80,"links":[{"rel":"self","href":"{{base}}/clients/80"}]},
		{"id":83,"links":[{"rel":"self","href":"{{base}}/clients/83"}]}],"nextPageUrl":null}`)
	api.set("/clients/83/employees?page=2", `{"results":[`+employeeJSON(1, "ACME")+`],"nextPageUrl":null}`)

	p, session := newTestProcessor(t, api, ModeProfile)
	result, err := p.RunOnce(context.Background(), Checkpoint{ClientOffset: 1, Page: 2})
	require.NoError(t, err)

	assert.Equal(t, 0, api.hitsFor("/clients/80?includeDetails=True"), "clients before the offset are skipped")
	assert.Equal(t, 1, api.hitsFor("/clients/83/employees?page=2"))
	assert.Equal(t, 0, api.hitsFor("/clients/83/employees"))
	assert.Equal(t, 1, result.Loaded)

	runs, err := load.NewRunStore(session).Recent(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, load.RunCompleted, runs[0].Status)
	assert.Equal(t, 1, runs[0].BeginClientOffset)
	assert.Equal(t, 2, runs[0].BeginPage)
	assert.Equal(t, 2, runs[0].ClientOffset, "past the last client")
	assert.Equal(t, 1, runs[0].Loaded)
}

func TestRunOnce_PageFailureContinues(t *testing.T) {
	api := newFakeAPI(t)
	api.fail("/clients/83/employees", http.StatusBadGateway)

	p, _ := newTestProcessor(t, api, ModeProfile)
	result, err := p.RunOnce(context.Background(), Checkpoint{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, OpEmployeePage, result.Failures[0].Op)

	var statusErr *remote.StatusError
	require.True(t, errors.As(result.Failures[0].Err, &statusErr))
	assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
}

func TestRunOnce_CredentialFailureIsFatal(t *testing.T) {
	api := newFakeAPI(t)
	api.tokenStatus = http.StatusUnauthorized

	p, session := newTestProcessor(t, api, ModeProfile)
	_, err := p.RunOnce(context.Background(), Checkpoint{})
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))

	runs, err := load.NewRunStore(session).Recent(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, load.RunFailed, runs[0].Status)
	assert.True(t, runs[0].Error.Valid)
}

func TestRun_StopsOnCancel(t *testing.T) {
	api := newFakeAPI(t)
	p, _ := newTestProcessor(t, api, ModeCheck)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, p.Run(ctx, Checkpoint{}))
}

func TestRun_CheckModeStopsOnCredentialFailure(t *testing.T) {
	api := newFakeAPI(t)
	api.tokenStatus = http.StatusForbidden
	p, _ := newTestProcessor(t, api, ModeCheck)

	err := p.Run(context.Background(), Checkpoint{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCredential))
}

type recordingEmitter struct {
	progress []int
	complete int
}

func (r *recordingEmitter) EmitStage(string, string) {}
func (r *recordingEmitter) EmitProgress(count int, _ map[string]interface{}) {
	r.progress = append(r.progress, count)
}
func (r *recordingEmitter) EmitComplete(map[string]interface{}) { r.complete++ }
func (r *recordingEmitter) EmitError(string, error)             {}
func (r *recordingEmitter) EmitInfo(string)                     {}

type recordingExporter struct {
	profiles int
	lines    int
}

func (r *recordingExporter) WriteProfile(_ normalize.Variant, _ normalize.ProfileRecord) error {
	r.profiles++
	return nil
}

func (r *recordingExporter) WriteCheckLine(normalize.CheckLineRecord) error {
	r.lines++
	return nil
}

func TestRunOnce_ProgressAndExport(t *testing.T) {
	api := newFakeAPI(t)
	p, _ := newTestProcessor(t, api, ModeProfile)
	emitter := &recordingEmitter{}
	exporter := &recordingExporter{}
	p.SetEmitter(emitter)
	p.SetExporter(exporter)

	_, err := p.RunOnce(context.Background(), Checkpoint{})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, emitter.progress)
	assert.Equal(t, 1, emitter.complete)
	assert.Equal(t, 2, exporter.profiles)

	// Duplicates are neither counted nor exported
	_, err = p.RunOnce(context.Background(), Checkpoint{})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, emitter.progress)
	assert.Equal(t, 2, exporter.profiles)
}

func TestRunOnce_TokenRefreshCadence(t *testing.T) {
	t.Run("profile refreshes per employee past 240s", func(t *testing.T) {
		api := newFakeAPI(t)
		p, creds := newProcessorOn(t, api, ModeProfile, testutil.CreateTestDB(t), load.RetryPolicy{MaxAttempts: 1})
		creds.SetClock(api.now)
		api.elapseOn("/clients/83/employees", 250*time.Second)

		_, err := p.RunOnce(context.Background(), Checkpoint{})
		require.NoError(t, err)
		assert.Equal(t, 2, api.hitsFor("/token"), "initial exchange plus one refresh before employee 1")
	})

	t.Run("check mode keeps a 250s token and refreshes before each check past 260s", func(t *testing.T) {
		api := newFakeAPI(t)
		api.set("/employees/1/checks", `{"results":[
			{"links":[{"rel":"self","href":"{{base}}/checks/10"}]},
			{"links":[{"rel":"self","href":"{{base}}/checks/11"}]},
			{"links":[{"rel":"self","href":"{{base}}/checks/12"}]}],"nextPageUrl":null}`)
		for _, id := range []int{11, 12} {
			api.set(fmt.Sprintf("/checks/%d", id), fmt.Sprintf(`{"id":%d,"employeeNumber":"E1","employeeName":"Mary O'Brien",
				"legalCompanyName":"Acme Health","checkDate":"2023-05-12T00:00:00","checkNumber":"10%02d",
				"netPay":100,"earnings":[{"itemCode":"OT%d","checkHours":2,"checkDollars":90}]}`, id, id, id))
		}
		p, creds := newProcessorOn(t, api, ModeCheck, testutil.CreateTestDB(t), load.RetryPolicy{MaxAttempts: 1})
		creds.SetClock(api.now)
		api.elapseOn("/clients/83/employees", 250*time.Second)
		api.elapseOn("/checks/10", 11*time.Second)
		api.elapseOn("/checks/11", 261*time.Second)

		result, err := p.RunOnce(context.Background(), Checkpoint{})
		require.NoError(t, err)
		assert.Equal(t, 3, result.Checks)
		// 250s at employee 1 and check 10: no refresh. 261s before check 11 and again before check 12.
		assert.Equal(t, 3, api.hitsFor("/token"))
	})
}

func TestRunOnce_LostStorageIsRecordedNotFatal(t *testing.T) {
	api := newFakeAPI(t)
	base := testutil.CreateTestDB(t)
	_, err := base.DB().Exec("DROP TABLE " + db.TableProfileTypeA)
	require.NoError(t, err)

	session := db.NewSession(base.DB(), func(ctx context.Context) (*sqlx.DB, error) {
		return nil, errors.New("database unreachable")
	})
	p, _ := newProcessorOn(t, api, ModeProfile, session,
		load.RetryPolicy{MaxAttempts: 2, Initial: time.Millisecond, Max: time.Millisecond})

	var result *RunResult
	require.NotPanics(t, func() {
		result, err = p.RunOnce(context.Background(), Checkpoint{})
	})
	require.NoError(t, err)
	assert.NotEmpty(t, result.RunID, "run row written before the outage")
	assert.Equal(t, 0, result.Loaded)
	assert.Equal(t, 2, result.Failed)
	for _, f := range result.Failures {
		assert.True(t, errors.Is(f.Err, errors.ErrWriteAbandoned))
	}
	assert.Nil(t, session.DB())
}
