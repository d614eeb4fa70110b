package job

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"commcell/internal/apperrors"
	"commcell/internal/commcell"
	"commcell/internal/transport"
)

// controllerCell extends the scripted backend with a client directory
// and a QCommand endpoint.
type controllerCell struct {
	*fakeCell
	qcommandBody string
	lastQCommand []byte
}

func newControllerCell() *controllerCell {
	return &controllerCell{fakeCell: newFakeCell()}
}

func (c *controllerCell) handler() http.HandlerFunc {
	inner := c.fakeCell.handler()
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/Client":
			c.mu.Lock()
			c.counts["clients"]++
			c.mu.Unlock()
			io.WriteString(w, `{"clientProperties":[{"client":{"clientEntity":{"clientName":"server01","clientId":2}}}]}`)
		case "/QCommand":
			c.mu.Lock()
			c.counts["qcommand"]++
			c.lastQCommand, _ = io.ReadAll(r.Body)
			body := c.qcommandBody
			c.mu.Unlock()
			if body == "" {
				body = `{"error":{"errorCode":0}}`
			}
			io.WriteString(w, body)
		case "/Jobs/Summary":
			c.mu.Lock()
			c.counts["jobs_summary"]++
			c.mu.Unlock()
			io.WriteString(w, `{"runningJobs":3,"suspendedJobs":1,"queuedJobs":0,"waitingJobs":2,"anomalousJobs":0}`)
		default:
			inner(w, r)
		}
	}
}

func newTestController(t *testing.T, c *controllerCell) *Controller {
	t.Helper()
	srv := httptest.NewServer(c.handler())
	t.Cleanup(srv.Close)
	rq := transport.NewHTTPRequester(srv.URL, "token", 5*time.Second, nil)
	session := commcell.NewSession(rq, commcell.Config{CommservName: "cs01"})
	return NewController(session, fastOptions())
}

func (c *controllerCell) lastListJSON(t *testing.T) map[string]any {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	var parsed map[string]any
	require.NoError(t, json.Unmarshal(c.lastListRequest, &parsed))
	return parsed
}

func TestAllJobs_RequestDefaults(t *testing.T) {
	c := newControllerCell()
	ctrl := newTestController(t, c)

	_, err := ctrl.AllJobs(context.Background(), ListOptions{})
	require.NoError(t, err)

	req := c.lastListJSON(t)
	assert.Equal(t, float64(1), req["scope"])
	assert.Equal(t, float64(0), req["category"])

	paging := req["pagingConfig"].(map[string]any)
	assert.Equal(t, float64(1), paging["sortDirection"])
	assert.Equal(t, "jobId", paging["sortField"])
	assert.Equal(t, float64(20), paging["limit"])
	assert.Equal(t, float64(0), paging["offset"])

	filter := req["jobFilter"].(map[string]any)
	assert.Equal(t, float64(5*3600), filter["completedJobLookupTime"])
	assert.Equal(t, false, filter["showAgedJobs"])
	assert.Equal(t, false, filter["hideAdminJobs"])
	assert.Equal(t, []any{}, filter["jobTypeList"])
	assert.Equal(t, []any{}, filter["clientList"])
	assert.NotContains(t, filter, "entity")
}

func TestActiveJobs_FilterAndClient(t *testing.T) {
	c := newControllerCell()
	ctrl := newTestController(t, c)

	opts := ListOptions{
		JobFilter: "Backup,Restore",
		Clients:   []string{"server01"},
		Entity:    map[string]any{"dataSourceId": 2575},
	}
	_, err := ctrl.ActiveJobs(context.Background(), opts)
	require.NoError(t, err)

	req := c.lastListJSON(t)
	assert.Equal(t, float64(1), req["category"])

	filter := req["jobFilter"].(map[string]any)
	assert.Equal(t, float64(1*3600), filter["completedJobLookupTime"])
	assert.Equal(t, []any{"Backup", "Restore"}, filter["jobTypeList"])
	assert.Equal(t, []any{map[string]any{"clientId": float64(2)}}, filter["clientList"])
	assert.Equal(t, map[string]any{"dataSourceId": float64(2575)}, filter["entity"])
}

func TestFinishedJobs_Lookup(t *testing.T) {
	c := newControllerCell()
	ctrl := newTestController(t, c)

	_, err := ctrl.FinishedJobs(context.Background(), ListOptions{})
	require.NoError(t, err)

	req := c.lastListJSON(t)
	assert.Equal(t, float64(2), req["category"])
	filter := req["jobFilter"].(map[string]any)
	assert.Equal(t, float64(24*3600), filter["completedJobLookupTime"])
}

func TestList_UnknownClientFailsBeforeRequest(t *testing.T) {
	c := newControllerCell()
	ctrl := newTestController(t, c)

	_, err := ctrl.AllJobs(context.Background(), ListOptions{Clients: []string{"ghost"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	assert.Equal(t, 0, c.count("list"))
}

func TestList_FiltersInvisibleJobs(t *testing.T) {
	c := newControllerCell()
	ctrl := newTestController(t, c)

	jobs, err := ctrl.AllJobs(context.Background(), ListOptions{})
	require.NoError(t, err)

	require.Len(t, jobs, 1)
	view := jobs[11]
	assert.Equal(t, "Backup", view.Operation)
	assert.Equal(t, "Running", view.Status)
	assert.Equal(t, "Windows File System", view.AppType)
	assert.Equal(t, "Incremental", view.BackupLevel)
	assert.Equal(t, 2, view.ClientID)
	assert.Equal(t, "server01", view.ClientName)
	assert.Equal(t, 8, view.SubclientID)
	assert.Equal(t, int64(120), view.JobElapsedTime)
}

func TestFullSummaries(t *testing.T) {
	c := newControllerCell()
	ctrl := newTestController(t, c)

	jobs, err := ctrl.FullSummaries(context.Background(), CategoryActive, ListOptions{})
	require.NoError(t, err)

	require.Len(t, jobs, 1)
	assert.Equal(t, "server01", jobs[11].Subclient.ClientName)
	assert.Equal(t, float64(40), jobs[11].PercentComplete)
}

func TestControllerGet(t *testing.T) {
	c := newControllerCell()
	c.setStatuses(1001, "Running")
	ctrl := newTestController(t, c)

	j, err := ctrl.Get(context.Background(), 1001)
	require.NoError(t, err)
	assert.Equal(t, 1001, j.ID())
}

func TestActiveJobSummary(t *testing.T) {
	c := newControllerCell()
	ctrl := newTestController(t, c)

	summary, err := ctrl.ActiveJobSummary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, summary.RunningJobs)
	assert.Equal(t, 1, summary.SuspendedJobs)
	assert.Equal(t, 2, summary.WaitingJobs)
}

func TestSuspendAllJobs(t *testing.T) {
	c := newControllerCell()
	ctrl := newTestController(t, c)

	require.NoError(t, ctrl.SuspendAllJobs(context.Background()))

	var body map[string]any
	require.NoError(t, json.Unmarshal(c.lastQCommand, &body))
	req := body["JobManager_PerformMultiCellJobOpReq"].(map[string]any)
	assert.Equal(t, "JOB_SUSPEND", req["jobOpReq"].(map[string]any)["operationType"])
	assert.Equal(t, "ALL_JOBS", req["message"])
	assert.Equal(t, "All jobs", req["operationDescription"])
}

func TestKillAllJobs_OperationType(t *testing.T) {
	c := newControllerCell()
	ctrl := newTestController(t, c)

	require.NoError(t, ctrl.KillAllJobs(context.Background()))
	assert.True(t, strings.Contains(string(c.lastQCommand), "JOB_KILL"))

	require.NoError(t, ctrl.ResumeAllJobs(context.Background()))
	assert.True(t, strings.Contains(string(c.lastQCommand), "JOB_RESUME"))
}

func TestModifyAllJobs_Rejected(t *testing.T) {
	c := newControllerCell()
	c.qcommandBody = `{"error":{"errorCode":2,"errLogMessage":"insufficient rights"}}`
	ctrl := newTestController(t, c)

	err := ctrl.SuspendAllJobs(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrRejected))
	assert.Contains(t, err.Error(), "insufficient rights")
}

func TestModifyAllJobs_MissingErrorBlock(t *testing.T) {
	c := newControllerCell()
	c.qcommandBody = `{"processinginstructioninfo":{}}`
	ctrl := newTestController(t, c)

	err := ctrl.SuspendAllJobs(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrMalformed))
}
