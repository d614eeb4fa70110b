package job

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"commcell/internal/apperrors"
	"commcell/internal/commcell"
	"commcell/internal/transport"
)

const managementDoc = `{
	"errorCode": 0,
	"jobManagementSettings": {
		"generalSettings": {
			"jobAliveCheckIntervalInMinutes": 5,
			"queueScheduledJobs": false,
			"jobStreamHighWaterMarkLevel": 500,
			"restorePreemptsOtherJobs": true
		},
		"jobRestartSettings": {
			"jobTypeRestartSettingList": [
				{"jobType": 6, "jobTypeName": "File System and Indexing Based (Data Protection)", "restartable": true, "maxRestarts": 10, "restartIntervalInMinutes": 20},
				{"jobType": 7, "jobTypeName": "File System and Indexing Based (Data Recovery)", "restartable": false, "maxRestarts": 144, "restartIntervalInMinutes": 20}
			]
		},
		"jobPrioritySettings": {
			"priorityPrecedence": 1,
			"jobTypePriorityList": [
				{"jobTypeName": "Information Management", "combinedPriority": 6},
				{"jobTypeName": "Auxiliary Copy", "combinedPriority": 9}
			],
			"agentTypePriorityList": [
				{"agentTypeEntity": {"appTypeName": "Windows File System", "applicationId": 33}, "combinedPriority": 6}
			]
		},
		"jobUpdatesSettings": {
			"agentTypeJobUpdateIntervalList": [
				{"agentTypeEntity": {"appTypeName": "Windows File System", "applicationId": 33}, "protectionTimeInMinutes": 5, "recoveryTimeInMinutes": 5}
			]
		}
	}
}`

type managementCell struct {
	mu       sync.Mutex
	getBody  string
	postBody string
	gets     int
	posts    int
	lastPost []byte
}

func (m *managementCell) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		defer m.mu.Unlock()
		if r.URL.Path != "/CommServ/JobManagementSettings" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		switch r.Method {
		case http.MethodGet:
			m.gets++
			io.WriteString(w, m.getBody)
		case http.MethodPost:
			m.posts++
			m.lastPost, _ = io.ReadAll(r.Body)
			body := m.postBody
			if body == "" {
				// accept the write and serve it back on later reads
				var env map[string]any
				if json.Unmarshal(m.lastPost, &env) == nil && env["jobManagementSettings"] != nil {
					stored, _ := json.Marshal(map[string]any{
						"errorCode":             0,
						"jobManagementSettings": env["jobManagementSettings"],
					})
					m.getBody = string(stored)
				}
				body = `{"errorCode":0}`
			}
			io.WriteString(w, body)
		}
	}
}

func newTestManagement(t *testing.T, cell *managementCell) *Management {
	t.Helper()
	if cell.getBody == "" {
		cell.getBody = managementDoc
	}
	srv := httptest.NewServer(cell.handler())
	t.Cleanup(srv.Close)
	rq := transport.NewHTTPRequester(srv.URL, "token", 5*time.Second, nil)
	return NewManagement(commcell.NewSession(rq, commcell.Config{}))
}

func TestManagement_Settings(t *testing.T) {
	cell := &managementCell{}
	m := newTestManagement(t, cell)
	ctx := context.Background()

	general, err := m.GeneralSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, general.JobAliveCheckIntervalInMinutes)
	assert.Equal(t, 500, general.JobStreamHighWaterMarkLevel)
	assert.True(t, general.RestorePreemptsOtherJobs)

	restarts, err := m.RestartSettings(ctx)
	require.NoError(t, err)
	require.Len(t, restarts, 2)
	assert.Equal(t, 10, restarts[0].MaxRestarts)

	updates, err := m.UpdateSettings(ctx)
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.Equal(t, "Windows File System", updates[0].AgentTypeEntity.AppTypeName)

	// the document is fetched once and reused across accessors
	cell.mu.Lock()
	assert.Equal(t, 1, cell.gets)
	cell.mu.Unlock()
}

func TestManagement_RefreshRejected(t *testing.T) {
	cell := &managementCell{getBody: `{"errorCode":7,"errorMessage":"not authorized"}`}
	m := newTestManagement(t, cell)

	err := m.Refresh(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrRejected))
	assert.Equal(t, 7, apperrors.ServerCode(err))
}

func TestManagement_MissingSettingsBlock(t *testing.T) {
	cell := &managementCell{getBody: `{"errorCode":0}`}
	m := newTestManagement(t, cell)

	err := m.Refresh(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrMalformed))
}

func TestManagement_SetGeneralSettings(t *testing.T) {
	cell := &managementCell{}
	m := newTestManagement(t, cell)
	ctx := context.Background()

	general, err := m.GeneralSettings(ctx)
	require.NoError(t, err)
	general.QueueScheduledJobs = true
	general.JobAliveCheckIntervalInMinutes = 10

	require.NoError(t, m.SetGeneralSettings(ctx, general))

	var posted managementEnvelope
	cell.mu.Lock()
	require.NoError(t, json.Unmarshal(cell.lastPost, &posted))
	// the write is followed by a refresh
	assert.Equal(t, 2, cell.gets)
	cell.mu.Unlock()

	require.NotNil(t, posted.JobManagementSettings)
	assert.True(t, posted.JobManagementSettings.GeneralSettings.QueueScheduledJobs)
	assert.Equal(t, 10, posted.JobManagementSettings.GeneralSettings.JobAliveCheckIntervalInMinutes)
}

func TestManagement_SetRestartSetting(t *testing.T) {
	cell := &managementCell{}
	m := newTestManagement(t, cell)

	setting := RestartSetting{
		JobType:                  6,
		JobTypeName:              "File System and Indexing Based (Data Protection)",
		Restartable:              true,
		MaxRestarts:              20,
		RestartIntervalInMinutes: 30,
	}
	require.NoError(t, m.SetRestartSetting(context.Background(), setting))

	var posted managementEnvelope
	cell.mu.Lock()
	require.NoError(t, json.Unmarshal(cell.lastPost, &posted))
	cell.mu.Unlock()
	assert.Equal(t, 20, posted.JobManagementSettings.JobRestartSettings.JobTypeRestartSettingList[0].MaxRestarts)
}

func TestManagement_SetRestartSetting_UnknownType(t *testing.T) {
	cell := &managementCell{}
	m := newTestManagement(t, cell)

	err := m.SetRestartSetting(context.Background(), RestartSetting{JobTypeName: "No Such Type"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))

	cell.mu.Lock()
	assert.Equal(t, 0, cell.posts)
	cell.mu.Unlock()
}

func TestManagement_SetJobTypePriority(t *testing.T) {
	cell := &managementCell{}
	m := newTestManagement(t, cell)

	require.NoError(t, m.SetJobTypePriority(context.Background(), "Auxiliary Copy", 3))

	var posted managementEnvelope
	cell.mu.Lock()
	require.NoError(t, json.Unmarshal(cell.lastPost, &posted))
	cell.mu.Unlock()
	assert.Equal(t, 3, posted.JobManagementSettings.JobPrioritySettings.JobTypePriorityList[1].CombinedPriority)
}

func TestManagement_SetAgentTypePriority(t *testing.T) {
	cell := &managementCell{}
	m := newTestManagement(t, cell)

	require.NoError(t, m.SetAgentTypePriority(context.Background(), "Windows File System", 2))

	var posted managementEnvelope
	cell.mu.Lock()
	require.NoError(t, json.Unmarshal(cell.lastPost, &posted))
	cell.mu.Unlock()
	assert.Equal(t, 2, posted.JobManagementSettings.JobPrioritySettings.AgentTypePriorityList[0].CombinedPriority)
}

func TestManagement_SetUpdateIntervals(t *testing.T) {
	cell := &managementCell{}
	m := newTestManagement(t, cell)

	require.NoError(t, m.SetUpdateIntervals(context.Background(), "Windows File System", 15, 25))

	var posted managementEnvelope
	cell.mu.Lock()
	require.NoError(t, json.Unmarshal(cell.lastPost, &posted))
	cell.mu.Unlock()
	row := posted.JobManagementSettings.JobUpdatesSettings.AgentTypeJobUpdateIntervalList[0]
	assert.Equal(t, 15, row.ProtectionTimeInMinutes)
	assert.Equal(t, 25, row.RecoveryTimeInMinutes)
}

func TestManagement_PriorityPrecedence(t *testing.T) {
	cell := &managementCell{}
	m := newTestManagement(t, cell)
	ctx := context.Background()

	precedence, err := m.PriorityPrecedence(ctx)
	require.NoError(t, err)
	assert.Equal(t, "client", precedence)

	require.NoError(t, m.SetPriorityPrecedence(ctx, PrecedenceAgentType))
	precedence, err = m.PriorityPrecedence(ctx)
	require.NoError(t, err)
	assert.Equal(t, "agentType", precedence)
}

func TestManagement_SetPriorityPrecedence_Invalid(t *testing.T) {
	cell := &managementCell{}
	m := newTestManagement(t, cell)

	err := m.SetPriorityPrecedence(context.Background(), 7)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrPrecondition))
}

func TestManagement_PushRejected(t *testing.T) {
	cell := &managementCell{postBody: `{"errorCode":3,"errorMessage":"invalid settings"}`}
	m := newTestManagement(t, cell)

	err := m.SetJobTypePriority(context.Background(), "Auxiliary Copy", 3)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrRejected))
	assert.Contains(t, err.Error(), "invalid settings")
}
