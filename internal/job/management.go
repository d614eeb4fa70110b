package job

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"commcell/internal/apperrors"
	"commcell/internal/commcell"
)

// GeneralSettings is the commcell-wide job behavior block.
type GeneralSettings struct {
	AllowRunningJobsToCompletePastOperationWindow bool `json:"allowRunningJobsToCompletePastOperationWindow"`
	JobAliveCheckIntervalInMinutes                int  `json:"jobAliveCheckIntervalInMinutes"`
	QueueScheduledJobs                            bool `json:"queueScheduledJobs"`
	EnableJobThrottleAtClientLevel                bool `json:"enableJobThrottleAtClientLevel"`
	EnableMultiplexingForDBAgents                 bool `json:"enableMultiplexingForDBAgents"`
	QueueJobsIfConflictingJobsActive              bool `json:"queueJobsIfConflictingJobsActive"`
	QueueJobsIfActivityDisabled                   bool `json:"queueJobsIfActivityDisabled"`
	BackupsPreemptsAuxilaryCopy                   bool `json:"backupsPreemptsAuxilaryCopy"`
	RestorePreemptsOtherJobs                      bool `json:"restorePreemptsOtherJobs"`
	EnableMultiplexingForOracle                   bool `json:"enableMultiplexingForOracle"`
	JobStreamHighWaterMarkLevel                   int  `json:"jobStreamHighWaterMarkLevel"`
	BackupsPreemptsOtherBackups                   bool `json:"backupsPreemptsOtherBackups"`
	DoNotStartBackupsOnDisabledClient             bool `json:"doNotStartBackupsOnDisabledClient"`
}

// RestartSetting holds the restart policy for one job type.
type RestartSetting struct {
	JobType                                   int    `json:"jobType"`
	JobTypeName                               string `json:"jobTypeName"`
	Restartable                               bool   `json:"restartable"`
	MaxRestarts                               int    `json:"maxRestarts"`
	RestartIntervalInMinutes                  int    `json:"restartIntervalInMinutes"`
	EnableTotalRunningTime                    bool   `json:"enableTotalRunningTime"`
	TotalRunningTime                          int    `json:"totalRunningTime"`
	KillRunningJobWhenTotalRunningTimeExpires bool   `json:"killRunningJobWhenTotalRunningTimeExpires"`
	Preemptable                               bool   `json:"preemptable"`
}

// AgentTypeEntity identifies an agent type inside the settings blocks.
type AgentTypeEntity struct {
	AppTypeID   int    `json:"applicationId"`
	AppTypeName string `json:"appTypeName"`
}

// JobTypePriority is one row of the per-job-type priority table.
type JobTypePriority struct {
	JobTypeName      string `json:"jobTypeName"`
	CombinedPriority int    `json:"combinedPriority"`
}

// AgentTypePriority is one row of the per-agent-type priority table.
type AgentTypePriority struct {
	AgentTypeEntity  AgentTypeEntity `json:"agentTypeEntity"`
	CombinedPriority int             `json:"combinedPriority"`
}

// PrioritySettings holds the priority tables and which one takes
// precedence.
type PrioritySettings struct {
	PriorityPrecedence    int                 `json:"priorityPrecedence"`
	JobTypePriorityList   []JobTypePriority   `json:"jobTypePriorityList"`
	AgentTypePriorityList []AgentTypePriority `json:"agentTypePriorityList"`
}

// UpdateSetting holds the state update intervals for one agent type.
type UpdateSetting struct {
	AgentTypeEntity         AgentTypeEntity `json:"agentTypeEntity"`
	ProtectionTimeInMinutes int             `json:"protectionTimeInMinutes"`
	RecoveryTimeInMinutes   int             `json:"recoveryTimeInMinutes"`
}

// Precedence values for PrioritySettings.PriorityPrecedence.
const (
	PrecedenceClient    = 1
	PrecedenceAgentType = 2
)

type restartSettings struct {
	JobTypeRestartSettingList []RestartSetting `json:"jobTypeRestartSettingList"`
}

type updateSettings struct {
	AgentTypeJobUpdateIntervalList []UpdateSetting `json:"agentTypeJobUpdateIntervalList"`
}

type managementBody struct {
	GeneralSettings     GeneralSettings  `json:"generalSettings"`
	JobRestartSettings  restartSettings  `json:"jobRestartSettings"`
	JobPrioritySettings PrioritySettings `json:"jobPrioritySettings"`
	JobUpdatesSettings  updateSettings   `json:"jobUpdatesSettings"`
}

type managementEnvelope struct {
	JobManagementSettings *managementBody `json:"jobManagementSettings"`
	ErrorCode             int             `json:"errorCode"`
	ErrorMessage          string          `json:"errorMessage"`
}

// Management reads and mutates the commcell's job management settings.
// Mutations follow a read-modify-write cycle against the full settings
// document, so the struct caches the last fetched copy and refreshes it
// after every successful write.
type Management struct {
	session *commcell.Session

	mu       sync.Mutex
	settings managementBody
	loaded   bool
}

func NewManagement(session *commcell.Session) *Management {
	return &Management{session: session}
}

// Refresh refetches the settings document from the server.
func (m *Management) Refresh(ctx context.Context) error {
	const op = "jobmanagement.get"

	resp, err := m.session.Requester().Do(ctx, http.MethodGet, m.session.ServiceURL(commcell.SvcJobManagement), nil)
	if err != nil || resp.Empty() {
		return transportFailure(op, resp, err)
	}

	var parsed managementEnvelope
	if err := resp.JSON(&parsed); err != nil {
		return apperrors.Malformed(op, err)
	}
	if parsed.ErrorCode != 0 {
		return apperrors.Rejected(op, parsed.ErrorCode, parsed.ErrorMessage)
	}
	if parsed.JobManagementSettings == nil {
		return apperrors.Malformed(op, fmt.Errorf("response carries no jobManagementSettings block"))
	}

	m.mu.Lock()
	m.settings = *parsed.JobManagementSettings
	m.loaded = true
	m.mu.Unlock()
	return nil
}

func (m *Management) ensure(ctx context.Context) error {
	m.mu.Lock()
	loaded := m.loaded
	m.mu.Unlock()
	if loaded {
		return nil
	}
	return m.Refresh(ctx)
}

// push writes the cached settings document back and refreshes on
// success so local state reflects what the server actually stored.
func (m *Management) push(ctx context.Context) error {
	const op = "jobmanagement.set"

	m.mu.Lock()
	body := managementEnvelope{JobManagementSettings: &m.settings}
	m.mu.Unlock()

	resp, err := m.session.Requester().Do(ctx, http.MethodPost, m.session.ServiceURL(commcell.SvcJobManagement), body)
	if err != nil || resp.Empty() {
		return transportFailure(op, resp, err)
	}
	var parsed managementEnvelope
	if err := resp.JSON(&parsed); err != nil {
		return apperrors.Malformed(op, err)
	}
	if parsed.ErrorCode != 0 {
		return apperrors.Rejected(op, parsed.ErrorCode, parsed.ErrorMessage)
	}
	return m.Refresh(ctx)
}

// GeneralSettings returns the general job behavior block.
func (m *Management) GeneralSettings(ctx context.Context) (GeneralSettings, error) {
	if err := m.ensure(ctx); err != nil {
		return GeneralSettings{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings.GeneralSettings, nil
}

// RestartSettings returns the per-job-type restart policies.
func (m *Management) RestartSettings(ctx context.Context) ([]RestartSetting, error) {
	if err := m.ensure(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]RestartSetting(nil), m.settings.JobRestartSettings.JobTypeRestartSettingList...), nil
}

// PrioritySettings returns the priority tables.
func (m *Management) PrioritySettings(ctx context.Context) (PrioritySettings, error) {
	if err := m.ensure(ctx); err != nil {
		return PrioritySettings{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings.JobPrioritySettings, nil
}

// UpdateSettings returns the per-agent-type update intervals.
func (m *Management) UpdateSettings(ctx context.Context) ([]UpdateSetting, error) {
	if err := m.ensure(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]UpdateSetting(nil), m.settings.JobUpdatesSettings.AgentTypeJobUpdateIntervalList...), nil
}

// SetGeneralSettings replaces the general block and writes the document
// back.
func (m *Management) SetGeneralSettings(ctx context.Context, settings GeneralSettings) error {
	if err := m.ensure(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	m.settings.GeneralSettings = settings
	m.mu.Unlock()
	return m.push(ctx)
}

// SetRestartSetting updates the restart policy row matching the given
// job type name.
func (m *Management) SetRestartSetting(ctx context.Context, setting RestartSetting) error {
	if err := m.ensure(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	found := false
	list := m.settings.JobRestartSettings.JobTypeRestartSettingList
	for i := range list {
		if list[i].JobTypeName == setting.JobTypeName {
			list[i] = setting
			found = true
			break
		}
	}
	m.mu.Unlock()

	if !found {
		return apperrors.NotFound("restart setting", setting.JobTypeName)
	}
	return m.push(ctx)
}

// SetJobTypePriority updates the combined priority of one job type.
func (m *Management) SetJobTypePriority(ctx context.Context, jobTypeName string, priority int) error {
	if err := m.ensure(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	found := false
	list := m.settings.JobPrioritySettings.JobTypePriorityList
	for i := range list {
		if list[i].JobTypeName == jobTypeName {
			list[i].CombinedPriority = priority
			found = true
			break
		}
	}
	m.mu.Unlock()

	if !found {
		return apperrors.NotFound("job type priority", jobTypeName)
	}
	return m.push(ctx)
}

// SetAgentTypePriority updates the combined priority of one agent type.
func (m *Management) SetAgentTypePriority(ctx context.Context, appTypeName string, priority int) error {
	if err := m.ensure(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	found := false
	list := m.settings.JobPrioritySettings.AgentTypePriorityList
	for i := range list {
		if list[i].AgentTypeEntity.AppTypeName == appTypeName {
			list[i].CombinedPriority = priority
			found = true
			break
		}
	}
	m.mu.Unlock()

	if !found {
		return apperrors.NotFound("agent type priority", appTypeName)
	}
	return m.push(ctx)
}

// SetUpdateIntervals changes the protection and recovery update
// intervals of one agent type.
func (m *Management) SetUpdateIntervals(ctx context.Context, appTypeName string, protectionMinutes, recoveryMinutes int) error {
	if err := m.ensure(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	found := false
	list := m.settings.JobUpdatesSettings.AgentTypeJobUpdateIntervalList
	for i := range list {
		if list[i].AgentTypeEntity.AppTypeName == appTypeName {
			list[i].ProtectionTimeInMinutes = protectionMinutes
			list[i].RecoveryTimeInMinutes = recoveryMinutes
			found = true
			break
		}
	}
	m.mu.Unlock()

	if !found {
		return apperrors.NotFound("update setting", appTypeName)
	}
	return m.push(ctx)
}

// PriorityPrecedence reports whether client or agent type priority wins,
// as "client" or "agentType".
func (m *Management) PriorityPrecedence(ctx context.Context) (string, error) {
	if err := m.ensure(ctx); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.settings.JobPrioritySettings.PriorityPrecedence {
	case PrecedenceClient:
		return "client", nil
	case PrecedenceAgentType:
		return "agentType", nil
	default:
		return "", fmt.Errorf("unknown priority precedence %d", m.settings.JobPrioritySettings.PriorityPrecedence)
	}
}

// SetPriorityPrecedence sets which priority table wins.
func (m *Management) SetPriorityPrecedence(ctx context.Context, precedence int) error {
	if precedence != PrecedenceClient && precedence != PrecedenceAgentType {
		return apperrors.Precondition("jobmanagement.precedence", "precedence must be client or agentType")
	}
	if err := m.ensure(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	m.settings.JobPrioritySettings.PriorityPrecedence = precedence
	m.mu.Unlock()
	return m.push(ctx)
}
