// Package job implements the job lifecycle surface: single-job state
// polling and control, bulk listings and the commcell-wide job
// management settings.
package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"commcell/internal/apperrors"
	"commcell/internal/commcell"
	"commcell/internal/transport"
	"commcell/pkg/backoff"
)

// Default intervals for the polling state machine. All of them can be
// overridden through Options, which the tests rely on.
const (
	DefaultInitAttempts       = 10
	DefaultInitInterval       = 1500 * time.Millisecond
	DefaultSummaryAttempts    = 5
	DefaultTransportRetryWait = 20 * time.Second
	DefaultPollInterval       = 30 * time.Second
	DefaultStatusPollInterval = 3 * time.Second
	DefaultStatusWaitTimeout  = 6 * time.Minute
	DefaultStallTimeout       = 30 * time.Minute
)

// MetricsRecorder is the subset of the observability surface the job
// package reports into. A nil recorder disables reporting.
type MetricsRecorder interface {
	RecordJobPoll(ctx context.Context)
	RecordJobWait(ctx context.Context, outcome string, seconds float64)
	RecordJobControl(ctx context.Context, action string, success bool)
	RecordWatchdogKill(ctx context.Context)
}

// AdvancedDetailType selects which advanced property block the server
// returns. The values are server-side bit flags.
type AdvancedDetailType int

const (
	AdvancedDetailRetention     AdvancedDetailType = 1
	AdvancedDetailReferenceCopy AdvancedDetailType = 2
	AdvancedDetailDashCopy      AdvancedDetailType = 4
	AdvancedDetailAdminData     AdvancedDetailType = 8
	AdvancedDetailBackupInfo    AdvancedDetailType = 16
)

// Options tunes the polling and retry machinery. The zero value means
// production defaults.
type Options struct {
	// InitAttempts and InitInterval drive the existence probe run when
	// a Job handle is created for an id the server may not know yet.
	InitAttempts int
	InitInterval time.Duration

	// SummaryAttempts bounds the summary fetch ladder. Zero-record
	// responses back off exponentially per Backoff; transport failures
	// and empty bodies wait a flat TransportRetryWait between tries.
	SummaryAttempts    int
	TransportRetryWait time.Duration
	Backoff            *backoff.Config

	// PollInterval is the sleep between completion checks.
	PollInterval time.Duration

	// StatusPollInterval and StatusWaitTimeout drive the silent wait
	// used after control operations.
	StatusPollInterval time.Duration
	StatusWaitTimeout  time.Duration

	// FinishedKeywords overrides the status substrings treated as
	// terminal.
	FinishedKeywords []string

	Metrics MetricsRecorder
}

func (o Options) withDefaults() Options {
	if o.InitAttempts <= 0 {
		o.InitAttempts = DefaultInitAttempts
	}
	if o.InitInterval <= 0 {
		o.InitInterval = DefaultInitInterval
	}
	if o.SummaryAttempts <= 0 {
		o.SummaryAttempts = DefaultSummaryAttempts
	}
	if o.TransportRetryWait <= 0 {
		o.TransportRetryWait = DefaultTransportRetryWait
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.StatusPollInterval <= 0 {
		o.StatusPollInterval = DefaultStatusPollInterval
	}
	if o.StatusWaitTimeout <= 0 {
		o.StatusWaitTimeout = DefaultStatusWaitTimeout
	}
	if len(o.FinishedKeywords) == 0 {
		o.FinishedKeywords = defaultFinishedKeywords
	}
	return o
}

// Job is a live handle onto one server-side job. Every state read goes
// back to the server; the struct only caches the last responses so the
// snapshot accessors have something to return between polls.
type Job struct {
	session *commcell.Session
	id      int
	opts    Options
	logger  *slog.Logger

	mu          sync.Mutex
	summary     Summary
	details     Details
	taskDetails map[string]any
}

// New builds a handle for the given job id and verifies the job exists.
// A freshly submitted job may not be queryable yet, so the probe
// retries before giving up with a not-found error.
func New(ctx context.Context, session *commcell.Session, id int, opts Options) (*Job, error) {
	j := &Job{
		session: session,
		id:      id,
		opts:    opts.withDefaults(),
		logger:  slog.With("component", "job", "job_id", id),
	}

	var lastErr error
	for attempt := 0; attempt < j.opts.InitAttempts; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, j.opts.InitInterval); err != nil {
				return nil, err
			}
		}
		summary, err := j.fetchSummary(ctx)
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				lastErr = err
				continue
			}
			return nil, err
		}
		details, err := j.fetchDetails(ctx)
		if err != nil {
			return nil, err
		}
		j.mu.Lock()
		j.summary = summary
		j.details = details
		j.mu.Unlock()
		return j, nil
	}
	return nil, lastErr
}

func (j *Job) ID() int { return j.id }

// Summary returns the last fetched summary without hitting the server.
func (j *Job) Summary() Summary {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.summary
}

// Details returns the last fetched detail block without hitting the
// server.
func (j *Job) Details() Details {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.details
}

// Status refreshes the summary and returns the current status string.
func (j *Job) Status(ctx context.Context) (string, error) {
	summary, err := j.fetchSummary(ctx)
	if err != nil {
		return "", err
	}
	j.mu.Lock()
	j.summary = summary
	j.mu.Unlock()
	return summary.Status, nil
}

// DelayReason returns the server's explanation for a delayed job, from
// the last fetched details.
func (j *Job) DelayReason() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.details.ProgressInfo.ReasonForJobDelay
}

// PendingReason returns the pending reason from the last fetched
// summary.
func (j *Job) PendingReason() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.summary.PendingReason
}

// State refreshes the details and returns the progress state string.
func (j *Job) State(ctx context.Context) (string, error) {
	details, err := j.fetchDetails(ctx)
	if err != nil {
		return "", err
	}
	j.mu.Lock()
	j.details = details
	j.mu.Unlock()
	return details.ProgressInfo.State, nil
}

// Phase refreshes the summary and returns the current phase name.
func (j *Job) Phase(ctx context.Context) (string, error) {
	summary, err := j.fetchSummary(ctx)
	if err != nil {
		return "", err
	}
	j.mu.Lock()
	j.summary = summary
	j.mu.Unlock()
	return summary.CurrentPhaseName, nil
}

// Attempts returns the per-phase attempt records from the last fetched
// details.
func (j *Job) Attempts() []Attempt {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]Attempt(nil), j.details.AttemptsInfo...)
}

// Snapshot accessors over the last fetched summary and details. These
// do not hit the server; call Refresh first for current values.

func (j *Job) ClientName() string    { return j.snap().Subclient.ClientName }
func (j *Job) AgentName() string     { return j.snap().AppTypeName }
func (j *Job) InstanceName() string  { return j.snap().Subclient.InstanceName }
func (j *Job) BackupsetName() string { return j.snap().Subclient.BackupsetName }
func (j *Job) SubclientName() string { return j.snap().Subclient.SubclientName }
func (j *Job) JobType() string       { return j.snap().JobType }
func (j *Job) BackupLevel() string   { return j.snap().BackupLevelName }
func (j *Job) Username() string      { return j.snap().UserName.UserName }
func (j *Job) UserID() int           { return j.snap().UserName.UserID }

func (j *Job) StartTimestamp() int64      { return j.snap().JobStartTime }
func (j *Job) EndTimestamp() int64        { return j.snap().JobEndTime }
func (j *Job) StartTime() time.Time       { return time.Unix(j.snap().JobStartTime, 0) }
func (j *Job) EndTime() time.Time         { return time.Unix(j.snap().JobEndTime, 0) }
func (j *Job) SizeOfApplication() int64   { return j.snap().SizeOfApplication }
func (j *Job) MediaSize() int64           { return j.snap().SizeOfMediaOnDisk }
func (j *Job) PercentComplete() float64   { return j.snap().PercentComplete }
func (j *Job) NumObjects() int64          { return j.Details().DetailInfo.NumOfObjects }
func (j *Job) NumFilesTransferred() int64 { return j.Details().ProgressInfo.NumOfFilesTransferred }

func (j *Job) snap() Summary {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.summary
}

// Refresh refetches both the summary and the detail block.
func (j *Job) Refresh(ctx context.Context) error {
	summary, err := j.fetchSummary(ctx)
	if err != nil {
		return err
	}
	details, err := j.fetchDetails(ctx)
	if err != nil {
		return err
	}
	j.mu.Lock()
	j.summary = summary
	j.details = details
	j.mu.Unlock()
	return nil
}

// IsFinished refreshes the job state and reports whether the status
// matches one of the terminal keywords. On a finished job the end time
// is backfilled from the last update time when the server left it
// unset.
func (j *Job) IsFinished(ctx context.Context) (bool, error) {
	if j.opts.Metrics != nil {
		j.opts.Metrics.RecordJobPoll(ctx)
	}
	if err := j.Refresh(ctx); err != nil {
		return false, err
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	finished := statusFinished(j.summary.Status, j.opts.FinishedKeywords)
	if finished && j.summary.JobEndTime == 0 && j.summary.LastUpdateTime != 0 {
		j.summary.JobEndTime = j.summary.LastUpdateTime
	}
	return finished, nil
}

// fetchSummary reads the job's summary with the retry ladder: transport
// failures and empty bodies wait a flat interval, zero-record responses
// back off exponentially, and the last attempt's failure is returned.
func (j *Job) fetchSummary(ctx context.Context) (Summary, error) {
	const op = "job.summary"
	endpoint := j.session.ServiceURL(commcell.SvcJob, j.id)

	for attempt := 1; attempt <= j.opts.SummaryAttempts; attempt++ {
		resp, err := j.session.Requester().Do(ctx, http.MethodGet, endpoint, nil)
		if err != nil || resp.Empty() {
			if attempt >= j.opts.SummaryAttempts {
				return Summary{}, transportFailure(op, resp, err)
			}
			j.logger.Debug("summary fetch failed, retrying", "attempt", attempt)
			if serr := sleepCtx(ctx, j.opts.TransportRetryWait); serr != nil {
				return Summary{}, serr
			}
			continue
		}

		var parsed listResponse
		if err := resp.JSON(&parsed); err != nil {
			return Summary{}, apperrors.Malformed(op, err)
		}
		if parsed.TotalRecordsWithoutPaging == 0 || len(parsed.Jobs) == 0 {
			if attempt >= j.opts.SummaryAttempts {
				return Summary{}, apperrors.NotFound("job", strconv.Itoa(j.id))
			}
			if serr := sleepCtx(ctx, backoff.Exponential(attempt, j.opts.Backoff)); serr != nil {
				return Summary{}, serr
			}
			continue
		}
		return parsed.Jobs[0].JobSummary, nil
	}
	return Summary{}, apperrors.NotFound("job", strconv.Itoa(j.id))
}

type detailsRequest struct {
	JobID       int  `json:"jobId"`
	ShowAttempt bool `json:"showAttempt"`
}

// fetchDetails reads the detail block, retrying transport failures and
// empty bodies with the same flat wait as the summary ladder.
func (j *Job) fetchDetails(ctx context.Context) (Details, error) {
	const op = "job.details"
	body := detailsRequest{JobID: j.id, ShowAttempt: true}
	endpoint := j.session.ServiceURL(commcell.SvcJobDetails)

	for attempt := 1; attempt <= j.opts.SummaryAttempts; attempt++ {
		resp, err := j.session.Requester().Do(ctx, http.MethodPost, endpoint, body)
		if err != nil || resp.Empty() {
			if attempt >= j.opts.SummaryAttempts {
				return Details{}, transportFailure(op, resp, err)
			}
			j.logger.Debug("details fetch failed, retrying", "attempt", attempt)
			if serr := sleepCtx(ctx, j.opts.TransportRetryWait); serr != nil {
				return Details{}, serr
			}
			continue
		}

		var parsed detailsResponse
		if err := resp.JSON(&parsed); err != nil {
			return Details{}, apperrors.Malformed(op, err)
		}
		switch {
		case parsed.Job != nil:
			return parsed.Job.JobDetail, nil
		case parsed.Error != nil && len(parsed.Error.ErrList) > 0:
			first := parsed.Error.ErrList[0]
			return Details{}, apperrors.Rejected(op, first.ErrorCode, first.ErrLogMessage)
		default:
			return Details{}, apperrors.Malformed(op, fmt.Errorf("response has neither job nor error block"))
		}
	}
	return Details{}, apperrors.Malformed(op, fmt.Errorf("empty response body"))
}

// Pause suspends the job. With wait set, it then waits silently until
// the job reports SUSPENDED or the status wait timeout passes.
func (j *Job) Pause(ctx context.Context, wait bool) error {
	return j.control(ctx, "pause", commcell.SvcSuspendJob, "suspended", wait)
}

// Resume continues a suspended job. With wait set, it then waits
// silently until the job reports RUNNING.
func (j *Job) Resume(ctx context.Context, wait bool) error {
	return j.control(ctx, "resume", commcell.SvcResumeJob, "running", wait)
}

// Kill terminates the job. With wait set, it then waits silently until
// the job reports KILLED.
func (j *Job) Kill(ctx context.Context, wait bool) error {
	return j.control(ctx, "kill", commcell.SvcKillJob, "killed", wait)
}

func (j *Job) control(ctx context.Context, action, svc, target string, wait bool) error {
	op := "job." + action
	resp, err := j.session.Requester().Do(ctx, http.MethodPost, j.session.ServiceURL(svc, j.id), nil)

	// Re-sync local state after the control request regardless of its
	// outcome; a failed refresh does not mask the control result.
	if _, rerr := j.IsFinished(ctx); rerr != nil {
		j.logger.Debug("state refresh after control failed", "action", action, "error", rerr)
	}

	if err != nil {
		j.recordControl(ctx, action, false)
		return transportFailure(op, resp, err)
	}
	if err := decodeControl(op, resp); err != nil {
		j.recordControl(ctx, action, false)
		return err
	}
	j.recordControl(ctx, action, true)

	if wait {
		return j.waitForStatus(ctx, target, j.opts.StatusWaitTimeout)
	}
	return nil
}

func (j *Job) recordControl(ctx context.Context, action string, success bool) {
	if j.opts.Metrics != nil {
		j.opts.Metrics.RecordJobControl(ctx, action, success)
	}
}

// waitForStatus polls until the job reports the wanted status, finishes
// or the timeout passes. Timing out is not an error; callers that care
// about the outcome re-read the status afterwards.
func (j *Job) waitForStatus(ctx context.Context, want string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		status, err := j.Status(ctx)
		if err != nil {
			return err
		}
		if strings.EqualFold(status, want) || time.Now().After(deadline) {
			return nil
		}
		j.mu.Lock()
		finished := statusFinished(j.summary.Status, j.opts.FinishedKeywords)
		j.mu.Unlock()
		if finished {
			return nil
		}
		if err := sleepCtx(ctx, j.opts.StatusPollInterval); err != nil {
			return err
		}
	}
}

type resubmitResponse struct {
	JobIDs []int `json:"jobIds"`
}

// Resubmit reruns a finished job and returns a handle onto the new job.
// startSuspended controls the initial state of the new job; nil keeps
// the server default. Resubmitting a job that is still running is
// rejected locally before any request is sent.
func (j *Job) Resubmit(ctx context.Context, startSuspended *bool) (*Job, error) {
	const op = "job.resubmit"

	finished, err := j.IsFinished(ctx)
	if err != nil {
		return nil, err
	}
	if !finished {
		return nil, apperrors.Precondition(op, "job is still running")
	}

	endpoint := j.session.ServiceURL(commcell.SvcResubmitJob, j.id)
	if startSuspended != nil {
		endpoint += "?startInSuspendedState=" + strconv.FormatBool(*startSuspended)
	}
	resp, err := j.session.Requester().Do(ctx, http.MethodPost, endpoint, nil)
	if err != nil || resp.Empty() {
		return nil, transportFailure(op, resp, err)
	}
	if err := decodeControl(op, resp); err != nil {
		return nil, err
	}

	var parsed resubmitResponse
	if err := resp.JSON(&parsed); err != nil {
		return nil, apperrors.Malformed(op, err)
	}
	if len(parsed.JobIDs) == 0 {
		return nil, apperrors.Malformed(op, fmt.Errorf("response carries no job ids"))
	}
	return New(ctx, j.session, parsed.JobIDs[0], j.opts)
}

// WaitForCompletion blocks until the job finishes, then reports whether
// it succeeded. A job stuck in pending or waiting longer than
// stallTimeout is killed and reported as failed; the stall clock resets
// every time the job re-enters a stalled state from a healthy one.
// returnTimeout, when positive, bounds the total wait: once exceeded
// the method returns false with the job left as is. Failed jobs trigger
// a best-effort log bundle mail to the configured addresses.
func (j *Job) WaitForCompletion(ctx context.Context, stallTimeout, returnTimeout time.Duration) (bool, error) {
	if stallTimeout <= 0 {
		stallTimeout = DefaultStallTimeout
	}
	actualStart := time.Now()
	stallStart := actualStart
	previousStalled := false
	emails := j.session.JobLogsEmails()

	for {
		finished, err := j.IsFinished(ctx)
		if err != nil {
			j.recordWait(ctx, "error", actualStart)
			return false, err
		}
		if finished {
			break
		}

		if err := sleepCtx(ctx, j.opts.PollInterval); err != nil {
			return false, err
		}

		if returnTimeout > 0 && time.Since(actualStart) > returnTimeout {
			j.recordWait(ctx, "return_timeout", actualStart)
			return false, nil
		}

		j.mu.Lock()
		status := strings.ToLower(j.summary.Status)
		if status == "" {
			status = strings.ToLower(j.details.ProgressInfo.State)
		}
		j.mu.Unlock()

		// The stall clock restarts when the job enters pending or
		// waiting from a healthy state; staying stalled keeps it
		// running.
		stalled := statusStalled(status)
		if stalled && !previousStalled {
			stallStart = time.Now()
		}

		var pendingTime, waitingTime time.Duration
		if status == "pending" {
			pendingTime = time.Since(stallStart)
		}
		if status == "waiting" {
			waitingTime = time.Since(stallStart)
		}

		if pendingTime > stallTimeout || waitingTime > stallTimeout {
			j.logger.Warn("job stalled past timeout, killing", "status", status, "stall_timeout", stallTimeout)
			if j.opts.Metrics != nil {
				j.opts.Metrics.RecordWatchdogKill(ctx)
			}
			if err := j.Kill(ctx, false); err != nil {
				j.logger.Warn("kill after stall failed", "error", err)
			}
			j.mailLogs(ctx, emails)
			j.recordWait(ctx, "watchdog_kill", actualStart)
			return false, nil
		}
		previousStalled = stalled
	}

	j.mu.Lock()
	status := j.summary.Status
	j.mu.Unlock()
	if !statusFailed(status) {
		j.recordWait(ctx, "completed", actualStart)
		return true, nil
	}
	j.mailLogs(ctx, emails)
	j.recordWait(ctx, "failed", actualStart)
	return false, nil
}

func (j *Job) recordWait(ctx context.Context, outcome string, start time.Time) {
	if j.opts.Metrics != nil {
		j.opts.Metrics.RecordJobWait(ctx, outcome, time.Since(start).Seconds())
	}
}

func (j *Job) mailLogs(ctx context.Context, emails []string) {
	if len(emails) == 0 {
		return
	}
	if err := j.SendLogs(ctx, emails); err != nil {
		j.logger.Warn("sending job logs failed", "error", err)
	}
}

// SendLogs submits a log collection task for the job and mails the
// bundle to the given addresses. It waits for the spawned collection
// job, but a collection failure is not reported back.
func (j *Job) SendLogs(ctx context.Context, emails []string) error {
	const op = "job.sendlogs"

	details, err := j.fetchDetails(ctx)
	if err != nil {
		return err
	}
	failureReason := ""
	if vms := details.ClientStatus.VMStatus; len(vms) > 0 {
		failureReason = vms[0].FailureReason
	}

	body := map[string]any{
		"taskInfo": map[string]any{
			"task": map[string]any{
				"taskType":      1,
				"initiatedFrom": 1,
				"policyType":    0,
				"taskFlags":     map[string]any{"disabled": false},
			},
			"subTasks": []any{
				map[string]any{
					"subTask": map[string]any{
						"subTaskType":   1,
						"operationType": 5010,
					},
					"options": map[string]any{
						"adminOpts": map[string]any{
							"sendLogFilesOption": map[string]any{
								"actionLogsEndJobId":     0,
								"emailSelected":          true,
								"jobid":                  j.id,
								"tsDatabase":             false,
								"galaxyLogs":             true,
								"getLatestUpdates":       false,
								"actionLogsStartJobId":   0,
								"computersSelected":      false,
								"csDatabase":             false,
								"otherDatabases":         false,
								"crashDump":              false,
								"isNetworkPath":          false,
								"saveToFolderSelected":   false,
								"notifyMe":               true,
								"includeJobResults":      false,
								"doNotIncludeLogs":       true,
								"machineInformation":     false,
								"scrubLogFiles":          false,
								"emailSubject":           fmt.Sprintf("%s : Logs for Job ID # %d [Error]: %s", j.session.CommservName(), j.id, failureReason),
								"osLogs":                 false,
								"allUsersProfile":        false,
								"splitFileSizeMB":        512,
								"actionLogs":             false,
								"includeIndex":           false,
								"databaseLogs":           true,
								"includeDCDB":            false,
								"collectHyperScale":      false,
								"logFragments":           false,
								"uploadLogsSelected":     true,
								"useDefaultUploadOption": true,
								"enableChunking":         true,
								"collectRFC":             false,
								"collectUserAppLogs":     false,
								"impersonateUser":        map[string]any{"useImpersonation": false},
								"clients":                []any{map[string]any{"clientId": 0, "clientName": nil}},
								"recipientTo": map[string]any{
									"emailids":   emails,
									"users":      []any{},
									"userGroups": []any{},
								},
								"sendLogsOnJobCompletion": false,
								"emailDescription":        fmt.Sprintf("<h4>Error summary</h4> %s", failureReason),
							},
						},
					},
				},
			},
		},
	}

	resp, err := j.session.Requester().Do(ctx, http.MethodPost, j.session.ServiceURL(commcell.SvcCreateTask), body)
	if err != nil || resp.Empty() {
		return transportFailure(op, resp, err)
	}
	if err := decodeControl(op, resp); err != nil {
		return err
	}

	var parsed resubmitResponse
	if err := resp.JSON(&parsed); err != nil {
		return apperrors.Malformed(op, err)
	}
	if len(parsed.JobIDs) == 0 {
		return nil
	}

	collector, err := New(ctx, j.session, parsed.JobIDs[0], j.opts)
	if err != nil {
		j.logger.Warn("log collection job not found", "collector_id", parsed.JobIDs[0], "error", err)
		return nil
	}
	if _, err := collector.WaitForCompletion(ctx, 0, 0); err != nil {
		j.logger.Warn("waiting for log collection failed", "collector_id", collector.ID(), "error", err)
	}
	return nil
}

// Events returns the commserv event rows logged for this job.
func (j *Job) Events(ctx context.Context) ([]Event, error) {
	const op = "job.events"
	resp, err := j.session.Requester().Do(ctx, http.MethodGet, j.session.ServiceURL(commcell.SvcJobEvents, j.id), nil)
	if err != nil || resp.Empty() {
		return nil, transportFailure(op, resp, err)
	}
	var parsed eventsResponse
	if err := resp.JSON(&parsed); err != nil {
		return nil, apperrors.Malformed(op, err)
	}
	return parsed.CommservEvents, nil
}

// Logs returns the job's log lines.
func (j *Job) Logs(ctx context.Context) ([]string, error) {
	const op = "job.logs"
	resp, err := j.session.Requester().Do(ctx, http.MethodGet, j.session.ServiceURL(commcell.SvcJobLogs, j.id), nil)
	if err != nil {
		return nil, transportFailure(op, resp, err)
	}
	text := resp.Text()
	if text == "" {
		return nil, apperrors.Malformed(op, fmt.Errorf("empty response body"))
	}
	return strings.Split(text, "\n"), nil
}

// AdvancedDetails fetches one of the advanced property blocks. The
// payload shape varies per info type, so it is returned undecoded.
func (j *Job) AdvancedDetails(ctx context.Context, infoType AdvancedDetailType) (map[string]any, error) {
	const op = "job.advanced_details"
	endpoint := j.session.ServiceURL(commcell.SvcAdvancedJobDetails, j.id, int(infoType))
	resp, err := j.session.Requester().Do(ctx, http.MethodGet, endpoint, nil)
	if err != nil || resp.Empty() {
		return nil, transportFailure(op, resp, err)
	}
	if err := decodeControl(op, resp); err != nil {
		return nil, err
	}
	var parsed map[string]any
	if err := resp.JSON(&parsed); err != nil {
		return nil, apperrors.Malformed(op, err)
	}
	return parsed, nil
}

type taskDetailsResponse struct {
	TaskInfo map[string]any `json:"taskInfo"`
	Error    *struct {
		ErrList []struct {
			ErrorCode    int    `json:"errorCode"`
			ErrorMessage string `json:"errorMessage"`
		} `json:"errList"`
	} `json:"error"`
}

// TaskDetails returns the task block the job was created from. The
// result is cached on the handle after the first successful fetch;
// transient failures retry with a flat wait.
func (j *Job) TaskDetails(ctx context.Context) (map[string]any, error) {
	const op = "job.task_details"

	j.mu.Lock()
	cached := j.taskDetails
	j.mu.Unlock()
	if cached != nil {
		return cached, nil
	}

	endpoint := j.session.ServiceURL(commcell.SvcJobTaskDetails, j.id)
	for attempt := 1; attempt <= j.opts.SummaryAttempts; attempt++ {
		resp, err := j.session.Requester().Do(ctx, http.MethodGet, endpoint, nil)
		if err != nil || resp.Empty() {
			if attempt >= j.opts.SummaryAttempts {
				return nil, transportFailure(op, resp, err)
			}
			if serr := sleepCtx(ctx, j.opts.TransportRetryWait); serr != nil {
				return nil, serr
			}
			continue
		}

		var parsed taskDetailsResponse
		if err := resp.JSON(&parsed); err != nil {
			return nil, apperrors.Malformed(op, err)
		}
		switch {
		case parsed.TaskInfo != nil:
			j.mu.Lock()
			j.taskDetails = parsed.TaskInfo
			j.mu.Unlock()
			return parsed.TaskInfo, nil
		case parsed.Error != nil && len(parsed.Error.ErrList) > 0:
			first := parsed.Error.ErrList[0]
			return nil, apperrors.Rejected(op, first.ErrorCode, first.ErrorMessage)
		default:
			return nil, apperrors.Malformed(op, fmt.Errorf("response has neither taskInfo nor error block"))
		}
	}
	return nil, apperrors.Malformed(op, fmt.Errorf("empty response body"))
}

// VMList returns the per-VM status rows for virtualization jobs, from
// the last fetched details.
func (j *Job) VMList() []VMStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.details.ClientStatus.VMStatus
}

// ChildJobs returns the per-VM rows treated as child jobs, or nil when
// the job has none.
func (j *Job) ChildJobs() []VMStatus {
	vms := j.VMList()
	if len(vms) == 0 {
		return nil
	}
	return vms
}

// transportFailure classifies a failed exchange. An error from the
// requester is a transport failure; a success status whose body is
// empty is a malformed response.
func transportFailure(op string, resp *transport.Response, err error) error {
	if err != nil {
		if resp != nil && resp.Text() != "" {
			return apperrors.Transport(op, resp.Text())
		}
		return apperrors.Transport(op, err.Error())
	}
	return apperrors.Malformed(op, fmt.Errorf("empty response body"))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
