package job

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"commcell/internal/apperrors"
	"commcell/internal/commcell"
)

// Category selects which job population a listing covers.
type Category int

const (
	CategoryAll      Category = 0
	CategoryActive   Category = 1
	CategoryFinished Category = 2
)

// Default lookback windows for the listing helpers, in hours.
const (
	DefaultAllLookupHours      = 5
	DefaultActiveLookupHours   = 1
	DefaultFinishedLookupHours = 24
)

const defaultListLimit = 20

// ListOptions refines a job listing. Zero values mean server defaults.
type ListOptions struct {
	Limit         int
	Offset        int
	LookupHours   int
	ShowAgedJobs  bool
	HideAdminJobs bool

	// Clients filters by client display name. Unknown names fail the
	// listing before any jobs request is made.
	Clients []string

	// JobTypes filters by operation type name, e.g. "Backup".
	JobTypes []string

	// JobFilter is a comma separated shorthand for JobTypes, e.g.
	// "Backup,Restore". Both are merged into the request.
	JobFilter string

	// Entity filters by an associated entity, e.g.
	// map[string]any{"dataSourceId": 2575}.
	Entity map[string]any
}

type pagingConfig struct {
	SortDirection int    `json:"sortDirection"`
	Offset        int    `json:"offset"`
	SortField     string `json:"sortField"`
	Limit         int    `json:"limit"`
}

type jobFilter struct {
	CompletedJobLookupTime int            `json:"completedJobLookupTime"`
	ShowAgedJobs           bool           `json:"showAgedJobs"`
	HideAdminJobs          bool           `json:"hideAdminJobs"`
	ClientList             []clientRef    `json:"clientList"`
	JobTypeList            []string       `json:"jobTypeList"`
	Entity                 map[string]any `json:"entity,omitempty"`
}

type clientRef struct {
	ClientID int `json:"clientId"`
}

type listRequest struct {
	Scope        int          `json:"scope"`
	Category     Category     `json:"category"`
	PagingConfig pagingConfig `json:"pagingConfig"`
	JobFilter    jobFilter    `json:"jobFilter"`
}

// ActiveJobSummary holds the per-state counts of the active job
// population.
type ActiveJobSummary struct {
	RunningJobs          int `json:"runningJobs"`
	SuspendedJobs        int `json:"suspendedJobs"`
	QueuedJobs           int `json:"queuedJobs"`
	WaitingJobs          int `json:"waitingJobs"`
	KilledJobs           int `json:"killedJobs"`
	AnomalousJobs        int `json:"anomalousJobs"`
	KillPendingJobs      int `json:"killPendingJobs"`
	SuspendPendingJobs   int `json:"suspendPendingJobs"`
	InterruptPendingJobs int `json:"interruptPendingJobs"`
}

// Controller lists and bulk-controls the jobs of one commcell.
type Controller struct {
	session *commcell.Session
	opts    Options
}

func NewController(session *commcell.Session, opts Options) *Controller {
	return &Controller{session: session, opts: opts.withDefaults()}
}

// Get returns a handle onto the job with the given id.
func (c *Controller) Get(ctx context.Context, id int) (*Job, error) {
	return New(ctx, c.session, id, c.opts)
}

// AllJobs lists jobs of every state started within the lookback window,
// 5 hours when unset.
func (c *Controller) AllJobs(ctx context.Context, opts ListOptions) (map[int]SummaryView, error) {
	return c.list(ctx, CategoryAll, DefaultAllLookupHours, opts)
}

// ActiveJobs lists the currently running jobs, with a 1 hour default
// lookback.
func (c *Controller) ActiveJobs(ctx context.Context, opts ListOptions) (map[int]SummaryView, error) {
	return c.list(ctx, CategoryActive, DefaultActiveLookupHours, opts)
}

// FinishedJobs lists finished jobs started within the lookback window,
// 24 hours when unset.
func (c *Controller) FinishedJobs(ctx context.Context, opts ListOptions) (map[int]SummaryView, error) {
	return c.list(ctx, CategoryFinished, DefaultFinishedLookupHours, opts)
}

// FullSummaries is the listing variant that returns the complete
// summary blocks instead of the flattened view.
func (c *Controller) FullSummaries(ctx context.Context, category Category, opts ListOptions) (map[int]Summary, error) {
	summaries, err := c.fetchList(ctx, category, lookupDefault(category), opts)
	if err != nil {
		return nil, err
	}
	out := make(map[int]Summary, len(summaries))
	for _, s := range summaries {
		out[s.JobID] = s
	}
	return out, nil
}

func lookupDefault(category Category) int {
	switch category {
	case CategoryActive:
		return DefaultActiveLookupHours
	case CategoryFinished:
		return DefaultFinishedLookupHours
	default:
		return DefaultAllLookupHours
	}
}

func (c *Controller) list(ctx context.Context, category Category, defaultLookup int, opts ListOptions) (map[int]SummaryView, error) {
	summaries, err := c.fetchList(ctx, category, defaultLookup, opts)
	if err != nil {
		return nil, err
	}
	out := make(map[int]SummaryView, len(summaries))
	for _, s := range summaries {
		out[s.JobID] = s.View()
	}
	return out, nil
}

// fetchList builds the listing request and returns the visible
// summaries. Client names resolve to ids before the jobs request goes
// out, so an unknown name fails fast.
func (c *Controller) fetchList(ctx context.Context, category Category, defaultLookup int, opts ListOptions) ([]Summary, error) {
	const op = "jobs.list"

	req, err := c.buildListRequest(ctx, category, defaultLookup, opts)
	if err != nil {
		return nil, err
	}

	resp, err := c.session.Requester().Do(ctx, http.MethodPost, c.session.ServiceURL(commcell.SvcAllJobs), req)
	if err != nil || resp.Empty() {
		return nil, transportFailure(op, resp, err)
	}

	var parsed listResponse
	if err := resp.JSON(&parsed); err != nil {
		return nil, apperrors.Malformed(op, err)
	}

	summaries := make([]Summary, 0, len(parsed.Jobs))
	for _, wrapper := range parsed.Jobs {
		if !wrapper.JobSummary.IsVisible {
			continue
		}
		summaries = append(summaries, wrapper.JobSummary)
	}
	return summaries, nil
}

func (c *Controller) buildListRequest(ctx context.Context, category Category, defaultLookup int, opts ListOptions) (listRequest, error) {
	lookup := opts.LookupHours
	if lookup <= 0 {
		lookup = defaultLookup
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	clientList := make([]clientRef, 0, len(opts.Clients))
	for _, name := range opts.Clients {
		id, err := c.session.ClientID(ctx, name)
		if err != nil {
			return listRequest{}, err
		}
		clientList = append(clientList, clientRef{ClientID: id})
	}

	jobTypes := append([]string{}, opts.JobTypes...)
	if opts.JobFilter != "" {
		jobTypes = append(jobTypes, strings.Split(opts.JobFilter, ",")...)
	}

	return listRequest{
		Scope:    1,
		Category: category,
		PagingConfig: pagingConfig{
			SortDirection: 1,
			Offset:        opts.Offset,
			SortField:     "jobId",
			Limit:         limit,
		},
		JobFilter: jobFilter{
			CompletedJobLookupTime: lookup * 60 * 60,
			ShowAgedJobs:           opts.ShowAgedJobs,
			HideAdminJobs:          opts.HideAdminJobs,
			ClientList:             clientList,
			JobTypeList:            jobTypes,
			Entity:                 opts.Entity,
		},
	}, nil
}

// ActiveJobSummary returns the per-state counts of the active jobs.
func (c *Controller) ActiveJobSummary(ctx context.Context) (ActiveJobSummary, error) {
	const op = "jobs.summary"
	resp, err := c.session.Requester().Do(ctx, http.MethodPost, c.session.ServiceURL(commcell.SvcActiveJobsSummary), map[string]any{})
	if err != nil || resp.Empty() {
		return ActiveJobSummary{}, transportFailure(op, resp, err)
	}
	var parsed ActiveJobSummary
	if err := resp.JSON(&parsed); err != nil {
		return ActiveJobSummary{}, apperrors.Malformed(op, err)
	}
	return parsed, nil
}

// SuspendAllJobs suspends every job on the commserve.
func (c *Controller) SuspendAllJobs(ctx context.Context) error {
	return c.modifyAllJobs(ctx, "suspend", "JOB_SUSPEND")
}

// ResumeAllJobs resumes every job on the commserve.
func (c *Controller) ResumeAllJobs(ctx context.Context) error {
	return c.modifyAllJobs(ctx, "resume", "JOB_RESUME")
}

// KillAllJobs kills every job on the commserve.
func (c *Controller) KillAllJobs(ctx context.Context) error {
	return c.modifyAllJobs(ctx, "kill", "JOB_KILL")
}

type multiJobOpRequest struct {
	PerformMultiCellJobOp multiJobOpBody `json:"JobManager_PerformMultiCellJobOpReq"`
}

type multiJobOpBody struct {
	JobOpReq             multiJobOp `json:"jobOpReq"`
	Message              string     `json:"message"`
	OperationDescription string     `json:"operationDescription"`
}

type multiJobOp struct {
	OperationType string `json:"operationType"`
}

type multiJobOpResponse struct {
	Error *struct {
		ErrorCode     int    `json:"errorCode"`
		ErrLogMessage string `json:"errLogMessage"`
	} `json:"error"`
}

// modifyAllJobs runs a bulk operation through the legacy qoperation
// channel. The response carries an error block even on success; its
// absence means the operation never reached the job manager.
func (c *Controller) modifyAllJobs(ctx context.Context, action, operationType string) error {
	op := "jobs." + action + "_all"

	body := multiJobOpRequest{
		PerformMultiCellJobOp: multiJobOpBody{
			JobOpReq:             multiJobOp{OperationType: operationType},
			Message:              "ALL_JOBS",
			OperationDescription: "All jobs",
		},
	}

	resp, err := c.session.ExecuteQCommand(ctx, body)
	if err != nil {
		return err
	}
	if resp.Empty() {
		return apperrors.Malformed(op, fmt.Errorf("empty response body"))
	}

	var parsed multiJobOpResponse
	if err := resp.JSON(&parsed); err != nil {
		return apperrors.Malformed(op, err)
	}
	if parsed.Error == nil {
		return apperrors.Malformed(op, fmt.Errorf("response carries no error block"))
	}
	if parsed.Error.ErrorCode != 0 {
		return apperrors.Rejected(op, parsed.Error.ErrorCode, parsed.Error.ErrLogMessage)
	}
	return nil
}
