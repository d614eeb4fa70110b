package commcell

// Service names resolved through the session's endpoint table.
const (
	SvcJob                = "JOB"
	SvcAllJobs            = "ALL_JOBS"
	SvcJobDetails         = "JOB_DETAILS"
	SvcSuspendJob         = "SUSPEND_JOB"
	SvcResumeJob          = "RESUME_JOB"
	SvcKillJob            = "KILL_JOB"
	SvcResubmitJob        = "RESUBMIT_JOB"
	SvcJobEvents          = "JOB_EVENTS"
	SvcJobTaskDetails     = "JOB_TASK_DETAILS"
	SvcAdvancedJobDetails = "ADVANCED_JOB_DETAILS"
	SvcJobLogs            = "GET_JOB_LOGS"
	SvcActiveJobsSummary  = "ACTIVE_JOBS_SUMMARY"
	SvcCreateTask         = "CREATE_TASK"
	SvcJobManagement      = "JOB_MANAGEMENT_SETTINGS"
	SvcExecuteQCommand    = "EXECUTE_QCOMMAND"
	SvcClients            = "CLIENTS"
)

// serviceTemplates maps service names to path templates relative to the
// web service root. Templates with verbs take the job id (and for
// advanced details, the info type) as format arguments.
var serviceTemplates = map[string]string{
	SvcJob:                "Job/%d",
	SvcAllJobs:            "Jobs",
	SvcJobDetails:         "JobDetails",
	SvcSuspendJob:         "Job/%d/action/pause",
	SvcResumeJob:          "Job/%d/action/resume",
	SvcKillJob:            "Job/%d/action/kill",
	SvcResubmitJob:        "Job/%d/action/resubmit",
	SvcJobEvents:          "Events?jobId=%d",
	SvcJobTaskDetails:     "Job/%d/TaskDetails",
	SvcAdvancedJobDetails: "Job/%d/AdvancedDetails?infoType=%d",
	SvcJobLogs:            "Job/%d/Logs",
	SvcActiveJobsSummary:  "Jobs/Summary",
	SvcCreateTask:         "CreateTask",
	SvcJobManagement:      "CommServ/JobManagementSettings",
	SvcExecuteQCommand:    "QCommand",
	SvcClients:            "Client",
}
