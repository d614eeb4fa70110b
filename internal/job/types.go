package job

// Summary is the jobSummary block the server returns for one job. Only
// the fields the package reads are mapped; the rest of the payload is
// dropped on decode.
type Summary struct {
	JobID                  int       `json:"jobId"`
	Status                 string    `json:"status"`
	IsVisible              bool      `json:"isVisible"`
	LastUpdateTime         int64     `json:"lastUpdateTime"`
	JobStartTime           int64     `json:"jobStartTime"`
	JobEndTime             int64     `json:"jobEndTime"`
	JobElapsedTime         int64     `json:"jobElapsedTime"`
	PercentComplete        float64   `json:"percentComplete"`
	JobType                string    `json:"jobType"`
	LocalizedOperationName string    `json:"localizedOperationName"`
	AppTypeName            string    `json:"appTypeName"`
	BackupLevelName        string    `json:"backupLevelName"`
	PendingReason          string    `json:"pendingReason"`
	CurrentPhaseName       string    `json:"currentPhaseName"`
	SizeOfApplication      int64     `json:"sizeOfApplication"`
	SizeOfMediaOnDisk      int64     `json:"sizeOfMediaOnDisk"`
	TotalNumOfFiles        int64     `json:"totalNumOfFiles"`
	DestClientName         string    `json:"destClientName"`
	UserName               User      `json:"userName"`
	Subclient              Subclient `json:"subclient"`
}

// User identifies who started the job.
type User struct {
	UserName string `json:"userName"`
	UserID   int    `json:"userId"`
}

// Subclient locates the subclient a job ran against.
type Subclient struct {
	ClientID      int    `json:"clientId"`
	ClientName    string `json:"clientName"`
	InstanceID    int    `json:"instanceId"`
	InstanceName  string `json:"instanceName"`
	BackupsetID   int    `json:"backupsetId"`
	BackupsetName string `json:"backupsetName"`
	SubclientID   int    `json:"subclientId"`
	SubclientName string `json:"subclientName"`
	AppName       string `json:"appName"`
}

// SummaryView is the flattened per-job record the controller listings
// return when full detail is not requested.
type SummaryView struct {
	JobID           int     `json:"job_id"`
	Operation       string  `json:"operation"`
	Status          string  `json:"status"`
	AppType         string  `json:"app_type"`
	JobType         string  `json:"job_type"`
	PercentComplete float64 `json:"percent_complete"`
	PendingReason   string  `json:"pending_reason"`
	ClientID        int     `json:"client_id"`
	ClientName      string  `json:"client_name"`
	SubclientID     int     `json:"subclient_id"`
	BackupLevel     string  `json:"backup_level"`
	JobStartTime    int64   `json:"job_start_time"`
	JobElapsedTime  int64   `json:"job_elapsed_time"`
}

// View flattens the summary into the listing record shape.
func (s Summary) View() SummaryView {
	return SummaryView{
		JobID:           s.JobID,
		Operation:       s.LocalizedOperationName,
		Status:          s.Status,
		AppType:         s.AppTypeName,
		JobType:         s.JobType,
		PercentComplete: s.PercentComplete,
		PendingReason:   s.PendingReason,
		ClientID:        s.Subclient.ClientID,
		ClientName:      s.Subclient.ClientName,
		SubclientID:     s.Subclient.SubclientID,
		BackupLevel:     s.BackupLevelName,
		JobStartTime:    s.JobStartTime,
		JobElapsedTime:  s.JobElapsedTime,
	}
}

// Details is the jobDetail block returned by the JobDetails endpoint.
type Details struct {
	ProgressInfo ProgressInfo `json:"progressInfo"`
	DetailInfo   DetailInfo   `json:"detailInfo"`
	AttemptsInfo []Attempt    `json:"attemptsInfo"`
	ClientStatus ClientStatus `json:"clientStatusInfo"`
}

type ProgressInfo struct {
	ReasonForJobDelay     string  `json:"reasonForJobDelay"`
	State                 string  `json:"state"`
	PercentComplete       float64 `json:"percentComplete"`
	NumOfFilesTransferred int64   `json:"numOfFilesTransferred"`
}

type DetailInfo struct {
	StartTime    int64 `json:"startTime"`
	EndTime      int64 `json:"endTime"`
	NumOfObjects int64 `json:"numOfObjects"`
}

// Attempt records one phase attempt of the job.
type Attempt struct {
	AttemptNum int    `json:"attemptNum"`
	PhaseName  string `json:"phaseName"`
	Status     string `json:"status"`
	StartTime  int64  `json:"startTime"`
	EndTime    int64  `json:"endTime"`
}

// ClientStatus carries per-VM status for virtualization jobs.
type ClientStatus struct {
	VMStatus []VMStatus `json:"vmStatus"`
}

// VMStatus is the per-virtual-machine progress block inside a
// virtualization job's details.
type VMStatus struct {
	VMName        string `json:"vmName"`
	GUID          string `json:"GUID"`
	Status        int    `json:"Status"`
	Agent         string `json:"Agent"`
	BackupSize    int64  `json:"BackupSize"`
	FailureReason string `json:"FailureReason"`
}

// Event is one row from the job event log.
type Event struct {
	ID          int    `json:"id"`
	Severity    int    `json:"severity"`
	EventCode   string `json:"eventCodeString"`
	Description string `json:"description"`
	TimeSource  int64  `json:"timeSource"`
	Subsystem   string `json:"subsystem"`
}

type eventsResponse struct {
	CommservEvents []Event `json:"commservEvents"`
}

// listResponse is the Jobs listing envelope.
type listResponse struct {
	TotalRecordsWithoutPaging int          `json:"totalRecordsWithoutPaging"`
	Jobs                      []jobWrapper `json:"jobs"`
}

type jobWrapper struct {
	JobSummary Summary `json:"jobSummary"`
}

// detailsResponse is the JobDetails envelope. A rejection carries an
// error block instead of the job block.
type detailsResponse struct {
	Job *struct {
		JobDetail Details `json:"jobDetail"`
	} `json:"job"`
	Error *struct {
		ErrList []struct {
			ErrorCode     int    `json:"errorCode"`
			ErrLogMessage string `json:"errLogMessage"`
		} `json:"errList"`
	} `json:"error"`
}
