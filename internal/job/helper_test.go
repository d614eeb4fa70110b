package job

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"commcell/internal/commcell"
	"commcell/internal/transport"
	"commcell/pkg/backoff"
)

// fakeCell scripts a commcell backend: per-job status sequences, zero
// record and failure injection, and canned bodies for the control
// endpoints. The last status of a sequence repeats forever.
type fakeCell struct {
	mu sync.Mutex

	statuses map[int][]string
	idx      map[int]int
	zero     map[int]int
	fail500  int

	fail500Details int
	emptySummary   int

	state         string
	failureReason string
	control       map[string]string
	resubmitTo    int
	sendLogsJob   int

	counts            map[string]int
	lastResubmitQuery string
	lastCreateTask    []byte
	lastListRequest   []byte
}

func newFakeCell() *fakeCell {
	return &fakeCell{
		statuses: map[int][]string{},
		idx:      map[int]int{},
		zero:     map[int]int{},
		control:  map[string]string{},
		counts:   map[string]int{},
	}
}

func (f *fakeCell) setStatuses(id int, statuses ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[id] = statuses
	f.idx[id] = 0
}

func (f *fakeCell) count(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[key]
}

func (f *fakeCell) nextStatus(id int) (string, bool) {
	list := f.statuses[id]
	if len(list) == 0 {
		return "", false
	}
	i := f.idx[id]
	if i >= len(list) {
		i = len(list) - 1
	}
	f.idx[id]++
	return list[i], true
}

func (f *fakeCell) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		path := r.URL.Path
		switch {
		case strings.HasSuffix(path, "/TaskDetails"):
			f.counts["taskdetails"]++
			io.WriteString(w, `{"taskInfo":{"task":{"taskId":42}}}`)

		case strings.HasSuffix(path, "/Logs"):
			f.counts["logs"]++
			io.WriteString(w, "10:01 backup phase started\n10:05 backup phase finished")

		case strings.Contains(path, "/AdvancedDetails"):
			f.counts["advanced"]++
			io.WriteString(w, `{"errorCode":0,"bkpInfo":{"subProtectedObjects":12}}`)

		case strings.Contains(path, "/action/"):
			parts := strings.Split(strings.Trim(path, "/"), "/")
			id, _ := strconv.Atoi(parts[1])
			verb := parts[3]
			f.counts[verb]++
			if verb == "kill" {
				f.statuses[id] = []string{"Killed"}
				f.idx[id] = 0
			}
			if body, ok := f.control[verb]; ok {
				io.WriteString(w, body)
				return
			}
			if verb == "resubmit" {
				f.lastResubmitQuery = r.URL.RawQuery
				fmt.Fprintf(w, `{"errorCode":0,"jobIds":[%d]}`, f.resubmitTo)
				return
			}
			io.WriteString(w, `{"errorCode":0}`)

		case strings.HasPrefix(path, "/Job/"):
			f.counts["summary"]++
			if f.fail500 > 0 {
				f.fail500--
				w.WriteHeader(http.StatusInternalServerError)
				io.WriteString(w, "backend unavailable")
				return
			}
			id, _ := strconv.Atoi(strings.TrimPrefix(path, "/Job/"))
			if f.emptySummary > 0 {
				f.emptySummary--
				io.WriteString(w, `{}`)
				return
			}
			if f.zero[id] > 0 {
				f.zero[id]--
				io.WriteString(w, `{"totalRecordsWithoutPaging":0,"jobs":[]}`)
				return
			}
			status, ok := f.nextStatus(id)
			if !ok {
				io.WriteString(w, `{"totalRecordsWithoutPaging":0,"jobs":[]}`)
				return
			}
			fmt.Fprintf(w,
				`{"totalRecordsWithoutPaging":1,"jobs":[{"jobSummary":{"jobId":%d,"status":%q,"isVisible":true,"lastUpdateTime":1700000000,"jobStartTime":1699990000,"percentComplete":50,"currentPhaseName":"Scan","jobType":"Backup","backupLevelName":"Full","appTypeName":"Windows File System","userName":{"userName":"admin","userId":1},"subclient":{"clientId":2,"clientName":"server01","instanceName":"DefaultInstanceName","backupsetName":"defaultBackupSet","subclientName":"default","subclientId":8}}}]}`,
				id, status)

		case path == "/JobDetails":
			f.counts["details"]++
			if f.fail500Details > 0 {
				f.fail500Details--
				w.WriteHeader(http.StatusInternalServerError)
				io.WriteString(w, "backend unavailable")
				return
			}
			fmt.Fprintf(w,
				`{"job":{"jobDetail":{"progressInfo":{"state":%q,"reasonForJobDelay":"media agent offline"},"clientStatusInfo":{"vmStatus":[{"vmName":"vm01","FailureReason":%q}]}}}}`,
				f.state, f.failureReason)

		case path == "/Jobs":
			f.counts["list"]++
			f.lastListRequest, _ = io.ReadAll(r.Body)
			io.WriteString(w, `{"totalRecordsWithoutPaging":2,"jobs":[
				{"jobSummary":{"jobId":11,"status":"Running","isVisible":true,"localizedOperationName":"Backup","appTypeName":"Windows File System","jobType":"Backup","percentComplete":40,"backupLevelName":"Incremental","jobStartTime":1700000100,"jobElapsedTime":120,"subclient":{"clientId":2,"clientName":"server01","subclientId":8}}},
				{"jobSummary":{"jobId":12,"status":"Running","isVisible":false}}
			]}`)

		case path == "/CreateTask":
			f.counts["createtask"]++
			f.lastCreateTask, _ = io.ReadAll(r.Body)
			fmt.Fprintf(w, `{"errorCode":0,"jobIds":[%d]}`, f.sendLogsJob)

		case path == "/Events":
			f.counts["events"]++
			io.WriteString(w, `{"commservEvents":[{"id":1,"severity":6,"description":"Backup started"},{"id":2,"severity":3,"description":"Media agent offline"}]}`)

		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func newFakeSession(t *testing.T, f *fakeCell, emails ...string) *commcell.Session {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	rq := transport.NewHTTPRequester(srv.URL, "token", 5*time.Second, nil)
	return commcell.NewSession(rq, commcell.Config{CommservName: "cs01", JobLogsEmails: emails})
}

// fastOptions shrinks every interval so the polling machinery runs in
// milliseconds.
func fastOptions() Options {
	return Options{
		InitAttempts:       3,
		InitInterval:       time.Millisecond,
		SummaryAttempts:    5,
		TransportRetryWait: time.Millisecond,
		Backoff:            &backoff.Config{Initial: time.Millisecond, Max: 4 * time.Millisecond},
		PollInterval:       2 * time.Millisecond,
		StatusPollInterval: time.Millisecond,
		StatusWaitTimeout:  20 * time.Millisecond,
	}
}
