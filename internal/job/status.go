package job

import "strings"

// defaultFinishedKeywords are the status substrings that mark a job as
// terminal. Matching is case-insensitive and substring based, so
// "Completed w/ one or more errors" and "Killed by user" both count.
var defaultFinishedKeywords = []string{
	"completed",
	"killed",
	"committed",
	"failed",
}

// failureStatuses are the exact terminal statuses treated as a failed
// wait outcome.
var failureStatuses = []string{
	"failed",
	"killed",
	"failed to start",
}

func statusFinished(status string, keywords []string) bool {
	lowered := strings.ToLower(status)
	for _, kw := range keywords {
		if strings.Contains(lowered, kw) {
			return true
		}
	}
	return false
}

func statusFailed(status string) bool {
	lowered := strings.ToLower(status)
	for _, failure := range failureStatuses {
		if lowered == failure {
			return true
		}
	}
	return false
}

func statusStalled(status string) bool {
	lowered := strings.ToLower(status)
	return lowered == "pending" || lowered == "waiting"
}
