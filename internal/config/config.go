// Package config provides configuration loading from environment variables.
package config

import (
	"time"
)

// ClientConfig holds the connection and polling settings for one
// commcell.
type ClientConfig struct {
	ServerURL      string
	AuthToken      string // resolved from a secret file when configured
	CommservName   string
	MetricsPort    string
	RequestTimeout time.Duration
	PollInterval   time.Duration
	StallTimeout   time.Duration // kill jobs stuck pending/waiting past this
	ReturnTimeout  time.Duration // give up waiting entirely (0 to wait forever)
	JobLogsEmails  []string
}

// LoadClientConfig loads client configuration from environment variables.
func LoadClientConfig() *ClientConfig {
	token := GetSecretFile(GetEnv("COMMCELL_TOKEN_FILE", ""))
	if token == "" {
		token = GetEnv("COMMCELL_TOKEN", "")
	}

	return &ClientConfig{
		ServerURL:      GetEnv("COMMCELL_URL", "http://localhost:81/SearchSvc/CVWebService.svc"),
		AuthToken:      token,
		CommservName:   GetEnv("COMMSERV_NAME", ""),
		MetricsPort:    GetEnv("METRICS_PORT", "9090"),
		RequestTimeout: GetDurationEnv("REQUEST_TIMEOUT", 30*time.Second),
		PollInterval:   GetDurationEnv("JOB_POLL_INTERVAL", 30*time.Second),
		StallTimeout:   GetDurationEnv("JOB_STALL_TIMEOUT", 30*time.Minute),
		ReturnTimeout:  GetDurationEnv("JOB_RETURN_TIMEOUT", 0),
		JobLogsEmails:  GetListEnv("JOB_LOGS_EMAILS"),
	}
}
