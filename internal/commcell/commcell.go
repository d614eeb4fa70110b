// Package commcell holds the session handle shared by every API
// subsystem: the authenticated requester, the endpoint table and the
// lazily loaded client directory.
package commcell

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"commcell/internal/apperrors"
	"commcell/internal/transport"
)

// Config carries the commcell-wide settings that subsystems read off
// the session rather than from the environment.
type Config struct {
	// CommservName is the display name of the CommServe host, used in
	// request payloads that identify the cell.
	CommservName string

	// JobLogsEmails receives the log collection bundles requested for
	// failed jobs. Empty disables the mail step.
	JobLogsEmails []string
}

// Session is the shared handle onto one commcell. It is safe for
// concurrent use.
type Session struct {
	rq     transport.Requester
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	clients map[string]int
}

func NewSession(rq transport.Requester, cfg Config) *Session {
	return &Session{
		rq:     rq,
		cfg:    cfg,
		logger: slog.With("component", "commcell"),
	}
}

// Requester exposes the underlying transport for subsystems that build
// their own requests.
func (s *Session) Requester() transport.Requester {
	return s.rq
}

func (s *Session) CommservName() string { return s.cfg.CommservName }

func (s *Session) JobLogsEmails() []string { return s.cfg.JobLogsEmails }

// ServiceURL resolves a service name to its endpoint path, applying
// format arguments for templated paths. Unknown names panic: the table
// is fixed at compile time and a miss is a programming error.
func (s *Session) ServiceURL(name string, args ...any) string {
	tmpl, ok := serviceTemplates[name]
	if !ok {
		panic(fmt.Sprintf("commcell: unknown service %q", name))
	}
	if len(args) == 0 {
		return tmpl
	}
	return fmt.Sprintf(tmpl, args...)
}

// ExecuteQCommand runs a legacy qoperation through the QCommand
// endpoint. The body is sent as-is; callers decode the response shape
// they expect.
func (s *Session) ExecuteQCommand(ctx context.Context, body any) (*transport.Response, error) {
	resp, err := s.rq.Do(ctx, http.MethodPost, s.ServiceURL(SvcExecuteQCommand), body)
	if err != nil {
		if resp != nil {
			return nil, apperrors.Transport("qcommand", resp.Text())
		}
		return nil, apperrors.Transport("qcommand", err.Error())
	}
	return resp, nil
}

type clientsResponse struct {
	ClientProperties []struct {
		Client struct {
			ClientEntity struct {
				ClientName string `json:"clientName"`
				ClientID   int    `json:"clientId"`
			} `json:"clientEntity"`
		} `json:"client"`
	} `json:"clientProperties"`
}

// ClientID resolves a client display name to its numeric id. The
// directory is fetched once and cached; RefreshClients drops the cache.
// Lookup is case-insensitive, matching how the server treats names.
func (s *Session) ClientID(ctx context.Context, name string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.clients == nil {
		clients, err := s.fetchClients(ctx)
		if err != nil {
			return 0, err
		}
		s.clients = clients
	}

	id, ok := s.clients[strings.ToLower(name)]
	if !ok {
		return 0, apperrors.NotFound("client", name)
	}
	return id, nil
}

// RefreshClients forgets the cached client directory so the next lookup
// refetches it.
func (s *Session) RefreshClients() {
	s.mu.Lock()
	s.clients = nil
	s.mu.Unlock()
}

func (s *Session) fetchClients(ctx context.Context) (map[string]int, error) {
	resp, err := s.rq.Do(ctx, http.MethodGet, s.ServiceURL(SvcClients), nil)
	if err != nil {
		if resp != nil {
			return nil, apperrors.Transport("clients.list", resp.Text())
		}
		return nil, apperrors.Transport("clients.list", err.Error())
	}
	if resp.Empty() {
		return nil, apperrors.Malformed("clients.list", fmt.Errorf("empty response body"))
	}

	var parsed clientsResponse
	if err := resp.JSON(&parsed); err != nil {
		return nil, apperrors.Malformed("clients.list", err)
	}

	clients := make(map[string]int, len(parsed.ClientProperties))
	for _, prop := range parsed.ClientProperties {
		entity := prop.Client.ClientEntity
		if entity.ClientName == "" {
			continue
		}
		clients[strings.ToLower(entity.ClientName)] = entity.ClientID
	}
	s.logger.Debug("client directory loaded", "clients", len(clients))
	return clients, nil
}
