// ABOUTME: Client profile updates with a dry-run preview computed from the locally stored profile
// ABOUTME: Applied updates are posted upstream and the returned profile replaces the stored one

package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"mindbody-mcp/driver"
	"mindbody-mcp/models"
	"mindbody-mcp/repository"
)

// FieldChange is one proposed field edit
type FieldChange struct {
	Field    string `json:"field"`
	Current  any    `json:"current"`
	Proposed any    `json:"proposed"`
	Changed  bool   `json:"changed"`
}

// ClientUpdateResult describes a previewed or applied update
type ClientUpdateResult struct {
	ClientID string         `json:"client_id"`
	DryRun   bool           `json:"dry_run"`
	Applied  bool           `json:"applied"`
	Known    bool           `json:"known_locally"`
	Changes  []FieldChange  `json:"changes"`
	Client   *models.Client `json:"client,omitempty"`
}

// ClientUpdateService edits client profiles upstream
type ClientUpdateService struct {
	api     APIRequester
	clients repository.ClientRepository
	logger  *slog.Logger
	now     func() time.Time
}

// NewClientUpdateService creates a new client update service
func NewClientUpdateService(api APIRequester, clients repository.ClientRepository, logger *slog.Logger) *ClientUpdateService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ClientUpdateService{api: api, clients: clients, logger: logger, now: time.Now}
}

// SetClock replaces the time source
func (s *ClientUpdateService) SetClock(now func() time.Time) {
	s.now = now
}

type clientUpdateRequest struct {
	ClientID string         `json:"client_id" validate:"required"`
	Fields   map[string]any `json:"fields" validate:"required,min=1,without_key=Id"`
}

// UpdateClient previews the change when dryRun is set and makes no upstream call.
// Otherwise it posts the fields and upserts the profile the provider returns.
func (s *ClientUpdateService) UpdateClient(ctx context.Context, clientID string, fields map[string]any, dryRun, force bool) (*ClientUpdateResult, error) {
	clientID = strings.TrimSpace(clientID)
	if err := validateInput(clientUpdateRequest{ClientID: clientID, Fields: fields}); err != nil {
		return nil, err
	}

	current, err := s.storedFields(ctx, clientID)
	if err != nil {
		return nil, err
	}

	result := &ClientUpdateResult{
		ClientID: clientID,
		DryRun:   dryRun,
		Known:    current != nil,
		Changes:  diffFields(current, fields),
	}
	if dryRun {
		s.logger.Info("Previewed client update", "client_id", clientID, "fields", len(fields))
		return result, nil
	}

	client := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		client[k] = v
	}
	client["Id"] = clientID

	body, err := s.api.Request(ctx, models.APIRequest{
		Method:   http.MethodPost,
		Endpoint: driver.EndpointUpdateClient,
		Body: map[string]any{
			"Client":              client,
			"CrossRegionalUpdate": false,
		},
		Force: force,
	})
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Client json.RawMessage `json:"Client"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode update response: %w", err)
	}
	result.Applied = true

	if len(envelope.Client) == 0 || string(envelope.Client) == "null" {
		s.logger.Warn("Update response carried no client profile", "client_id", clientID)
		return result, nil
	}

	updated, err := models.ParseClient(envelope.Client, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.clients.SaveClient(ctx, updated); err != nil {
		return nil, fmt.Errorf("failed to store updated client: %w", err)
	}
	result.Client = updated

	s.logger.Info("Applied client update", "client_id", clientID, "fields", len(fields))
	return result, nil
}

// storedFields returns the stored upstream payload as a map, or nil when the client was never synced
func (s *ClientUpdateService) storedFields(ctx context.Context, clientID string) (map[string]any, error) {
	client, err := s.clients.GetClient(ctx, clientID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	stored := map[string]any{}
	if len(client.Raw) > 0 {
		if err := json.Unmarshal(client.Raw, &stored); err != nil {
			return nil, fmt.Errorf("failed to decode stored client %s: %w", clientID, err)
		}
	}
	return stored, nil
}

func diffFields(current, proposed map[string]any) []FieldChange {
	names := make([]string, 0, len(proposed))
	for name := range proposed {
		names = append(names, name)
	}
	sort.Strings(names)

	changes := make([]FieldChange, 0, len(names))
	for _, name := range names {
		var was any
		if current != nil {
			was = current[name]
		}
		changes = append(changes, FieldChange{
			Field:    name,
			Current:  was,
			Proposed: proposed[name],
			Changed:  !sameJSON(was, proposed[name]),
		})
	}
	return changes
}

// sameJSON compares values by their JSON encoding so 1 and 1.0 match
func sameJSON(a, b any) bool {
	ea, errA := json.Marshal(a)
	eb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	var va, vb any
	if json.Unmarshal(ea, &va) != nil || json.Unmarshal(eb, &vb) != nil {
		return false
	}
	ra, _ := json.Marshal(va)
	rb, _ := json.Marshal(vb)
	return string(ra) == string(rb)
}
