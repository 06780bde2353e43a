package crm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/calin/convohist/internal/domain"
	"github.com/calin/convohist/internal/logger"
)

// ContactResult is one row of a contact search.
type ContactResult struct {
	ID      string         `json:"id"`
	Contact domain.Contact `json:"contact"`
}

// ContactService provides contact lookup against the CRM API. It exists so
// callers of the export API can resolve a contact id before starting an
// export; it is deliberately thin.
type ContactService struct {
	caller Caller
	logger *logger.Logger
}

// NewContactService creates a new contact service.
func NewContactService(caller Caller, log *logger.Logger) *ContactService {
	return &ContactService{caller: caller, logger: log}
}

type upstreamContact struct {
	ID          string `json:"id"`
	ContactName string `json:"contactName"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
}

type contactSearchEnvelope struct {
	Contacts []upstreamContact `json:"contacts"`
}

// Search finds contacts in a location matching the query string.
func (s *ContactService) Search(ctx context.Context, locationID, query string) ([]ContactResult, error) {
	endpoint := fmt.Sprintf("/contacts/?locationId=%s&query=%s",
		url.QueryEscape(locationID), url.QueryEscape(query))

	data, err := s.caller.Call(ctx, locationID, "GET", endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("contact search failed: %w", err)
	}

	var env contactSearchEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode contact search response: %w", err)
	}

	results := make([]ContactResult, 0, len(env.Contacts))
	for _, c := range env.Contacts {
		name := c.ContactName
		if name == "" {
			name = c.FirstName
			if c.LastName != "" {
				if name != "" {
					name += " "
				}
				name += c.LastName
			}
		}
		results = append(results, ContactResult{
			ID: c.ID,
			Contact: domain.Contact{
				Name:  name,
				Email: c.Email,
				Phone: c.Phone,
			},
		})
	}

	return results, nil
}
