package site_client

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mcdev12/donut/go/clients"
)

type SiteClient struct {
	*clients.BaseClient
}

func NewSiteClient(baseURL string) *SiteClient {
	client := &SiteClient{
		BaseClient: clients.NewBaseClient(baseURL),
	}

	client.SetHeader(AcceptHeader, AcceptJSON)
	client.SetHeader(RequestedWithHeader, RequestedWith)

	return client
}

// envelope carries the fields every site response may have
type envelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// decode unmarshals a response into out, turning an {"error": ...} body into
// an *APIError regardless of the HTTP status it came with.
func decode(body []byte, reqErr error, out any) error {
	if reqErr != nil {
		var statusErr *clients.StatusError
		if errors.As(reqErr, &statusErr) {
			var env envelope
			if json.Unmarshal(statusErr.Body, &env) == nil && env.Error != "" {
				return &APIError{Message: env.Error, StatusCode: statusErr.StatusCode}
			}
		}
		return reqErr
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w, raw response: %s", err, string(body))
	}
	if env.Error != "" {
		return &APIError{Message: env.Error}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w, raw response: %s", err, string(body))
	}
	return nil
}
