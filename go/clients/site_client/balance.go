package site_client

import (
	"context"
	"fmt"
)

type BalanceResponse struct {
	Success bool     `json:"success"`
	Balance *float64 `json:"balance"`
}

// Balance fetches the authoritative account balance.
func (c *SiteClient) Balance(ctx context.Context) (float64, error) {
	body, err := c.Get(ctx, BalanceEndpoint)

	var response BalanceResponse
	if err := decode(body, err, &response); err != nil {
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	if !response.Success || response.Balance == nil {
		return 0, fmt.Errorf("failed to get balance: %w", ErrUnexpectedResponse)
	}

	return *response.Balance, nil
}
