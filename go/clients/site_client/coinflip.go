package site_client

import (
	"context"
	"fmt"

	"github.com/mcdev12/donut/go/internal/models"
)

type CoinflipListResponse struct {
	Coinflips []models.Coinflip `json:"coinflips"`
}

// Coinflips lists the games currently known to the server.
func (c *SiteClient) Coinflips(ctx context.Context) ([]models.Coinflip, error) {
	body, err := c.Get(ctx, CoinflipListEndpoint)

	var response CoinflipListResponse
	if err := decode(body, err, &response); err != nil {
		return nil, fmt.Errorf("failed to list coinflips: %w", err)
	}
	if response.Coinflips == nil {
		return nil, fmt.Errorf("failed to list coinflips: %w", ErrUnexpectedResponse)
	}

	return response.Coinflips, nil
}

// CoinflipViewURL is the click-through link to a game's result.
func (c *SiteClient) CoinflipViewURL(gameID models.ID) string {
	return c.BaseURL() + fmt.Sprintf(CoinflipViewPath, gameID)
}
