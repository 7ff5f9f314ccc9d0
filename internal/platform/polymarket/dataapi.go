package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/alanyoungcy/tradepilot/internal/domain"
)

// DataClient reads portfolio state from the public data API. It is
// unauthenticated; positions are keyed by wallet address.
type DataClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewDataClient creates a data API client rooted at baseURL
// (e.g. "https://data-api.polymarket.com").
func NewDataClient(baseURL string) *DataClient {
	return &DataClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// GetPositions returns the open positions held by the given address.
// Rows with zero size are filtered out.
func (d *DataClient) GetPositions(ctx context.Context, address string) ([]domain.Position, error) {
	endpoint := fmt.Sprintf("%s/positions?user=%s&sizeThreshold=0.1", d.baseURL, url.QueryEscape(address))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("polymarket/dataapi: create request: %w", err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("polymarket/dataapi: get positions: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("polymarket/dataapi: read response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, fmt.Errorf("polymarket/dataapi: get positions: %w", err)
	}

	var rows []APIPosition
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("polymarket/dataapi: decode positions: %w", err)
	}

	positions := make([]domain.Position, 0, len(rows))
	for i := range rows {
		if rows[i].Size <= 0 {
			continue
		}
		positions = append(positions, rows[i].ToDomainPosition())
	}
	return positions, nil
}
