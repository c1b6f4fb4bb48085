package repository

import (
	"context"
	"fmt"
	"strings"

	"PairPilot/internal/domain/models"
	domrepo "PairPilot/internal/domain/repository"
	apphttp "PairPilot/pkg/http"
)

// ExecutionClient reads open positions and portfolio context from the
// execution service. An empty base URL means no execution service: no
// active trades and the default portfolio context.
type ExecutionClient struct {
	baseURL string
	client  *apphttp.Client
}

// NewExecutionClient creates a client for baseURL.
func NewExecutionClient(baseURL string, client *apphttp.Client) *ExecutionClient {
	if client == nil {
		client = apphttp.NewClient()
	}
	return &ExecutionClient{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

type activeTradesResponse struct {
	Trades []models.ActiveTrade `json:"trades"`
}

// GetActiveTrades calls GET {base}/trades/active.
func (c *ExecutionClient) GetActiveTrades(ctx context.Context) ([]models.ActiveTrade, error) {
	if c.baseURL == "" {
		return nil, nil
	}
	var resp activeTradesResponse
	if err := c.client.SendAndParse(ctx, &apphttp.RequestOptions{
		Method: apphttp.MethodGet,
		URL:    c.baseURL + "/trades/active",
	}, &resp); err != nil {
		return nil, fmt.Errorf("active trades: %w", err)
	}
	return resp.Trades, nil
}

// GetPairSelectionContext calls GET {base}/portfolio/selection-context.
func (c *ExecutionClient) GetPairSelectionContext(ctx context.Context) (models.PortfolioContext, error) {
	if c.baseURL == "" {
		return models.DefaultPortfolioContext(), nil
	}
	pc := models.DefaultPortfolioContext()
	if err := c.client.SendAndParse(ctx, &apphttp.RequestOptions{
		Method: apphttp.MethodGet,
		URL:    c.baseURL + "/portfolio/selection-context",
	}, &pc); err != nil {
		return models.DefaultPortfolioContext(), fmt.Errorf("portfolio context: %w", err)
	}
	if pc.RegimePerformance == nil {
		pc.RegimePerformance = map[string]float64{}
	}
	if pc.ActivePairs == nil {
		pc.ActivePairs = []string{}
	}
	return pc, nil
}

var (
	_ domrepo.TradeMonitor    = (*ExecutionClient)(nil)
	_ domrepo.PortfolioMemory = (*ExecutionClient)(nil)
)
