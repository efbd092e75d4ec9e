package factorylinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Factoryline HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Line is one order line in a create request.
type Line struct {
	ItemType string `json:"item_type"`
	ItemID   int    `json:"item_id"`
	Quantity int    `json:"quantity"`
}

// OrderLine is one line of a stored order.
type OrderLine struct {
	ItemType     string `json:"item_type"`
	ItemID       int    `json:"item_id"`
	RequestedQty int    `json:"requested_qty"`
	FulfilledQty int    `json:"fulfilled_qty"`
}

// Order represents the API order model.
type Order struct {
	ID            string      `json:"id"`
	Number        string      `json:"number"`
	Type          string      `json:"type"`
	Status        string      `json:"status"`
	Priority      string      `json:"priority"`
	ParentID      *string     `json:"parent_id,omitempty"`
	WorkstationID *int        `json:"workstation_id,omitempty"`
	Scenario      string      `json:"scenario,omitempty"`
	Lines         []OrderLine `json:"lines,omitempty"`
	CreatedAt     string      `json:"created_at"`
	UpdatedAt     string      `json:"updated_at"`
}

// StockRecord is one (workstation, item type, item) quantity.
type StockRecord struct {
	WorkstationID int    `json:"workstation_id"`
	ItemType      string `json:"item_type"`
	ItemID        int    `json:"item_id"`
	Quantity      int    `json:"quantity"`
	UpdatedAt     string `json:"updated_at"`
}

// LedgerEntry is one stock movement.
type LedgerEntry struct {
	ID            int64  `json:"id"`
	WorkstationID int    `json:"workstation_id"`
	ItemType      string `json:"item_type"`
	ItemID        int    `json:"item_id"`
	Delta         int    `json:"delta"`
	BalanceAfter  int    `json:"balance_after"`
	ReasonCode    string `json:"reason_code"`
	OrderRef      string `json:"order_ref,omitempty"`
	ActorID       string `json:"actor_id"`
	CreatedAt     string `json:"created_at"`
}

// Alert is one low-stock alert.
type Alert struct {
	WorkstationID int    `json:"workstation_id"`
	ItemType      string `json:"item_type"`
	ItemID        int    `json:"item_id"`
	Quantity      int    `json:"quantity"`
	Threshold     int    `json:"threshold"`
	Deficit       int    `json:"deficit"`
}

// ScheduleTask is one slot of a production schedule.
type ScheduleTask struct {
	WorkstationID int    `json:"workstation_id"`
	ItemID        int    `json:"item_id"`
	Quantity      int    `json:"quantity"`
	Start         string `json:"start"`
	End           string `json:"end"`
}

// Schedule is a stored production schedule.
type Schedule struct {
	OrderID    string         `json:"order_id"`
	Tasks      []ScheduleTask `json:"tasks"`
	ProposedAt string         `json:"proposed_at"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	PlantID    string         `json:"plant_id"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	Payload    map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Stock lists stock records, optionally filtered by workstation and type.
func (c *Client) Stock(ctx context.Context, workstationID int, itemType string) ([]StockRecord, error) {
	endpoint := "v0/stock"
	q := url.Values{}
	if workstationID > 0 {
		q.Set("workstation_id", fmt.Sprintf("%d", workstationID))
	}
	if itemType != "" {
		q.Set("item_type", itemType)
	}
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp []StockRecord
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// AdjustStock applies a signed quantity change.
func (c *Client) AdjustStock(ctx context.Context, workstationID int, itemType string, itemID, delta int, reasonCode string) (LedgerEntry, error) {
	body := map[string]any{
		"workstation_id": workstationID,
		"item_type":      itemType,
		"item_id":        itemID,
		"delta":          delta,
	}
	if reasonCode != "" {
		body["reason_code"] = reasonCode
	}
	var resp LedgerEntry
	err := c.do(ctx, http.MethodPost, "v0/stock/adjust", body, &resp)
	return resp, err
}

// Alerts evaluates low-stock thresholds against current stock.
func (c *Client) Alerts(ctx context.Context) ([]Alert, error) {
	var resp []Alert
	err := c.do(ctx, http.MethodGet, "v0/alerts", nil, &resp)
	return resp, err
}

// CreateOrder creates an order of the given family. The family is the
// create route segment: customer, warehouse, production, control,
// assembly-control, workstation, assembly or supply.
func (c *Client) CreateOrder(ctx context.Context, family, priority string, workstationID int, lines []Line) (Order, error) {
	body := map[string]any{"lines": lines}
	if priority != "" {
		body["priority"] = priority
	}
	if workstationID > 0 {
		body["workstation_id"] = workstationID
	}
	var resp Order
	endpoint := fmt.Sprintf("v0/orders/%s", url.PathEscape(family))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// OrderAction posts a lifecycle action such as confirm, fulfill or start.
func (c *Client) OrderAction(ctx context.Context, family, orderID, action string) (Order, error) {
	var resp Order
	endpoint := fmt.Sprintf("v0/orders/%s/%s/%s", url.PathEscape(family), url.PathEscape(orderID), url.PathEscape(action))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// RequestSupply opens a supply order for a control order's parts.
func (c *Client) RequestSupply(ctx context.Context, controlOrderID string, lines []Line) (Order, error) {
	var resp Order
	endpoint := fmt.Sprintf("v0/orders/control/%s/supply", url.PathEscape(controlOrderID))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"lines": lines}, &resp)
	return resp, err
}

// GetOrder fetches one order with its lines.
func (c *Client) GetOrder(ctx context.Context, orderID string) (Order, error) {
	var resp Order
	endpoint := fmt.Sprintf("v0/orders/%s", url.PathEscape(orderID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Orders lists orders, optionally filtered by family and status.
func (c *Client) Orders(ctx context.Context, orderType, status string) ([]Order, error) {
	endpoint := "v0/orders"
	q := url.Values{}
	if orderType != "" {
		q.Set("type", orderType)
	}
	if status != "" {
		q.Set("status", status)
	}
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp []Order
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// GetSchedule fetches the stored schedule of a production order.
func (c *Client) GetSchedule(ctx context.Context, orderID string) (Schedule, error) {
	var resp Schedule
	endpoint := fmt.Sprintf("v0/orders/%s/schedule", url.PathEscape(orderID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Events returns recent events, most recent first.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	endpoint := "v0/events"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
