// Package baremetrics is the Baremetrics API client: customer, plan and
// subscription CRUD against a configured source, plus custom-attribute
// updates. All writes go through this package; the dry-run path in the
// importer simply never calls them.
package baremetrics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/creetelo/bmsync/internal/config"
	"github.com/creetelo/bmsync/internal/domain"
	"github.com/creetelo/bmsync/internal/pkg/httpretry"
)

// Client is the Baremetrics API client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient httpretry.HTTPDoer
}

// NewClient creates a Baremetrics client. The base URL already encodes the
// environment (sandbox vs production), resolved once at config load.
func NewClient(cfg config.BaremetricsConfig) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: httpretry.NewRetryClient(&http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		}, 3),
	}
}

// SetHTTPClient swaps the underlying HTTP client (used by tests).
func (c *Client) SetHTTPClient(client httpretry.HTTPDoer) {
	c.httpClient = client
}

func (c *Client) doRequest(ctx context.Context, method, endpoint string, query url.Values, body interface{}) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("baremetrics: marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonBody)
	}

	reqURL := c.baseURL + endpoint
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("baremetrics: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("baremetrics: request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("baremetrics: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(data)}
	}
	return data, nil
}

// ListSources returns the account's data sources. Every other call needs a
// source ID; failing here is a setup error.
func (c *Client) ListSources(ctx context.Context) ([]Source, error) {
	data, err := c.doRequest(ctx, http.MethodGet, "/sources", nil, nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		Sources []Source `json:"sources"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("baremetrics: parse sources: %w", err)
	}
	return result.Sources, nil
}

// ListCustomers fetches one page of customers for the source.
func (c *Client) ListCustomers(ctx context.Context, sourceID string, page int) (*CustomersPage, error) {
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))

	data, err := c.doRequest(ctx, http.MethodGet, "/"+sourceID+"/customers", query, nil)
	if err != nil {
		return nil, err
	}

	var result customersResponse
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("baremetrics: parse customers page %d: %w", page, err)
	}
	return &CustomersPage{
		Customers: result.Customers,
		HasMore:   result.Meta.Pagination.HasMore,
	}, nil
}

// FindCustomerByEmail searches the source for a customer with the given
// email, nil when none exists. Used by the optional skip-if-exists
// pre-check before an import.
func (c *Client) FindCustomerByEmail(ctx context.Context, sourceID, email string) (*Customer, error) {
	query := url.Values{}
	query.Set("search", email)

	data, err := c.doRequest(ctx, http.MethodGet, "/"+sourceID+"/customers", query, nil)
	if err != nil {
		return nil, err
	}

	var result customersResponse
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("baremetrics: parse customer search: %w", err)
	}
	for i := range result.Customers {
		if result.Customers[i].Email == email {
			return &result.Customers[i], nil
		}
	}
	return nil, nil
}

// CreateCustomer creates a customer in the source.
func (c *Client) CreateCustomer(ctx context.Context, sourceID string, payload CustomerPayload) (*Customer, error) {
	data, err := c.doRequest(ctx, http.MethodPost, "/"+sourceID+"/customers", nil, payload)
	if err != nil {
		return nil, err
	}

	var result struct {
		Customer Customer `json:"customer"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("baremetrics: parse created customer: %w", err)
	}
	if result.Customer.OID == "" {
		return nil, fmt.Errorf("baremetrics: create customer returned no oid")
	}
	return &result.Customer, nil
}

// CreateSubscription creates a subscription in the source and returns the
// canonical internal shape.
func (c *Client) CreateSubscription(ctx context.Context, sourceID string, payload SubscriptionPayload) (*domain.Subscription, error) {
	data, err := c.doRequest(ctx, http.MethodPost, "/"+sourceID+"/subscriptions", nil, payload)
	if err != nil {
		return nil, err
	}
	return parseSubscriptionEnvelope(data)
}

// UpdateSubscription patches a subscription with the given fields.
func (c *Client) UpdateSubscription(ctx context.Context, sourceID, oid string, fields map[string]interface{}) (*domain.Subscription, error) {
	data, err := c.doRequest(ctx, http.MethodPut, "/"+sourceID+"/subscriptions/"+oid, nil, fields)
	if err != nil {
		return nil, err
	}
	return parseSubscriptionEnvelope(data)
}

// ListSubscriptions returns the customer's subscriptions in the source.
func (c *Client) ListSubscriptions(ctx context.Context, sourceID, customerOID string) ([]domain.Subscription, error) {
	query := url.Values{}
	if customerOID != "" {
		query.Set("customer_oid", customerOID)
	}

	data, err := c.doRequest(ctx, http.MethodGet, "/"+sourceID+"/subscriptions", query, nil)
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Subscriptions []json.RawMessage `json:"subscriptions"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("baremetrics: parse subscriptions: %w", err)
	}

	subs := make([]domain.Subscription, 0, len(envelope.Subscriptions))
	for _, raw := range envelope.Subscriptions {
		sub, err := canonicalizeSubscription(raw)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

// DeleteSubscription removes a subscription from the source.
func (c *Client) DeleteSubscription(ctx context.Context, sourceID, oid string) error {
	_, err := c.doRequest(ctx, http.MethodDelete, "/"+sourceID+"/subscriptions/"+oid, nil, nil)
	return err
}

// DeleteCustomer removes a customer from the source.
func (c *Client) DeleteCustomer(ctx context.Context, sourceID, oid string) error {
	_, err := c.doRequest(ctx, http.MethodDelete, "/"+sourceID+"/customers/"+oid, nil, nil)
	return err
}

// ListPlans returns the source's plans.
func (c *Client) ListPlans(ctx context.Context, sourceID string) ([]Plan, error) {
	data, err := c.doRequest(ctx, http.MethodGet, "/"+sourceID+"/plans", nil, nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		Plans []Plan `json:"plans"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("baremetrics: parse plans: %w", err)
	}
	return result.Plans, nil
}

// CreatePlan creates a plan in the source.
func (c *Client) CreatePlan(ctx context.Context, sourceID string, plan Plan) (*Plan, error) {
	data, err := c.doRequest(ctx, http.MethodPost, "/"+sourceID+"/plans", nil, plan)
	if err != nil {
		return nil, err
	}

	var result struct {
		Plan Plan `json:"plan"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("baremetrics: parse created plan: %w", err)
	}
	return &result.Plan, nil
}

// UpdateCustomerAttributes sets custom attributes on a customer. Returns
// true when the API acknowledged the update.
func (c *Client) UpdateCustomerAttributes(ctx context.Context, customerOID string, attrs map[string]string) (bool, error) {
	type attribute struct {
		CustomerOID string `json:"customer_oid"`
		Name        string `json:"name"`
		Value       string `json:"value"`
	}
	payload := struct {
		Attributes []attribute `json:"attributes"`
	}{}
	for name, value := range attrs {
		payload.Attributes = append(payload.Attributes, attribute{
			CustomerOID: customerOID,
			Name:        name,
			Value:       value,
		})
	}

	data, err := c.doRequest(ctx, http.MethodPost, "/attributes", nil, payload)
	if err != nil {
		return false, err
	}

	var result struct {
		Attributes []json.RawMessage `json:"attributes"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return false, fmt.Errorf("baremetrics: parse attributes response: %w", err)
	}
	return len(result.Attributes) > 0, nil
}

// parseSubscriptionEnvelope handles both {"subscription": {...}} and a bare
// subscription object, then canonicalizes the inner shape.
func parseSubscriptionEnvelope(data []byte) (*domain.Subscription, error) {
	var envelope struct {
		Subscription json.RawMessage `json:"subscription"`
	}
	inner := json.RawMessage(data)
	if err := json.Unmarshal(data, &envelope); err == nil && len(envelope.Subscription) > 0 {
		inner = envelope.Subscription
	}

	sub, err := canonicalizeSubscription(inner)
	if err != nil {
		return nil, err
	}
	if sub.OID == "" {
		return nil, fmt.Errorf("baremetrics: subscription response had no oid")
	}
	return &sub, nil
}
