// Package ghl is the GoHighLevel CRM API client: paginated contact listing
// by tag, lookups by email, and the subscription/payment/membership reads
// the repair commands need.
package ghl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/creetelo/bmsync/internal/config"
	"github.com/creetelo/bmsync/internal/pkg/httpretry"
)

// Client is the GoHighLevel API client.
type Client struct {
	baseURL    string
	apiKey     string
	locationID string
	httpClient httpretry.HTTPDoer
}

// NewClient creates a GHL client for the configured location.
func NewClient(cfg config.GHLConfig) *Client {
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		locationID: cfg.LocationID,
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
			return nil, fmt.Errorf("ghl: marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonBody)
	}

	reqURL := c.baseURL + endpoint
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("ghl: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ghl: request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ghl: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(data)}
	}
	return data, nil
}

// ListContactsByTag fetches one page of contacts carrying the given tag.
func (c *Client) ListContactsByTag(ctx context.Context, tag string, page, limit int) (*ContactsPage, error) {
	query := url.Values{}
	query.Set("query", tag)
	query.Set("page", strconv.Itoa(page))
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if c.locationID != "" {
		query.Set("locationId", c.locationID)
	}

	data, err := c.doRequest(ctx, http.MethodGet, "/contacts/", query, nil)
	if err != nil {
		return nil, err
	}

	var result contactsResponse
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("ghl: parse contacts page %d: %w", page, err)
	}
	return &ContactsPage{
		Contacts: result.Contacts,
		HasMore:  result.Meta.NextPage != nil,
	}, nil
}

// GetContactByEmail looks up contacts by email. With exact set, only
// contacts whose email matches the query exactly (case-insensitive on the
// remote side) are returned; otherwise GHL's fuzzy lookup results pass
// through as-is.
func (c *Client) GetContactByEmail(ctx context.Context, email string, exact bool) ([]Contact, error) {
	query := url.Values{}
	query.Set("email", email)

	data, err := c.doRequest(ctx, http.MethodGet, "/contacts/lookup", query, nil)
	if err != nil {
		return nil, err
	}

	var result lookupResponse
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("ghl: parse lookup response: %w", err)
	}
	if !exact {
		return result.Contacts, nil
	}

	var matched []Contact
	for _, contact := range result.Contacts {
		if strings.EqualFold(contact.Email, email) {
			matched = append(matched, contact)
		}
	}
	return matched, nil
}

// GetSubscriptionStatus returns the contact's subscription, or nil when the
// contact has none.
func (c *Client) GetSubscriptionStatus(ctx context.Context, contactID string) (*Subscription, error) {
	query := url.Values{}
	query.Set("contactId", contactID)

	data, err := c.doRequest(ctx, http.MethodGet, "/payments/subscriptions", query, nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		Subscriptions []Subscription `json:"subscriptions"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("ghl: parse subscriptions: %w", err)
	}
	if len(result.Subscriptions) == 0 {
		return nil, nil
	}
	return &result.Subscriptions[0], nil
}

// GetPayments returns the contact's transactions, oldest data first as the
// API returns them.
func (c *Client) GetPayments(ctx context.Context, contactID string) ([]Payment, error) {
	query := url.Values{}
	query.Set("contactId", contactID)

	data, err := c.doRequest(ctx, http.MethodGet, "/payments/transactions", query, nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		Payments []Payment `json:"payments"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("ghl: parse payments: %w", err)
	}
	return result.Payments, nil
}

// GetMemberships returns the contact's membership records.
func (c *Client) GetMemberships(ctx context.Context, contactID string) ([]Membership, error) {
	query := url.Values{}
	query.Set("contactId", contactID)

	data, err := c.doRequest(ctx, http.MethodGet, "/memberships/", query, nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		Memberships []Membership `json:"memberships"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("ghl: parse memberships: %w", err)
	}
	return result.Memberships, nil
}

// UpdateContact patches the given fields on a contact.
func (c *Client) UpdateContact(ctx context.Context, contactID string, fields map[string]interface{}) error {
	_, err := c.doRequest(ctx, http.MethodPut, "/contacts/"+contactID, nil, fields)
	return err
}
