package baremetrics

import (
	"errors"
	"fmt"

	"github.com/creetelo/bmsync/internal/domain"
)

// Source is a Baremetrics data source (one per payment provider).
type Source struct {
	ID       string `json:"id"`
	Provider string `json:"provider"`
}

// Customer is a Baremetrics customer record.
type Customer struct {
	OID        string            `json:"oid"`
	Email      string            `json:"email"`
	Name       string            `json:"name"`
	Notes      string            `json:"notes,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// ToBillingCustomer converts the customer into the internal billing shape.
func (c Customer) ToBillingCustomer() domain.BillingCustomer {
	return domain.BillingCustomer{
		OID:         c.OID,
		Email:       c.Email,
		DisplayName: c.Name,
		Attributes:  c.Attributes,
	}
}

// Plan is a Baremetrics plan. Amount is in minor currency units.
type Plan struct {
	OID           string `json:"oid"`
	Name          string `json:"name"`
	Interval      string `json:"interval"`
	IntervalCount int    `json:"interval_count"`
	Amount        int    `json:"amount"`
	Currency      string `json:"currency"`
}

// CustomerPayload is the create-customer request body.
type CustomerPayload struct {
	OID   string `json:"oid,omitempty"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Notes string `json:"notes,omitempty"`
}

// SubscriptionPayload is the create-subscription request body.
type SubscriptionPayload struct {
	OID         string `json:"oid,omitempty"`
	CustomerOID string `json:"customer_oid"`
	PlanOID     string `json:"plan_oid"`
	StartedAt   int64  `json:"started_at"`
}

// CustomersPage is one page of a customer listing.
type CustomersPage struct {
	Customers []Customer
	HasMore   bool
}

type customersResponse struct {
	Customers []Customer `json:"customers"`
	Meta      struct {
		Pagination struct {
			HasMore bool `json:"has_more"`
		} `json:"pagination"`
	} `json:"meta"`
}

// APIError is a non-2xx response from the Baremetrics API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("baremetrics: API returned status %d: %s", e.StatusCode, e.Body)
}

// IsRateLimited reports whether err is a Baremetrics 429 or 5xx. The driver
// tallies these separately so operators know to raise the pacing delays.
func IsRateLimited(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
}
