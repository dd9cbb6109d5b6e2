package ghl

import (
	"fmt"
	"strings"
	"time"

	"github.com/creetelo/bmsync/internal/domain"
)

// Contact is a GoHighLevel contact as returned by the v1 contacts API.
type Contact struct {
	ID          string   `json:"id"`
	Email       string   `json:"email"`
	ContactName string   `json:"contactName"`
	FirstName   string   `json:"firstName"`
	LastName    string   `json:"lastName"`
	Phone       string   `json:"phone"`
	CompanyName string   `json:"companyName"`
	Tags        []string `json:"tags"`
	DateAdded   string   `json:"dateAdded"`
}

// DisplayName returns the best available human-readable name.
func (c Contact) DisplayName() string {
	if c.ContactName != "" {
		return c.ContactName
	}
	name := strings.TrimSpace(c.FirstName + " " + c.LastName)
	if name != "" {
		return name
	}
	return c.Email
}

// AddedAt parses the contact's creation date, nil when absent or malformed.
func (c Contact) AddedAt() *time.Time {
	if c.DateAdded == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05.000Z"} {
		if t, err := time.Parse(layout, c.DateAdded); err == nil {
			return &t
		}
	}
	return nil
}

// ToDirectoryUser converts the contact into the internal directory shape.
func (c Contact) ToDirectoryUser() domain.DirectoryUser {
	return domain.DirectoryUser{
		ExternalID:  c.ID,
		Email:       c.Email,
		DisplayName: c.DisplayName(),
		Phone:       c.Phone,
		CompanyName: c.CompanyName,
		Tags:        c.Tags,
		CreatedAt:   c.AddedAt(),
	}
}

// ContactsPage is one page of a contact listing.
type ContactsPage struct {
	Contacts []Contact
	HasMore  bool
}

type contactsResponse struct {
	Contacts []Contact `json:"contacts"`
	Meta     struct {
		Total       int  `json:"total"`
		CurrentPage int  `json:"currentPage"`
		NextPage    *int `json:"nextPage"`
	} `json:"meta"`
}

type lookupResponse struct {
	Contacts []Contact `json:"contacts"`
}

// Subscription is a contact's payment subscription in GHL.
type Subscription struct {
	ID        string `json:"id"`
	ContactID string `json:"contactId"`
	Status    string `json:"status"`
	StartDate string `json:"startDate"`
}

// StartedAt parses the subscription start date, nil when absent.
func (s Subscription) StartedAt() *time.Time {
	if s.StartDate == "" {
		return nil
	}
	if t, err := time.Parse(time.RFC3339, s.StartDate); err == nil {
		return &t
	}
	return nil
}

// Payment is a single transaction attached to a contact.
type Payment struct {
	ID        string  `json:"id"`
	ContactID string  `json:"contactId"`
	Amount    float64 `json:"amount"`
	Currency  string  `json:"currency"`
	Status    string  `json:"status"`
	CreatedAt string  `json:"createdAt"`
}

// PaidAt parses the payment's creation date, nil when absent or malformed.
func (p Payment) PaidAt() *time.Time {
	if p.CreatedAt == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05.000Z"} {
		if t, err := time.Parse(layout, p.CreatedAt); err == nil {
			return &t
		}
	}
	return nil
}

// Membership is a contact's membership record.
type Membership struct {
	ID        string `json:"id"`
	ContactID string `json:"contactId"`
	Status    string `json:"status"`
	OfferName string `json:"offerName"`
}

// APIError is a non-2xx response from the GHL API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ghl: API returned status %d: %s", e.StatusCode, e.Body)
}
