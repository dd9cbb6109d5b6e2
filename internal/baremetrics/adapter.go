package baremetrics

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/creetelo/bmsync/internal/domain"
)

// The subscriptions API is not consistent about response shapes: depending
// on the endpoint (and on the provider behind the source), the customer may
// arrive as "customer_oid", a nested "customer" object, or "customerOid",
// and likewise for the plan. This adapter canonicalizes the payload once at
// the client boundary so the rest of the codebase sees exactly one shape.

type rawSubscription struct {
	OID          string          `json:"oid"`
	CustomerOID  string          `json:"customer_oid"`
	CustomerOID2 string          `json:"customerOid"`
	Customer     json.RawMessage `json:"customer"`
	PlanOID      string          `json:"plan_oid"`
	PlanOID2     string          `json:"planOid"`
	Plan         json.RawMessage `json:"plan"`
	StartedAt    json.RawMessage `json:"started_at"`
	ActiveStart  string          `json:"active_start_date"`
	Status       string          `json:"status"`
	CanceledAt   *int64          `json:"canceled_at"`
}

type oidHolder struct {
	OID string `json:"oid"`
}

// canonicalizeSubscription builds the one internal Subscription shape from
// whatever the API returned.
func canonicalizeSubscription(data []byte) (domain.Subscription, error) {
	var raw rawSubscription
	if err := json.Unmarshal(data, &raw); err != nil {
		return domain.Subscription{}, fmt.Errorf("baremetrics: parse subscription: %w", err)
	}

	sub := domain.Subscription{
		OID:         raw.OID,
		CustomerOID: firstNonEmpty(raw.CustomerOID, raw.CustomerOID2, oidFrom(raw.Customer)),
		PlanOID:     firstNonEmpty(raw.PlanOID, raw.PlanOID2, oidFrom(raw.Plan)),
		Status:      domain.SubscriptionStatus(raw.Status),
		CanceledAt:  raw.CanceledAt,
	}
	if sub.Status == "" {
		sub.Status = domain.SubscriptionActive
	}

	sub.StartedAt = parseStartedAt(raw.StartedAt, raw.ActiveStart)
	return sub, nil
}

func oidFrom(data json.RawMessage) string {
	if len(data) == 0 {
		return ""
	}
	var holder oidHolder
	if err := json.Unmarshal(data, &holder); err != nil {
		return ""
	}
	return holder.OID
}

// parseStartedAt accepts a unix timestamp, an RFC3339 string, or falls back
// to active_start_date.
func parseStartedAt(started json.RawMessage, activeStart string) int64 {
	if len(started) > 0 {
		var unix int64
		if err := json.Unmarshal(started, &unix); err == nil {
			return unix
		}
		var str string
		if err := json.Unmarshal(started, &str); err == nil {
			if t, err := time.Parse(time.RFC3339, str); err == nil {
				return t.Unix()
			}
		}
	}
	if activeStart != "" {
		if t, err := time.Parse(time.RFC3339, activeStart); err == nil {
			return t.Unix()
		}
	}
	return 0
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
