package domain

import "time"

// PlanInterval enumerates the billing intervals Baremetrics accepts.
type PlanInterval string

const (
	IntervalDay   PlanInterval = "day"
	IntervalWeek  PlanInterval = "week"
	IntervalMonth PlanInterval = "month"
	IntervalYear  PlanInterval = "year"
)

// BillingCustomer is a customer record as seen in Baremetrics.
type BillingCustomer struct {
	OID         string            `json:"oid"`
	Email       string            `json:"email"`
	DisplayName string            `json:"name"`
	CompanyName string            `json:"company,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
}

// Plan is a Baremetrics plan. Amount is in minor currency units (cents).
type Plan struct {
	OID      string       `json:"oid"`
	Name     string       `json:"name"`
	Interval PlanInterval `json:"interval"`
	Amount   int          `json:"amount"`
	Currency string       `json:"currency"`
}

// SubscriptionStatus enumerates the lifecycle states of a subscription.
type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionCanceled SubscriptionStatus = "canceled"
)

// Subscription ties a billing customer to a plan. StartedAt is a unix
// timestamp and should reflect the real-world origination date from the CRM
// when known, not the import run time.
type Subscription struct {
	OID         string             `json:"oid"`
	CustomerOID string             `json:"customer_oid"`
	PlanOID     string             `json:"plan_oid"`
	StartedAt   int64              `json:"started_at"`
	Status      SubscriptionStatus `json:"status"`
	CanceledAt  *int64             `json:"canceled_at,omitempty"`
}

// ClampStart returns started, or now when started lies in the future.
// Future-dated starts would make a freshly imported customer look not yet
// subscribed, so the effective start date is pulled back to the run time.
func ClampStart(started, now time.Time) time.Time {
	if started.After(now) {
		return now
	}
	return started
}
