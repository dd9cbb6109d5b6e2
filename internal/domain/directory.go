package domain

import "time"

// DirectoryUser is a contact as seen in the CRM (GoHighLevel). It is fetched
// fresh on every run and never persisted verbatim; the import ledger keeps
// its own flattened copy of the fields it needs.
type DirectoryUser struct {
	ExternalID  string     `json:"external_id"`
	Email       string     `json:"email"`
	DisplayName string     `json:"display_name"`
	Phone       string     `json:"phone,omitempty"`
	CompanyName string     `json:"company_name,omitempty"`
	Tags        []string   `json:"tags"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
}

// HasTag reports whether the user carries the given tag. Tag comparison is
// exact; GHL stores tags lower-cased already.
func (u DirectoryUser) HasTag(tag string) bool {
	for _, t := range u.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
