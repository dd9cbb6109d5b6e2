// Package reconcile computes set differences between the CRM contact list
// and the Baremetrics customer list, keyed by normalized email.
package reconcile

import (
	"github.com/creetelo/bmsync/internal/domain"
	"github.com/creetelo/bmsync/internal/identity"
)

// Result holds the outcome of one reconciliation pass. Absence of data is
// represented as empty slices, never as an error.
type Result struct {
	// Common holds the directory users whose email also exists in billing.
	Common []domain.DirectoryUser
	// MissingFromB holds directory users with no matching billing customer.
	MissingFromB []domain.DirectoryUser
	// MissingFromA holds billing customers with no matching directory user.
	MissingFromA []domain.BillingCustomer
	// InvalidEmails counts entries (from either side) whose email failed
	// validation; they are still classified by their best-effort key.
	InvalidEmails int
}

// Dedup removes directory users sharing a normalized email, keeping the
// first occurrence encountered. The policy is deterministic but arbitrary;
// callers who need the most complete record per email must pre-merge.
func Dedup(users []domain.DirectoryUser) []domain.DirectoryUser {
	seen := make(map[string]struct{}, len(users))
	out := make([]domain.DirectoryUser, 0, len(users))
	for _, u := range users {
		key := identity.Key(u.Email)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, u)
	}
	return out
}

// Reconcile classifies the deduplicated users of listA against listB.
// Every deduplicated listA entry lands in exactly one of Common or
// MissingFromB, and every listB customer whose email never appears in listA
// lands in MissingFromA. O(|A|+|B|).
func Reconcile(listA []domain.DirectoryUser, listB []domain.BillingCustomer) Result {
	var res Result

	inB := make(map[string]struct{}, len(listB))
	for _, c := range listB {
		if _, ok := identity.Normalize(c.Email); !ok {
			res.InvalidEmails++
		}
		inB[identity.Key(c.Email)] = struct{}{}
	}

	users := Dedup(listA)
	inA := make(map[string]struct{}, len(users))
	for _, u := range users {
		key, ok := identity.Normalize(u.Email)
		if !ok {
			res.InvalidEmails++
			key = identity.Key(u.Email)
		}
		inA[key] = struct{}{}
		if _, found := inB[key]; found {
			res.Common = append(res.Common, u)
		} else {
			res.MissingFromB = append(res.MissingFromB, u)
		}
	}

	// Symmetric pass: billing customers never seen in the directory.
	seenB := make(map[string]struct{}, len(listB))
	for _, c := range listB {
		key := identity.Key(c.Email)
		if _, dup := seenB[key]; dup {
			continue
		}
		seenB[key] = struct{}{}
		if _, found := inA[key]; !found {
			res.MissingFromA = append(res.MissingFromA, c)
		}
	}

	return res
}
