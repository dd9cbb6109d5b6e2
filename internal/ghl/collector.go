package ghl

import (
	"context"
	"time"

	"github.com/creetelo/bmsync/internal/domain"
	"github.com/creetelo/bmsync/internal/pkg/logger"
)

// ContactLister is the slice of Client the collector needs; tests supply a
// fake.
type ContactLister interface {
	ListContactsByTag(ctx context.Context, tag string, page, limit int) (*ContactsPage, error)
}

// Collector orchestrates multi-tag paginated contact fetches. Results from
// multiple tag queries are merged and deduplicated by contact ID (not by
// email: email validity is judged later by the normalizer).
type Collector struct {
	client    ContactLister
	pageSize  int
	pageDelay time.Duration
	sleep     func(time.Duration)
}

// NewCollector creates a collector over the given client. pageDelay paces
// page requests to stay under GHL's rate limit.
func NewCollector(client ContactLister, pageSize int, pageDelay time.Duration) *Collector {
	if pageSize <= 0 {
		pageSize = 100
	}
	return &Collector{
		client:    client,
		pageSize:  pageSize,
		pageDelay: pageDelay,
		sleep:     time.Sleep,
	}
}

// FetchByTags fetches every contact carrying any of tags, walking pages
// until the API reports no more data or limit contacts have been collected
// (limit <= 0 means unlimited). Contacts carrying any of excludeTags are
// dropped. An empty page mid-listing is treated as end-of-data rather than
// an error, so a transient hiccup does not abort a multi-thousand-record
// fetch; the anomaly is logged for the operator.
func (c *Collector) FetchByTags(ctx context.Context, tags, excludeTags []string, limit int) ([]domain.DirectoryUser, error) {
	seen := make(map[string]struct{})
	var users []domain.DirectoryUser

	for _, tag := range tags {
		page := 1
		for {
			if limit > 0 && len(users) >= limit {
				return users[:limit], nil
			}

			resp, err := c.client.ListContactsByTag(ctx, tag, page, c.pageSize)
			if err != nil {
				return nil, err
			}
			if len(resp.Contacts) == 0 {
				if resp.HasMore {
					logger.Warn("empty page with has-more set, treating as end of data",
						"tag", tag, "page", page)
				}
				break
			}

			for _, contact := range resp.Contacts {
				if _, dup := seen[contact.ID]; dup {
					continue
				}
				seen[contact.ID] = struct{}{}
				user := contact.ToDirectoryUser()
				if hasAnyTag(user, excludeTags) {
					continue
				}
				users = append(users, user)
				if limit > 0 && len(users) >= limit {
					break
				}
			}

			if !resp.HasMore {
				break
			}
			page++
			c.sleep(c.pageDelay)
		}
	}

	logger.Info("fetched directory users",
		"tags", len(tags), "users", len(users))
	return users, nil
}

func hasAnyTag(u domain.DirectoryUser, tags []string) bool {
	for _, t := range tags {
		if u.HasTag(t) {
			return true
		}
	}
	return false
}
