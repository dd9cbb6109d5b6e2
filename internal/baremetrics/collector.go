package baremetrics

import (
	"context"
	"time"

	"github.com/creetelo/bmsync/internal/domain"
	"github.com/creetelo/bmsync/internal/pkg/logger"
)

// CustomerLister is the slice of Client the collector needs; tests supply a
// fake.
type CustomerLister interface {
	ListCustomers(ctx context.Context, sourceID string, page int) (*CustomersPage, error)
}

// Collector walks the paginated customer listing for one source.
type Collector struct {
	client    CustomerLister
	sourceID  string
	pageDelay time.Duration
	sleep     func(time.Duration)
}

// NewCollector creates a collector over the given client and source.
func NewCollector(client CustomerLister, sourceID string, pageDelay time.Duration) *Collector {
	return &Collector{
		client:    client,
		sourceID:  sourceID,
		pageDelay: pageDelay,
		sleep:     time.Sleep,
	}
}

// FetchAllCustomers fetches every customer in the source, up to limit when
// limit > 0. As with the directory side, an empty page is treated as end of
// data and logged, never as a hard error.
func (c *Collector) FetchAllCustomers(ctx context.Context, limit int) ([]domain.BillingCustomer, error) {
	var customers []domain.BillingCustomer
	page := 1

	for {
		if limit > 0 && len(customers) >= limit {
			return customers[:limit], nil
		}

		resp, err := c.client.ListCustomers(ctx, c.sourceID, page)
		if err != nil {
			return nil, err
		}
		if len(resp.Customers) == 0 {
			if resp.HasMore {
				logger.Warn("empty customer page with has-more set, treating as end of data",
					"source", c.sourceID, "page", page)
			}
			break
		}

		for _, customer := range resp.Customers {
			customers = append(customers, customer.ToBillingCustomer())
			if limit > 0 && len(customers) >= limit {
				break
			}
		}

		if !resp.HasMore {
			break
		}
		page++
		c.sleep(c.pageDelay)
	}

	logger.Info("fetched billing customers", "source", c.sourceID, "customers", len(customers))
	return customers, nil
}
