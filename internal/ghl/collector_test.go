package ghl

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLister struct {
	pages map[string][]*ContactsPage // tag -> pages, 1-indexed by call order
	calls int
}

func (f *fakeLister) ListContactsByTag(ctx context.Context, tag string, page, limit int) (*ContactsPage, error) {
	f.calls++
	pages := f.pages[tag]
	if page > len(pages) {
		return &ContactsPage{}, nil
	}
	return pages[page-1], nil
}

func newCollectorForTest(client ContactLister) *Collector {
	c := NewCollector(client, 2, time.Millisecond)
	c.sleep = func(time.Duration) {}
	return c
}

func TestFetchByTagsPaginates(t *testing.T) {
	lister := &fakeLister{pages: map[string][]*ContactsPage{
		"mensual": {
			{Contacts: []Contact{{ID: "c1", Email: "a@x.com"}, {ID: "c2", Email: "b@x.com"}}, HasMore: true},
			{Contacts: []Contact{{ID: "c3", Email: "c@x.com"}}, HasMore: false},
		},
	}}

	users, err := newCollectorForTest(lister).FetchByTags(context.Background(), []string{"mensual"}, nil, 0)

	require.NoError(t, err)
	assert.Len(t, users, 3)
}

func TestFetchByTagsDeduplicatesAcrossTags(t *testing.T) {
	shared := Contact{ID: "c1", Email: "a@x.com", Tags: []string{"mensual", "anual"}}
	lister := &fakeLister{pages: map[string][]*ContactsPage{
		"mensual": {{Contacts: []Contact{shared, {ID: "c2", Email: "b@x.com"}}}},
		"anual":   {{Contacts: []Contact{shared, {ID: "c3", Email: "c@x.com"}}}},
	}}

	users, err := newCollectorForTest(lister).FetchByTags(context.Background(), []string{"mensual", "anual"}, nil, 0)

	require.NoError(t, err)
	assert.Len(t, users, 3, "shared contact must appear once")
}

func TestFetchByTagsExcludesTags(t *testing.T) {
	lister := &fakeLister{pages: map[string][]*ContactsPage{
		"mensual": {{Contacts: []Contact{
			{ID: "c1", Email: "a@x.com", Tags: []string{"mensual"}},
			{ID: "c2", Email: "b@x.com", Tags: []string{"mensual", "unsubscribed"}},
		}}},
	}}

	users, err := newCollectorForTest(lister).FetchByTags(context.Background(), []string{"mensual"}, []string{"unsubscribed"}, 0)

	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "c1", users[0].ExternalID)
}

func TestFetchByTagsRespectsLimit(t *testing.T) {
	lister := &fakeLister{pages: map[string][]*ContactsPage{
		"mensual": {
			{Contacts: []Contact{{ID: "c1"}, {ID: "c2"}}, HasMore: true},
			{Contacts: []Contact{{ID: "c3"}, {ID: "c4"}}, HasMore: true},
		},
	}}

	users, err := newCollectorForTest(lister).FetchByTags(context.Background(), []string{"mensual"}, nil, 3)

	require.NoError(t, err)
	assert.Len(t, users, 3)
}

func TestFetchByTagsEmptyPageEndsListing(t *testing.T) {
	// Page 2 comes back empty despite has-more on page 1: treated as end of
	// data, not an error.
	lister := &fakeLister{pages: map[string][]*ContactsPage{
		"mensual": {
			{Contacts: []Contact{{ID: "c1"}}, HasMore: true},
			{Contacts: nil, HasMore: true},
		},
	}}

	users, err := newCollectorForTest(lister).FetchByTags(context.Background(), []string{"mensual"}, nil, 0)

	require.NoError(t, err)
	assert.Len(t, users, 1)
}
