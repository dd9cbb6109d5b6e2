package baremetrics

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creetelo/bmsync/internal/config"
)

func newTestClient(server *httptest.Server) *Client {
	return &Client{
		baseURL:    server.URL,
		apiKey:     "test-api-key",
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

func TestNewClientUsesEnvironmentBaseURL(t *testing.T) {
	client := NewClient(config.BaremetricsConfig{
		APIKey:         "key",
		BaseURL:        "https://api-sandbox.baremetrics.com/v1",
		TimeoutSeconds: 30,
	})
	assert.Equal(t, "https://api-sandbox.baremetrics.com/v1", client.baseURL)
}

func TestListSources(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sources", r.URL.Path)
		assert.Equal(t, "Bearer test-api-key", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"sources": []Source{{ID: "src_1", Provider: "baremetrics"}},
		})
	}))
	defer server.Close()

	sources, err := newTestClient(server).ListSources(context.Background())
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, "src_1", sources[0].ID)
}

func TestListCustomersPagination(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/src_1/customers", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		resp := customersResponse{Customers: []Customer{{OID: "cus_1", Email: "a@x.com"}}}
		resp.Meta.Pagination.HasMore = true
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	page, err := newTestClient(server).ListCustomers(context.Background(), "src_1", 2)
	require.NoError(t, err)
	require.Len(t, page.Customers, 1)
	assert.True(t, page.HasMore)
}

func TestCreateCustomer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/src_1/customers", r.URL.Path)

		var payload CustomerPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "a@x.com", payload.Email)

		json.NewEncoder(w).Encode(map[string]interface{}{
			"customer": Customer{OID: "cus_new", Email: payload.Email, Name: payload.Name},
		})
	}))
	defer server.Close()

	customer, err := newTestClient(server).CreateCustomer(context.Background(), "src_1", CustomerPayload{
		Email: "a@x.com",
		Name:  "Ana",
	})
	require.NoError(t, err)
	assert.Equal(t, "cus_new", customer.OID)
}

func TestCreateCustomerRejectsMissingOID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"customer": Customer{}})
	}))
	defer server.Close()

	_, err := newTestClient(server).CreateCustomer(context.Background(), "src_1", CustomerPayload{Email: "a@x.com"})
	assert.Error(t, err)
}

func TestCreateSubscriptionCanonicalizes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/src_1/subscriptions", r.URL.Path)
		// Nested customer object, one of the duck-typed shapes seen in the wild.
		w.Write([]byte(`{"subscription":{"oid":"sub_1","customer":{"oid":"cus_1"},"plan":{"oid":"plan_1"},"started_at":1600000000}}`))
	}))
	defer server.Close()

	sub, err := newTestClient(server).CreateSubscription(context.Background(), "src_1", SubscriptionPayload{
		CustomerOID: "cus_1",
		PlanOID:     "plan_1",
		StartedAt:   1600000000,
	})
	require.NoError(t, err)
	assert.Equal(t, "cus_1", sub.CustomerOID)
	assert.Equal(t, "plan_1", sub.PlanOID)
}

func TestFindCustomerByEmail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "a@x.com", r.URL.Query().Get("search"))
		json.NewEncoder(w).Encode(customersResponse{Customers: []Customer{
			{OID: "cus_1", Email: "other@x.com"},
			{OID: "cus_2", Email: "a@x.com"},
		}})
	}))
	defer server.Close()

	customer, err := newTestClient(server).FindCustomerByEmail(context.Background(), "src_1", "a@x.com")
	require.NoError(t, err)
	require.NotNil(t, customer)
	assert.Equal(t, "cus_2", customer.OID)
}

func TestUpdateCustomerAttributes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/attributes", r.URL.Path)
		var payload struct {
			Attributes []map[string]string `json:"attributes"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.NotEmpty(t, payload.Attributes)
		json.NewEncoder(w).Encode(map[string]interface{}{"attributes": payload.Attributes})
	}))
	defer server.Close()

	ok, err := newTestClient(server).UpdateCustomerAttributes(context.Background(), "cus_1", map[string]string{
		"ghl_contact_id": "c1",
	})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestIsRateLimited(t *testing.T) {
	assert.True(t, IsRateLimited(&APIError{StatusCode: 429}))
	assert.True(t, IsRateLimited(&APIError{StatusCode: 503}))
	assert.False(t, IsRateLimited(&APIError{StatusCode: 422}))
	assert.False(t, IsRateLimited(assert.AnError))
}
