package bp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/vendor-portal/internal/application/port"
	"github.com/garyjia/vendor-portal/internal/infrastructure/retry"
)

// fakeERP stores partners by SearchTerm2 and can fail the first calls.
type fakeERP struct {
	mu        sync.Mutex
	partners  map[string]string
	failCount int
	failCode  int
	posts     int
	lastPost  partnerPayload
	headers   http.Header
}

func newFakeERP() *fakeERP {
	return &fakeERP{partners: map[string]string{}}
}

func (f *fakeERP) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.headers = r.Header.Clone()

	if f.failCount > 0 {
		f.failCount--
		w.WriteHeader(f.failCode)
		_, _ = w.Write([]byte(`{"error":{"message":"try later"}}`))
		return
	}

	switch r.Method {
	case http.MethodGet:
		filter := r.URL.Query().Get("$filter")
		var results []partnerPayload
		for tag, id := range f.partners {
			if strings.Contains(filter, "'"+tag+"'") {
				results = append(results, partnerPayload{BusinessPartner: id})
			}
		}
		resp := listResponse{}
		resp.D.Results = results
		_ = json.NewEncoder(w).Encode(resp)
	case http.MethodPost:
		var p partnerPayload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.posts++
		f.lastPost = p
		id := "10000" + string(rune('0'+len(f.partners)+1))
		f.partners[p.SearchTerm2] = id
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(singleResponse{D: partnerPayload{BusinessPartner: id}})
	}
}

func testPolicy() retry.Policy {
	return retry.Policy{
		MaxTries:        3,
		MaxElapsed:      5 * time.Second,
		AttemptTimeout:  2 * time.Second,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
	}
}

func request() *port.BusinessPartnerRequest {
	return &port.BusinessPartnerRequest{
		SupplierName: "Acme Industries",
		Category:     "2",
		Grouping:     "BPAB",
		RequestKey:   "bp:Acme Industries",
	}
}

func TestClient_CreatesPartner(t *testing.T) {
	erp := newFakeERP()
	srv := httptest.NewServer(erp)
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL + "/", APIKey: "secret"}, testPolicy(), zap.NewNop())
	id, err := c.CreateBusinessPartner(context.Background(), request())

	require.NoError(t, err)
	assert.Equal(t, "100001", id)
	assert.Equal(t, 1, erp.posts)
	assert.Equal(t, "2", erp.lastPost.BusinessPartnerCategory)
	assert.Equal(t, "BPAB", erp.lastPost.BusinessPartnerGrouping)
	assert.Equal(t, "Acme Industries", erp.lastPost.OrganizationBPName1)
	assert.Equal(t, "ACME INDUSTRIES", erp.lastPost.SearchTerm1)
	assert.Equal(t, RequestTag("bp:Acme Industries"), erp.lastPost.SearchTerm2)
	assert.Equal(t, "bp:Acme Industries", erp.headers.Get("Idempotency-Key"))
	assert.Equal(t, "secret", erp.headers.Get("APIKey"))
}

func TestClient_ReturnsExistingPartnerForSameKey(t *testing.T) {
	erp := newFakeERP()
	srv := httptest.NewServer(erp)
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, testPolicy(), zap.NewNop())
	first, err := c.CreateBusinessPartner(context.Background(), request())
	require.NoError(t, err)
	second, err := c.CreateBusinessPartner(context.Background(), request())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, erp.posts)
}

func TestClient_RetriesServerErrors(t *testing.T) {
	erp := newFakeERP()
	erp.failCount = 2
	erp.failCode = http.StatusServiceUnavailable
	srv := httptest.NewServer(erp)
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, testPolicy(), zap.NewNop())
	id, err := c.CreateBusinessPartner(context.Background(), request())

	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, 1, erp.posts)
}

func TestClient_ClientErrorIsPermanent(t *testing.T) {
	erp := newFakeERP()
	erp.failCount = 10
	erp.failCode = http.StatusUnauthorized
	srv := httptest.NewServer(erp)
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, testPolicy(), zap.NewNop())
	_, err := c.CreateBusinessPartner(context.Background(), request())

	require.Error(t, err)
	assert.True(t, retry.IsStatus(err, http.StatusUnauthorized))
	assert.Equal(t, 9, erp.failCount)
}

func TestClient_InvalidRequest(t *testing.T) {
	c := NewClient(Config{BaseURL: "http://127.0.0.1:1"}, testPolicy(), zap.NewNop())

	_, err := c.CreateBusinessPartner(context.Background(), &port.BusinessPartnerRequest{SupplierName: "Acme"})
	assert.Error(t, err)
	_, err = c.CreateBusinessPartner(context.Background(), nil)
	assert.Error(t, err)
}

func TestRequestTag(t *testing.T) {
	tag := RequestTag("bp:Acme")
	assert.Len(t, tag, 20)
	assert.Equal(t, tag, RequestTag("bp:Acme"))
	assert.NotEqual(t, tag, RequestTag("bp:Globex"))
	assert.Equal(t, strings.ToUpper(tag), tag)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "Mül", truncate("Müller", 3))
}
