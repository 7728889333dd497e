// Package bp creates business partners in the downstream ERP through its
// OData business-partner API.
package bp

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/vendor-portal/internal/application/port"
	"github.com/garyjia/vendor-portal/internal/infrastructure/retry"
)

const entitySet = "A_BusinessPartner"

// Config holds the ERP connection settings
type Config struct {
	BaseURL  string // e.g. https://erp.example.com/sap/opu/odata/sap/API_BUSINESS_PARTNER
	APIKey   string
	Username string
	Password string
	Timeout  time.Duration
}

// Client implements port.BusinessPartnerClient
type Client struct {
	cfg    Config
	http   *http.Client
	policy retry.Policy
	logger *zap.Logger
}

var _ port.BusinessPartnerClient = (*Client)(nil)

// NewClient creates a new business-partner client
func NewClient(cfg Config, policy retry.Policy, logger *zap.Logger) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		policy: policy,
		logger: logger,
	}
}

type partnerPayload struct {
	BusinessPartner         string `json:"BusinessPartner,omitempty"`
	BusinessPartnerCategory string `json:"BusinessPartnerCategory,omitempty"`
	BusinessPartnerGrouping string `json:"BusinessPartnerGrouping,omitempty"`
	OrganizationBPName1     string `json:"OrganizationBPName1,omitempty"`
	SearchTerm1             string `json:"SearchTerm1,omitempty"`
	SearchTerm2             string `json:"SearchTerm2,omitempty"`
}

type singleResponse struct {
	D partnerPayload `json:"d"`
}

type listResponse struct {
	D struct {
		Results []partnerPayload `json:"results"`
	} `json:"d"`
}

// CreateBusinessPartner returns the partner tagged with req.RequestKey,
// creating it first if the ERP has none.
func (c *Client) CreateBusinessPartner(ctx context.Context, req *port.BusinessPartnerRequest) (string, error) {
	if req == nil || req.SupplierName == "" || req.RequestKey == "" {
		return "", fmt.Errorf("supplier name and request key are required")
	}
	tag := RequestTag(req.RequestKey)

	id, err := retry.Do(ctx, c.policy, c.logger, "create business partner", func(ctx context.Context) (string, error) {
		existing, err := c.findByTag(ctx, tag)
		if err != nil {
			return "", err
		}
		if existing != "" {
			c.logger.Info("Business partner already exists",
				zap.String("supplier", req.SupplierName),
				zap.String("business_partner", existing))
			return existing, nil
		}
		return c.create(ctx, req, tag)
	})
	if err != nil {
		c.logger.Error("Failed to create business partner",
			zap.String("supplier", req.SupplierName),
			zap.Error(err))
		return "", err
	}
	return id, nil
}

func (c *Client) findByTag(ctx context.Context, tag string) (string, error) {
	q := url.Values{}
	q.Set("$filter", fmt.Sprintf("SearchTerm2 eq '%s'", tag))
	q.Set("$top", "1")
	q.Set("$format", "json")

	body, err := c.do(ctx, http.MethodGet, "/"+entitySet+"?"+q.Encode(), nil, "")
	if err != nil {
		return "", err
	}
	var list listResponse
	if err := json.Unmarshal(body, &list); err != nil {
		return "", fmt.Errorf("failed to decode lookup response: %w", err)
	}
	if len(list.D.Results) == 0 {
		return "", nil
	}
	return list.D.Results[0].BusinessPartner, nil
}

func (c *Client) create(ctx context.Context, req *port.BusinessPartnerRequest, tag string) (string, error) {
	payload, err := json.Marshal(partnerPayload{
		BusinessPartnerCategory: req.Category,
		BusinessPartnerGrouping: req.Grouping,
		OrganizationBPName1:     truncate(req.SupplierName, 40),
		SearchTerm1:             truncate(strings.ToUpper(req.SupplierName), 20),
		SearchTerm2:             tag,
	})
	if err != nil {
		return "", retry.Permanent(fmt.Errorf("failed to marshal partner: %w", err))
	}

	body, err := c.do(ctx, http.MethodPost, "/"+entitySet, payload, req.RequestKey)
	if err != nil {
		return "", err
	}
	var created singleResponse
	if err := json.Unmarshal(body, &created); err != nil {
		return "", fmt.Errorf("failed to decode create response: %w", err)
	}
	if created.D.BusinessPartner == "" {
		return "", fmt.Errorf("create response carried no business partner id")
	}

	c.logger.Info("Business partner created",
		zap.String("supplier", req.SupplierName),
		zap.String("business_partner", created.D.BusinessPartner))
	return created.D.BusinessPartner, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte, idempotencyKey string) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("failed to create request: %w", err))
	}

	httpReq.Header.Set("Accept", "application/json")
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", idempotencyKey)
	}
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("APIKey", c.cfg.APIKey)
	}
	if c.cfg.Username != "" {
		httpReq.SetBasicAuth(c.cfg.Username, c.cfg.Password)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if err := retry.ForStatus(resp.StatusCode, string(body)); err != nil {
		return nil, err
	}
	return body, nil
}

// RequestTag condenses a request key into the 20-character search term
// stored on the partner.
func RequestTag(requestKey string) string {
	sum := sha1.Sum([]byte(requestKey))
	return strings.ToUpper(hex.EncodeToString(sum[:]))[:20]
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
