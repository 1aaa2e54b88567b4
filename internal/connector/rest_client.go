package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/lunahq/bulkops-api/internal/models"
	"github.com/lunahq/bulkops-api/pkg/config"
	appErrors "github.com/lunahq/bulkops-api/pkg/errors"
)

// RESTClient talks to a Salesforce-style REST dialect. All failures are
// surfaced as ErrConnector so callers can isolate them per batch.
type RESTClient struct {
	baseURL string
	version string
	token   string
	client  *http.Client
	logger  *zap.Logger
}

// NewRESTClient constructs a connector from store configuration.
func NewRESTClient(cfg config.StoreConfig, logger *zap.Logger) *RESTClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RESTClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		version: cfg.APIVersion,
		token:   cfg.AccessToken,
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  logger,
	}
}

type describeResponse struct {
	Fields []struct {
		Name           string   `json:"name"`
		Label          string   `json:"label"`
		Type           string   `json:"type"`
		Updateable     bool     `json:"updateable"`
		Createable     bool     `json:"createable"`
		ReferenceTo    []string `json:"referenceTo"`
		PicklistValues []struct {
			Value  string `json:"value"`
			Active bool   `json:"active"`
		} `json:"picklistValues"`
	} `json:"fields"`
}

// Describe fetches field metadata for one object type.
func (c *RESTClient) Describe(ctx context.Context, objectType string) ([]models.FieldDescriptor, error) {
	path := fmt.Sprintf("/services/data/%s/sobjects/%s/describe", c.version, url.PathEscape(objectType))
	var resp describeResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}

	descriptors := make([]models.FieldDescriptor, 0, len(resp.Fields))
	for _, f := range resp.Fields {
		d := models.FieldDescriptor{
			Name:        f.Name,
			Label:       f.Label,
			Type:        mapFieldType(f.Type),
			Updateable:  f.Updateable,
			Createable:  f.Createable,
			ReferenceTo: f.ReferenceTo,
		}
		for _, pv := range f.PicklistValues {
			if pv.Active {
				d.PicklistValues = append(d.PicklistValues, pv.Value)
			}
		}
		descriptors = append(descriptors, d)
	}
	return descriptors, nil
}

type queryResponse struct {
	TotalSize      int             `json:"totalSize"`
	Done           bool            `json:"done"`
	NextRecordsURL string          `json:"nextRecordsUrl"`
	Records        []models.Record `json:"records"`
}

// Query executes a SOQL expression and returns the first page.
func (c *RESTClient) Query(ctx context.Context, soql string) (*models.QueryPage, error) {
	path := fmt.Sprintf("/services/data/%s/query?q=%s", c.version, url.QueryEscape(soql))
	return c.queryPath(ctx, path)
}

// QueryMore follows the continuation cursor returned by a previous page.
func (c *RESTClient) QueryMore(ctx context.Context, cursor string) (*models.QueryPage, error) {
	if cursor == "" {
		return nil, appErrors.Clone(appErrors.ErrConnector, "queryMore called without a cursor")
	}
	return c.queryPath(ctx, cursor)
}

func (c *RESTClient) queryPath(ctx context.Context, path string) (*models.QueryPage, error) {
	var resp queryResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	page := &models.QueryPage{
		Records:   resp.Records,
		TotalSize: resp.TotalSize,
	}
	if !resp.Done {
		page.Cursor = resp.NextRecordsURL
	}
	for _, rec := range page.Records {
		delete(rec, "attributes")
	}
	return page, nil
}

// Create inserts up to MaxRecordsPerCall records in one call.
func (c *RESTClient) Create(ctx context.Context, objectType string, records []models.Record) ([]models.SaveResult, error) {
	return c.save(ctx, http.MethodPost, objectType, records)
}

// Update writes up to MaxRecordsPerCall records in one call. Each record
// must carry an Id field.
func (c *RESTClient) Update(ctx context.Context, objectType string, records []models.Record) ([]models.SaveResult, error) {
	return c.save(ctx, http.MethodPatch, objectType, records)
}

func (c *RESTClient) save(ctx context.Context, method, objectType string, records []models.Record) ([]models.SaveResult, error) {
	if len(records) == 0 {
		return nil, nil
	}
	if len(records) > MaxRecordsPerCall {
		return nil, appErrors.Clone(appErrors.ErrConnector,
			fmt.Sprintf("store accepts at most %d records per call, got %d", MaxRecordsPerCall, len(records)))
	}

	payload := map[string]interface{}{
		"allOrNone": false,
		"records":   withAttributes(objectType, records),
	}
	path := fmt.Sprintf("/services/data/%s/composite/sobjects", c.version)

	var results []models.SaveResult
	if err := c.do(ctx, method, path, payload, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// Delete removes one record by id.
func (c *RESTClient) Delete(ctx context.Context, objectType, id string) error {
	path := fmt.Sprintf("/services/data/%s/sobjects/%s/%s", c.version, url.PathEscape(objectType), url.PathEscape(id))
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

func (c *RESTClient) do(ctx context.Context, method, path string, body, dest interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrConnector.Code, appErrors.ErrConnector.Status, "encode request body")
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrConnector.Code, appErrors.ErrConnector.Status, "build store request")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrConnector.Code, appErrors.ErrConnector.Status, "store request failed")
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrConnector.Code, appErrors.ErrConnector.Status, "read store response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("store call failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
		)
		return appErrors.Clone(appErrors.ErrConnector,
			fmt.Sprintf("store returned %d: %s", resp.StatusCode, truncate(string(raw), 300)))
	}

	if dest == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return appErrors.Wrap(err, appErrors.ErrConnector.Code, appErrors.ErrConnector.Status, "decode store response")
	}
	return nil
}

func withAttributes(objectType string, records []models.Record) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(records))
	for _, rec := range records {
		entry := make(map[string]interface{}, len(rec)+1)
		for k, v := range rec {
			entry[k] = v
		}
		entry["attributes"] = map[string]string{"type": objectType}
		out = append(out, entry)
	}
	return out
}

func mapFieldType(storeType string) models.FieldType {
	switch strings.ToLower(storeType) {
	case "int", "double", "currency", "percent", "long":
		return models.FieldTypeNumber
	case "boolean":
		return models.FieldTypeBoolean
	case "date", "datetime", "time":
		return models.FieldTypeDate
	case "picklist", "multipicklist", "combobox":
		return models.FieldTypePicklist
	case "reference":
		return models.FieldTypeReference
	default:
		return models.FieldTypeText
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
