package connector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lunahq/bulkops-api/internal/models"
	"github.com/lunahq/bulkops-api/pkg/config"
	appErrors "github.com/lunahq/bulkops-api/pkg/errors"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*RESTClient, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client := NewRESTClient(config.StoreConfig{
		BaseURL:     server.URL,
		APIVersion:  "v58.0",
		AccessToken: "test-token",
		Timeout:     5 * time.Second,
	}, nil)
	return client, server
}

func TestDescribeMapsFieldMetadata(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/services/data/v58.0/sobjects/Opportunity/describe", r.URL.Path)
		require.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"fields": []map[string]interface{}{
				{
					"name": "StageName", "label": "Stage", "type": "picklist", "updateable": true,
					"picklistValues": []map[string]interface{}{
						{"value": "Open", "active": true},
						{"value": "Legacy", "active": false},
					},
				},
				{"name": "Amount", "type": "currency", "updateable": true},
				{"name": "AccountId", "type": "reference", "referenceTo": []string{"Account"}},
			},
		})
	})

	descriptors, err := client.Describe(context.Background(), "Opportunity")
	require.NoError(t, err)
	require.Len(t, descriptors, 3)

	require.Equal(t, models.FieldTypePicklist, descriptors[0].Type)
	require.Equal(t, []string{"Open"}, descriptors[0].PicklistValues, "inactive picklist values are dropped")
	require.Equal(t, models.FieldTypeNumber, descriptors[1].Type)
	require.Equal(t, models.FieldTypeReference, descriptors[2].Type)
	require.Equal(t, []string{"Account"}, descriptors[2].ReferenceTo)
}

func TestQueryFollowsCursor(t *testing.T) {
	calls := 0
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		switch r.URL.Path {
		case "/services/data/v58.0/query":
			require.Equal(t, "SELECT Id FROM Account", r.URL.Query().Get("q"))
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"totalSize":      3,
				"done":           false,
				"nextRecordsUrl": "/services/data/v58.0/query/01g-2000",
				"records": []map[string]interface{}{
					{"attributes": map[string]string{"type": "Account"}, "Id": "001-1"},
					{"attributes": map[string]string{"type": "Account"}, "Id": "001-2"},
				},
			})
		case "/services/data/v58.0/query/01g-2000":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"totalSize": 3,
				"done":      true,
				"records": []map[string]interface{}{
					{"attributes": map[string]string{"type": "Account"}, "Id": "001-3"},
				},
			})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	})

	page, err := client.Query(context.Background(), "SELECT Id FROM Account")
	require.NoError(t, err)
	require.Equal(t, 3, page.TotalSize)
	require.Len(t, page.Records, 2)
	require.NotEmpty(t, page.Cursor)
	require.NotContains(t, page.Records[0], "attributes")

	more, err := client.QueryMore(context.Background(), page.Cursor)
	require.NoError(t, err)
	require.Len(t, more.Records, 1)
	require.Empty(t, more.Cursor)
	require.Equal(t, 2, calls)
}

func TestQueryMoreRequiresCursor(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	_, err := client.QueryMore(context.Background(), "")
	require.Error(t, err)
}

func TestUpdateSendsCompositePayload(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPatch, r.Method)
		require.Equal(t, "/services/data/v58.0/composite/sobjects", r.URL.Path)

		var payload struct {
			AllOrNone bool                     `json:"allOrNone"`
			Records   []map[string]interface{} `json:"records"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		require.False(t, payload.AllOrNone, "partial success is expected, never all-or-nothing")
		require.Len(t, payload.Records, 2)
		attrs, ok := payload.Records[0]["attributes"].(map[string]interface{})
		require.True(t, ok)
		require.Equal(t, "Opportunity", attrs["type"])

		_ = json.NewEncoder(w).Encode([]map[string]interface{}{
			{"id": "006-1", "success": true},
			{"success": false, "errors": []map[string]interface{}{{"statusCode": "ENTITY_IS_LOCKED", "message": "locked"}}},
		})
	})

	results, err := client.Update(context.Background(), "Opportunity", []models.Record{
		{"Id": "006-1", "StageName": "Closed"},
		{"Id": "006-2", "StageName": "Closed"},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.True(t, results[0].Success)
	require.False(t, results[1].Success)
	require.Equal(t, "locked", results[1].ErrorMessage())
}

func TestUpdateRejectsOversizedBatch(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("oversized batches must be rejected before any network call")
	})
	records := make([]models.Record, MaxRecordsPerCall+1)
	for i := range records {
		records[i] = models.Record{"Id": "x"}
	}
	_, err := client.Update(context.Background(), "Opportunity", records)
	require.Error(t, err)
}

func TestDeleteTargetsRecordPath(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		require.Equal(t, "/services/data/v58.0/sobjects/Opportunity/006-1", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	})
	require.NoError(t, client.Delete(context.Background(), "Opportunity", "006-1"))
}

func TestErrorsWrapAsConnectorFailures(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`[{"errorCode":"SERVER_UNAVAILABLE"}]`))
	})

	_, err := client.Query(context.Background(), "SELECT Id FROM Account")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	require.Equal(t, appErrors.ErrConnector.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "502")
}
