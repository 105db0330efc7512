package ledger_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/silsilat/tokenization-backend/ledger"
)

func TestOwnedUnitsQueriesMirrorNode(t *testing.T) {
	var gotPath, gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		json.NewEncoder(w).Encode(map[string]interface{}{
			"nfts": []map[string]interface{}{
				{"serial_number": 1, "deleted": false},
				{"serial_number": 2, "deleted": true},
				{"serial_number": 3, "deleted": false},
			},
		})
	}))
	defer server.Close()

	client := ledger.NewMirrorClient(server.URL, zap.NewNop())
	units, err := client.OwnedUnits(context.Background(), "0.0.5005", "0.0.2002", 3, ledger.OrderAsc)

	assert.NoError(t, err)
	assert.Equal(t, "/api/v1/tokens/0.0.5005/nfts", gotPath)
	assert.Contains(t, gotQuery, "account.id=0.0.2002")
	assert.Contains(t, gotQuery, "order=asc")
	assert.Contains(t, gotQuery, "limit=3")
	assert.Equal(t, []ledger.OwnedUnit{
		{SerialNumber: 1},
		{SerialNumber: 2, Deleted: true},
		{SerialNumber: 3},
	}, units)
}

func TestOwnedUnitsOmitsNonPositiveLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.Query().Get("limit"))
		json.NewEncoder(w).Encode(map[string]interface{}{"nfts": []interface{}{}})
	}))
	defer server.Close()

	client := ledger.NewMirrorClient(server.URL, zap.NewNop())
	units, err := client.OwnedUnits(context.Background(), "0.0.5005", "0.0.2002", 0, ledger.OrderDesc)

	assert.NoError(t, err)
	assert.Empty(t, units)
}

func TestOwnedUnitsSurfacesMirrorErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"_status":{"messages":[{"message":"Not found"}]}}`, http.StatusNotFound)
	}))
	defer server.Close()

	client := ledger.NewMirrorClient(server.URL, zap.NewNop())
	_, err := client.OwnedUnits(context.Background(), "0.0.9999", "0.0.2002", 5, ledger.OrderAsc)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}
