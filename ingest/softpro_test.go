package ingest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/titledesk/production-reports/calendar"
	"github.com/titledesk/production-reports/engine"
)

var feb = calendar.YearMonth{Year: 2026, Month: 2}

const exportBody = `{
	"Status": 200,
	"Message": "OK",
	"data": [
		{"[Number]": "20006993-OCT", "[BillCode]": "TPC", "[SumAmount]": 500, "[TransactionDate]": "2026-02-10T00:00:00.000Z",
		 "[SalesRep]": "Sam Seller", "[TitleOfficerName]": "Jane Roe", "[OrderType]": "Title only", "[TransType]": "Purchase"},
		{"Number": "20006993-OCT", "BillCode": "esc", "SumAmount": "300.00", "TransactionDate": "2026-02-10",
		 "SalesRep": "Sam Seller", "TitleOfficerName": "Jane Roe", "OrderType": "Title only", "TransType": "Purchase"},
		{"[Number]": "20006993-OCT", "[BillCode]": "RECF", "[SumAmount]": 45},
		{"[Number]": "99100688", "[BillCode]": "TSGW", "[SumAmount]": null, "[PropState]": "CA"}
	]
}`

func TestFetchMonth(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/powerbi/createExcel", r.URL.Path)
		gotQuery = r.URL.Query().Get("userPostedDate")
		w.Write([]byte(exportBody))
	}))
	defer srv.Close()

	client := NewSoftProClient(srv.URL+"/api/", time.Second)
	batch, err := client.FetchMonth(context.Background(), feb)
	require.NoError(t, err)

	assert.Equal(t, "2026-02-01", gotQuery)
	assert.Equal(t, 4, batch.Fetched)
	assert.Equal(t, 1, batch.Filtered(), "RECF is not a revenue code")
	require.Len(t, batch.LineItems, 3)

	first := batch.LineItems[0]
	assert.Equal(t, "20006993-OCT", first.FileNumber)
	assert.True(t, decimal.NewFromInt(500).Equal(first.Amount))
	assert.Equal(t, "2026-02-10", first.TransactionDate.String())
	assert.Equal(t, "Jane Roe", first.TitleOfficer)
	assert.Equal(t, feb, first.FetchMonth)

	second := batch.LineItems[1]
	assert.Equal(t, "ESC", second.BillCode)
	assert.True(t, decimal.NewFromInt(300).Equal(second.Amount))

	tsg := batch.LineItems[2]
	assert.True(t, tsg.Amount.IsZero(), "null amount coalesces to zero")
	assert.Nil(t, tsg.TransactionDate)
	assert.Equal(t, "CA", tsg.State)
}

func TestFetchMonth_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"http error", http.StatusBadGateway, "upstream down"},
		{"envelope status", http.StatusOK, `{"Status": 500, "Message": "query timeout"}`},
		{"missing data", http.StatusOK, `{"Status": 200, "Message": "OK"}`},
		{"not json", http.StatusOK, `<html>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewSoftProClient(srv.URL, time.Second).FetchMonth(context.Background(), feb)
			assert.True(t, errors.Is(err, engine.ErrFetchFailed), "got %v", err)
		})
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2026-02-10", "2026-02-10"},
		{"2026-02-10T00:00:00.000Z", "2026-02-10"},
		{"2026-02-10 08:30:00", "2026-02-10"},
		{"2/10/2026", "2026-02-10"},
		{"02/10/2026", "2026-02-10"},
		{"46063", "2026-02-10"},
		{"46063.5", "2026-02-10"},
		{"Feb 10, 2026", "2026-02-10"},
	}
	for _, tt := range tests {
		got := parseDate(tt.in)
		require.NotNil(t, got, tt.in)
		assert.Equal(t, tt.want, got.String(), tt.in)
	}

	for _, bad := range []string{"", "  ", "soon", "-4", "13/45/2026"} {
		assert.Nil(t, parseDate(bad), bad)
	}
}
