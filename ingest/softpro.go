/*
softpro.go - Revenue client for the SoftPro production system

PURPOSE:
  Pulls one month of billing line items from the production system's
  export endpoint and maps them onto engine.LineItem.

ENDPOINT:
  GET {base}/powerbi/createExcel?userPostedDate=YYYY-MM-01

  Response envelope: {"Status": 200, "Message": "...", "data": [...]}
  Record keys arrive either bracket-wrapped ("[BillCode]") or plain
  ("BillCode"); both are accepted. The export is slow, so the client
  timeout is measured in minutes.

FILTERING:
  Records whose bill code is not one of the five revenue codes are dropped
  here, before anything is stored.

SEE ALSO:
  - ingest/service.go: Stores the fetched month
  - engine/classify.go: ClassifyRevenue, the bill-code table
*/
package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/titledesk/production-reports/calendar"
	"github.com/titledesk/production-reports/engine"
)

// DefaultFetchTimeout covers the export endpoint's worst observed latency.
const DefaultFetchTimeout = 10 * time.Minute

// RevenueBatch is one month as returned by the production system.
type RevenueBatch struct {
	Month     calendar.YearMonth
	Fetched   int
	LineItems []engine.LineItem
	Duration  time.Duration
}

// Filtered is how many fetched records were dropped for their bill code.
func (b *RevenueBatch) Filtered() int { return b.Fetched - len(b.LineItems) }

// SoftProClient fetches revenue months over HTTP.
type SoftProClient struct {
	baseURL string
	http    *http.Client
}

func NewSoftProClient(baseURL string, timeout time.Duration) *SoftProClient {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &SoftProClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type softProEnvelope struct {
	Status  int              `json:"Status"`
	Message string           `json:"Message"`
	Data    []map[string]any `json:"data"`
}

// FetchMonth downloads and filters one month of line items.
func (c *SoftProClient) FetchMonth(ctx context.Context, month calendar.YearMonth) (*RevenueBatch, error) {
	start := time.Now()

	params := url.Values{"userPostedDate": {month.First().String()}}
	endpoint := c.baseURL + "/powerbi/createExcel?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", engine.ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", engine.ErrFetchFailed, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: http %d: %s", engine.ErrFetchFailed, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var env softProEnvelope
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", engine.ErrFetchFailed, err)
	}
	if env.Status != http.StatusOK || env.Data == nil {
		return nil, fmt.Errorf("%w: status %d: %s", engine.ErrFetchFailed, env.Status, env.Message)
	}

	batch := &RevenueBatch{Month: month, Fetched: len(env.Data)}
	for _, rec := range env.Data {
		r := softProRecord(rec)
		if !engine.IsValidBillCode(r.get("BillCode")) {
			continue
		}
		batch.LineItems = append(batch.LineItems, r.lineItem(month))
	}
	batch.Duration = time.Since(start)
	return batch, nil
}

// softProRecord is one raw export row.
type softProRecord map[string]any

// get reads key bracket-wrapped first, then plain.
func (r softProRecord) get(key string) string {
	v, ok := r["["+key+"]"]
	if !ok {
		v = r[key]
	}
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	default:
		return strings.TrimSpace(fmt.Sprint(x))
	}
}

func (r softProRecord) lineItem(month calendar.YearMonth) engine.LineItem {
	return engine.LineItem{
		FileNumber:       r.get("Number"),
		TransactionDate:  parseDate(r.get("TransactionDate")),
		ReceivedDate:     parseDate(r.get("ReceivedDate")),
		DisbursementDate: parseDate(r.get("DisbursementDate")),
		EscrowClosedDate: parseDate(r.get("EscrowClosedDate")),
		BillCode:         strings.ToUpper(r.get("BillCode")),
		BillCodeCategory: r.get("BillCodeCategory"),
		Description:      r.get("ChargeDescription"),
		Amount:           engine.DecimalOrZero(r.get("SumAmount")),
		SalesRep:         r.get("SalesRep"),
		TitleOfficer:     r.get("TitleOfficerName"),
		EscrowOfficer:    r.get("EscrowOfficerName"),
		OrderType:        r.get("OrderType"),
		TransType:        r.get("TransType"),
		TitleOffice:      r.get("TitleOffice"),
		EscrowOffice:     r.get("EscrowOffice"),
		PropertyType:     r.get("PropertyType"),
		County:           r.get("County"),
		City:             r.get("City"),
		State:            r.get("PropState"),
		Zip:              r.get("Zip"),
		Address:          r.get("Address1"),
		MarketingSource:  r.get("MarketingSource"),
		MainContact:      r.get("MainContact"),
		Underwriter:      r.get("Underwriter"),
		FetchMonth:       month,
	}
}
