/*
scenarios.go - Demo datasets for the dashboard

PURPOSE:
  Provides generated datasets that populate the database with realistic
  production data for demos and frontend work. Data goes through the
  ingest service exactly as a SoftPro fetch or a workbook upload would,
  so aggregation, branch assignment and the import log all behave as in
  production.

AVAILABLE SCENARIOS:
  steady-growth:  Four closed months across the four branches plus TSG,
                  growing month over month, with open orders for the
                  current and prior month. Every officer is mapped.
  data-quality:   steady-growth with problems planted in the current month
                  for the discrepancy battery: unknown suffix, zero revenue,
                  missing escrow fee, missing personnel, an unmapped officer,
                  a collapsing branch, a rep going to zero and a pipeline drop.

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Save the officer directory
 3. Import each revenue month, oldest first (trigger "demo")
 4. Import each open-orders month

USAGE VIA API:
	POST /api/scenarios/load
	{"scenario_id": "data-quality"}

NOTE:
	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Handler, error mapping
  - ingest/service.go: ImportRevenueItems, ImportOpenOrders
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/titledesk/production-reports/calendar"
	"github.com/titledesk/production-reports/engine"
	"github.com/titledesk/production-reports/ingest"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

type scenario struct {
	ScenarioDTO
	build func(cur calendar.YearMonth, today calendar.Day) *demoData
}

var scenarios = []scenario{
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "steady-growth",
			Name:        "Steady Growth",
			Description: "Four months of healthy production across all branches",
		},
		build: func(cur calendar.YearMonth, today calendar.Day) *demoData {
			return generate(cur, today, steadyOffices)
		},
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "data-quality",
			Name:        "Data Quality Problems",
			Description: "Current month seeded with issues the discrepancy checks catch",
		},
		build: buildDataQuality,
	},
}

func findScenario(id string) (scenario, bool) {
	for _, s := range scenarios {
		if s.ID == id {
			return s, true
		}
	}
	return scenario{}, false
}

// ListScenarios returns available scenarios for the current month.
// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	month := calendar.DayOf(h.now()).YearMonth().String()
	out := make([]ScenarioDTO, len(scenarios))
	for i, s := range scenarios {
		out[i] = s.ScenarioDTO
		out[i].Month = month
	}
	writeJSON(w, http.StatusOK, out)
}

// GetCurrentScenario returns the loaded scenario, or null.
// GET /api/scenarios/current
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	s, ok := findScenario(current)
	if !ok {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, s.ScenarioDTO)
}

// LoadScenario resets the database and imports a generated dataset.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decode(w, r, &req) {
		return
	}
	s, ok := findScenario(req.ScenarioID)
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", fmt.Errorf("scenario %q", req.ScenarioID))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ctx := r.Context()
	if err := h.Store.Reset(ctx); err != nil {
		h.fail(w, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""

	today := calendar.DayOf(h.now())
	data := s.build(today.YearMonth(), today)
	resp, err := h.loadDemoData(ctx, data)
	if err != nil {
		h.fail(w, fmt.Sprintf("Failed to load scenario %s", s.ID), err)
		return
	}

	h.currentScenario = s.ID
	resp.Scenario = s.ScenarioDTO
	resp.Scenario.Month = today.YearMonth().String()
	h.Log.WithField("scenario", s.ID).Info("demo scenario loaded")
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) loadDemoData(ctx context.Context, data *demoData) (*ScenarioLoadedResponse, error) {
	for _, ob := range data.officers {
		if err := h.Store.SaveOfficerBranch(ctx, ob); err != nil {
			return nil, err
		}
	}

	var revenue, open []*ingest.Result
	for _, month := range sortedMonths(data.revenue) {
		res, err := h.Imports.ImportRevenueItems(ctx, month, data.revenue[month], ingest.TriggerDemo)
		if err != nil {
			return nil, err
		}
		revenue = append(revenue, res)
	}
	for _, month := range sortedMonths(data.open) {
		res, err := h.Imports.ImportOpenOrders(ctx, month, data.open[month], ingest.TriggerDemo)
		if err != nil {
			return nil, err
		}
		open = append(open, res)
	}
	return &ScenarioLoadedResponse{Revenue: revenue, Open: open}, nil
}

func sortedMonths[V any](m map[calendar.YearMonth]V) []calendar.YearMonth {
	out := make([]calendar.YearMonth, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// =============================================================================
// GENERATOR
// =============================================================================

// demoOffice is one branch's staffing and monthly closed volume.
type demoOffice struct {
	suffix  string
	branch  string
	officer string
	escrow  string
	rep     string
	county  string
	volume  int
}

var steadyOffices = []demoOffice{
	{"GLT", "Glendale", "Grace Lee", "Eli Escobar", "Sam Seller", "Los Angeles", 14},
	{"OCT", "Orange", "Jane Roe", "Erin Ortiz", "Ann Agent", "Orange", 18},
	{"ONT", "Inland Empire", "Omar Diaz", "Eva Ito", "Ray Rainmaker", "San Bernardino", 10},
	{"PRV", "Porterville", "Paula Vance", "Ed Park", "Sam Seller", "Tulare", 6},
}

// tsgVolume is the TSG file count per month. TSG files carry no officer.
const tsgVolume = 3

var demoOrderTypes = []struct{ order, trans string }{
	{"Title only", "Purchase"},
	{"Title only", "Refinance"},
	{"Title & Escrow", "Purchase"},
	{"Title only", "Purchase"},
	{"Title only", "Refinance"},
}

type demoData struct {
	officers []engine.OfficerBranch
	revenue  map[calendar.YearMonth][]engine.LineItem
	open     map[calendar.YearMonth][]engine.OpenOrder
}

type generator struct {
	seq   int
	today calendar.Day
	data  *demoData
}

func newGenerator(today calendar.Day) *generator {
	return &generator{
		seq:   6990,
		today: today,
		data: &demoData{
			revenue: make(map[calendar.YearMonth][]engine.LineItem),
			open:    make(map[calendar.YearMonth][]engine.OpenOrder),
		},
	}
}

// generate builds four closed months ending at cur and open orders for cur
// and the month before. Volume grows one order per office per month.
func generate(cur calendar.YearMonth, today calendar.Day, offices []demoOffice) *demoData {
	g := newGenerator(today)
	g.directory(offices)
	for back := 3; back >= 0; back-- {
		month := cur.AddMonths(-back)
		g.closedMonth(month, grow(offices, 3-back))
	}
	g.openMonth(cur.Prev(), offices, 1)
	g.openMonth(cur, offices, 1)
	return g.data
}

func grow(offices []demoOffice, n int) []demoOffice {
	out := append([]demoOffice(nil), offices...)
	for i := range out {
		out[i].volume += n
	}
	return out
}

func (g *generator) directory(offices []demoOffice) {
	for _, o := range offices {
		g.data.officers = append(g.data.officers, engine.OfficerBranch{OfficerName: o.officer, Branch: o.branch, Active: true})
	}
}

func (g *generator) fileNumber(suffix string) string {
	g.seq++
	if suffix == "" {
		return fmt.Sprintf("991%05d", g.seq)
	}
	return fmt.Sprintf("2%07d-%s", g.seq, suffix)
}

// clamp keeps generated dates inside month and not after today.
func (g *generator) clamp(d calendar.Day, month calendar.YearMonth) calendar.Day {
	if d.After(month.Last()) {
		d = month.Last()
	}
	if d.After(g.today) {
		d = g.today
	}
	return d
}

func (g *generator) closedMonth(month calendar.YearMonth, offices []demoOffice) {
	for _, o := range offices {
		for i := 0; i < o.volume; i++ {
			g.addOrder(month, o, i, g.fileNumber(o.suffix))
		}
	}
	for i := 0; i < tsgVolume; i++ {
		fn := g.fileNumber("")
		closing := g.clamp(month.First().AddDays(4+i*7), month)
		g.add(month, engine.LineItem{
			FileNumber: fn, TransactionDate: &closing, OrderType: "Trustee Sale Guarantee",
			SalesRep: "Tina Trustee", County: "Riverside", State: "CA",
		}, engine.BillCodeTSGWork, 650)
	}
}

// addOrder emits the line items of one order. Every sixth order is still
// pending and has no closing date.
func (g *generator) addOrder(month calendar.YearMonth, o demoOffice, i int, fn string) {
	t := demoOrderTypes[i%len(demoOrderTypes)]
	closing := g.clamp(month.First().AddDays((i*3)%28), month)
	received := closing.AddDays(-35)

	base := engine.LineItem{
		FileNumber:   fn,
		ReceivedDate: &received,
		OrderType:    t.order,
		TransType:    t.trans,
		SalesRep:     o.rep,
		TitleOfficer: o.officer,
		TitleOffice:  o.branch,
		County:       o.county,
		State:        "CA",
		Underwriter:  "First American",
	}
	if i%6 != 5 {
		base.TransactionDate = &closing
	}
	if t.order == "Title & Escrow" {
		base.EscrowOfficer = o.escrow
		base.EscrowOffice = o.branch
		g.add(month, base, engine.BillCodeEscrowFee, 650)
	}
	g.add(month, base, engine.BillCodeTitlePremiumCalc, int64(900+35*(i%7)))
	if t.trans == "Purchase" {
		g.add(month, base, engine.BillCodeUnderwriterPremium, 120)
	}
}

func (g *generator) add(month calendar.YearMonth, base engine.LineItem, billCode string, amount int64) {
	base.BillCode = billCode
	base.Amount = decimal.NewFromInt(amount)
	g.data.revenue[month] = append(g.data.revenue[month], base)
}

// openMonth emits volume+extra open orders per office, received during month.
func (g *generator) openMonth(month calendar.YearMonth, offices []demoOffice, divisor int) {
	for _, o := range offices {
		n := (o.volume + 3) / divisor
		for i := 0; i < n; i++ {
			t := demoOrderTypes[i%len(demoOrderTypes)]
			received := g.clamp(month.First().AddDays((i*2)%28), month)
			g.data.open[month] = append(g.data.open[month], engine.OpenOrder{
				FileNumber:   g.fileNumber(o.suffix),
				ReceivedDate: &received,
				OrderType:    t.order,
				TransType:    t.trans,
				SalesRep:     o.rep,
				TitleOfficer: o.officer,
			})
		}
	}
}

// =============================================================================
// DATA QUALITY SCENARIO
// =============================================================================

func buildDataQuality(cur calendar.YearMonth, today calendar.Day) *demoData {
	g := newGenerator(today)
	g.directory(steadyOffices)
	for back := 3; back >= 1; back-- {
		g.closedMonth(cur.AddMonths(-back), grow(steadyOffices, 3-back))
	}

	// Porterville collapses, Ray stops producing and Inland's officer is
	// not in the directory.
	current := grow(steadyOffices, 3)
	for i := range current {
		switch current[i].suffix {
		case "PRV":
			current[i].volume = 1
		case "ONT":
			current[i].rep = "Sam Seller"
			current[i].officer = "Ghost Officer"
		}
	}
	g.closedMonth(cur, current)

	day := g.clamp(cur.First().AddDays(9), cur)
	plain := engine.LineItem{
		TransactionDate: &day, OrderType: "Title only", TransType: "Purchase",
		SalesRep: "Ann Agent", TitleOfficer: "Jane Roe", State: "CA",
	}

	unknown := plain
	unknown.FileNumber = g.fileNumber("XYZ")
	g.add(cur, unknown, engine.BillCodeTitlePremiumCalc, 1100)

	zero := plain
	zero.FileNumber = g.fileNumber("OCT")
	g.add(cur, zero, engine.BillCodeTitlePremiumWaived, 0)

	noEscrow := plain
	noEscrow.FileNumber = g.fileNumber("GLT")
	noEscrow.OrderType = "Title & Escrow"
	g.add(cur, noEscrow, engine.BillCodeTitlePremiumCalc, 1250)

	nobody := plain
	nobody.FileNumber = g.fileNumber("OCT")
	nobody.SalesRep, nobody.TitleOfficer = "", ""
	g.add(cur, nobody, engine.BillCodeTitlePremiumCalc, 980)

	g.openMonth(cur.Prev(), steadyOffices, 1)
	g.openMonth(cur, steadyOffices, 3)
	return g.data
}
