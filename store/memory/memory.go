// Package memory provides an in-memory implementation of the engine's store
// interfaces, used by the report and import tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/titledesk/production-reports/calendar"
	"github.com/titledesk/production-reports/engine"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu         sync.RWMutex
	lineItems  map[calendar.YearMonth][]engine.LineItem
	orders     map[calendar.YearMonth][]engine.OrderSummary
	openOrders map[calendar.YearMonth][]engine.OpenOrder
	officers   map[string]engine.OfficerBranch
	imports    []engine.ImportRun
}

var (
	_ engine.ReportSource = (*Memory)(nil)
	_ engine.ImportWriter = (*Memory)(nil)
	_ engine.OfficerStore = (*Memory)(nil)
)

func New() *Memory {
	return &Memory{
		lineItems:  make(map[calendar.YearMonth][]engine.LineItem),
		orders:     make(map[calendar.YearMonth][]engine.OrderSummary),
		openOrders: make(map[calendar.YearMonth][]engine.OpenOrder),
		officers:   make(map[string]engine.OfficerBranch),
	}
}

// =============================================================================
// WRITE SIDE
// =============================================================================

// ReplaceRevenueMonth swaps a fetch month's batch under the write lock, so
// readers never observe a partial month.
func (m *Memory) ReplaceRevenueMonth(_ context.Context, month calendar.YearMonth, items []engine.LineItem, orders []engine.OrderSummary) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	deleted := len(m.orders[month])
	m.lineItems[month] = append([]engine.LineItem(nil), items...)

	stamped := make([]engine.OrderSummary, len(orders))
	for i, o := range orders {
		o.FetchMonth = month
		stamped[i] = o
	}
	m.orders[month] = stamped
	return deleted, nil
}

// ReplaceOpenOrders swaps an open month's rows. A later row with the same
// file number replaces the earlier one.
func (m *Memory) ReplaceOpenOrders(_ context.Context, month calendar.YearMonth, rows []engine.OpenOrder) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	deleted := len(m.openOrders[month])

	index := make(map[string]int, len(rows))
	var kept []engine.OpenOrder
	for _, r := range rows {
		r.OpenMonth = month
		if i, ok := index[r.FileNumber]; ok {
			kept[i] = r
			continue
		}
		index[r.FileNumber] = len(kept)
		kept = append(kept, r)
	}
	m.openOrders[month] = kept
	return deleted, nil
}

func (m *Memory) RecordImport(_ context.Context, run engine.ImportRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.imports = append(m.imports, run)
	return nil
}

// ImportLog returns the most recent runs first.
func (m *Memory) ImportLog(_ context.Context, limit int) ([]engine.ImportRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]engine.ImportRun, 0, len(m.imports))
	for i := len(m.imports) - 1; i >= 0; i-- {
		out = append(out, m.imports[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// =============================================================================
// READ SIDE
// =============================================================================

func (m *Memory) OrderSummaries(_ context.Context, month calendar.YearMonth, f engine.OrderFilter) ([]engine.OrderSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []engine.OrderSummary
	for _, o := range m.orders[month] {
		if f.Matches(o) {
			out = append(out, o)
		}
	}
	return out, nil
}

// LineItems returns a fetch month's raw items for one file number.
func (m *Memory) LineItems(_ context.Context, month calendar.YearMonth, fileNumber string) ([]engine.LineItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []engine.LineItem
	for _, it := range m.lineItems[month] {
		if it.FileNumber == fileNumber {
			out = append(out, it)
		}
	}
	return out, nil
}

func (m *Memory) OpenOrdersForMonth(_ context.Context, month calendar.YearMonth, cats []engine.Category) ([]engine.OpenOrder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []engine.OpenOrder
	for _, o := range m.openOrders[month] {
		if engine.CategoryIn(o.Category, cats) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *Memory) OpenOrdersReceivedOn(_ context.Context, day calendar.Day, cats []engine.Category) ([]engine.OpenOrder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []engine.OpenOrder
	for _, month := range m.openMonthsLocked() {
		for _, o := range m.openOrders[month] {
			if o.ReceivedDate != nil && o.ReceivedDate.Equal(day) && engine.CategoryIn(o.Category, cats) {
				out = append(out, o)
			}
		}
	}
	return out, nil
}

func (m *Memory) CountOpenedBy(_ context.Context, key engine.PersonKey, p calendar.Period, cats []engine.Category) (map[string]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[string]int)
	for _, rows := range m.openOrders {
		for _, o := range rows {
			if o.ReceivedDate == nil || !p.Contains(*o.ReceivedDate) || !engine.CategoryIn(o.Category, cats) {
				continue
			}
			counts[person(key, o.SalesRep, o.TitleOfficer)]++
		}
	}
	return counts, nil
}

// CountClosedBy counts across every fetch month; the window, not the batch,
// decides membership.
func (m *Memory) CountClosedBy(_ context.Context, key engine.PersonKey, p calendar.Period, cats []engine.Category) (map[string]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[string]int)
	for _, rows := range m.orders {
		for _, o := range rows {
			if o.TransactionDate == nil || !p.Contains(*o.TransactionDate) || !engine.CategoryIn(o.Category, cats) {
				continue
			}
			counts[person(key, o.SalesRep, o.TitleOfficer)]++
		}
	}
	return counts, nil
}

func person(key engine.PersonKey, salesRep, titleOfficer string) string {
	if key == engine.ByTitleOfficer {
		return titleOfficer
	}
	return salesRep
}

func (m *Memory) openMonthsLocked() []calendar.YearMonth {
	months := make([]calendar.YearMonth, 0, len(m.openOrders))
	for month := range m.openOrders {
		months = append(months, month)
	}
	sort.Slice(months, func(i, j int) bool { return months[i].Before(months[j]) })
	return months
}

// =============================================================================
// OFFICER DIRECTORY
// =============================================================================

func (m *Memory) SaveOfficerBranch(_ context.Context, ob engine.OfficerBranch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.officers[ob.OfficerName] = ob
	return nil
}

func (m *Memory) DeactivateOfficer(_ context.Context, officerName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ob, ok := m.officers[officerName]
	if !ok {
		return engine.ErrNotFound
	}
	ob.Active = false
	m.officers[officerName] = ob
	return nil
}

// OfficerBranches returns active entries sorted by officer name.
func (m *Memory) OfficerBranches(_ context.Context) ([]engine.OfficerBranch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]engine.OfficerBranch, 0, len(m.officers))
	for _, ob := range m.officers {
		if ob.Active {
			out = append(out, ob)
		}
	}
	sort.Slice(out, func(i, j int) bool { return strings.Compare(out[i].OfficerName, out[j].OfficerName) < 0 })
	return out, nil
}
