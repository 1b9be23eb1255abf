package ingest

import (
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/titledesk/production-reports/calendar"
	"github.com/titledesk/production-reports/engine"
	"github.com/xuri/excelize/v2"
)

// =============================================================================
// OPEN-ORDER WORKBOOK
// =============================================================================
// The pipeline export is a single-sheet workbook with one header row.
// Columns are matched by header text, so their order does not matter and
// unknown columns are ignored.

// OpenOrderSheet is a parsed workbook. Rows carry no open month or branch
// yet; the import service assigns both.
type OpenOrderSheet struct {
	Rows    []engine.OpenOrder
	Skipped int
}

var openOrderColumns = map[string]func(o *engine.OpenOrder, v string){
	"order number":     func(o *engine.OpenOrder, v string) { o.FileNumber = v },
	"received date":    func(o *engine.OpenOrder, v string) { o.ReceivedDate = parseDate(v) },
	"settlement date":  func(o *engine.OpenOrder, v string) { o.SettlementDate = parseDate(v) },
	"transaction type": func(o *engine.OpenOrder, v string) { o.TransType = v },
	"order type":       func(o *engine.OpenOrder, v string) { o.OrderType = v },
	"product type":     func(o *engine.OpenOrder, v string) { o.ProductType = v },
	"profile":          func(o *engine.OpenOrder, v string) { o.Profile = v },
	"sales rep":        func(o *engine.OpenOrder, v string) { o.SalesRep = v },
	"title officer":    func(o *engine.OpenOrder, v string) { o.TitleOfficer = v },
	"escrow officer":   func(o *engine.OpenOrder, v string) { o.EscrowOfficer = v },
	"escrow assistant": func(o *engine.OpenOrder, v string) { o.EscrowAssistant = v },
	"marketing source": func(o *engine.OpenOrder, v string) { o.MarketingSource = v },
	"main contact":     func(o *engine.OpenOrder, v string) { o.MainContact = v },
}

// ParseOpenOrders reads the first sheet of an open-order workbook. Rows
// without an order number are skipped and counted. Dates may be Excel serial
// numbers or text.
func ParseOpenOrders(r io.Reader) (*OpenOrderSheet, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: workbook has no sheets", engine.ErrEmptyImport)
	}
	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: sheet %q is empty", engine.ErrEmptyImport, sheets[0])
	}

	setters := make(map[int]func(*engine.OpenOrder, string))
	hasOrderNumber := false
	for i, h := range rows[0] {
		key := strings.ToLower(strings.TrimSpace(h))
		if set, ok := openOrderColumns[key]; ok {
			setters[i] = set
			hasOrderNumber = hasOrderNumber || key == "order number"
		}
	}
	if !hasOrderNumber {
		return nil, fmt.Errorf("%w: no \"Order Number\" column", engine.ErrEmptyImport)
	}

	sheet := &OpenOrderSheet{}
	for _, row := range rows[1:] {
		if blank(row) {
			continue
		}
		var o engine.OpenOrder
		for i, cell := range row {
			if set, ok := setters[i]; ok {
				set(&o, strings.TrimSpace(cell))
			}
		}
		if o.FileNumber == "" {
			sheet.Skipped++
			continue
		}
		o.Category = engine.CategorizeOpenOrder(o.OrderType, o.TransType)
		sheet.Rows = append(sheet.Rows, o)
	}
	return sheet, nil
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

var openFileName = regexp.MustCompile(`^(\d{4}-\d{2})-open\.xlsx$`)

// OpenMonth decides which open month a workbook is filed under: the explicit
// month if given, else a "YYYY-MM-open.xlsx" file name, else the first
// received date in the rows.
func OpenMonth(explicit, fileName string, rows []engine.OpenOrder) (calendar.YearMonth, error) {
	if explicit = strings.TrimSpace(explicit); explicit != "" {
		ym, err := calendar.ParseYearMonth(explicit)
		if err != nil {
			return calendar.YearMonth{}, fmt.Errorf("%w: %v", engine.ErrInvalidMonth, err)
		}
		return ym, nil
	}
	if m := openFileName.FindStringSubmatch(filepath.Base(fileName)); m != nil {
		if ym, err := calendar.ParseYearMonth(m[1]); err == nil {
			return ym, nil
		}
	}
	for _, o := range rows {
		if o.ReceivedDate != nil {
			return o.ReceivedDate.YearMonth(), nil
		}
	}
	return calendar.YearMonth{}, fmt.Errorf("%w: cannot infer open month, none given and no received dates", engine.ErrInvalidMonth)
}
