package settlement

import (
	"sort"

	"github.com/dispatch-ledger/internal/domain/call"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Totals aggregates a set of records
type Totals struct {
	Trips  int   `json:"trips"`
	Fare   int64 `json:"fare"`
	Cash   int64 `json:"cash"`
	Card   int64 `json:"card"`
	Credit int64 `json:"credit"`
}

func (t *Totals) add(r *Record) {
	if r.Kind == KindTrip {
		t.Trips++
	}
	t.Fare += r.Fare
	t.Cash += r.CashAmount
	t.Card += r.CardAmount
	t.Credit += r.CreditAmount
}

// Report is a read-side aggregation over settlement records
type Report struct {
	SessionID       *uuid.UUID                    `json:"session_id,omitempty"`
	Totals          Totals                        `json:"totals"`
	AverageFare     string                        `json:"average_fare"`
	ByDriver        map[string]Totals             `json:"by_driver"`
	ByPaymentMethod map[call.PaymentMethod]Totals `json:"by_payment_method"`
	ByDate          map[string]Totals             `json:"by_date"`
	Dates           []string                      `json:"dates"`
	Reconciled      bool                          `json:"reconciled"`
}

// BuildReport aggregates records by driver, payment method and work date
func BuildReport(records []*Record) Report {
	report := Report{
		ByDriver:        make(map[string]Totals),
		ByPaymentMethod: make(map[call.PaymentMethod]Totals),
		ByDate:          make(map[string]Totals),
		Dates:           []string{},
	}

	for _, r := range records {
		report.Totals.add(r)

		driver := report.ByDriver[driverKey(r)]
		driver.add(r)
		report.ByDriver[driverKey(r)] = driver

		method := report.ByPaymentMethod[r.PaymentMethod]
		method.add(r)
		report.ByPaymentMethod[r.PaymentMethod] = method

		date, seen := report.ByDate[r.WorkDate]
		if !seen {
			report.Dates = append(report.Dates, r.WorkDate)
		}
		date.add(r)
		report.ByDate[r.WorkDate] = date
	}
	sort.Strings(report.Dates)

	report.AverageFare = "0"
	if report.Totals.Trips > 0 {
		report.AverageFare = decimal.NewFromInt(report.Totals.Fare).
			Div(decimal.NewFromInt(int64(report.Totals.Trips))).
			StringFixed(0)
	}
	return report
}

// BuildSessionReport aggregates the records of one session and checks them against its totals
func BuildSessionReport(session *Session, records []*Record) Report {
	report := BuildReport(records)
	id := session.ID
	report.SessionID = &id
	report.Reconciled = session.Reconciles(report.Totals.Trips, report.Totals.Fare)
	return report
}

func driverKey(r *Record) string {
	if r.DriverName != "" {
		return r.DriverName
	}
	if r.DriverID != "" {
		return r.DriverID
	}
	return "unassigned"
}
