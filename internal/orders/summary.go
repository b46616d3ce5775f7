package orders

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-clothing-orders/internal/apperr"
	"github.com/ariefcatur/go-clothing-orders/internal/auth"
)

const summaryPageSize = 500

// Summary is the back-office overview of the order book. Revenue counts
// delivered orders only, bucketed by the day they were placed (UTC).
type Summary struct {
	TotalOrders      int             `json:"total_orders"`
	ByStatus         map[Status]int  `json:"by_status"`
	DeliveredRevenue decimal.Decimal `json:"delivered_revenue"`
	TodayRevenue     decimal.Decimal `json:"today_revenue"`
	MonthRevenue     decimal.Decimal `json:"month_revenue"`
	YearRevenue      decimal.Decimal `json:"year_revenue"`
	GeneratedAt      time.Time       `json:"generated_at"`
}

func (s *Service) Summary(ctx context.Context, actor auth.Actor) (*Summary, error) {
	if !actor.IsAdmin() {
		return nil, apperr.New(apperr.KindForbidden, "the order summary requires the admin role")
	}
	now := s.Now().UTC()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	month := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	year := time.Date(now.Year(), 1, 1, 0, 0, 0, 0, time.UTC)

	var sum *Summary
	err := s.UoW.RunInTx(ctx, func(ctx context.Context, r Repository) error {
		sum = &Summary{ByStatus: make(map[Status]int, len(allStatuses)), GeneratedAt: now}
		for _, st := range allStatuses {
			sum.ByStatus[st] = 0
		}
		for offset := 0; ; offset += summaryPageSize {
			page, err := r.ListOrders(ctx, ListFilter{Limit: summaryPageSize, Offset: offset})
			if err != nil {
				return err
			}
			for _, o := range page {
				sum.add(&o, day, month, year)
			}
			if len(page) < summaryPageSize {
				return nil
			}
		}
	})
	if err != nil {
		return nil, err
	}
	return sum, nil
}

func (sum *Summary) add(o *Order, day, month, year time.Time) {
	sum.TotalOrders++
	sum.ByStatus[o.Status]++
	if o.Status != StatusDelivered {
		return
	}
	sum.DeliveredRevenue = sum.DeliveredRevenue.Add(o.Total)
	placed := o.CreatedAt.UTC()
	if !placed.Before(year) {
		sum.YearRevenue = sum.YearRevenue.Add(o.Total)
	}
	if !placed.Before(month) {
		sum.MonthRevenue = sum.MonthRevenue.Add(o.Total)
	}
	if !placed.Before(day) {
		sum.TodayRevenue = sum.TodayRevenue.Add(o.Total)
	}
}
