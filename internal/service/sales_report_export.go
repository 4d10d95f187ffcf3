package service

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dumu-tech/cafe-orders/internal/core"
	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"
)

// GenerateDailySalesReportPDF renders one branch's day: the stats cache
// summary per bucket and every order that counted revenue that day.
func (s *DashboardService) GenerateDailySalesReportPDF(ctx context.Context, branchID, date string) ([]byte, string, error) {
	report, err := s.BuildDailySalesReport(ctx, branchID, date)
	if err != nil {
		return nil, "", err
	}

	pdfBytes, err := renderSalesReportPDF(report, s.stats.Location())
	if err != nil {
		return nil, "", err
	}

	filename := fmt.Sprintf("daily-sales-%s-%s.pdf", branchID, report.Date)
	return pdfBytes, filename, nil
}

// BuildDailySalesReport collects the report data without rendering it.
func (s *DashboardService) BuildDailySalesReport(ctx context.Context, branchID, date string) (*core.SalesReport, error) {
	overview, err := s.GetAnalyticsOverview(ctx, branchID, date)
	if err != nil {
		return nil, err
	}

	loc := s.stats.Location()
	day, err := time.ParseInLocation(DateLayout, overview.Date, loc)
	if err != nil {
		return nil, fmt.Errorf("failed to parse report date: %w", err)
	}
	start, end := day, day.AddDate(0, 0, 1)

	orders, err := s.store.Orders().List(ctx, core.OrderFilter{BranchID: branchID, Since: &start, Until: &end})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch report orders: %w", err)
	}

	settled := make([]*core.Order, 0, len(orders))
	for _, o := range orders {
		if o.PaymentStatus == core.PaymentStatusUnpaid {
			continue
		}
		settled = append(settled, o)
	}
	sort.Slice(settled, func(i, j int) bool { return settled[i].CreatedAt.Before(settled[j].CreatedAt) })

	buckets := make([]*core.StatsCache, 0, len(dayParts))
	for _, b := range dayParts {
		buckets = append(buckets, &core.StatsCache{
			Key:        core.StatsKey{BranchID: branchID, Date: overview.Date, Bucket: b},
			Aggregates: overview.ByBucket[b],
		})
	}

	return &core.SalesReport{
		Title:       "Daily Sales Report",
		BranchID:    branchID,
		Date:        overview.Date,
		Timezone:    loc.String(),
		GeneratedAt: s.now().In(loc),
		Summary:     overview.Today,
		Buckets:     buckets,
		Orders:      settled,
	}, nil
}

func renderSalesReportPDF(report *core.SalesReport, loc *time.Location) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 10, 10)
	pdf.SetAutoPageBreak(true, 12)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 8, fmt.Sprintf("Branch %s", report.BranchID), "", 1, "L", false, 0, "")

	pdf.SetFont("Arial", "B", 13)
	pdf.CellFormat(0, 7, report.Title, "", 1, "L", false, 0, "")

	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 6, fmt.Sprintf("Date: %s (%s)", report.Date, report.Timezone), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Generated At: %s", formatReportDateTime(report.GeneratedAt, loc)), "", 1, "L", false, 0, "")
	pdf.Ln(2)

	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(0, 7, "Summary", "1", 1, "L", false, 0, "")

	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(95, 7, fmt.Sprintf("Revenue: %s", formatMoney(report.Summary.TotalRevenue)), "1", 0, "L", false, 0, "")
	pdf.CellFormat(95, 7, fmt.Sprintf("Orders: %d", report.Summary.TotalOrders), "1", 1, "L", false, 0, "")
	pdf.CellFormat(95, 7, fmt.Sprintf("Items Sold: %d", report.Summary.ItemsSold), "1", 0, "L", false, 0, "")
	pdf.CellFormat(95, 7, fmt.Sprintf("Average Order Value: %s", formatMoney(report.Summary.AverageOrderValue)), "1", 1, "L", false, 0, "")
	pdf.Ln(3)

	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(0, 7, "By Time of Day", "", 1, "L", false, 0, "")
	pdf.SetFont("Arial", "B", 10)
	for _, h := range []struct {
		w    float64
		text string
	}{{50, "Bucket"}, {45, "Revenue"}, {30, "Orders"}, {30, "Items"}, {35, "Avg Order"}} {
		pdf.CellFormat(h.w, 7, h.text, "1", 0, "L", false, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, b := range report.Buckets {
		pdf.CellFormat(50, 7, string(b.Key.Bucket), "1", 0, "L", false, 0, "")
		pdf.CellFormat(45, 7, formatMoney(b.Aggregates.TotalRevenue), "1", 0, "L", false, 0, "")
		pdf.CellFormat(30, 7, fmt.Sprintf("%d", b.Aggregates.TotalOrders), "1", 0, "L", false, 0, "")
		pdf.CellFormat(30, 7, fmt.Sprintf("%d", b.Aggregates.ItemsSold), "1", 0, "L", false, 0, "")
		pdf.CellFormat(35, 7, formatMoney(b.Aggregates.AverageOrderValue), "1", 1, "L", false, 0, "")
	}
	pdf.Ln(3)

	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(0, 7, "Order-Level Detail", "", 1, "L", false, 0, "")

	if len(report.Orders) == 0 {
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(0, 6, "No settled orders for this date.", "", 1, "L", false, 0, "")
	} else {
		for i, order := range report.Orders {
			ensurePageSpace(pdf, 35)

			pdf.SetFont("Arial", "B", 10)
			headerLine := fmt.Sprintf(
				"%d) %s | %s | %s",
				i+1,
				order.OrderNumber,
				string(order.Status),
				formatReportDateTime(order.CreatedAt, loc),
			)
			pdf.MultiCell(0, 6, headerLine, "", "L", false)

			pdf.SetFont("Arial", "", 10)
			pdf.MultiCell(0, 5, fmt.Sprintf("Table: %s | Payment: %s | Reference: %s",
				safeReportValue(order.TableID), safeReportValue(string(order.PaymentMethod)), safeReportValue(order.PaymentRef)), "", "L", false)
			pdf.MultiCell(0, 5, fmt.Sprintf("Subtotal: %s | Tax: %s | Discount: %s | Total: %s",
				formatMoney(order.Subtotal), formatMoney(order.Tax), formatMoney(order.Discount), formatMoney(order.Total)), "", "L", false)
			if order.RefundedAmount.IsPositive() {
				pdf.MultiCell(0, 5, fmt.Sprintf("Refunded: %s", formatMoney(order.RefundedAmount)), "", "L", false)
			}
			if order.IsMerged {
				pdf.MultiCell(0, 5, safeReportValue(order.MergeNote), "", "L", false)
			}

			for _, item := range order.Items {
				if item.Status == core.ItemStatusCancelled {
					continue
				}
				itemLine := fmt.Sprintf(
					"- %dx %s @ %s = %s",
					item.Quantity,
					safeReportValue(item.Name),
					formatMoney(item.UnitPrice),
					formatMoney(item.LineTotal()),
				)
				pdf.MultiCell(0, 5, itemLine, "", "L", false)
			}

			pdf.CellFormat(0, 1, "", "B", 1, "L", false, 0, "")
			pdf.Ln(1)
		}
	}

	var buffer bytes.Buffer
	if err := pdf.Output(&buffer); err != nil {
		return nil, fmt.Errorf("failed to render PDF: %w", err)
	}

	return buffer.Bytes(), nil
}

func ensurePageSpace(pdf *gofpdf.Fpdf, minSpace float64) {
	_, pageHeight := pdf.GetPageSize()
	_, _, _, bottomMargin := pdf.GetMargins()
	if pdf.GetY()+minSpace > pageHeight-bottomMargin {
		pdf.AddPage()
	}
}

func safeReportValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}

func formatReportDateTime(value time.Time, loc *time.Location) string {
	return value.In(loc).Format("02 Jan 2006 15:04")
}

func formatMoney(amount decimal.Decimal) string {
	return amount.StringFixed(2)
}
