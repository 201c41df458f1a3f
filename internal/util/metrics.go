package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Total number of orders created",
	})

	OrdersApprovedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_approved_total",
		Help: "Total number of orders approved",
	})

	OrdersRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_rejected_total",
		Help: "Total number of orders rejected",
	})

	ApprovalsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_approvals_failed_total",
		Help: "Total number of failed order approvals",
	}, []string{"reason"})

	ApprovalsNeedingReconciliation = promauto.NewCounter(prometheus.CounterOpts{
		Name: "order_approvals_reconciliation_required_total",
		Help: "Approvals that failed after committing stock deductions",
	})

	ApprovalLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "order_approval_latency_seconds",
		Help:    "Latency of order approvals",
		Buckets: prometheus.DefBuckets,
	})

	StockUnitsMovedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_units_moved_total",
		Help: "Units moved through the stock ledger",
	}, []string{"direction"})

	StockDeductionsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stock_deductions_rejected_total",
		Help: "Deductions refused for insufficient stock",
	})

	ProductStockLevel = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "product_stock_level",
		Help: "Last observed stock level of products at or below their reorder level",
	}, []string{"product_id"})

	JournalSetsPostedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "journal_sets_posted_total",
		Help: "Balanced journal entry sets posted",
	})

	JournalSetsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "journal_sets_rejected_total",
		Help: "Journal entry sets refused before writing",
	}, []string{"reason"})

	SequenceAllocationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sequence_allocations_total",
		Help: "Document numbers allocated per series",
	}, []string{"series"})

	InvoicesIssuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "invoices_issued_total",
		Help: "Total number of invoices issued",
	})

	InvoicesPaidTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "invoices_paid_total",
		Help: "Total number of invoices settled in full",
	})

	PaymentsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "invoice_payments_rejected_total",
		Help: "Invoice payments refused",
	}, []string{"reason"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
