// Package server wires the HTTP surface: one gin engine, JWT lawyer
// auth, and handlers delegating to the domain services.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	auditdomain "github.com/mizanlaw/mizan/internal/audit/domain"
	ratedomain "github.com/mizanlaw/mizan/internal/billingrate/domain"
	"github.com/mizanlaw/mizan/internal/clock"
	"github.com/mizanlaw/mizan/internal/config"
	expensedomain "github.com/mizanlaw/mizan/internal/expense/domain"
	invoicedomain "github.com/mizanlaw/mizan/internal/invoice/domain"
	"github.com/mizanlaw/mizan/internal/observability"
	obslogger "github.com/mizanlaw/mizan/internal/observability/logger"
	obsmetrics "github.com/mizanlaw/mizan/internal/observability/metrics"
	obstracing "github.com/mizanlaw/mizan/internal/observability/tracing"
	paymentdomain "github.com/mizanlaw/mizan/internal/payment/domain"
	retainerdomain "github.com/mizanlaw/mizan/internal/retainer/domain"
	timeentrydomain "github.com/mizanlaw/mizan/internal/timeentry/domain"
	timerdomain "github.com/mizanlaw/mizan/internal/timer/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{Debug: obsCfg.Debug()}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine      *gin.Engine
	cfg         config.Config
	clock       clock.Clock
	rateSvc     ratedomain.Service
	timerSvc    timerdomain.Service
	entrySvc    timeentrydomain.Service
	expenseSvc  expensedomain.Service
	invoiceSvc  invoicedomain.Service
	paymentSvc  paymentdomain.Service
	retainerSvc retainerdomain.Service
	auditSvc    auditdomain.Service
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	Clock       clock.Clock
	RateSvc     ratedomain.Service
	TimerSvc    timerdomain.Service
	EntrySvc    timeentrydomain.Service
	ExpenseSvc  expensedomain.Service
	InvoiceSvc  invoicedomain.Service
	PaymentSvc  paymentdomain.Service
	RetainerSvc retainerdomain.Service
	AuditSvc    auditdomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		clock:       p.Clock,
		rateSvc:     p.RateSvc,
		timerSvc:    p.TimerSvc,
		entrySvc:    p.EntrySvc,
		expenseSvc:  p.ExpenseSvc,
		invoiceSvc:  p.InvoiceSvc,
		paymentSvc:  p.PaymentSvc,
		retainerSvc: p.RetainerSvc,
		auditSvc:    p.AuditSvc,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", s.AuthRequired())

	// -------- Billing Rates --------
	api.GET("/billing-rates", s.ListBillingRates)
	api.POST("/billing-rates", s.SetBillingRate)
	api.PATCH("/billing-rates/:id", s.UpdateBillingRate)
	api.POST("/billing-rates/standard", s.SetStandardRate)
	api.GET("/billing-rates/applicable", s.GetApplicableRate)

	// -------- Timer --------
	timer := api.Group("/time-tracking/timer")
	timer.POST("/start", s.StartTimer)
	timer.POST("/pause", s.PauseTimer)
	timer.POST("/resume", s.ResumeTimer)
	timer.POST("/stop", s.StopTimer)
	timer.GET("/status", s.TimerStatus)

	// -------- Time Entries --------
	entries := api.Group("/time-tracking/entries")
	entries.GET("", s.ListTimeEntries)
	entries.POST("", s.CreateTimeEntry)
	entries.GET("/:id", s.GetTimeEntry)
	entries.PATCH("/:id", s.UpdateTimeEntry)
	entries.DELETE("/:id", s.DeleteTimeEntry)
	entries.POST("/:id/submit", s.SubmitTimeEntry)
	entries.POST("/:id/approve", s.ApproveTimeEntry)
	entries.POST("/:id/reject", s.RejectTimeEntry)
	entries.GET("/:id/history", s.TimeEntryHistory)

	// -------- Expenses --------
	expenses := api.Group("/expenses")
	expenses.GET("", s.ListExpenses)
	expenses.POST("", s.CreateExpense)
	expenses.GET("/:id", s.GetExpense)
	expenses.PATCH("/:id", s.UpdateExpense)
	expenses.DELETE("/:id", s.DeleteExpense)
	expenses.POST("/:id/approve", s.ApproveExpense)
	expenses.POST("/:id/reject", s.RejectExpense)

	// -------- Invoices --------
	invoices := api.Group("/invoices")
	invoices.GET("", s.ListInvoices)
	invoices.POST("", s.CreateInvoice)
	invoices.POST("/from-entries", s.CreateInvoiceFromEntries)
	invoices.GET("/:id", s.GetInvoice)
	invoices.PATCH("/:id", s.UpdateInvoice)
	invoices.POST("/:id/send", s.SendInvoice)
	invoices.POST("/:id/cancel", s.CancelInvoice)

	// -------- Payments --------
	payments := api.Group("/payments")
	payments.GET("", s.ListPayments)
	payments.POST("", s.CreatePayment)
	payments.GET("/stats", s.PaymentStats)
	payments.GET("/:id", s.GetPayment)
	payments.POST("/:id/complete", s.CompletePayment)
	payments.POST("/:id/fail", s.FailPayment)
	payments.POST("/:id/cancel", s.CancelPayment)
	payments.POST("/:id/refund", s.RefundPayment)

	// -------- Retainers --------
	retainers := api.Group("/retainers")
	retainers.GET("", s.ListRetainers)
	retainers.POST("", s.CreateRetainer)
	retainers.GET("/:id", s.GetRetainer)
	retainers.POST("/:id/consume", s.ConsumeRetainer)
	retainers.POST("/:id/replenish", s.ReplenishRetainer)
	retainers.POST("/:id/refund", s.RefundRetainer)
	retainers.GET("/:id/transactions", s.ListRetainerTransactions)

	// -------- Activity --------
	api.GET("/activity", s.ListActivity)
}
