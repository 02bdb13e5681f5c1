package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/mizanlaw/mizan/internal/audit/domain"
	"github.com/mizanlaw/mizan/internal/clock"
	"github.com/mizanlaw/mizan/internal/config"
	invoicedomain "github.com/mizanlaw/mizan/internal/invoice/domain"
	"github.com/mizanlaw/mizan/internal/lawyerctx"
	"github.com/mizanlaw/mizan/internal/numbering"
	paymentdomain "github.com/mizanlaw/mizan/internal/payment/domain"
	retainerdomain "github.com/mizanlaw/mizan/internal/retainer/domain"
	"github.com/mizanlaw/mizan/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var allowedMethods = map[string]bool{
	"cash":          true,
	"bank_transfer": true,
	"card":          true,
	"cheque":        true,
}

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Cfg      config.Config
	AuditSvc auditdomain.Service
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	cfg      config.Config
	auditSvc auditdomain.Service
}

func NewService(p Params) paymentdomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("payment.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		cfg:      p.Cfg,
		auditSvc: p.AuditSvc,
	}
}

func (s *Service) Create(ctx context.Context, req paymentdomain.CreatePaymentRequest) (paymentdomain.Payment, error) {
	lawyerID, ok := lawyerctx.LawyerIDFromContext(ctx)
	if !ok || lawyerID == 0 {
		return paymentdomain.Payment{}, paymentdomain.ErrInvalidLawyer
	}

	if req.Amount <= 0 {
		return paymentdomain.Payment{}, paymentdomain.ErrInvalidAmount
	}
	method := strings.ToLower(strings.TrimSpace(req.Method))
	if !allowedMethods[method] {
		return paymentdomain.Payment{}, paymentdomain.ErrInvalidMethod
	}

	switch req.TargetType {
	case paymentdomain.TargetTypeInvoice:
		if req.InvoiceID == nil || *req.InvoiceID == 0 {
			return paymentdomain.Payment{}, paymentdomain.ErrInvalidTarget
		}
	case paymentdomain.TargetTypeRetainer:
		if (req.RetainerID == nil || *req.RetainerID == 0) && (req.ClientID == nil || *req.ClientID == 0) {
			return paymentdomain.Payment{}, paymentdomain.ErrInvalidTarget
		}
	default:
		return paymentdomain.Payment{}, paymentdomain.ErrInvalidTarget
	}

	now := s.clock.Now()
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))

	payment := paymentdomain.Payment{
		ID:         s.genID.Generate(),
		LawyerID:   lawyerID,
		ClientID:   req.ClientID,
		TargetType: req.TargetType,
		InvoiceID:  req.InvoiceID,
		RetainerID: req.RetainerID,
		Amount:     req.Amount,
		Currency:   currency,
		Method:     method,
		Status:     paymentdomain.PaymentStatusPending,
		Notes:      req.Notes,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		switch req.TargetType {
		case paymentdomain.TargetTypeInvoice:
			var invoice invoicedomain.Invoice
			err := tx.WithContext(ctx).
				Where("id = ? AND lawyer_id = ?", req.InvoiceID, lawyerID).
				First(&invoice).Error
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return paymentdomain.ErrTargetNotFound
				}
				return err
			}
			if payment.Currency == "" {
				payment.Currency = invoice.Currency
			} else if payment.Currency != invoice.Currency {
				return paymentdomain.ErrCurrencyMismatch
			}
			if payment.ClientID == nil {
				payment.ClientID = invoice.ClientID
			}
		case paymentdomain.TargetTypeRetainer:
			if req.RetainerID != nil && *req.RetainerID != 0 {
				var retainer retainerdomain.Retainer
				err := tx.WithContext(ctx).
					Where("id = ? AND lawyer_id = ?", req.RetainerID, lawyerID).
					First(&retainer).Error
				if err != nil {
					if errors.Is(err, gorm.ErrRecordNotFound) {
						return paymentdomain.ErrTargetNotFound
					}
					return err
				}
				if payment.Currency == "" {
					payment.Currency = retainer.Currency
				} else if payment.Currency != retainer.Currency {
					return paymentdomain.ErrCurrencyMismatch
				}
				if payment.ClientID == nil {
					clientID := retainer.ClientID
					payment.ClientID = &clientID
				}
			}
		}
		if payment.Currency == "" {
			payment.Currency = s.cfg.DefaultCurrency
		}

		number, err := numbering.Next(ctx, tx, lawyerID, numbering.DocTypePayment, now)
		if err != nil {
			return err
		}
		payment.Number = number
		return tx.WithContext(ctx).Create(&payment).Error
	}); err != nil {
		return paymentdomain.Payment{}, err
	}

	targetID := payment.ID.String()
	_ = s.auditSvc.Log(ctx, &lawyerID, "payment.create", "payment", &targetID, map[string]any{
		"number":      payment.Number,
		"amount":      payment.Amount,
		"target_type": string(payment.TargetType),
	})

	return payment, nil
}

func (s *Service) Get(ctx context.Context, id string) (paymentdomain.Payment, error) {
	lawyerID, ok := lawyerctx.LawyerIDFromContext(ctx)
	if !ok || lawyerID == 0 {
		return paymentdomain.Payment{}, paymentdomain.ErrInvalidLawyer
	}

	paymentID, err := parseID(id)
	if err != nil {
		return paymentdomain.Payment{}, err
	}

	var payment paymentdomain.Payment
	if err := s.db.WithContext(ctx).
		Where("id = ? AND lawyer_id = ?", paymentID, lawyerID).
		First(&payment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return paymentdomain.Payment{}, paymentdomain.ErrPaymentNotFound
		}
		return paymentdomain.Payment{}, err
	}
	return payment, nil
}

func (s *Service) List(ctx context.Context, req paymentdomain.ListPaymentsRequest) (paymentdomain.ListPaymentsResponse, error) {
	lawyerID, ok := lawyerctx.LawyerIDFromContext(ctx)
	if !ok || lawyerID == 0 {
		return paymentdomain.ListPaymentsResponse{}, paymentdomain.ErrInvalidLawyer
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageSize > 250 {
		pageSize = 250
	}

	stmt := s.db.WithContext(ctx).
		Model(&paymentdomain.Payment{}).
		Where("lawyer_id = ?", lawyerID)

	if status := strings.TrimSpace(req.Status); status != "" {
		stmt = stmt.Where("status = ?", status)
	}
	if targetType := strings.TrimSpace(req.TargetType); targetType != "" {
		stmt = stmt.Where("target_type = ?", targetType)
	}
	if invoiceID := strings.TrimSpace(req.InvoiceID); invoiceID != "" {
		parsed, err := snowflake.ParseString(invoiceID)
		if err != nil {
			return paymentdomain.ListPaymentsResponse{}, paymentdomain.ErrInvalidID
		}
		stmt = stmt.Where("invoice_id = ?", parsed)
	}

	if token := strings.TrimSpace(req.PageToken); token != "" {
		decoded, err := pagination.DecodeCursor(token)
		if err != nil {
			return paymentdomain.ListPaymentsResponse{}, paymentdomain.ErrInvalidPageToken
		}
		createdAt, err := time.Parse(time.RFC3339, decoded.CreatedAt)
		if err != nil {
			return paymentdomain.ListPaymentsResponse{}, paymentdomain.ErrInvalidPageToken
		}
		cursorID, err := snowflake.ParseString(strings.TrimSpace(decoded.ID))
		if err != nil || cursorID == 0 {
			return paymentdomain.ListPaymentsResponse{}, paymentdomain.ErrInvalidPageToken
		}
		stmt = stmt.Where("(created_at, id) < (?, ?)", createdAt, cursorID)
	}

	var items []*paymentdomain.Payment
	if err := stmt.
		Order("created_at DESC, id DESC").
		Limit(pageSize + 1).
		Find(&items).Error; err != nil {
		return paymentdomain.ListPaymentsResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, int32(pageSize), func(item *paymentdomain.Payment) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        item.ID.String(),
			CreatedAt: item.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > pageSize {
		items = items[:pageSize]
	}

	payments := make([]paymentdomain.Payment, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		payments = append(payments, *item)
	}

	resp := paymentdomain.ListPaymentsResponse{Payments: payments}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

// Complete applies a pending payment: the payment row, the invoice
// balance or the retainer deposit all move in one transaction.
func (s *Service) Complete(ctx context.Context, id string) (paymentdomain.Payment, error) {
	lawyerID, ok := lawyerctx.LawyerIDFromContext(ctx)
	if !ok || lawyerID == 0 {
		return paymentdomain.Payment{}, paymentdomain.ErrInvalidLawyer
	}

	paymentID, err := parseID(id)
	if err != nil {
		return paymentdomain.Payment{}, err
	}

	var payment paymentdomain.Payment
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		loaded, err := s.loadPaymentForUpdate(ctx, tx, lawyerID, paymentID)
		if err != nil {
			return err
		}
		payment = *loaded
		if payment.Status != paymentdomain.PaymentStatusPending {
			return paymentdomain.ErrPaymentNotPending
		}

		now := s.clock.Now()
		switch payment.TargetType {
		case paymentdomain.TargetTypeInvoice:
			if err := s.applyToInvoice(ctx, tx, lawyerID, *payment.InvoiceID, payment.Amount, now); err != nil {
				return err
			}
		case paymentdomain.TargetTypeRetainer:
			retainerID, err := s.applyToRetainer(ctx, tx, lawyerID, &payment, now)
			if err != nil {
				return err
			}
			payment.RetainerID = &retainerID
		}

		payment.Status = paymentdomain.PaymentStatusCompleted
		payment.ProcessedAt = &now
		payment.UpdatedAt = now
		return tx.WithContext(ctx).
			Model(&paymentdomain.Payment{}).
			Where("id = ?", payment.ID).
			Updates(map[string]any{
				"status":       payment.Status,
				"retainer_id":  payment.RetainerID,
				"processed_at": now,
				"updated_at":   now,
			}).Error
	})
	if txErr != nil {
		return paymentdomain.Payment{}, txErr
	}

	targetID := payment.ID.String()
	_ = s.auditSvc.Log(ctx, &lawyerID, "payment.complete", "payment", &targetID, map[string]any{
		"number": payment.Number,
		"amount": payment.Amount,
	})
	return payment, nil
}

func (s *Service) Fail(ctx context.Context, id string, reason string) (paymentdomain.Payment, error) {
	lawyerID, ok := lawyerctx.LawyerIDFromContext(ctx)
	if !ok || lawyerID == 0 {
		return paymentdomain.Payment{}, paymentdomain.ErrInvalidLawyer
	}

	paymentID, err := parseID(id)
	if err != nil {
		return paymentdomain.Payment{}, err
	}
	reason = strings.TrimSpace(reason)

	var payment paymentdomain.Payment
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		loaded, err := s.loadPaymentForUpdate(ctx, tx, lawyerID, paymentID)
		if err != nil {
			return err
		}
		payment = *loaded
		if payment.Status != paymentdomain.PaymentStatusPending {
			return paymentdomain.ErrPaymentNotPending
		}

		now := s.clock.Now()
		payment.Status = paymentdomain.PaymentStatusFailed
		payment.RetryCount++
		payment.UpdatedAt = now
		if reason != "" {
			payment.FailureReason = &reason
		}
		return tx.WithContext(ctx).
			Model(&paymentdomain.Payment{}).
			Where("id = ?", payment.ID).
			Updates(map[string]any{
				"status":         payment.Status,
				"failure_reason": payment.FailureReason,
				"retry_count":    payment.RetryCount,
				"updated_at":     now,
			}).Error
	})
	if txErr != nil {
		return paymentdomain.Payment{}, txErr
	}

	targetID := payment.ID.String()
	_ = s.auditSvc.Log(ctx, &lawyerID, "payment.fail", "payment", &targetID, map[string]any{
		"reason": reason,
	})
	return payment, nil
}

func (s *Service) Cancel(ctx context.Context, id string) (paymentdomain.Payment, error) {
	lawyerID, ok := lawyerctx.LawyerIDFromContext(ctx)
	if !ok || lawyerID == 0 {
		return paymentdomain.Payment{}, paymentdomain.ErrInvalidLawyer
	}

	paymentID, err := parseID(id)
	if err != nil {
		return paymentdomain.Payment{}, err
	}

	var payment paymentdomain.Payment
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		loaded, err := s.loadPaymentForUpdate(ctx, tx, lawyerID, paymentID)
		if err != nil {
			return err
		}
		payment = *loaded
		if payment.Status != paymentdomain.PaymentStatusPending {
			return paymentdomain.ErrPaymentNotPending
		}

		now := s.clock.Now()
		payment.Status = paymentdomain.PaymentStatusCancelled
		payment.UpdatedAt = now
		return tx.WithContext(ctx).
			Model(&paymentdomain.Payment{}).
			Where("id = ?", payment.ID).
			Updates(map[string]any{"status": payment.Status, "updated_at": now}).Error
	})
	if txErr != nil {
		return paymentdomain.Payment{}, txErr
	}

	targetID := payment.ID.String()
	_ = s.auditSvc.Log(ctx, &lawyerID, "payment.cancel", "payment", &targetID, nil)
	return payment, nil
}

// Refund reverses up to the full amount of a completed payment exactly
// once. The refund row, the original's terminal status and the target
// reversal (invoice balance demotion or retainer debit) commit together
// or not at all.
func (s *Service) Refund(ctx context.Context, req paymentdomain.RefundRequest) (paymentdomain.Payment, error) {
	lawyerID, ok := lawyerctx.LawyerIDFromContext(ctx)
	if !ok || lawyerID == 0 {
		return paymentdomain.Payment{}, paymentdomain.ErrInvalidLawyer
	}

	paymentID, err := parseID(req.PaymentID)
	if err != nil {
		return paymentdomain.Payment{}, err
	}

	var refund paymentdomain.Payment
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		original, err := s.loadPaymentForUpdate(ctx, tx, lawyerID, paymentID)
		if err != nil {
			return err
		}
		if original.Status != paymentdomain.PaymentStatusCompleted || original.IsRefund {
			return paymentdomain.ErrNotRefundable
		}

		amount := original.Amount
		if req.Amount != nil {
			amount = *req.Amount
		}
		if amount <= 0 {
			return paymentdomain.ErrInvalidAmount
		}
		if amount > original.Amount {
			return paymentdomain.ErrRefundTooLarge
		}

		now := s.clock.Now()
		number, err := numbering.Next(ctx, tx, lawyerID, numbering.DocTypePayment, now)
		if err != nil {
			return err
		}

		originalID := original.ID
		refund = paymentdomain.Payment{
			ID:                s.genID.Generate(),
			Number:            number,
			LawyerID:          lawyerID,
			ClientID:          original.ClientID,
			TargetType:        original.TargetType,
			InvoiceID:         original.InvoiceID,
			RetainerID:        original.RetainerID,
			Amount:            -amount,
			Currency:          original.Currency,
			Method:            original.Method,
			Status:            paymentdomain.PaymentStatusCompleted,
			IsRefund:          true,
			OriginalPaymentID: &originalID,
			ProcessedAt:       &now,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if reason := strings.TrimSpace(req.Reason); reason != "" {
			refund.Notes = &reason
		}
		if err := tx.WithContext(ctx).Create(&refund).Error; err != nil {
			return err
		}

		if err := tx.WithContext(ctx).
			Model(&paymentdomain.Payment{}).
			Where("id = ?", original.ID).
			Updates(map[string]any{
				"status":     paymentdomain.PaymentStatusRefunded,
				"updated_at": now,
			}).Error; err != nil {
			return err
		}

		switch {
		case original.TargetType == paymentdomain.TargetTypeInvoice && original.InvoiceID != nil:
			return s.applyToInvoice(ctx, tx, lawyerID, *original.InvoiceID, -amount, now)
		case original.TargetType == paymentdomain.TargetTypeRetainer && original.RetainerID != nil:
			return s.applyRetainerRefund(ctx, tx, lawyerID, *original.RetainerID, refund.ID, amount, now)
		}
		return nil
	})
	if txErr != nil {
		return paymentdomain.Payment{}, txErr
	}

	targetID := refund.ID.String()
	_ = s.auditSvc.Log(ctx, &lawyerID, "payment.refund", "payment", &targetID, map[string]any{
		"number":   refund.Number,
		"amount":   refund.Amount,
		"original": paymentID.String(),
	})
	return refund, nil
}

func (s *Service) GetStats(ctx context.Context, req paymentdomain.StatsRequest) (paymentdomain.Stats, error) {
	lawyerID, ok := lawyerctx.LawyerIDFromContext(ctx)
	if !ok || lawyerID == 0 {
		return paymentdomain.Stats{}, paymentdomain.ErrInvalidLawyer
	}

	stmt := s.db.WithContext(ctx).
		Model(&paymentdomain.Payment{}).
		Where("lawyer_id = ?", lawyerID)
	if req.StartAt != nil {
		stmt = stmt.Where("created_at >= ?", req.StartAt.UTC())
	}
	if req.EndAt != nil {
		stmt = stmt.Where("created_at <= ?", req.EndAt.UTC())
	}

	var stats paymentdomain.Stats
	err := stmt.Select(`
		COALESCE(SUM(CASE WHEN status IN ('completed', 'refunded') THEN amount ELSE 0 END), 0) AS total_collected,
		COALESCE(SUM(CASE WHEN status = 'pending' THEN amount ELSE 0 END), 0) AS total_pending,
		COALESCE(SUM(CASE WHEN is_refund THEN -amount ELSE 0 END), 0) AS total_refunded,
		COALESCE(SUM(CASE WHEN status IN ('completed', 'refunded') AND NOT is_refund THEN 1 ELSE 0 END), 0) AS completed_count,
		COALESCE(SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END), 0) AS pending_count,
		COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0) AS failed_count,
		COALESCE(SUM(CASE WHEN is_refund THEN 1 ELSE 0 END), 0) AS refund_count`).
		Scan(&stats).Error
	if err != nil {
		return paymentdomain.Stats{}, err
	}
	return stats, nil
}

func (s *Service) loadPaymentForUpdate(ctx context.Context, tx *gorm.DB, lawyerID, paymentID snowflake.ID) (*paymentdomain.Payment, error) {
	var payment paymentdomain.Payment
	err := tx.WithContext(ctx).Raw(
		`SELECT * FROM payments WHERE id = ? AND lawyer_id = ? FOR UPDATE`,
		paymentID, lawyerID,
	).Scan(&payment).Error
	if err != nil {
		return nil, err
	}
	if payment.ID == 0 {
		return nil, paymentdomain.ErrPaymentNotFound
	}
	return &payment, nil
}

// applyToInvoice moves an invoice's paid amount by delta (negative for
// refunds) and recomputes balance and status under a row lock.
func (s *Service) applyToInvoice(ctx context.Context, tx *gorm.DB, lawyerID, invoiceID snowflake.ID, delta int64, now time.Time) error {
	var invoice invoicedomain.Invoice
	err := tx.WithContext(ctx).Raw(
		`SELECT * FROM invoices WHERE id = ? AND lawyer_id = ? FOR UPDATE`,
		invoiceID, lawyerID,
	).Scan(&invoice).Error
	if err != nil {
		return err
	}
	if invoice.ID == 0 {
		return paymentdomain.ErrTargetNotFound
	}
	if delta > 0 && (invoice.Status == invoicedomain.InvoiceStatusCancelled || invoice.CancelledAt != nil) {
		return paymentdomain.ErrTargetNotPayable
	}

	invoice.AmountPaid += delta
	if invoice.AmountPaid < 0 {
		invoice.AmountPaid = 0
	}
	invoice.BalanceDue = invoice.TotalAmount - invoice.AmountPaid
	invoice.Status = invoicedomain.ComputeStatus(invoice, now)

	return tx.WithContext(ctx).
		Model(&invoicedomain.Invoice{}).
		Where("id = ?", invoice.ID).
		Updates(map[string]any{
			"amount_paid": invoice.AmountPaid,
			"balance_due": invoice.BalanceDue,
			"status":      invoice.Status,
			"updated_at":  now,
		}).Error
}

// applyToRetainer credits a retainer top-up. The target is the payment's
// explicit retainer when given, otherwise the client's most recent
// active or depleted retainer.
func (s *Service) applyToRetainer(ctx context.Context, tx *gorm.DB, lawyerID snowflake.ID, payment *paymentdomain.Payment, now time.Time) (snowflake.ID, error) {
	var retainer retainerdomain.Retainer
	var err error
	if payment.RetainerID != nil && *payment.RetainerID != 0 {
		err = tx.WithContext(ctx).Raw(
			`SELECT * FROM retainers WHERE id = ? AND lawyer_id = ? FOR UPDATE`,
			payment.RetainerID, lawyerID,
		).Scan(&retainer).Error
	} else {
		err = tx.WithContext(ctx).Raw(
			`SELECT * FROM retainers
			 WHERE lawyer_id = ? AND client_id = ? AND status IN ('active', 'depleted')
			 ORDER BY created_at DESC
			 LIMIT 1
			 FOR UPDATE`,
			lawyerID, payment.ClientID,
		).Scan(&retainer).Error
	}
	if err != nil {
		return 0, err
	}
	if retainer.ID == 0 {
		return 0, paymentdomain.ErrTargetNotFound
	}

	retainerdomain.ApplyDeposit(&retainer, payment.Amount)
	if err := tx.WithContext(ctx).
		Model(&retainerdomain.Retainer{}).
		Where("id = ?", retainer.ID).
		Updates(map[string]any{
			"current_balance":        retainer.CurrentBalance,
			"status":                 retainer.Status,
			"low_balance_alert_sent": retainer.LowBalanceAlertSent,
			"updated_at":             now,
		}).Error; err != nil {
		return 0, err
	}

	paymentID := payment.ID
	movement := retainerdomain.RetainerTransaction{
		ID:           s.genID.Generate(),
		RetainerID:   retainer.ID,
		Kind:         retainerdomain.TransactionKindDeposit,
		Amount:       payment.Amount,
		BalanceAfter: retainer.CurrentBalance,
		PaymentID:    &paymentID,
		CreatedAt:    now,
	}
	if err := tx.WithContext(ctx).Create(&movement).Error; err != nil {
		return 0, err
	}
	return retainer.ID, nil
}

// applyRetainerRefund debits a refunded top-up back out of the retainer
// balance. Money already consumed cannot be clawed back, so a refund
// larger than the remaining balance fails the whole transaction.
func (s *Service) applyRetainerRefund(ctx context.Context, tx *gorm.DB, lawyerID, retainerID, refundID snowflake.ID, amount int64, now time.Time) error {
	var retainer retainerdomain.Retainer
	err := tx.WithContext(ctx).Raw(
		`SELECT * FROM retainers WHERE id = ? AND lawyer_id = ? FOR UPDATE`,
		retainerID, lawyerID,
	).Scan(&retainer).Error
	if err != nil {
		return err
	}
	if retainer.ID == 0 {
		return paymentdomain.ErrTargetNotFound
	}

	if _, err := retainerdomain.ApplyConsumption(&retainer, amount); err != nil {
		return err
	}
	if err := tx.WithContext(ctx).
		Model(&retainerdomain.Retainer{}).
		Where("id = ?", retainer.ID).
		Updates(map[string]any{
			"current_balance":        retainer.CurrentBalance,
			"status":                 retainer.Status,
			"low_balance_alert_sent": retainer.LowBalanceAlertSent,
			"updated_at":             now,
		}).Error; err != nil {
		return err
	}

	movement := retainerdomain.RetainerTransaction{
		ID:           s.genID.Generate(),
		RetainerID:   retainer.ID,
		Kind:         retainerdomain.TransactionKindRefund,
		Amount:       -amount,
		BalanceAfter: retainer.CurrentBalance,
		PaymentID:    &refundID,
		CreatedAt:    now,
	}
	return tx.WithContext(ctx).Create(&movement).Error
}

func parseID(id string) (snowflake.ID, error) {
	parsed, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || parsed == 0 {
		return 0, paymentdomain.ErrInvalidID
	}
	return parsed, nil
}
