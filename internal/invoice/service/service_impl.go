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
	expensedomain "github.com/mizanlaw/mizan/internal/expense/domain"
	invoicedomain "github.com/mizanlaw/mizan/internal/invoice/domain"
	"github.com/mizanlaw/mizan/internal/lawyerctx"
	"github.com/mizanlaw/mizan/internal/numbering"
	entrydomain "github.com/mizanlaw/mizan/internal/timeentry/domain"
	"github.com/mizanlaw/mizan/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultPaymentTermDays = 30

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

func NewService(p Params) invoicedomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("invoice.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		cfg:      p.Cfg,
		auditSvc: p.AuditSvc,
	}
}

func (s *Service) Create(ctx context.Context, req invoicedomain.CreateInvoiceRequest) (invoicedomain.Invoice, error) {
	lawyerID, ok := lawyerctx.LawyerIDFromContext(ctx)
	if !ok || lawyerID == 0 {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidLawyer
	}
	if len(req.Items) == 0 {
		return invoicedomain.Invoice{}, invoicedomain.ErrNoItems
	}

	vatRate, err := s.vatRate(req.VATRate)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = s.cfg.DefaultCurrency
	}

	now := s.clock.Now()
	invoice := s.newInvoice(lawyerID, req.ClientID, req.CaseID, currency, vatRate, req.DueDate, req.Notes, now)

	items := make([]invoicedomain.InvoiceItem, 0, len(req.Items))
	for _, input := range req.Items {
		description := strings.TrimSpace(input.Description)
		if description == "" || input.Quantity <= 0 || input.UnitPrice < 0 {
			return invoicedomain.Invoice{}, invoicedomain.ErrInvalidItem
		}
		items = append(items, invoicedomain.InvoiceItem{
			ID:          s.genID.Generate(),
			InvoiceID:   invoice.ID,
			Kind:        invoicedomain.ItemKindCustom,
			Description: description,
			Quantity:    input.Quantity,
			UnitPrice:   input.UnitPrice,
			LineTotal:   invoicedomain.LineTotal(input.Quantity, input.UnitPrice),
			CreatedAt:   now,
		})
	}
	applyTotals(&invoice, items)

	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		number, err := numbering.Next(ctx, tx, lawyerID, numbering.DocTypeInvoice, invoice.IssueDate)
		if err != nil {
			return err
		}
		invoice.Number = number
		if err := tx.WithContext(ctx).Create(&invoice).Error; err != nil {
			return err
		}
		return tx.WithContext(ctx).Create(&items).Error
	}); err != nil {
		return invoicedomain.Invoice{}, err
	}
	invoice.Items = items

	targetID := invoice.ID.String()
	_ = s.auditSvc.Log(ctx, &lawyerID, "invoice.create", "invoice", &targetID, map[string]any{
		"number":       invoice.Number,
		"total_amount": invoice.TotalAmount,
	})

	return invoice, nil
}

// CreateFromEntries turns approved ledger rows into invoice lines and
// marks them invoiced inside the same transaction. A rolled-back create
// therefore never leaves entries half-marked.
func (s *Service) CreateFromEntries(ctx context.Context, req invoicedomain.CreateFromEntriesRequest) (invoicedomain.Invoice, error) {
	lawyerID, ok := lawyerctx.LawyerIDFromContext(ctx)
	if !ok || lawyerID == 0 {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidLawyer
	}
	if len(req.TimeEntryIDs) == 0 && len(req.ExpenseIDs) == 0 {
		return invoicedomain.Invoice{}, invoicedomain.ErrNoItems
	}

	entryIDs, err := parseIDs(req.TimeEntryIDs)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	expenseIDs, err := parseIDs(req.ExpenseIDs)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	vatRate, err := s.vatRate(req.VATRate)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	now := s.clock.Now()
	invoice := s.newInvoice(lawyerID, req.ClientID, req.CaseID, "", vatRate, req.DueDate, req.Notes, now)

	var items []invoicedomain.InvoiceItem
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		items = items[:0]

		if len(entryIDs) > 0 {
			var entries []entrydomain.TimeEntry
			if err := tx.WithContext(ctx).Raw(
				`SELECT * FROM time_entries WHERE lawyer_id = ? AND id IN ? FOR UPDATE`,
				lawyerID, entryIDs,
			).Scan(&entries).Error; err != nil {
				return err
			}
			if len(entries) != len(entryIDs) {
				return invoicedomain.ErrEntriesNotBillable
			}
			for _, entry := range entries {
				if entry.Status != entrydomain.EntryStatusApproved || entry.InvoiceID != nil {
					return invoicedomain.ErrEntriesNotBillable
				}
				if invoice.Currency == "" {
					invoice.Currency = entry.Currency
				}
				sourceID := entry.ID
				items = append(items, invoicedomain.InvoiceItem{
					ID:          s.genID.Generate(),
					InvoiceID:   invoice.ID,
					Kind:        invoicedomain.ItemKindTime,
					SourceID:    &sourceID,
					Description: entry.Description,
					Quantity:    float64(entry.DurationMinutes) / 60,
					UnitPrice:   entry.HourlyRate,
					LineTotal:   entry.TotalAmount,
					CreatedAt:   now,
				})
			}

			res := tx.WithContext(ctx).
				Model(&entrydomain.TimeEntry{}).
				Where("lawyer_id = ? AND id IN ? AND status = ? AND invoice_id IS NULL",
					lawyerID, entryIDs, entrydomain.EntryStatusApproved).
				Updates(map[string]any{
					"status":     entrydomain.EntryStatusInvoiced,
					"invoice_id": invoice.ID,
					"updated_at": now,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected != int64(len(entryIDs)) {
				return invoicedomain.ErrEntriesNotBillable
			}
		}

		if len(expenseIDs) > 0 {
			var expenses []expensedomain.ExpenseEntry
			if err := tx.WithContext(ctx).Raw(
				`SELECT * FROM expense_entries WHERE lawyer_id = ? AND id IN ? FOR UPDATE`,
				lawyerID, expenseIDs,
			).Scan(&expenses).Error; err != nil {
				return err
			}
			if len(expenses) != len(expenseIDs) {
				return invoicedomain.ErrEntriesNotBillable
			}
			for _, expense := range expenses {
				if expense.Status != expensedomain.ExpenseStatusApproved || expense.InvoiceID != nil {
					return invoicedomain.ErrEntriesNotBillable
				}
				if invoice.Currency == "" {
					invoice.Currency = expense.Currency
				}
				sourceID := expense.ID
				items = append(items, invoicedomain.InvoiceItem{
					ID:          s.genID.Generate(),
					InvoiceID:   invoice.ID,
					Kind:        invoicedomain.ItemKindExpense,
					SourceID:    &sourceID,
					Description: expense.Description,
					Quantity:    1,
					UnitPrice:   expense.BilledAmount,
					LineTotal:   expense.BilledAmount,
					CreatedAt:   now,
				})
			}

			res := tx.WithContext(ctx).
				Model(&expensedomain.ExpenseEntry{}).
				Where("lawyer_id = ? AND id IN ? AND status = ? AND invoice_id IS NULL",
					lawyerID, expenseIDs, expensedomain.ExpenseStatusApproved).
				Updates(map[string]any{
					"status":     expensedomain.ExpenseStatusInvoiced,
					"invoice_id": invoice.ID,
					"updated_at": now,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected != int64(len(expenseIDs)) {
				return invoicedomain.ErrEntriesNotBillable
			}
		}

		if invoice.Currency == "" {
			invoice.Currency = s.cfg.DefaultCurrency
		}
		applyTotals(&invoice, items)

		number, err := numbering.Next(ctx, tx, lawyerID, numbering.DocTypeInvoice, invoice.IssueDate)
		if err != nil {
			return err
		}
		invoice.Number = number
		if err := tx.WithContext(ctx).Create(&invoice).Error; err != nil {
			return err
		}
		return tx.WithContext(ctx).Create(&items).Error
	})
	if txErr != nil {
		return invoicedomain.Invoice{}, txErr
	}
	invoice.Items = items

	targetID := invoice.ID.String()
	_ = s.auditSvc.Log(ctx, &lawyerID, "invoice.create_from_entries", "invoice", &targetID, map[string]any{
		"number":        invoice.Number,
		"total_amount":  invoice.TotalAmount,
		"time_entries":  len(entryIDs),
		"expense_lines": len(expenseIDs),
	})

	return invoice, nil
}

func (s *Service) Get(ctx context.Context, id string) (invoicedomain.Invoice, error) {
	lawyerID, ok := lawyerctx.LawyerIDFromContext(ctx)
	if !ok || lawyerID == 0 {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidLawyer
	}

	invoice, err := s.getOwned(ctx, lawyerID, id)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	var items []invoicedomain.InvoiceItem
	if err := s.db.WithContext(ctx).
		Where("invoice_id = ?", invoice.ID).
		Order("created_at ASC, id ASC").
		Find(&items).Error; err != nil {
		return invoicedomain.Invoice{}, err
	}
	invoice.Items = items
	return invoice, nil
}

func (s *Service) List(ctx context.Context, req invoicedomain.ListInvoicesRequest) (invoicedomain.ListInvoicesResponse, error) {
	lawyerID, ok := lawyerctx.LawyerIDFromContext(ctx)
	if !ok || lawyerID == 0 {
		return invoicedomain.ListInvoicesResponse{}, invoicedomain.ErrInvalidLawyer
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageSize > 250 {
		pageSize = 250
	}

	stmt := s.db.WithContext(ctx).
		Model(&invoicedomain.Invoice{}).
		Where("lawyer_id = ?", lawyerID)

	if status := strings.TrimSpace(req.Status); status != "" {
		stmt = stmt.Where("status = ?", status)
	}
	if clientID := strings.TrimSpace(req.ClientID); clientID != "" {
		parsed, err := snowflake.ParseString(clientID)
		if err != nil {
			return invoicedomain.ListInvoicesResponse{}, invoicedomain.ErrInvalidID
		}
		stmt = stmt.Where("client_id = ?", parsed)
	}

	if token := strings.TrimSpace(req.PageToken); token != "" {
		decoded, err := pagination.DecodeCursor(token)
		if err != nil {
			return invoicedomain.ListInvoicesResponse{}, invoicedomain.ErrInvalidPageToken
		}
		createdAt, err := time.Parse(time.RFC3339, decoded.CreatedAt)
		if err != nil {
			return invoicedomain.ListInvoicesResponse{}, invoicedomain.ErrInvalidPageToken
		}
		cursorID, err := snowflake.ParseString(strings.TrimSpace(decoded.ID))
		if err != nil || cursorID == 0 {
			return invoicedomain.ListInvoicesResponse{}, invoicedomain.ErrInvalidPageToken
		}
		stmt = stmt.Where("(created_at, id) < (?, ?)", createdAt, cursorID)
	}

	var items []*invoicedomain.Invoice
	if err := stmt.
		Order("created_at DESC, id DESC").
		Limit(pageSize + 1).
		Find(&items).Error; err != nil {
		return invoicedomain.ListInvoicesResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, int32(pageSize), func(item *invoicedomain.Invoice) string {
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

	invoices := make([]invoicedomain.Invoice, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		invoices = append(invoices, *item)
	}

	resp := invoicedomain.ListInvoicesResponse{Invoices: invoices}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

func (s *Service) Update(ctx context.Context, req invoicedomain.UpdateInvoiceRequest) (invoicedomain.Invoice, error) {
	lawyerID, ok := lawyerctx.LawyerIDFromContext(ctx)
	if !ok || lawyerID == 0 {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidLawyer
	}

	invoice, err := s.getOwned(ctx, lawyerID, req.ID)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	if invoice.Status != invoicedomain.InvoiceStatusDraft {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvoiceNotDraft
	}

	updates := map[string]any{}
	if req.DueDate != nil {
		dueDate := req.DueDate.UTC()
		updates["due_date"] = dueDate
		invoice.DueDate = dueDate
	}
	if req.Notes != nil {
		notes := strings.TrimSpace(*req.Notes)
		updates["notes"] = notes
		invoice.Notes = &notes
	}
	if len(updates) == 0 {
		return invoice, nil
	}

	now := s.clock.Now()
	updates["updated_at"] = now
	invoice.UpdatedAt = now

	if err := s.db.WithContext(ctx).
		Model(&invoicedomain.Invoice{}).
		Where("id = ?", invoice.ID).
		Updates(updates).Error; err != nil {
		return invoicedomain.Invoice{}, err
	}

	targetID := invoice.ID.String()
	_ = s.auditSvc.Log(ctx, &lawyerID, "invoice.update", "invoice", &targetID, nil)
	return invoice, nil
}

func (s *Service) Send(ctx context.Context, id string) (invoicedomain.Invoice, error) {
	lawyerID, ok := lawyerctx.LawyerIDFromContext(ctx)
	if !ok || lawyerID == 0 {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidLawyer
	}

	invoice, err := s.getOwned(ctx, lawyerID, id)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	if invoice.Status != invoicedomain.InvoiceStatusDraft {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvoiceNotSendable
	}

	now := s.clock.Now()
	if err := s.db.WithContext(ctx).
		Model(&invoicedomain.Invoice{}).
		Where("id = ?", invoice.ID).
		Updates(map[string]any{
			"status":     invoicedomain.InvoiceStatusSent,
			"sent_at":    now,
			"updated_at": now,
		}).Error; err != nil {
		return invoicedomain.Invoice{}, err
	}
	invoice.Status = invoicedomain.InvoiceStatusSent
	invoice.SentAt = &now
	invoice.UpdatedAt = now

	targetID := invoice.ID.String()
	_ = s.auditSvc.Log(ctx, &lawyerID, "invoice.send", "invoice", &targetID, map[string]any{
		"number": invoice.Number,
	})
	return invoice, nil
}

// Cancel voids a draft or sent invoice with no payments applied and
// releases any ledger rows it had claimed back to approved.
func (s *Service) Cancel(ctx context.Context, id string) (invoicedomain.Invoice, error) {
	lawyerID, ok := lawyerctx.LawyerIDFromContext(ctx)
	if !ok || lawyerID == 0 {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidLawyer
	}

	invoice, err := s.getOwned(ctx, lawyerID, id)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	if invoice.Status != invoicedomain.InvoiceStatusDraft && invoice.Status != invoicedomain.InvoiceStatusSent {
		return invoicedomain.Invoice{}, invoicedomain.ErrNotCancellable
	}
	if invoice.AmountPaid != 0 {
		return invoicedomain.Invoice{}, invoicedomain.ErrNotCancellable
	}

	now := s.clock.Now()
	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.WithContext(ctx).
			Model(&invoicedomain.Invoice{}).
			Where("id = ?", invoice.ID).
			Updates(map[string]any{
				"status":       invoicedomain.InvoiceStatusCancelled,
				"cancelled_at": now,
				"updated_at":   now,
			}).Error; err != nil {
			return err
		}
		if err := tx.WithContext(ctx).
			Model(&entrydomain.TimeEntry{}).
			Where("invoice_id = ?", invoice.ID).
			Updates(map[string]any{
				"status":     entrydomain.EntryStatusApproved,
				"invoice_id": nil,
				"updated_at": now,
			}).Error; err != nil {
			return err
		}
		return tx.WithContext(ctx).
			Model(&expensedomain.ExpenseEntry{}).
			Where("invoice_id = ?", invoice.ID).
			Updates(map[string]any{
				"status":     expensedomain.ExpenseStatusApproved,
				"invoice_id": nil,
				"updated_at": now,
			}).Error
	}); err != nil {
		return invoicedomain.Invoice{}, err
	}
	invoice.Status = invoicedomain.InvoiceStatusCancelled
	invoice.CancelledAt = &now
	invoice.UpdatedAt = now

	targetID := invoice.ID.String()
	_ = s.auditSvc.Log(ctx, &lawyerID, "invoice.cancel", "invoice", &targetID, map[string]any{
		"number": invoice.Number,
	})
	return invoice, nil
}

func (s *Service) newInvoice(lawyerID snowflake.ID, clientID, caseID *snowflake.ID, currency string, vatRate float64, dueDate *time.Time, notes *string, now time.Time) invoicedomain.Invoice {
	due := now.AddDate(0, 0, defaultPaymentTermDays)
	if dueDate != nil {
		due = dueDate.UTC()
	}
	invoice := invoicedomain.Invoice{
		ID:        s.genID.Generate(),
		LawyerID:  lawyerID,
		ClientID:  clientID,
		CaseID:    caseID,
		IssueDate: now,
		DueDate:   due,
		Currency:  currency,
		VATRate:   vatRate,
		Status:    invoicedomain.InvoiceStatusDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if notes != nil {
		trimmed := strings.TrimSpace(*notes)
		invoice.Notes = &trimmed
	}
	return invoice
}

func (s *Service) vatRate(override *float64) (float64, error) {
	rate := s.cfg.DefaultVATRate
	if override != nil {
		rate = *override
	}
	if rate < 0 || rate > 100 {
		return 0, invoicedomain.ErrInvalidVATRate
	}
	return rate, nil
}

func (s *Service) getOwned(ctx context.Context, lawyerID snowflake.ID, id string) (invoicedomain.Invoice, error) {
	invoiceID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || invoiceID == 0 {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidID
	}

	var invoice invoicedomain.Invoice
	if err := s.db.WithContext(ctx).
		Where("id = ? AND lawyer_id = ?", invoiceID, lawyerID).
		First(&invoice).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return invoicedomain.Invoice{}, invoicedomain.ErrInvoiceNotFound
		}
		return invoicedomain.Invoice{}, err
	}
	return invoice, nil
}

func applyTotals(invoice *invoicedomain.Invoice, items []invoicedomain.InvoiceItem) {
	var subtotal int64
	for _, item := range items {
		subtotal += item.LineTotal
	}
	invoice.SubtotalAmount = subtotal
	invoice.VATAmount = invoicedomain.VATAmount(subtotal, invoice.VATRate)
	invoice.TotalAmount = subtotal + invoice.VATAmount
	invoice.BalanceDue = invoice.TotalAmount - invoice.AmountPaid
}

func parseIDs(raw []string) ([]snowflake.ID, error) {
	ids := make([]snowflake.ID, 0, len(raw))
	seen := map[snowflake.ID]bool{}
	for _, value := range raw {
		parsed, err := snowflake.ParseString(strings.TrimSpace(value))
		if err != nil || parsed == 0 {
			return nil, invoicedomain.ErrInvalidID
		}
		if seen[parsed] {
			continue
		}
		seen[parsed] = true
		ids = append(ids, parsed)
	}
	return ids, nil
}
