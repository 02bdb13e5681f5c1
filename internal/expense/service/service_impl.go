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
	"github.com/mizanlaw/mizan/internal/lawyerctx"
	"github.com/mizanlaw/mizan/internal/numbering"
	"github.com/mizanlaw/mizan/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

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

func NewService(p Params) expensedomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("expense.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		cfg:      p.Cfg,
		auditSvc: p.AuditSvc,
	}
}

func (s *Service) Create(ctx context.Context, req expensedomain.CreateExpenseRequest) (expensedomain.ExpenseEntry, error) {
	lawyerID, ok := lawyerctx.LawyerIDFromContext(ctx)
	if !ok || lawyerID == 0 {
		return expensedomain.ExpenseEntry{}, expensedomain.ErrInvalidLawyer
	}

	description := strings.TrimSpace(req.Description)
	if description == "" {
		return expensedomain.ExpenseEntry{}, expensedomain.ErrInvalidDescription
	}
	if req.Amount <= 0 {
		return expensedomain.ExpenseEntry{}, expensedomain.ErrInvalidAmount
	}
	if req.MarkupPercent < 0 || req.MarkupPercent > 100 {
		return expensedomain.ExpenseEntry{}, expensedomain.ErrInvalidMarkup
	}

	now := s.clock.Now()
	expenseDate := now
	if req.ExpenseDate != nil {
		expenseDate = req.ExpenseDate.UTC()
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = s.cfg.DefaultCurrency
	}
	billable := true
	if req.IsBillable != nil {
		billable = *req.IsBillable
	}

	expense := expensedomain.ExpenseEntry{
		ID:            s.genID.Generate(),
		LawyerID:      lawyerID,
		ClientID:      req.ClientID,
		CaseID:        req.CaseID,
		Description:   description,
		ExpenseDate:   expenseDate,
		Amount:        req.Amount,
		MarkupPercent: req.MarkupPercent,
		BilledAmount:  expensedomain.Billed(req.Amount, req.MarkupPercent),
		Currency:      currency,
		IsBillable:    billable,
		ReceiptURL:    req.ReceiptURL,
		Status:        expensedomain.ExpenseStatusDraft,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		number, err := numbering.Next(ctx, tx, lawyerID, numbering.DocTypeExpense, expenseDate)
		if err != nil {
			return err
		}
		expense.Number = number
		return tx.WithContext(ctx).Create(&expense).Error
	}); err != nil {
		return expensedomain.ExpenseEntry{}, err
	}

	targetID := expense.ID.String()
	_ = s.auditSvc.Log(ctx, &lawyerID, "expense.create", "expense_entry", &targetID, map[string]any{
		"number":        expense.Number,
		"amount":        expense.Amount,
		"billed_amount": expense.BilledAmount,
	})

	return expense, nil
}

func (s *Service) Get(ctx context.Context, id string) (expensedomain.ExpenseEntry, error) {
	lawyerID, ok := lawyerctx.LawyerIDFromContext(ctx)
	if !ok || lawyerID == 0 {
		return expensedomain.ExpenseEntry{}, expensedomain.ErrInvalidLawyer
	}
	return s.getOwned(ctx, lawyerID, id)
}

func (s *Service) List(ctx context.Context, req expensedomain.ListExpensesRequest) (expensedomain.ListExpensesResponse, error) {
	lawyerID, ok := lawyerctx.LawyerIDFromContext(ctx)
	if !ok || lawyerID == 0 {
		return expensedomain.ListExpensesResponse{}, expensedomain.ErrInvalidLawyer
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageSize > 250 {
		pageSize = 250
	}

	stmt := s.db.WithContext(ctx).
		Model(&expensedomain.ExpenseEntry{}).
		Where("lawyer_id = ?", lawyerID)

	if status := strings.TrimSpace(req.Status); status != "" {
		stmt = stmt.Where("status = ?", status)
	}
	if clientID := strings.TrimSpace(req.ClientID); clientID != "" {
		parsed, err := snowflake.ParseString(clientID)
		if err != nil {
			return expensedomain.ListExpensesResponse{}, expensedomain.ErrInvalidID
		}
		stmt = stmt.Where("client_id = ?", parsed)
	}
	if caseID := strings.TrimSpace(req.CaseID); caseID != "" {
		parsed, err := snowflake.ParseString(caseID)
		if err != nil {
			return expensedomain.ListExpensesResponse{}, expensedomain.ErrInvalidID
		}
		stmt = stmt.Where("case_id = ?", parsed)
	}
	if req.StartAt != nil {
		stmt = stmt.Where("expense_date >= ?", req.StartAt.UTC())
	}
	if req.EndAt != nil {
		stmt = stmt.Where("expense_date <= ?", req.EndAt.UTC())
	}

	if token := strings.TrimSpace(req.PageToken); token != "" {
		decoded, err := pagination.DecodeCursor(token)
		if err != nil {
			return expensedomain.ListExpensesResponse{}, expensedomain.ErrInvalidPageToken
		}
		createdAt, err := time.Parse(time.RFC3339, decoded.CreatedAt)
		if err != nil {
			return expensedomain.ListExpensesResponse{}, expensedomain.ErrInvalidPageToken
		}
		cursorID, err := snowflake.ParseString(strings.TrimSpace(decoded.ID))
		if err != nil || cursorID == 0 {
			return expensedomain.ListExpensesResponse{}, expensedomain.ErrInvalidPageToken
		}
		stmt = stmt.Where("(created_at, id) < (?, ?)", createdAt, cursorID)
	}

	var items []*expensedomain.ExpenseEntry
	if err := stmt.
		Order("created_at DESC, id DESC").
		Limit(pageSize + 1).
		Find(&items).Error; err != nil {
		return expensedomain.ListExpensesResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, int32(pageSize), func(item *expensedomain.ExpenseEntry) string {
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

	expenses := make([]expensedomain.ExpenseEntry, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		expenses = append(expenses, *item)
	}

	resp := expensedomain.ListExpensesResponse{Expenses: expenses}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

func (s *Service) Update(ctx context.Context, req expensedomain.UpdateExpenseRequest) (expensedomain.ExpenseEntry, error) {
	lawyerID, ok := lawyerctx.LawyerIDFromContext(ctx)
	if !ok || lawyerID == 0 {
		return expensedomain.ExpenseEntry{}, expensedomain.ErrInvalidLawyer
	}

	expense, err := s.getOwned(ctx, lawyerID, req.ID)
	if err != nil {
		return expensedomain.ExpenseEntry{}, err
	}
	if err := guardMutable(expense); err != nil {
		return expensedomain.ExpenseEntry{}, err
	}

	updates := map[string]any{}
	if req.Description != nil {
		description := strings.TrimSpace(*req.Description)
		if description == "" {
			return expensedomain.ExpenseEntry{}, expensedomain.ErrInvalidDescription
		}
		updates["description"] = description
		expense.Description = description
	}
	if req.ExpenseDate != nil {
		expenseDate := req.ExpenseDate.UTC()
		updates["expense_date"] = expenseDate
		expense.ExpenseDate = expenseDate
	}
	if req.Amount != nil {
		if *req.Amount <= 0 {
			return expensedomain.ExpenseEntry{}, expensedomain.ErrInvalidAmount
		}
		updates["amount"] = *req.Amount
		expense.Amount = *req.Amount
	}
	if req.MarkupPercent != nil {
		if *req.MarkupPercent < 0 || *req.MarkupPercent > 100 {
			return expensedomain.ExpenseEntry{}, expensedomain.ErrInvalidMarkup
		}
		updates["markup_percent"] = *req.MarkupPercent
		expense.MarkupPercent = *req.MarkupPercent
	}
	if req.IsBillable != nil {
		updates["is_billable"] = *req.IsBillable
		expense.IsBillable = *req.IsBillable
	}
	if req.ReceiptURL != nil {
		updates["receipt_url"] = strings.TrimSpace(*req.ReceiptURL)
		expense.ReceiptURL = req.ReceiptURL
	}

	if len(updates) == 0 {
		return expense, nil
	}

	_, amountChanged := updates["amount"]
	_, markupChanged := updates["markup_percent"]
	if amountChanged || markupChanged {
		expense.BilledAmount = expensedomain.Billed(expense.Amount, expense.MarkupPercent)
		updates["billed_amount"] = expense.BilledAmount
	}

	now := s.clock.Now()
	updates["updated_at"] = now
	expense.UpdatedAt = now

	if err := s.db.WithContext(ctx).
		Model(&expensedomain.ExpenseEntry{}).
		Where("id = ?", expense.ID).
		Updates(updates).Error; err != nil {
		return expensedomain.ExpenseEntry{}, err
	}

	targetID := expense.ID.String()
	_ = s.auditSvc.Log(ctx, &lawyerID, "expense.update", "expense_entry", &targetID, map[string]any{
		"billed_amount": expense.BilledAmount,
	})

	return expense, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	lawyerID, ok := lawyerctx.LawyerIDFromContext(ctx)
	if !ok || lawyerID == 0 {
		return expensedomain.ErrInvalidLawyer
	}

	expense, err := s.getOwned(ctx, lawyerID, id)
	if err != nil {
		return err
	}
	if err := guardMutable(expense); err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).
		Where("id = ?", expense.ID).
		Delete(&expensedomain.ExpenseEntry{}).Error; err != nil {
		return err
	}

	targetID := expense.ID.String()
	_ = s.auditSvc.Log(ctx, &lawyerID, "expense.delete", "expense_entry", &targetID, map[string]any{
		"number": expense.Number,
	})
	return nil
}

func (s *Service) Approve(ctx context.Context, id string) (expensedomain.ExpenseEntry, error) {
	lawyerID, ok := lawyerctx.LawyerIDFromContext(ctx)
	if !ok || lawyerID == 0 {
		return expensedomain.ExpenseEntry{}, expensedomain.ErrInvalidLawyer
	}

	expense, err := s.getOwned(ctx, lawyerID, id)
	if err != nil {
		return expensedomain.ExpenseEntry{}, err
	}
	if err := guardMutable(expense); err != nil {
		return expensedomain.ExpenseEntry{}, err
	}

	now := s.clock.Now()
	if err := s.db.WithContext(ctx).
		Model(&expensedomain.ExpenseEntry{}).
		Where("id = ?", expense.ID).
		Updates(map[string]any{
			"status":      expensedomain.ExpenseStatusApproved,
			"approved_by": lawyerID,
			"approved_at": now,
			"updated_at":  now,
		}).Error; err != nil {
		return expensedomain.ExpenseEntry{}, err
	}
	expense.Status = expensedomain.ExpenseStatusApproved
	expense.ApprovedBy = &lawyerID
	expense.ApprovedAt = &now
	expense.UpdatedAt = now

	targetID := expense.ID.String()
	_ = s.auditSvc.Log(ctx, &lawyerID, "expense.approve", "expense_entry", &targetID, map[string]any{
		"billed_amount": expense.BilledAmount,
	})
	return expense, nil
}

func (s *Service) Reject(ctx context.Context, id string, reason string) (expensedomain.ExpenseEntry, error) {
	lawyerID, ok := lawyerctx.LawyerIDFromContext(ctx)
	if !ok || lawyerID == 0 {
		return expensedomain.ExpenseEntry{}, expensedomain.ErrInvalidLawyer
	}

	reason = strings.TrimSpace(reason)
	if reason == "" {
		return expensedomain.ExpenseEntry{}, expensedomain.ErrReasonRequired
	}

	expense, err := s.getOwned(ctx, lawyerID, id)
	if err != nil {
		return expensedomain.ExpenseEntry{}, err
	}
	// Approval is revocable until invoicing, same as time entries.
	if expense.InvoiceID != nil || expense.Status == expensedomain.ExpenseStatusInvoiced {
		return expensedomain.ExpenseEntry{}, expensedomain.ErrExpenseInvoiced
	}

	now := s.clock.Now()
	if err := s.db.WithContext(ctx).
		Model(&expensedomain.ExpenseEntry{}).
		Where("id = ?", expense.ID).
		Updates(map[string]any{
			"status":           expensedomain.ExpenseStatusRejected,
			"rejection_reason": reason,
			"approved_by":      nil,
			"approved_at":      nil,
			"updated_at":       now,
		}).Error; err != nil {
		return expensedomain.ExpenseEntry{}, err
	}
	expense.Status = expensedomain.ExpenseStatusRejected
	expense.RejectionReason = &reason
	expense.ApprovedBy = nil
	expense.ApprovedAt = nil
	expense.UpdatedAt = now

	targetID := expense.ID.String()
	_ = s.auditSvc.Log(ctx, &lawyerID, "expense.reject", "expense_entry", &targetID, map[string]any{
		"reason": reason,
	})
	return expense, nil
}

func (s *Service) getOwned(ctx context.Context, lawyerID snowflake.ID, id string) (expensedomain.ExpenseEntry, error) {
	expenseID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || expenseID == 0 {
		return expensedomain.ExpenseEntry{}, expensedomain.ErrInvalidID
	}

	var expense expensedomain.ExpenseEntry
	if err := s.db.WithContext(ctx).
		Where("id = ? AND lawyer_id = ?", expenseID, lawyerID).
		First(&expense).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return expensedomain.ExpenseEntry{}, expensedomain.ErrExpenseNotFound
		}
		return expensedomain.ExpenseEntry{}, err
	}
	return expense, nil
}

func guardMutable(expense expensedomain.ExpenseEntry) error {
	if expense.InvoiceID != nil || expense.Status == expensedomain.ExpenseStatusInvoiced {
		return expensedomain.ErrExpenseInvoiced
	}
	if expense.Status == expensedomain.ExpenseStatusApproved {
		return expensedomain.ErrExpenseApproved
	}
	return nil
}
