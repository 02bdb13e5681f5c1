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
	"github.com/mizanlaw/mizan/internal/lawyerctx"
	"github.com/mizanlaw/mizan/internal/numbering"
	retainerdomain "github.com/mizanlaw/mizan/internal/retainer/domain"
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

func NewService(p Params) retainerdomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("retainer.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		cfg:      p.Cfg,
		auditSvc: p.AuditSvc,
	}
}

func (s *Service) Create(ctx context.Context, req retainerdomain.CreateRetainerRequest) (retainerdomain.Retainer, error) {
	lawyerID, ok := lawyerctx.LawyerIDFromContext(ctx)
	if !ok || lawyerID == 0 {
		return retainerdomain.Retainer{}, retainerdomain.ErrInvalidLawyer
	}

	if req.ClientID == nil || *req.ClientID == 0 {
		return retainerdomain.Retainer{}, retainerdomain.ErrInvalidClient
	}
	if req.InitialAmount <= 0 {
		return retainerdomain.Retainer{}, retainerdomain.ErrInvalidAmount
	}
	if req.MinimumBalance < 0 || req.MinimumBalance > req.InitialAmount {
		return retainerdomain.Retainer{}, retainerdomain.ErrInvalidMinimum
	}

	now := s.clock.Now()
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = s.cfg.DefaultCurrency
	}

	retainer := retainerdomain.Retainer{
		ID:             s.genID.Generate(),
		LawyerID:       lawyerID,
		ClientID:       *req.ClientID,
		CaseID:         req.CaseID,
		InitialAmount:  req.InitialAmount,
		CurrentBalance: req.InitialAmount,
		MinimumBalance: req.MinimumBalance,
		Currency:       currency,
		Status:         retainerdomain.RetainerStatusActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		number, err := numbering.Next(ctx, tx, lawyerID, numbering.DocTypeRetainer, now)
		if err != nil {
			return err
		}
		retainer.Number = number
		if err := tx.WithContext(ctx).Create(&retainer).Error; err != nil {
			return err
		}

		// The opening deposit is a ledger row like any other movement.
		opening := retainerdomain.RetainerTransaction{
			ID:           s.genID.Generate(),
			RetainerID:   retainer.ID,
			Kind:         retainerdomain.TransactionKindDeposit,
			Amount:       req.InitialAmount,
			BalanceAfter: retainer.CurrentBalance,
			CreatedAt:    now,
		}
		return tx.WithContext(ctx).Create(&opening).Error
	}); err != nil {
		return retainerdomain.Retainer{}, err
	}

	targetID := retainer.ID.String()
	_ = s.auditSvc.Log(ctx, &lawyerID, "retainer.create", "retainer", &targetID, map[string]any{
		"number":         retainer.Number,
		"initial_amount": retainer.InitialAmount,
	})

	return retainer, nil
}

func (s *Service) Get(ctx context.Context, id string) (retainerdomain.Retainer, error) {
	lawyerID, ok := lawyerctx.LawyerIDFromContext(ctx)
	if !ok || lawyerID == 0 {
		return retainerdomain.Retainer{}, retainerdomain.ErrInvalidLawyer
	}
	return s.getOwned(ctx, lawyerID, id)
}

func (s *Service) List(ctx context.Context, req retainerdomain.ListRetainersRequest) (retainerdomain.ListRetainersResponse, error) {
	lawyerID, ok := lawyerctx.LawyerIDFromContext(ctx)
	if !ok || lawyerID == 0 {
		return retainerdomain.ListRetainersResponse{}, retainerdomain.ErrInvalidLawyer
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageSize > 250 {
		pageSize = 250
	}

	stmt := s.db.WithContext(ctx).
		Model(&retainerdomain.Retainer{}).
		Where("lawyer_id = ?", lawyerID)

	if status := strings.TrimSpace(req.Status); status != "" {
		stmt = stmt.Where("status = ?", status)
	}
	if clientID := strings.TrimSpace(req.ClientID); clientID != "" {
		parsed, err := snowflake.ParseString(clientID)
		if err != nil {
			return retainerdomain.ListRetainersResponse{}, retainerdomain.ErrInvalidID
		}
		stmt = stmt.Where("client_id = ?", parsed)
	}

	if token := strings.TrimSpace(req.PageToken); token != "" {
		decoded, err := pagination.DecodeCursor(token)
		if err != nil {
			return retainerdomain.ListRetainersResponse{}, retainerdomain.ErrInvalidPageToken
		}
		createdAt, err := time.Parse(time.RFC3339, decoded.CreatedAt)
		if err != nil {
			return retainerdomain.ListRetainersResponse{}, retainerdomain.ErrInvalidPageToken
		}
		cursorID, err := snowflake.ParseString(strings.TrimSpace(decoded.ID))
		if err != nil || cursorID == 0 {
			return retainerdomain.ListRetainersResponse{}, retainerdomain.ErrInvalidPageToken
		}
		stmt = stmt.Where("(created_at, id) < (?, ?)", createdAt, cursorID)
	}

	var items []*retainerdomain.Retainer
	if err := stmt.
		Order("created_at DESC, id DESC").
		Limit(pageSize + 1).
		Find(&items).Error; err != nil {
		return retainerdomain.ListRetainersResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, int32(pageSize), func(item *retainerdomain.Retainer) string {
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

	retainers := make([]retainerdomain.Retainer, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		retainers = append(retainers, *item)
	}

	resp := retainerdomain.ListRetainersResponse{Retainers: retainers}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

// Consume debits the balance under a row lock. The balance never goes
// negative; a debit larger than the remaining funds is rejected whole.
func (s *Service) Consume(ctx context.Context, req retainerdomain.ConsumeRequest) (retainerdomain.ConsumeResult, error) {
	lawyerID, ok := lawyerctx.LawyerIDFromContext(ctx)
	if !ok || lawyerID == 0 {
		return retainerdomain.ConsumeResult{}, retainerdomain.ErrInvalidLawyer
	}

	retainerID, err := parseID(req.RetainerID)
	if err != nil {
		return retainerdomain.ConsumeResult{}, err
	}
	if req.Amount <= 0 {
		return retainerdomain.ConsumeResult{}, retainerdomain.ErrInvalidAmount
	}

	var result retainerdomain.ConsumeResult
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		retainer, err := s.loadForUpdate(ctx, tx, lawyerID, retainerID)
		if err != nil {
			return err
		}
		if retainer.Status != retainerdomain.RetainerStatusActive {
			if retainer.Status == retainerdomain.RetainerStatusDepleted {
				return retainerdomain.ErrInsufficientBalance
			}
			return retainerdomain.ErrRetainerClosed
		}

		alerted, err := retainerdomain.ApplyConsumption(retainer, req.Amount)
		if err != nil {
			return err
		}

		now := s.clock.Now()
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
			Kind:         retainerdomain.TransactionKindConsumption,
			Amount:       -req.Amount,
			BalanceAfter: retainer.CurrentBalance,
			Description:  req.Description,
			InvoiceID:    req.InvoiceID,
			CreatedAt:    now,
		}
		if err := tx.WithContext(ctx).Create(&movement).Error; err != nil {
			return err
		}

		retainer.UpdatedAt = now
		result = retainerdomain.ConsumeResult{
			Retainer:    *retainer,
			Transaction: movement,
			LowBalance:  alerted,
		}
		return nil
	})
	if txErr != nil {
		return retainerdomain.ConsumeResult{}, txErr
	}

	targetID := result.Retainer.ID.String()
	metadata := map[string]any{
		"amount":  req.Amount,
		"balance": result.Retainer.CurrentBalance,
	}
	if result.LowBalance {
		metadata["low_balance_alert"] = true
		s.log.Warn("retainer balance below minimum",
			zap.String("retainer_id", targetID),
			zap.Int64("balance", result.Retainer.CurrentBalance),
			zap.Int64("minimum", result.Retainer.MinimumBalance))
	}
	_ = s.auditSvc.Log(ctx, &lawyerID, "retainer.consume", "retainer", &targetID, metadata)

	return result, nil
}

func (s *Service) Replenish(ctx context.Context, req retainerdomain.ReplenishRequest) (retainerdomain.Retainer, error) {
	lawyerID, ok := lawyerctx.LawyerIDFromContext(ctx)
	if !ok || lawyerID == 0 {
		return retainerdomain.Retainer{}, retainerdomain.ErrInvalidLawyer
	}

	retainerID, err := parseID(req.RetainerID)
	if err != nil {
		return retainerdomain.Retainer{}, err
	}
	if req.Amount <= 0 {
		return retainerdomain.Retainer{}, retainerdomain.ErrInvalidAmount
	}

	var retainer retainerdomain.Retainer
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		loaded, err := s.loadForUpdate(ctx, tx, lawyerID, retainerID)
		if err != nil {
			return err
		}
		if loaded.Status != retainerdomain.RetainerStatusActive && loaded.Status != retainerdomain.RetainerStatusDepleted {
			return retainerdomain.ErrRetainerClosed
		}

		retainerdomain.ApplyDeposit(loaded, req.Amount)

		now := s.clock.Now()
		if err := tx.WithContext(ctx).
			Model(&retainerdomain.Retainer{}).
			Where("id = ?", loaded.ID).
			Updates(map[string]any{
				"current_balance":        loaded.CurrentBalance,
				"status":                 loaded.Status,
				"low_balance_alert_sent": loaded.LowBalanceAlertSent,
				"updated_at":             now,
			}).Error; err != nil {
			return err
		}

		movement := retainerdomain.RetainerTransaction{
			ID:           s.genID.Generate(),
			RetainerID:   loaded.ID,
			Kind:         retainerdomain.TransactionKindDeposit,
			Amount:       req.Amount,
			BalanceAfter: loaded.CurrentBalance,
			Description:  req.Description,
			PaymentID:    req.PaymentID,
			CreatedAt:    now,
		}
		if err := tx.WithContext(ctx).Create(&movement).Error; err != nil {
			return err
		}

		loaded.UpdatedAt = now
		retainer = *loaded
		return nil
	})
	if txErr != nil {
		return retainerdomain.Retainer{}, txErr
	}

	targetID := retainer.ID.String()
	_ = s.auditSvc.Log(ctx, &lawyerID, "retainer.replenish", "retainer", &targetID, map[string]any{
		"amount":  req.Amount,
		"balance": retainer.CurrentBalance,
	})
	return retainer, nil
}

// Refund closes the account: the remaining balance is returned to the
// client and the retainer cannot be used again.
func (s *Service) Refund(ctx context.Context, id string, reason string) (retainerdomain.Retainer, error) {
	lawyerID, ok := lawyerctx.LawyerIDFromContext(ctx)
	if !ok || lawyerID == 0 {
		return retainerdomain.Retainer{}, retainerdomain.ErrInvalidLawyer
	}

	retainerID, err := parseID(id)
	if err != nil {
		return retainerdomain.Retainer{}, err
	}

	var retainer retainerdomain.Retainer
	var refunded int64
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		loaded, err := s.loadForUpdate(ctx, tx, lawyerID, retainerID)
		if err != nil {
			return err
		}
		if loaded.Status != retainerdomain.RetainerStatusActive && loaded.Status != retainerdomain.RetainerStatusDepleted {
			return retainerdomain.ErrRetainerClosed
		}

		refunded = loaded.CurrentBalance
		loaded.CurrentBalance = 0
		loaded.Status = retainerdomain.RetainerStatusRefunded

		now := s.clock.Now()
		if err := tx.WithContext(ctx).
			Model(&retainerdomain.Retainer{}).
			Where("id = ?", loaded.ID).
			Updates(map[string]any{
				"current_balance": int64(0),
				"status":          loaded.Status,
				"updated_at":      now,
			}).Error; err != nil {
			return err
		}

		movement := retainerdomain.RetainerTransaction{
			ID:           s.genID.Generate(),
			RetainerID:   loaded.ID,
			Kind:         retainerdomain.TransactionKindRefund,
			Amount:       -refunded,
			BalanceAfter: 0,
			CreatedAt:    now,
		}
		if reason = strings.TrimSpace(reason); reason != "" {
			movement.Description = &reason
		}
		if err := tx.WithContext(ctx).Create(&movement).Error; err != nil {
			return err
		}

		loaded.UpdatedAt = now
		retainer = *loaded
		return nil
	})
	if txErr != nil {
		return retainerdomain.Retainer{}, txErr
	}

	targetID := retainer.ID.String()
	_ = s.auditSvc.Log(ctx, &lawyerID, "retainer.refund", "retainer", &targetID, map[string]any{
		"refunded_amount": refunded,
		"reason":          reason,
	})
	return retainer, nil
}

func (s *Service) Transactions(ctx context.Context, req retainerdomain.ListTransactionsRequest) (retainerdomain.ListTransactionsResponse, error) {
	lawyerID, ok := lawyerctx.LawyerIDFromContext(ctx)
	if !ok || lawyerID == 0 {
		return retainerdomain.ListTransactionsResponse{}, retainerdomain.ErrInvalidLawyer
	}

	// Ownership check happens through the parent account.
	retainer, err := s.getOwned(ctx, lawyerID, req.RetainerID)
	if err != nil {
		return retainerdomain.ListTransactionsResponse{}, err
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageSize > 250 {
		pageSize = 250
	}

	stmt := s.db.WithContext(ctx).
		Model(&retainerdomain.RetainerTransaction{}).
		Where("retainer_id = ?", retainer.ID)

	if token := strings.TrimSpace(req.PageToken); token != "" {
		decoded, err := pagination.DecodeCursor(token)
		if err != nil {
			return retainerdomain.ListTransactionsResponse{}, retainerdomain.ErrInvalidPageToken
		}
		createdAt, err := time.Parse(time.RFC3339, decoded.CreatedAt)
		if err != nil {
			return retainerdomain.ListTransactionsResponse{}, retainerdomain.ErrInvalidPageToken
		}
		cursorID, err := snowflake.ParseString(strings.TrimSpace(decoded.ID))
		if err != nil || cursorID == 0 {
			return retainerdomain.ListTransactionsResponse{}, retainerdomain.ErrInvalidPageToken
		}
		stmt = stmt.Where("(created_at, id) < (?, ?)", createdAt, cursorID)
	}

	var items []*retainerdomain.RetainerTransaction
	if err := stmt.
		Order("created_at DESC, id DESC").
		Limit(pageSize + 1).
		Find(&items).Error; err != nil {
		return retainerdomain.ListTransactionsResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, int32(pageSize), func(item *retainerdomain.RetainerTransaction) string {
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

	transactions := make([]retainerdomain.RetainerTransaction, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		transactions = append(transactions, *item)
	}

	resp := retainerdomain.ListTransactionsResponse{Transactions: transactions}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

func (s *Service) loadForUpdate(ctx context.Context, tx *gorm.DB, lawyerID, retainerID snowflake.ID) (*retainerdomain.Retainer, error) {
	var retainer retainerdomain.Retainer
	err := tx.WithContext(ctx).Raw(
		`SELECT * FROM retainers WHERE id = ? AND lawyer_id = ? FOR UPDATE`,
		retainerID, lawyerID,
	).Scan(&retainer).Error
	if err != nil {
		return nil, err
	}
	if retainer.ID == 0 {
		return nil, retainerdomain.ErrRetainerNotFound
	}
	return &retainer, nil
}

func (s *Service) getOwned(ctx context.Context, lawyerID snowflake.ID, id string) (retainerdomain.Retainer, error) {
	retainerID, err := parseID(id)
	if err != nil {
		return retainerdomain.Retainer{}, err
	}

	var retainer retainerdomain.Retainer
	if err := s.db.WithContext(ctx).
		Where("id = ? AND lawyer_id = ?", retainerID, lawyerID).
		First(&retainer).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return retainerdomain.Retainer{}, retainerdomain.ErrRetainerNotFound
		}
		return retainerdomain.Retainer{}, err
	}
	return retainer, nil
}

func parseID(id string) (snowflake.ID, error) {
	parsed, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || parsed == 0 {
		return 0, retainerdomain.ErrInvalidID
	}
	return parsed, nil
}
