package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/mizanlaw/mizan/internal/audit/domain"
	ratedomain "github.com/mizanlaw/mizan/internal/billingrate/domain"
	"github.com/mizanlaw/mizan/internal/clock"
	"github.com/mizanlaw/mizan/internal/config"
	"github.com/mizanlaw/mizan/internal/lawyerctx"
	"github.com/mizanlaw/mizan/internal/numbering"
	entrydomain "github.com/mizanlaw/mizan/internal/timeentry/domain"
	"github.com/mizanlaw/mizan/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Cfg      config.Config
	RateSvc  ratedomain.Service
	AuditSvc auditdomain.Service
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	cfg      config.Config
	rateSvc  ratedomain.Service
	auditSvc auditdomain.Service
}

func NewService(p Params) entrydomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("timeentry.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		cfg:      p.Cfg,
		rateSvc:  p.RateSvc,
		auditSvc: p.AuditSvc,
	}
}

func (s *Service) Create(ctx context.Context, req entrydomain.CreateEntryRequest) (entrydomain.TimeEntry, error) {
	lawyerID, ok := lawyerctx.LawyerIDFromContext(ctx)
	if !ok || lawyerID == 0 {
		return entrydomain.TimeEntry{}, entrydomain.ErrInvalidLawyer
	}

	description := strings.TrimSpace(req.Description)
	if description == "" {
		return entrydomain.TimeEntry{}, entrydomain.ErrInvalidDescription
	}
	if req.Duration < 1 {
		return entrydomain.TimeEntry{}, entrydomain.ErrInvalidDuration
	}

	rate, err := s.rateSvc.Resolve(ctx, ratedomain.ResolveRequest{
		LawyerID:     lawyerID,
		ClientID:     req.ClientID,
		CaseType:     req.CaseType,
		ActivityCode: req.ActivityCode,
	})
	if err != nil {
		return entrydomain.TimeEntry{}, err
	}

	now := s.clock.Now()
	workDate := now
	if req.WorkDate != nil {
		workDate = req.WorkDate.UTC()
	}
	billable := true
	if req.IsBillable != nil {
		billable = *req.IsBillable
	}

	entry := entrydomain.TimeEntry{
		ID:              s.genID.Generate(),
		LawyerID:        lawyerID,
		ClientID:        req.ClientID,
		CaseID:          req.CaseID,
		ActivityCode:    req.ActivityCode,
		Description:     description,
		WorkDate:        workDate,
		DurationMinutes: req.Duration,
		HourlyRate:      rate.HourlyRate,
		TotalAmount:     entrydomain.Amount(req.Duration, rate.HourlyRate),
		Currency:        rate.Currency,
		IsBillable:      billable,
		Status:          entrydomain.EntryStatusDraft,
		Source:          entrydomain.EntrySourceManual,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		number, err := numbering.Next(ctx, tx, lawyerID, numbering.DocTypeTimeEntry, workDate)
		if err != nil {
			return err
		}
		entry.Number = number
		return tx.WithContext(ctx).Create(&entry).Error
	}); err != nil {
		return entrydomain.TimeEntry{}, err
	}

	targetID := entry.ID.String()
	_ = s.auditSvc.Log(ctx, &lawyerID, "time_entry.create", "time_entry", &targetID, map[string]any{
		"number":           entry.Number,
		"duration_minutes": entry.DurationMinutes,
		"total_amount":     entry.TotalAmount,
	})

	return entry, nil
}

func (s *Service) CreateFromTimer(ctx context.Context, tx *gorm.DB, req entrydomain.CreateFromTimerRequest) (entrydomain.TimeEntry, error) {
	if req.LawyerID == 0 {
		return entrydomain.TimeEntry{}, entrydomain.ErrInvalidLawyer
	}
	if req.Duration < 1 {
		return entrydomain.TimeEntry{}, entrydomain.ErrInvalidDuration
	}
	if req.HourlyRate <= 0 {
		return entrydomain.TimeEntry{}, entrydomain.ErrInvalidDuration
	}

	description := strings.TrimSpace(req.Description)
	if description == "" {
		description = "Timer session"
	}

	now := s.clock.Now()
	entry := entrydomain.TimeEntry{
		ID:              s.genID.Generate(),
		LawyerID:        req.LawyerID,
		ClientID:        req.ClientID,
		CaseID:          req.CaseID,
		ActivityCode:    req.ActivityCode,
		Description:     description,
		WorkDate:        req.WorkDate.UTC(),
		DurationMinutes: req.Duration,
		HourlyRate:      req.HourlyRate,
		TotalAmount:     entrydomain.Amount(req.Duration, req.HourlyRate),
		Currency:        req.Currency,
		IsBillable:      req.IsBillable,
		Status:          entrydomain.EntryStatusDraft,
		Source:          entrydomain.EntrySourceTimer,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if entry.Currency == "" {
		entry.Currency = s.cfg.DefaultCurrency
	}

	runner := tx
	if runner == nil {
		runner = s.db
	}
	if err := runner.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		number, err := numbering.Next(ctx, tx, req.LawyerID, numbering.DocTypeTimeEntry, entry.WorkDate)
		if err != nil {
			return err
		}
		entry.Number = number
		return tx.WithContext(ctx).Create(&entry).Error
	}); err != nil {
		return entrydomain.TimeEntry{}, err
	}

	targetID := entry.ID.String()
	_ = s.auditSvc.Log(ctx, &req.LawyerID, "time_entry.create_from_timer", "time_entry", &targetID, map[string]any{
		"number":           entry.Number,
		"duration_minutes": entry.DurationMinutes,
		"total_amount":     entry.TotalAmount,
	})

	return entry, nil
}

func (s *Service) Get(ctx context.Context, id string) (entrydomain.TimeEntry, error) {
	lawyerID, ok := lawyerctx.LawyerIDFromContext(ctx)
	if !ok || lawyerID == 0 {
		return entrydomain.TimeEntry{}, entrydomain.ErrInvalidLawyer
	}
	return s.getOwned(ctx, lawyerID, id)
}

func (s *Service) List(ctx context.Context, req entrydomain.ListEntriesRequest) (entrydomain.ListEntriesResponse, error) {
	lawyerID, ok := lawyerctx.LawyerIDFromContext(ctx)
	if !ok || lawyerID == 0 {
		return entrydomain.ListEntriesResponse{}, entrydomain.ErrInvalidLawyer
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageSize > 250 {
		pageSize = 250
	}

	stmt := s.db.WithContext(ctx).
		Model(&entrydomain.TimeEntry{}).
		Where("lawyer_id = ?", lawyerID)

	if status := strings.TrimSpace(req.Status); status != "" {
		stmt = stmt.Where("status = ?", status)
	}
	if clientID := strings.TrimSpace(req.ClientID); clientID != "" {
		parsed, err := snowflake.ParseString(clientID)
		if err != nil {
			return entrydomain.ListEntriesResponse{}, entrydomain.ErrInvalidID
		}
		stmt = stmt.Where("client_id = ?", parsed)
	}
	if caseID := strings.TrimSpace(req.CaseID); caseID != "" {
		parsed, err := snowflake.ParseString(caseID)
		if err != nil {
			return entrydomain.ListEntriesResponse{}, entrydomain.ErrInvalidID
		}
		stmt = stmt.Where("case_id = ?", parsed)
	}
	if req.StartAt != nil {
		stmt = stmt.Where("work_date >= ?", req.StartAt.UTC())
	}
	if req.EndAt != nil {
		stmt = stmt.Where("work_date <= ?", req.EndAt.UTC())
	}

	if token := strings.TrimSpace(req.PageToken); token != "" {
		decoded, err := pagination.DecodeCursor(token)
		if err != nil {
			return entrydomain.ListEntriesResponse{}, entrydomain.ErrInvalidPageToken
		}
		createdAt, err := time.Parse(time.RFC3339, decoded.CreatedAt)
		if err != nil {
			return entrydomain.ListEntriesResponse{}, entrydomain.ErrInvalidPageToken
		}
		cursorID, err := snowflake.ParseString(strings.TrimSpace(decoded.ID))
		if err != nil || cursorID == 0 {
			return entrydomain.ListEntriesResponse{}, entrydomain.ErrInvalidPageToken
		}
		stmt = stmt.Where("(created_at, id) < (?, ?)", createdAt, cursorID)
	}

	var items []*entrydomain.TimeEntry
	if err := stmt.
		Order("created_at DESC, id DESC").
		Limit(pageSize + 1).
		Find(&items).Error; err != nil {
		return entrydomain.ListEntriesResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, int32(pageSize), func(item *entrydomain.TimeEntry) string {
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

	entries := make([]entrydomain.TimeEntry, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		entries = append(entries, *item)
	}

	resp := entrydomain.ListEntriesResponse{Entries: entries}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

func (s *Service) Update(ctx context.Context, req entrydomain.UpdateEntryRequest) (entrydomain.TimeEntry, error) {
	lawyerID, ok := lawyerctx.LawyerIDFromContext(ctx)
	if !ok || lawyerID == 0 {
		return entrydomain.TimeEntry{}, entrydomain.ErrInvalidLawyer
	}

	entry, err := s.getOwned(ctx, lawyerID, req.ID)
	if err != nil {
		return entrydomain.TimeEntry{}, err
	}
	if err := guardMutable(entry); err != nil {
		return entrydomain.TimeEntry{}, err
	}

	// Allow-list of mutable fields; each change is recorded as an
	// old/new diff in the edit history.
	updates := map[string]any{}
	diffs := map[string]map[string]any{}

	if req.Description != nil {
		description := strings.TrimSpace(*req.Description)
		if description == "" {
			return entrydomain.TimeEntry{}, entrydomain.ErrInvalidDescription
		}
		if description != entry.Description {
			diffs["description"] = map[string]any{"old": entry.Description, "new": description}
			updates["description"] = description
			entry.Description = description
		}
	}
	if req.WorkDate != nil {
		workDate := req.WorkDate.UTC()
		if !workDate.Equal(entry.WorkDate) {
			diffs["work_date"] = map[string]any{"old": entry.WorkDate, "new": workDate}
			updates["work_date"] = workDate
			entry.WorkDate = workDate
		}
	}
	if req.Duration != nil {
		if *req.Duration < 1 {
			return entrydomain.TimeEntry{}, entrydomain.ErrInvalidDuration
		}
		if *req.Duration != entry.DurationMinutes {
			diffs["duration_minutes"] = map[string]any{"old": entry.DurationMinutes, "new": *req.Duration}
			updates["duration_minutes"] = *req.Duration
			entry.DurationMinutes = *req.Duration
		}
	}
	if req.HourlyRate != nil {
		if *req.HourlyRate <= 0 {
			return entrydomain.TimeEntry{}, entrydomain.ErrInvalidDuration
		}
		if *req.HourlyRate != entry.HourlyRate {
			diffs["hourly_rate"] = map[string]any{"old": entry.HourlyRate, "new": *req.HourlyRate}
			updates["hourly_rate"] = *req.HourlyRate
			entry.HourlyRate = *req.HourlyRate
		}
	}
	if req.ActivityCode != nil {
		code := strings.TrimSpace(*req.ActivityCode)
		old := ""
		if entry.ActivityCode != nil {
			old = *entry.ActivityCode
		}
		if code != old {
			diffs["activity_code"] = map[string]any{"old": old, "new": code}
			updates["activity_code"] = code
			entry.ActivityCode = &code
		}
	}
	if req.IsBillable != nil && *req.IsBillable != entry.IsBillable {
		diffs["is_billable"] = map[string]any{"old": entry.IsBillable, "new": *req.IsBillable}
		updates["is_billable"] = *req.IsBillable
		entry.IsBillable = *req.IsBillable
	}

	if len(updates) == 0 {
		return entry, nil
	}

	// Total is derived; recompute whenever duration or rate moved.
	if _, durationChanged := updates["duration_minutes"]; durationChanged {
		updates["total_amount"] = entrydomain.Amount(entry.DurationMinutes, entry.HourlyRate)
	} else if _, rateChanged := updates["hourly_rate"]; rateChanged {
		updates["total_amount"] = entrydomain.Amount(entry.DurationMinutes, entry.HourlyRate)
	}
	if total, ok := updates["total_amount"]; ok {
		newTotal := total.(int64)
		if newTotal != entry.TotalAmount {
			diffs["total_amount"] = map[string]any{"old": entry.TotalAmount, "new": newTotal}
		}
		entry.TotalAmount = newTotal
	}

	now := s.clock.Now()
	updates["updated_at"] = now
	entry.UpdatedAt = now

	changes, err := json.Marshal(diffs)
	if err != nil {
		return entrydomain.TimeEntry{}, err
	}
	edit := entrydomain.TimeEntryEdit{
		ID:        s.genID.Generate(),
		EntryID:   entry.ID,
		EditorID:  lawyerID,
		Changes:   datatypes.JSON(changes),
		CreatedAt: now,
	}

	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.WithContext(ctx).
			Model(&entrydomain.TimeEntry{}).
			Where("id = ?", entry.ID).
			Updates(updates).Error; err != nil {
			return err
		}
		return tx.WithContext(ctx).Create(&edit).Error
	}); err != nil {
		return entrydomain.TimeEntry{}, err
	}

	targetID := entry.ID.String()
	_ = s.auditSvc.Log(ctx, &lawyerID, "time_entry.update", "time_entry", &targetID, map[string]any{
		"fields": diffFields(diffs),
	})

	return entry, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	lawyerID, ok := lawyerctx.LawyerIDFromContext(ctx)
	if !ok || lawyerID == 0 {
		return entrydomain.ErrInvalidLawyer
	}

	entry, err := s.getOwned(ctx, lawyerID, id)
	if err != nil {
		return err
	}
	if err := guardMutable(entry); err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).
		Where("id = ?", entry.ID).
		Delete(&entrydomain.TimeEntry{}).Error; err != nil {
		return err
	}

	targetID := entry.ID.String()
	_ = s.auditSvc.Log(ctx, &lawyerID, "time_entry.delete", "time_entry", &targetID, map[string]any{
		"number": entry.Number,
	})
	return nil
}

func (s *Service) Submit(ctx context.Context, id string) (entrydomain.TimeEntry, error) {
	lawyerID, ok := lawyerctx.LawyerIDFromContext(ctx)
	if !ok || lawyerID == 0 {
		return entrydomain.TimeEntry{}, entrydomain.ErrInvalidLawyer
	}

	entry, err := s.getOwned(ctx, lawyerID, id)
	if err != nil {
		return entrydomain.TimeEntry{}, err
	}
	if err := guardMutable(entry); err != nil {
		return entrydomain.TimeEntry{}, err
	}
	if entry.Status != entrydomain.EntryStatusDraft && entry.Status != entrydomain.EntryStatusRejected {
		return entrydomain.TimeEntry{}, entrydomain.ErrEntryNotDraft
	}

	now := s.clock.Now()
	if err := s.db.WithContext(ctx).
		Model(&entrydomain.TimeEntry{}).
		Where("id = ?", entry.ID).
		Updates(map[string]any{
			"status":           entrydomain.EntryStatusPendingApproval,
			"rejection_reason": nil,
			"updated_at":       now,
		}).Error; err != nil {
		return entrydomain.TimeEntry{}, err
	}
	entry.Status = entrydomain.EntryStatusPendingApproval
	entry.RejectionReason = nil
	entry.UpdatedAt = now

	targetID := entry.ID.String()
	_ = s.auditSvc.Log(ctx, &lawyerID, "time_entry.submit", "time_entry", &targetID, nil)
	return entry, nil
}

func (s *Service) Approve(ctx context.Context, id string) (entrydomain.TimeEntry, error) {
	lawyerID, ok := lawyerctx.LawyerIDFromContext(ctx)
	if !ok || lawyerID == 0 {
		return entrydomain.TimeEntry{}, entrydomain.ErrInvalidLawyer
	}

	entry, err := s.getOwned(ctx, lawyerID, id)
	if err != nil {
		return entrydomain.TimeEntry{}, err
	}
	if err := guardMutable(entry); err != nil {
		return entrydomain.TimeEntry{}, err
	}

	now := s.clock.Now()
	if err := s.db.WithContext(ctx).
		Model(&entrydomain.TimeEntry{}).
		Where("id = ?", entry.ID).
		Updates(map[string]any{
			"status":      entrydomain.EntryStatusApproved,
			"approved_by": lawyerID,
			"approved_at": now,
			"updated_at":  now,
		}).Error; err != nil {
		return entrydomain.TimeEntry{}, err
	}
	entry.Status = entrydomain.EntryStatusApproved
	entry.ApprovedBy = &lawyerID
	entry.ApprovedAt = &now
	entry.UpdatedAt = now

	targetID := entry.ID.String()
	_ = s.auditSvc.Log(ctx, &lawyerID, "time_entry.approve", "time_entry", &targetID, map[string]any{
		"total_amount": entry.TotalAmount,
	})
	return entry, nil
}

func (s *Service) Reject(ctx context.Context, id string, reason string) (entrydomain.TimeEntry, error) {
	lawyerID, ok := lawyerctx.LawyerIDFromContext(ctx)
	if !ok || lawyerID == 0 {
		return entrydomain.TimeEntry{}, entrydomain.ErrInvalidLawyer
	}

	reason = strings.TrimSpace(reason)
	if reason == "" {
		return entrydomain.TimeEntry{}, entrydomain.ErrReasonRequired
	}

	entry, err := s.getOwned(ctx, lawyerID, id)
	if err != nil {
		return entrydomain.TimeEntry{}, err
	}
	// Approved entries can still be rejected; only invoicing makes the
	// status final. Rejecting an approved entry revokes the approval.
	if entry.InvoiceID != nil || entry.Status == entrydomain.EntryStatusInvoiced {
		return entrydomain.TimeEntry{}, entrydomain.ErrEntryInvoiced
	}

	now := s.clock.Now()
	if err := s.db.WithContext(ctx).
		Model(&entrydomain.TimeEntry{}).
		Where("id = ?", entry.ID).
		Updates(map[string]any{
			"status":           entrydomain.EntryStatusRejected,
			"rejection_reason": reason,
			"approved_by":      nil,
			"approved_at":      nil,
			"updated_at":       now,
		}).Error; err != nil {
		return entrydomain.TimeEntry{}, err
	}
	entry.Status = entrydomain.EntryStatusRejected
	entry.RejectionReason = &reason
	entry.ApprovedBy = nil
	entry.ApprovedAt = nil
	entry.UpdatedAt = now

	targetID := entry.ID.String()
	_ = s.auditSvc.Log(ctx, &lawyerID, "time_entry.reject", "time_entry", &targetID, map[string]any{
		"reason": reason,
	})
	return entry, nil
}

func (s *Service) EditHistory(ctx context.Context, id string) ([]entrydomain.TimeEntryEdit, error) {
	lawyerID, ok := lawyerctx.LawyerIDFromContext(ctx)
	if !ok || lawyerID == 0 {
		return nil, entrydomain.ErrInvalidLawyer
	}

	entry, err := s.getOwned(ctx, lawyerID, id)
	if err != nil {
		return nil, err
	}

	var edits []entrydomain.TimeEntryEdit
	if err := s.db.WithContext(ctx).
		Where("entry_id = ?", entry.ID).
		Order("created_at ASC, id ASC").
		Find(&edits).Error; err != nil {
		return nil, err
	}
	return edits, nil
}

func (s *Service) getOwned(ctx context.Context, lawyerID snowflake.ID, id string) (entrydomain.TimeEntry, error) {
	entryID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || entryID == 0 {
		return entrydomain.TimeEntry{}, entrydomain.ErrInvalidID
	}

	var entry entrydomain.TimeEntry
	if err := s.db.WithContext(ctx).
		Where("id = ? AND lawyer_id = ?", entryID, lawyerID).
		First(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entrydomain.TimeEntry{}, entrydomain.ErrEntryNotFound
		}
		return entrydomain.TimeEntry{}, err
	}
	return entry, nil
}

func guardMutable(entry entrydomain.TimeEntry) error {
	if entry.InvoiceID != nil || entry.Status == entrydomain.EntryStatusInvoiced {
		return entrydomain.ErrEntryInvoiced
	}
	if entry.Status == entrydomain.EntryStatusApproved {
		return entrydomain.ErrEntryApproved
	}
	return nil
}

func diffFields(diffs map[string]map[string]any) []string {
	fields := make([]string, 0, len(diffs))
	for field := range diffs {
		fields = append(fields, field)
	}
	return fields
}
