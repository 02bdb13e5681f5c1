package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/mizanlaw/mizan/internal/audit/domain"
	ratedomain "github.com/mizanlaw/mizan/internal/billingrate/domain"
	"github.com/mizanlaw/mizan/internal/clock"
	"github.com/mizanlaw/mizan/internal/config"
	"github.com/mizanlaw/mizan/internal/lawyerctx"
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

func NewService(p Params) ratedomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("billingrate.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		cfg:      p.Cfg,
		auditSvc: p.AuditSvc,
	}
}

func (s *Service) SetRate(ctx context.Context, req ratedomain.SetRateRequest) (ratedomain.BillingRate, error) {
	lawyerID, ok := lawyerctx.LawyerIDFromContext(ctx)
	if !ok || lawyerID == 0 {
		return ratedomain.BillingRate{}, ratedomain.ErrInvalidLawyer
	}

	if req.StandardHourlyRate <= 0 {
		return ratedomain.BillingRate{}, ratedomain.ErrInvalidRate
	}
	if req.CustomRate != nil && *req.CustomRate <= 0 {
		return ratedomain.BillingRate{}, ratedomain.ErrInvalidRate
	}

	switch req.RateType {
	case ratedomain.RateTypeStandard:
		req.ClientID = nil
		req.CaseType = nil
		req.ActivityCode = nil
	case ratedomain.RateTypeCustomClient:
		if req.ClientID == nil || *req.ClientID == 0 {
			return ratedomain.BillingRate{}, ratedomain.ErrInvalidScope
		}
	case ratedomain.RateTypeCustomCaseType:
		if req.CaseType == nil || strings.TrimSpace(*req.CaseType) == "" {
			return ratedomain.BillingRate{}, ratedomain.ErrInvalidScope
		}
	case ratedomain.RateTypeActivityBased:
		if req.ActivityCode == nil || strings.TrimSpace(*req.ActivityCode) == "" {
			return ratedomain.BillingRate{}, ratedomain.ErrInvalidScope
		}
	default:
		return ratedomain.BillingRate{}, ratedomain.ErrInvalidRateType
	}

	now := s.clock.Now()
	effective := now
	if req.EffectiveDate != nil {
		effective = req.EffectiveDate.UTC()
	}
	if req.EndDate != nil && req.EndDate.Before(effective) {
		return ratedomain.BillingRate{}, ratedomain.ErrInvalidEffective
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = s.cfg.DefaultCurrency
	}

	rate := ratedomain.BillingRate{
		ID:                 s.genID.Generate(),
		LawyerID:           lawyerID,
		RateType:           req.RateType,
		StandardHourlyRate: req.StandardHourlyRate,
		CustomRate:         req.CustomRate,
		ClientID:           req.ClientID,
		CaseType:           normalizeKey(req.CaseType),
		ActivityCode:       normalizeKey(req.ActivityCode),
		Currency:           currency,
		EffectiveDate:      effective,
		EndDate:            req.EndDate,
		IsActive:           true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	// A new rate supersedes any active rate with the same scope: resolution
	// orders by effective_date, so the previous row is retired explicitly to
	// keep at most one active, currently effective rate per scoping key.
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		retire := tx.WithContext(ctx).
			Model(&ratedomain.BillingRate{}).
			Where("lawyer_id = ? AND rate_type = ? AND is_active = ? AND (end_date IS NULL OR end_date >= ?)",
				lawyerID, rate.RateType, true, now)
		switch rate.RateType {
		case ratedomain.RateTypeCustomClient:
			retire = retire.Where("client_id = ?", rate.ClientID)
		case ratedomain.RateTypeCustomCaseType:
			retire = retire.Where("case_type = ?", rate.CaseType)
		case ratedomain.RateTypeActivityBased:
			retire = retire.Where("activity_code = ?", rate.ActivityCode)
		}
		if err := retire.Updates(map[string]any{"end_date": now, "updated_at": now}).Error; err != nil {
			return err
		}
		return tx.WithContext(ctx).Create(&rate).Error
	})
	if err != nil {
		return ratedomain.BillingRate{}, err
	}

	targetID := rate.ID.String()
	_ = s.auditSvc.Log(ctx, &lawyerID, "billing_rate.set", "billing_rate", &targetID, map[string]any{
		"rate_type":   string(rate.RateType),
		"hourly_rate": rate.HourlyRate(),
		"currency":    rate.Currency,
	})

	return rate, nil
}

func (s *Service) SetStandardRate(ctx context.Context, hourlyRate int64, currency string) (ratedomain.BillingRate, error) {
	return s.SetRate(ctx, ratedomain.SetRateRequest{
		RateType:           ratedomain.RateTypeStandard,
		StandardHourlyRate: hourlyRate,
		Currency:           currency,
	})
}

func (s *Service) Update(ctx context.Context, req ratedomain.UpdateRateRequest) (ratedomain.BillingRate, error) {
	lawyerID, ok := lawyerctx.LawyerIDFromContext(ctx)
	if !ok || lawyerID == 0 {
		return ratedomain.BillingRate{}, ratedomain.ErrInvalidLawyer
	}

	rateID, err := snowflake.ParseString(strings.TrimSpace(req.ID))
	if err != nil || rateID == 0 {
		return ratedomain.BillingRate{}, ratedomain.ErrInvalidID
	}

	var rate ratedomain.BillingRate
	if err := s.db.WithContext(ctx).
		Where("id = ? AND lawyer_id = ?", rateID, lawyerID).
		First(&rate).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ratedomain.BillingRate{}, ratedomain.ErrNotFound
		}
		return ratedomain.BillingRate{}, err
	}

	// Allow-list of mutable fields; scoping keys and rate type are frozen.
	updates := map[string]any{}
	if req.StandardHourlyRate != nil {
		if *req.StandardHourlyRate <= 0 {
			return ratedomain.BillingRate{}, ratedomain.ErrInvalidRate
		}
		updates["standard_hourly_rate"] = *req.StandardHourlyRate
		rate.StandardHourlyRate = *req.StandardHourlyRate
	}
	if req.CustomRate != nil {
		if *req.CustomRate <= 0 {
			return ratedomain.BillingRate{}, ratedomain.ErrInvalidRate
		}
		updates["custom_rate"] = *req.CustomRate
		rate.CustomRate = req.CustomRate
	}
	if req.EndDate != nil {
		updates["end_date"] = req.EndDate.UTC()
		rate.EndDate = req.EndDate
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
		rate.IsActive = *req.IsActive
	}
	if len(updates) == 0 {
		return rate, nil
	}

	now := s.clock.Now()
	updates["updated_at"] = now
	rate.UpdatedAt = now

	if err := s.db.WithContext(ctx).
		Model(&ratedomain.BillingRate{}).
		Where("id = ?", rateID).
		Updates(updates).Error; err != nil {
		return ratedomain.BillingRate{}, err
	}

	targetID := rate.ID.String()
	_ = s.auditSvc.Log(ctx, &lawyerID, "billing_rate.update", "billing_rate", &targetID, map[string]any{
		"fields": fieldNames(updates),
	})

	return rate, nil
}

func (s *Service) List(ctx context.Context, req ratedomain.ListRatesRequest) ([]ratedomain.BillingRate, error) {
	lawyerID, ok := lawyerctx.LawyerIDFromContext(ctx)
	if !ok || lawyerID == 0 {
		return nil, ratedomain.ErrInvalidLawyer
	}

	stmt := s.db.WithContext(ctx).
		Model(&ratedomain.BillingRate{}).
		Where("lawyer_id = ?", lawyerID)

	if rateType := strings.TrimSpace(req.RateType); rateType != "" {
		stmt = stmt.Where("rate_type = ?", rateType)
	}
	if clientID := strings.TrimSpace(req.ClientID); clientID != "" {
		parsed, err := snowflake.ParseString(clientID)
		if err != nil {
			return nil, ratedomain.ErrInvalidID
		}
		stmt = stmt.Where("client_id = ?", parsed)
	}
	if req.ActiveOnly {
		stmt = stmt.Where("is_active = ?", true)
	}

	var rates []ratedomain.BillingRate
	if err := stmt.Order("effective_date DESC, id DESC").Find(&rates).Error; err != nil {
		return nil, err
	}
	return rates, nil
}

// Resolve walks the priority cascade: custom client rate, then case-type
// rate, then activity rate, then the standard rate. Within a step the most
// recently effective row wins.
func (s *Service) Resolve(ctx context.Context, req ratedomain.ResolveRequest) (ratedomain.ResolvedRate, error) {
	if req.LawyerID == 0 {
		return ratedomain.ResolvedRate{}, ratedomain.ErrInvalidLawyer
	}

	now := s.clock.Now()

	if req.ClientID != nil && *req.ClientID != 0 {
		rate, err := s.lookup(ctx, req.LawyerID, ratedomain.RateTypeCustomClient, "client_id = ?", *req.ClientID, now)
		if err != nil {
			return ratedomain.ResolvedRate{}, err
		}
		if rate != nil {
			return resolved(rate), nil
		}
	}

	if req.CaseType != nil && strings.TrimSpace(*req.CaseType) != "" {
		rate, err := s.lookup(ctx, req.LawyerID, ratedomain.RateTypeCustomCaseType, "case_type = ?", strings.TrimSpace(*req.CaseType), now)
		if err != nil {
			return ratedomain.ResolvedRate{}, err
		}
		if rate != nil {
			return resolved(rate), nil
		}
	}

	if req.ActivityCode != nil && strings.TrimSpace(*req.ActivityCode) != "" {
		rate, err := s.lookup(ctx, req.LawyerID, ratedomain.RateTypeActivityBased, "activity_code = ?", strings.TrimSpace(*req.ActivityCode), now)
		if err != nil {
			return ratedomain.ResolvedRate{}, err
		}
		if rate != nil {
			return resolved(rate), nil
		}
	}

	rate, err := s.lookup(ctx, req.LawyerID, ratedomain.RateTypeStandard, "", nil, now)
	if err != nil {
		return ratedomain.ResolvedRate{}, err
	}
	if rate == nil {
		return ratedomain.ResolvedRate{}, ratedomain.ErrRateNotConfigured
	}
	return resolved(rate), nil
}

func (s *Service) lookup(ctx context.Context, lawyerID snowflake.ID, rateType ratedomain.RateType, scopeCond string, scopeArg any, now time.Time) (*ratedomain.BillingRate, error) {
	stmt := s.db.WithContext(ctx).
		Where("lawyer_id = ? AND rate_type = ? AND is_active = ?", lawyerID, rateType, true).
		Where("effective_date <= ?", now).
		Where("end_date IS NULL OR end_date >= ?", now)
	if scopeCond != "" {
		stmt = stmt.Where(scopeCond, scopeArg)
	}

	var rate ratedomain.BillingRate
	err := stmt.Order("effective_date DESC").First(&rate).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rate, nil
}

func resolved(rate *ratedomain.BillingRate) ratedomain.ResolvedRate {
	return ratedomain.ResolvedRate{
		RateID:     rate.ID,
		RateType:   rate.RateType,
		HourlyRate: rate.HourlyRate(),
		Currency:   rate.Currency,
	}
}

func normalizeKey(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func fieldNames(updates map[string]any) []string {
	names := make([]string, 0, len(updates))
	for name := range updates {
		if name == "updated_at" {
			continue
		}
		names = append(names, name)
	}
	return names
}
