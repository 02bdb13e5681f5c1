package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/mizanlaw/mizan/internal/config"
	"github.com/mizanlaw/mizan/internal/lawyerctx"
	timeentrydomain "github.com/mizanlaw/mizan/internal/timeentry/domain"
	timerdomain "github.com/mizanlaw/mizan/internal/timer/domain"
)

type fakeTimerService struct {
	startCalls int
	lastStart  timerdomain.StartTimerRequest
	lastLawyer snowflake.ID
	startErr   error
}

func (f *fakeTimerService) Start(ctx context.Context, req timerdomain.StartTimerRequest) (timerdomain.TimerSession, error) {
	f.startCalls++
	f.lastStart = req
	if lawyerID, ok := lawyerctx.LawyerIDFromContext(ctx); ok {
		f.lastLawyer = lawyerID
	}
	if f.startErr != nil {
		return timerdomain.TimerSession{}, f.startErr
	}
	return timerdomain.TimerSession{ID: snowflake.ID(900)}, nil
}

func (f *fakeTimerService) Pause(ctx context.Context) (timerdomain.TimerSession, error) {
	_ = ctx
	return timerdomain.TimerSession{}, nil
}

func (f *fakeTimerService) Resume(ctx context.Context) (timerdomain.TimerSession, error) {
	_ = ctx
	return timerdomain.TimerSession{}, nil
}

func (f *fakeTimerService) Stop(ctx context.Context, req timerdomain.StopTimerRequest) (timeentrydomain.TimeEntry, error) {
	_ = ctx
	_ = req
	return timeentrydomain.TimeEntry{}, nil
}

func (f *fakeTimerService) Status(ctx context.Context) (timerdomain.TimerStatus, error) {
	_ = ctx
	return timerdomain.TimerStatus{}, nil
}

func newTimerTestRouter(srv *Server) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(ErrorHandlingMiddleware())
	group := router.Group("/api", srv.AuthRequired())
	group.POST("/time-tracking/timer/start", srv.StartTimer)
	return router
}

func TestStartTimerRequiresAuth(t *testing.T) {
	timerSvc := &fakeTimerService{}
	srv := &Server{
		cfg:      config.Config{Environment: "development"},
		timerSvc: timerSvc,
	}
	router := newTimerTestRouter(srv)

	req := httptest.NewRequest(http.MethodPost, "/api/time-tracking/timer/start", bytes.NewBufferString(`{"description":"drafting"}`))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", resp.Code)
	}
	if timerSvc.startCalls != 0 {
		t.Fatal("expected timer service not to be called without auth")
	}
}

func TestStartTimerDevHeaderAuth(t *testing.T) {
	timerSvc := &fakeTimerService{}
	srv := &Server{
		cfg:      config.Config{Environment: "development"},
		timerSvc: timerSvc,
	}
	router := newTimerTestRouter(srv)

	req := httptest.NewRequest(http.MethodPost, "/api/time-tracking/timer/start", bytes.NewBufferString(`{"client_id":"1001","description":"drafting"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Lawyer-ID", "42")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}
	if timerSvc.startCalls != 1 {
		t.Fatalf("expected one start call, got %d", timerSvc.startCalls)
	}
	if timerSvc.lastLawyer != snowflake.ID(42) {
		t.Fatalf("expected lawyer 42 on context, got %d", timerSvc.lastLawyer)
	}
	if timerSvc.lastStart.ClientID == nil || *timerSvc.lastStart.ClientID != snowflake.ID(1001) {
		t.Fatalf("expected client id 1001, got %v", timerSvc.lastStart.ClientID)
	}
}

func TestStartTimerConflictMapsTo409(t *testing.T) {
	timerSvc := &fakeTimerService{startErr: timerdomain.ErrAlreadyRunning}
	srv := &Server{
		cfg:      config.Config{Environment: "development"},
		timerSvc: timerSvc,
	}
	router := newTimerTestRouter(srv)

	req := httptest.NewRequest(http.MethodPost, "/api/time-tracking/timer/start", bytes.NewBufferString(`{"description":"drafting"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Lawyer-ID", "42")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", resp.Code)
	}

	var body errorResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body.Error.Type != "conflict" {
		t.Fatalf("expected conflict payload, got %q", body.Error.Type)
	}
}

func TestStartTimerRejectsMalformedClientID(t *testing.T) {
	timerSvc := &fakeTimerService{}
	srv := &Server{
		cfg:      config.Config{Environment: "development"},
		timerSvc: timerSvc,
	}
	router := newTimerTestRouter(srv)

	req := httptest.NewRequest(http.MethodPost, "/api/time-tracking/timer/start", bytes.NewBufferString(`{"client_id":"not-a-number","description":"drafting"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Lawyer-ID", "42")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
	if timerSvc.startCalls != 0 {
		t.Fatal("expected timer service not to be called on bad input")
	}
}
