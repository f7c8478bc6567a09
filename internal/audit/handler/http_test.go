package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"transitwatch/backend/internal/audit/domain"
)

type mockLister struct {
	records  []*domain.Record
	err      error
	gotLimit int
}

func (m *mockLister) ListRecent(ctx context.Context, limit int) ([]*domain.Record, error) {
	m.gotLimit = limit
	if m.err != nil {
		return nil, m.err
	}
	return m.records, nil
}

func serve(l Lister, target string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/admin/audit", NewHandler(l).List)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestList(t *testing.T) {
	actor := int64(1)
	l := &mockLister{records: []*domain.Record{
		{ID: 2, ActorID: &actor, Event: domain.EventRoleGranted, CreatedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)},
		{ID: 1, Event: domain.EventLoginFailure, CreatedAt: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)},
	}}
	rec := serve(l, "/admin/audit?limit=2")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if l.gotLimit != 2 {
		t.Errorf("limit = %d, want 2", l.gotLimit)
	}
	var env struct {
		Data struct {
			Records []domain.Record `json:"records"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(env.Data.Records) != 2 || env.Data.Records[0].Event != domain.EventRoleGranted {
		t.Errorf("records = %+v", env.Data.Records)
	}
	if env.Data.Records[1].ActorID != nil {
		t.Errorf("anonymous record actor = %v, want nil", *env.Data.Records[1].ActorID)
	}
}

func TestList_DefaultLimitAndEmpty(t *testing.T) {
	l := &mockLister{}
	rec := serve(l, "/admin/audit")
	if l.gotLimit != defaultLimit {
		t.Errorf("limit = %d, want %d", l.gotLimit, defaultLimit)
	}
	if want := `{"ok":true,"data":{"records":[]}}`; rec.Body.String() != want {
		t.Errorf("body = %s, want %s", rec.Body.String(), want)
	}
}

func TestList_Errors(t *testing.T) {
	if rec := serve(&mockLister{}, "/admin/audit?limit=abc"); rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit: status = %d, want 400", rec.Code)
	}
	if rec := serve(&mockLister{err: errors.New("db down")}, "/admin/audit"); rec.Code != http.StatusInternalServerError {
		t.Errorf("store error: status = %d, want 500", rec.Code)
	}
}
