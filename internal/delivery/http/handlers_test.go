package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ilindan-dev/availability-notifier/internal/domain/model"
	repo "github.com/ilindan-dev/availability-notifier/internal/domain/repository"
	"github.com/rs/zerolog"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakePublisher struct {
	events []model.ProductAvailableEvent
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, e model.ProductAvailableEvent) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, e)
	return nil
}

type fakeOutcomeStore struct {
	outcomes map[int64]*model.DispatchOutcome
	err      error
}

func (s *fakeOutcomeStore) Save(_ context.Context, o *model.DispatchOutcome) error {
	s.outcomes[o.ProductID] = o
	return nil
}

func (s *fakeOutcomeStore) Latest(_ context.Context, productID int64) (*model.DispatchOutcome, error) {
	if s.err != nil {
		return nil, s.err
	}
	o, ok := s.outcomes[productID]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return o, nil
}

func setupRouter(p *fakePublisher, s *fakeOutcomeStore) *gin.Engine {
	logger := zerolog.Nop()
	return newRouter(NewHandlers(p, s, &logger))
}

func doRequest(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestPublishAvailability(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		body       string
		wantStatus int
		wantDate   string
	}{
		{name: "with date", path: "/api/v1/products/42/availability", body: `{"availableOn":"2024-05-01"}`, wantStatus: http.StatusAccepted, wantDate: "2024-05-01"},
		{name: "without body", path: "/api/v1/products/42/availability", wantStatus: http.StatusAccepted},
		{name: "empty object", path: "/api/v1/products/42/availability", body: `{}`, wantStatus: http.StatusAccepted},
		{name: "bad date", path: "/api/v1/products/42/availability", body: `{"availableOn":"May 1st"}`, wantStatus: http.StatusBadRequest},
		{name: "bad json", path: "/api/v1/products/42/availability", body: `{"availableOn":`, wantStatus: http.StatusBadRequest},
		{name: "non numeric id", path: "/api/v1/products/abc/availability", wantStatus: http.StatusBadRequest},
		{name: "zero id", path: "/api/v1/products/0/availability", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakePublisher{}
			router := setupRouter(p, &fakeOutcomeStore{outcomes: map[int64]*model.DispatchOutcome{}})

			w := doRequest(router, http.MethodPost, tt.path, tt.body)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d, body = %s", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.wantStatus != http.StatusAccepted {
				if len(p.events) != 0 {
					t.Errorf("published %+v on a rejected request", p.events)
				}
				return
			}

			if len(p.events) != 1 || p.events[0].ProductID != 42 {
				t.Fatalf("published events = %+v", p.events)
			}
			gotDate := ""
			if !p.events[0].AvailableOn.IsZero() {
				gotDate = p.events[0].AvailableOn.Format(model.DateLayout)
			}
			if gotDate != tt.wantDate {
				t.Errorf("published date = %q, want %q", gotDate, tt.wantDate)
			}
		})
	}
}

func TestPublishAvailabilityPublisherFailure(t *testing.T) {
	router := setupRouter(&fakePublisher{err: errors.New("channel closed")}, &fakeOutcomeStore{})

	w := doRequest(router, http.MethodPost, "/api/v1/products/42/availability", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

func TestGetLatestDispatch(t *testing.T) {
	o := model.NewDispatchOutcome(model.AlertQuery{ProductID: 42, AvailableOn: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)}, time.Now())
	o.Status = model.DispatchCompleted
	o.UsersResolved = 2
	o.UsersNotified = 1
	o.UsersFailed = append(o.UsersFailed, model.UserFailure{UserID: 2, Reason: "smtp send failed"})
	store := &fakeOutcomeStore{outcomes: map[int64]*model.DispatchOutcome{42: o}}
	router := setupRouter(&fakePublisher{}, store)

	t.Run("found", func(t *testing.T) {
		w := doRequest(router, http.MethodGet, "/api/v1/products/42/dispatches/latest", "")
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}
		var got DispatchOutcomeResponse
		if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if got.ID != o.ID || got.Status != "completed" || got.AvailableOn != "2024-05-01" {
			t.Errorf("response = %+v", got)
		}
		if got.UsersNotified != 1 || len(got.UsersFailed) != 1 || got.UsersFailed[0].UserID != 2 {
			t.Errorf("response counters = %+v", got)
		}
	})

	t.Run("not found", func(t *testing.T) {
		w := doRequest(router, http.MethodGet, "/api/v1/products/7/dispatches/latest", "")
		if w.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", w.Code)
		}
	})

	t.Run("invalid id", func(t *testing.T) {
		w := doRequest(router, http.MethodGet, "/api/v1/products/-1/dispatches/latest", "")
		if w.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", w.Code)
		}
	})
}

func TestGetLatestDispatchStoreFailure(t *testing.T) {
	router := setupRouter(&fakePublisher{}, &fakeOutcomeStore{err: errors.New("redis down")})

	w := doRequest(router, http.MethodGet, "/api/v1/products/42/dispatches/latest", "")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
}

func TestHealth(t *testing.T) {
	router := setupRouter(&fakePublisher{}, &fakeOutcomeStore{})

	w := doRequest(router, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"ok"`) {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
}
