package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ilindan-dev/availability-notifier/internal/config"
	"github.com/ilindan-dev/availability-notifier/internal/domain/model"
	repo "github.com/ilindan-dev/availability-notifier/internal/domain/repository"
	"github.com/ilindan-dev/availability-notifier/internal/notifiers"
	"github.com/rs/zerolog"
)

var may1 = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

type fakeDirectory struct {
	users   []model.AlertedUser
	err     error
	queries []model.AlertQuery
}

func (d *fakeDirectory) Resolve(_ context.Context, q model.AlertQuery) ([]model.AlertedUser, error) {
	d.queries = append(d.queries, q)
	if d.err != nil {
		return nil, d.err
	}
	return d.users, nil
}

// fakeNotifier fails or panics for selected users and records every call.
type fakeNotifier struct {
	mu     sync.Mutex
	fail   map[int64]error
	panics map[int64]bool
	calls  []int64
}

func (n *fakeNotifier) Notify(_ context.Context, user model.AlertedUser, _ int64) error {
	n.mu.Lock()
	n.calls = append(n.calls, user.UserID)
	n.mu.Unlock()

	if n.panics[user.UserID] {
		panic("boom")
	}
	return n.fail[user.UserID]
}

func newService(dir repo.AlertDirectory, n notifiers.Notifier, maxParallel int) *DispatchService {
	cfg := &config.Config{Dispatch: config.DispatchConfig{Timezone: "UTC", MaxParallel: maxParallel}}
	logger := zerolog.Nop()
	return NewDispatchService(dir, n, cfg, &logger)
}

func users(ids ...int64) []model.AlertedUser {
	out := make([]model.AlertedUser, 0, len(ids))
	for _, id := range ids {
		out = append(out, model.AlertedUser{UserID: id, FullName: fmt.Sprintf("user-%d", id)})
	}
	return out
}

func assertInvariant(t *testing.T, o *model.DispatchOutcome) {
	t.Helper()
	if o.UsersNotified+len(o.UsersFailed) != o.UsersResolved {
		t.Fatalf("notified(%d) + failed(%d) != resolved(%d)", o.UsersNotified, len(o.UsersFailed), o.UsersResolved)
	}
}

func TestDispatchAllUsersNotified(t *testing.T) {
	dir := &fakeDirectory{users: []model.AlertedUser{{UserID: 1, FullName: "Alice"}, {UserID: 2, FullName: "Bob"}}}
	n := &fakeNotifier{}
	s := newService(dir, n, 1)

	o := s.Dispatch(context.Background(), model.ProductAvailableEvent{ProductID: 42, AvailableOn: may1})

	if o.ProductID != 42 {
		t.Errorf("ProductID = %d, want 42", o.ProductID)
	}
	if o.Status != model.DispatchCompleted {
		t.Errorf("Status = %s, want %s", o.Status, model.DispatchCompleted)
	}
	if o.UsersNotified != 2 {
		t.Errorf("UsersNotified = %d, want 2", o.UsersNotified)
	}
	if len(o.UsersFailed) != 0 {
		t.Errorf("UsersFailed = %v, want empty", o.UsersFailed)
	}
	assertInvariant(t, o)

	if len(dir.queries) != 1 || dir.queries[0].ProductID != 42 || !dir.queries[0].AvailableOn.Equal(may1) {
		t.Errorf("queries = %+v", dir.queries)
	}
	if fmt.Sprint(n.calls) != "[1 2]" {
		t.Errorf("notify order = %v, want [1 2]", n.calls)
	}
}

func TestDispatchNoUsers(t *testing.T) {
	n := &fakeNotifier{}
	s := newService(&fakeDirectory{users: []model.AlertedUser{}}, n, 1)

	o := s.Dispatch(context.Background(), model.ProductAvailableEvent{ProductID: 42, AvailableOn: may1})

	if o.Status != model.DispatchNoUsers {
		t.Errorf("Status = %s, want %s", o.Status, model.DispatchNoUsers)
	}
	if o.UsersNotified != 0 || len(o.UsersFailed) != 0 {
		t.Errorf("outcome = %+v, want zero notified and zero failed", o)
	}
	if o.UsersFailed == nil {
		t.Error("UsersFailed must be an empty slice, not nil")
	}
	if len(n.calls) != 0 {
		t.Errorf("notifier called %v, want no calls", n.calls)
	}
}

func TestDispatchQueryFailure(t *testing.T) {
	for _, qerr := range []error{
		fmt.Errorf("%w: connection refused", repo.ErrDirectoryUnavailable),
		fmt.Errorf("%w: unexpected EOF", repo.ErrDirectoryProtocol),
	} {
		t.Run(qerr.Error(), func(t *testing.T) {
			n := &fakeNotifier{}
			s := newService(&fakeDirectory{err: qerr}, n, 1)

			o := s.Dispatch(context.Background(), model.ProductAvailableEvent{ProductID: 42, AvailableOn: may1})

			if o.Status != model.DispatchQueryFailed {
				t.Errorf("Status = %s, want %s", o.Status, model.DispatchQueryFailed)
			}
			if o.QueryError != qerr.Error() {
				t.Errorf("QueryError = %q, want %q", o.QueryError, qerr.Error())
			}
			if o.UsersNotified != 0 || len(o.UsersFailed) != 0 || o.UsersResolved != 0 {
				t.Errorf("outcome = %+v, want all counters zero", o)
			}
			if len(n.calls) != 0 {
				t.Errorf("notifier called %v, want no calls", n.calls)
			}
		})
	}
}

func TestDispatchFailureIsolation(t *testing.T) {
	for _, parallel := range []int{1, 4} {
		t.Run(fmt.Sprintf("max_parallel=%d", parallel), func(t *testing.T) {
			n := &fakeNotifier{
				fail: map[int64]error{
					1: &notifiers.DeliveryError{Channel: notifiers.ChannelEmail, UserID: 1, Reason: "user has no email address"},
					4: errors.New("provider throttled"),
				},
				panics: map[int64]bool{3: true},
			}
			s := newService(&fakeDirectory{users: users(1, 2, 3, 4, 5)}, n, parallel)

			o := s.Dispatch(context.Background(), model.ProductAvailableEvent{ProductID: 42, AvailableOn: may1})

			if o.Status != model.DispatchCompleted {
				t.Errorf("Status = %s, want %s", o.Status, model.DispatchCompleted)
			}
			if o.UsersNotified != 2 {
				t.Errorf("UsersNotified = %d, want 2", o.UsersNotified)
			}
			assertInvariant(t, o)

			want := []model.UserFailure{
				{UserID: 1, Reason: "user has no email address"},
				{UserID: 3, Reason: "notifier panic: boom"},
				{UserID: 4, Reason: "provider throttled"},
			}
			if len(o.UsersFailed) != len(want) {
				t.Fatalf("UsersFailed = %+v, want %+v", o.UsersFailed, want)
			}
			for i := range want {
				if o.UsersFailed[i] != want[i] {
					t.Errorf("UsersFailed[%d] = %+v, want %+v", i, o.UsersFailed[i], want[i])
				}
			}
			if len(n.calls) != 5 {
				t.Errorf("notifier called %d times, want 5", len(n.calls))
			}
		})
	}
}

func TestDispatchDuplicateUsersAreNotifiedTwice(t *testing.T) {
	n := &fakeNotifier{}
	s := newService(&fakeDirectory{users: users(7, 7)}, n, 1)

	o := s.Dispatch(context.Background(), model.ProductAvailableEvent{ProductID: 42, AvailableOn: may1})

	if o.UsersNotified != 2 || fmt.Sprint(n.calls) != "[7 7]" {
		t.Errorf("UsersNotified = %d, calls = %v, want 2 and [7 7]", o.UsersNotified, n.calls)
	}
}

func TestDispatchDefaultsToProcessingDate(t *testing.T) {
	dir := &fakeDirectory{users: []model.AlertedUser{}}
	cfg := &config.Config{Dispatch: config.DispatchConfig{Timezone: "Asia/Tokyo"}}
	logger := zerolog.Nop()
	s := NewDispatchService(dir, &fakeNotifier{}, cfg, &logger)
	// 2024-04-30 20:00 UTC is already 2024-05-01 in Tokyo.
	s.now = func() time.Time { return time.Date(2024, 4, 30, 20, 0, 0, 0, time.UTC) }

	o := s.Dispatch(context.Background(), model.ProductAvailableEvent{ProductID: 42})

	if len(dir.queries) != 1 {
		t.Fatalf("directory queried %d times, want 1", len(dir.queries))
	}
	if got := dir.queries[0].AvailableOn.Format(model.DateLayout); got != "2024-05-01" {
		t.Errorf("query date = %s, want 2024-05-01", got)
	}
	if !o.AvailableOn.Equal(dir.queries[0].AvailableOn) {
		t.Errorf("outcome date = %v, want %v", o.AvailableOn, dir.queries[0].AvailableOn)
	}
}

func TestDispatchOutcomesAreIndependent(t *testing.T) {
	s := newService(&fakeDirectory{users: users(1)}, &fakeNotifier{}, 1)

	a := s.Dispatch(context.Background(), model.ProductAvailableEvent{ProductID: 1, AvailableOn: may1})
	b := s.Dispatch(context.Background(), model.ProductAvailableEvent{ProductID: 2, AvailableOn: may1})

	if a.ID == b.ID {
		t.Error("two dispatches share the same ID")
	}
	if a.ProductID != 1 || b.ProductID != 2 {
		t.Errorf("product ids = %d, %d", a.ProductID, b.ProductID)
	}
}
