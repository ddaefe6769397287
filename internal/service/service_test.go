package service

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/amirk1998/car-rental-client/internal/api"
	"github.com/amirk1998/car-rental-client/internal/models"
	"github.com/amirk1998/car-rental-client/internal/session"
	"github.com/amirk1998/car-rental-client/internal/storage"
	"github.com/amirk1998/car-rental-client/pkg/errors"
)

// memLedger is an in-memory Ledger.
type memLedger struct {
	mu      sync.Mutex
	rows    map[string]*models.BookingAttempt
	markErr error
}

func newMemLedger() *memLedger {
	return &memLedger{rows: map[string]*models.BookingAttempt{}}
}

func (l *memLedger) Create(_ context.Context, a *models.BookingAttempt) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if prev, ok := l.rows[a.IdempotencyKey]; ok && !prev.Status.Reusable() {
		return errors.ErrDuplicateSubmission
	}
	cp := *a
	cp.Status = models.AttemptPending
	cp.UpdatedAt = time.Now()
	l.rows[a.IdempotencyKey] = &cp
	a.Status = models.AttemptPending
	return nil
}

func (l *memLedger) GetByKey(_ context.Context, key string) (*models.BookingAttempt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.rows[key]
	if !ok {
		return nil, errors.ErrRecordNotFound
	}
	cp := *a
	return &cp, nil
}

func (l *memLedger) MarkBooked(ctx context.Context, key string, id int64, data json.RawMessage) error {
	if l.markErr != nil {
		return l.markErr
	}
	if err := l.UpdateStatus(ctx, key, models.AttemptBooked, ""); err != nil {
		return err
	}
	l.mu.Lock()
	l.rows[key].BookingID = &id
	l.rows[key].BookingData = data
	l.mu.Unlock()
	return nil
}

func (l *memLedger) UpdateStatus(_ context.Context, key string, status models.AttemptStatus, lastErr string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.rows[key]
	if !ok {
		return errors.ErrRecordNotFound
	}
	if !a.Status.CanTransitionTo(status) {
		return errors.ErrInvalidInput
	}
	a.Status = status
	a.LastError = lastErr
	a.UpdatedAt = time.Now()
	return nil
}

func (l *memLedger) ClaimCompensations(_ context.Context, backoff time.Duration, limit int) ([]*models.BookingAttempt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*models.BookingAttempt
	for _, a := range l.rows {
		if a.Status == models.AttemptCompensationFailed && a.BookingID != nil && !a.UpdatedAt.After(time.Now().Add(-backoff)) {
			a.UpdatedAt = time.Now()
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (l *memLedger) status(key string) models.AttemptStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rows[key].Status
}

func (l *memLedger) get(key string) models.BookingAttempt {
	l.mu.Lock()
	defer l.mu.Unlock()
	return *l.rows[key]
}

type nopNav struct{}

func (nopNav) ToLogin() {}
func (nopNav) ToHome()  {}

type nopNotifier struct{}

func (nopNotifier) Alert(string, string) {}

type call struct {
	Method string
	Path   string
	Key    string
	Body   map[string]interface{}
}

// fakeServer records every call and answers from a handler map keyed by
// "METHOD path".
type fakeServer struct {
	mu       sync.Mutex
	calls    []call
	handlers map[string]func(w http.ResponseWriter)
}

func (f *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body map[string]interface{}
	if data, _ := io.ReadAll(r.Body); len(data) > 0 {
		json.Unmarshal(data, &body)
	}

	f.mu.Lock()
	f.calls = append(f.calls, call{Method: r.Method, Path: r.URL.Path, Key: r.Header.Get("Idempotency-Key"), Body: body})
	h, ok := f.handlers[r.Method+" "+r.URL.Path]
	f.mu.Unlock()

	if !ok {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"detail":"Not found."}`))
		return
	}
	h(w)
}

func (f *fakeServer) paths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		out = append(out, c.Method+" "+c.Path)
	}
	return out
}

func reply(status int, body string) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.WriteHeader(status)
		w.Write([]byte(body))
	}
}

const (
	bookingPath = "POST /api/v1/cars/api/v1/bookings/create/"
	paymentPath = "POST /api/v1/cars/api/v1/payments/create/"
	deletePath  = "DELETE /api/v1/cars/api/v1/bookings/42/"
)

type fixture struct {
	server  *fakeServer
	client  *api.Client
	session *session.Manager
	ledger  *memLedger
	booking *BookingService
}

func newFixture(t *testing.T, handlers map[string]func(w http.ResponseWriter)) *fixture {
	t.Helper()
	fs := &fakeServer{handlers: handlers}
	srv := httptest.NewServer(fs)
	t.Cleanup(srv.Close)

	sess := session.NewManager(storage.NewMemoryStore(), nopNav{}, nopNotifier{}, nil)
	sess.Login(context.Background(), "abc123")

	client := api.NewClient(srv.URL, 0, sess, nil)
	ledger := newMemLedger()

	return &fixture{
		server:  fs,
		client:  client,
		session: sess,
		ledger:  ledger,
		booking: NewBookingService(client, ledger, nil, nil, nil, ""),
	}
}

func validRequest() *models.BookingRequest {
	return &models.BookingRequest{
		CarID:       7,
		StartDate:   "2025-03-01",
		EndDate:     "2025-03-03",
		PhoneNumber: "+998901234567",
		PaymentDetails: models.PaymentDetails{
			CardNumber:     "4111 1111 1111 1111",
			ExpiryDate:     "12/27",
			CVV:            "123",
			CardHolderName: "Ali Valiyev",
		},
	}
}
