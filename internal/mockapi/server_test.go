package mockapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/amirk1998/car-rental-client/internal/api"
	"github.com/amirk1998/car-rental-client/internal/models"
	"github.com/amirk1998/car-rental-client/internal/service"
	"github.com/amirk1998/car-rental-client/internal/session"
	"github.com/amirk1998/car-rental-client/internal/storage"
	"github.com/amirk1998/car-rental-client/pkg/errors"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := New(Config{JWTSecret: "test-secret", DeclinePrefix: "4000", BcryptCost: bcrypt.MinCost}, nil)
	require.NoError(t, err)
	return s
}

func doJSON(t *testing.T, h http.Handler, method, path, token, key string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func demoToken(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, "/api/v1/users/api/v1/token/", "", "",
		models.LoginRequest{Username: DemoUsername, Password: DemoPassword})
	require.Equal(t, http.StatusOK, rec.Code)

	var tok models.TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tok))
	require.NotEmpty(t, tok.Access)
	return tok.Access
}

func TestAuthRequired(t *testing.T) {
	h := newTestServer(t).Router()

	rec := doJSON(t, h, http.MethodGet, "/api/v1/cars/api/v1/cars/", "", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Authentication credentials were not provided.")

	rec = doJSON(t, h, http.MethodGet, "/api/v1/cars/api/v1/cars/", "garbage", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Given token not valid")
}

func TestObtainToken_WrongPassword(t *testing.T) {
	h := newTestServer(t).Router()

	rec := doJSON(t, h, http.MethodPost, "/api/v1/users/api/v1/token/", "", "",
		models.LoginRequest{Username: DemoUsername, Password: "nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "No active account found")
}

func TestRegister_DuplicateUsername(t *testing.T) {
	h := newTestServer(t).Router()

	rec := doJSON(t, h, http.MethodPost, "/api/v1/users/api/v1/register/", "", "", models.RegisterRequest{
		Username: DemoUsername, Password: "secret123", Password2: "secret123",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "already exists")
}

func TestCreateBooking_IdempotentReplay(t *testing.T) {
	s := newTestServer(t)
	h := s.Router()
	token := demoToken(t, h)

	payload := models.CreateBookingPayload{Car: 1, StartDate: "2025-05-01", EndDate: "2025-05-03", PhoneNumber: "+998901234567"}
	first := doJSON(t, h, http.MethodPost, "/api/v1/cars/api/v1/bookings/create/", token, "k-1", payload)
	second := doJSON(t, h, http.MethodPost, "/api/v1/cars/api/v1/bookings/create/", token, "k-1", payload)

	require.Equal(t, http.StatusCreated, first.Code)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))

	s.mu.Lock()
	assert.Len(t, s.bookings, 1)
	for _, b := range s.bookings {
		assert.Equal(t, models.Decimal("1050000.00"), b.TotalPrice)
	}
	s.mu.Unlock()
}

func TestCreateBooking_Overlap(t *testing.T) {
	h := newTestServer(t).Router()
	token := demoToken(t, h)

	first := doJSON(t, h, http.MethodPost, "/api/v1/cars/api/v1/bookings/create/", token, "a",
		models.CreateBookingPayload{Car: 2, StartDate: "2025-05-01", EndDate: "2025-05-05"})
	require.Equal(t, http.StatusCreated, first.Code)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/cars/api/v1/bookings/create/", token, "b",
		models.CreateBookingPayload{Car: 2, StartDate: "2025-05-05", EndDate: "2025-05-07"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Car is not available for the selected dates")
}

func TestDeleteBooking_UnknownIs404(t *testing.T) {
	h := newTestServer(t).Router()
	token := demoToken(t, h)

	rec := doJSON(t, h, http.MethodDelete, "/api/v1/cars/api/v1/bookings/999/", token, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// The client stack against the mock server: login, book, pay, download.
func TestEndToEnd(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)

	ctx := context.Background()
	sess := session.NewManager(storage.NewMemoryStore(), nopNav{}, nopNotifier{}, nil)
	client := api.NewClient(srv.URL, 0, sess, nil)
	auth := service.NewAuthService(client, sess, nil, nil, nil)
	booking := service.NewBookingService(client, nil, nil, nil, nil, "")

	profile, err := auth.Login(ctx, DemoUsername, DemoPassword)
	require.NoError(t, err)
	assert.Equal(t, "Demo Driver", profile.FullName())
	assert.True(t, sess.Snapshot().Authenticated())

	req := &models.BookingRequest{
		CarID:       3,
		StartDate:   "2025-06-01",
		EndDate:     "2025-06-02",
		PhoneNumber: "+998901234567",
		PaymentDetails: models.PaymentDetails{
			CardNumber:     "5614 6812 3456 7890",
			ExpiryDate:     "10/28",
			CVV:            "321",
			CardHolderName: "Demo Driver",
		},
	}
	result, err := booking.CreateBooking(ctx, req)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.NotZero(t, result.BookingID)

	list, err := client.ListContracts(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, result.BookingID, list[0].BookingID)

	pdf, err := client.DownloadContract(ctx, list[0].ID)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(pdf, []byte("%PDF")))

	bookings, err := booking.Bookings(ctx)
	require.NoError(t, err)
	require.Len(t, bookings, 1)
	assert.Equal(t, "paid", bookings[0].Status)
}

func TestEndToEnd_DeclinedCardIsCompensated(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)

	ctx := context.Background()
	sess := session.NewManager(storage.NewMemoryStore(), nopNav{}, nopNotifier{}, nil)
	client := api.NewClient(srv.URL, 0, sess, nil)
	_, err := service.NewAuthService(client, sess, nil, nil, nil).Login(ctx, DemoUsername, DemoPassword)
	require.NoError(t, err)

	result, err := service.NewBookingService(client, nil, nil, nil, nil, "").CreateBooking(ctx, &models.BookingRequest{
		CarID:       4,
		StartDate:   "2025-07-01",
		EndDate:     "2025-07-01",
		PhoneNumber: "998901234567",
		PaymentDetails: models.PaymentDetails{
			CardNumber:     "4000000000000002",
			ExpiryDate:     "01/29",
			CVV:            "111",
			CardHolderName: "Demo Driver",
		},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrPaymentRejected))
	assert.Equal(t, "card declined", result.Message)

	s.mu.Lock()
	assert.Empty(t, s.bookings, "the booking was deleted again")
	s.mu.Unlock()

	var methods []string
	for _, r := range s.Requests() {
		methods = append(methods, r.Method+" "+r.Path)
	}
	assert.Contains(t, methods, "DELETE /api/v1/cars/api/v1/bookings/"+jsonInt(result.BookingID)+"/")
}

func jsonInt(v int64) string {
	data, _ := json.Marshal(v)
	return string(data)
}

type nopNav struct{}

func (nopNav) ToLogin() {}
func (nopNav) ToHome()  {}

type nopNotifier struct{}

func (nopNotifier) Alert(string, string) {}
