package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/amirk1998/car-rental-client/internal/models"
	"github.com/amirk1998/car-rental-client/pkg/errors"
)

const (
	usersPrefix = "/api/v1/users/api/v1"
	carsPrefix  = "/api/v1/cars/api/v1"
)

// ObtainToken exchanges credentials for an access token.
func (c *Client) ObtainToken(ctx context.Context, creds models.LoginRequest) (*models.TokenResponse, error) {
	body, _, err := c.do(ctx, request{
		method:   http.MethodPost,
		path:     usersPrefix + "/token/",
		body:     creds,
		fallback: "Login failed",
	})
	if err != nil {
		return nil, err
	}

	var token models.TokenResponse
	if err := decode(body, &token); err != nil {
		return nil, err
	}
	if token.Access == "" {
		return nil, fmt.Errorf("%w: token response has no access token", errors.ErrMalformedResponse)
	}
	return &token, nil
}

func (c *Client) Register(ctx context.Context, req models.RegisterRequest) error {
	_, _, err := c.do(ctx, request{
		method:   http.MethodPost,
		path:     usersPrefix + "/register/",
		body:     req,
		fallback: "Registration failed",
	})
	return err
}

// Me returns the profile of the current user.
func (c *Client) Me(ctx context.Context) (*models.UserProfile, error) {
	body, _, err := c.do(ctx, request{method: http.MethodGet, path: usersPrefix + "/me/"})
	if err != nil {
		return nil, err
	}
	return decodeProfile(body)
}

// MeWithToken fetches the profile for a token that is not stored yet, as
// login does before the session is established.
func (c *Client) MeWithToken(ctx context.Context, token string) (*models.UserProfile, error) {
	body, _, err := c.do(ctx, request{method: http.MethodGet, path: usersPrefix + "/me/", token: token})
	if err != nil {
		return nil, err
	}
	return decodeProfile(body)
}

func (c *Client) UpdateMe(ctx context.Context, req models.UpdateProfileRequest) (*models.UserProfile, error) {
	body, _, err := c.do(ctx, request{
		method:   http.MethodPatch,
		path:     usersPrefix + "/me/",
		body:     req,
		fallback: "Could not update profile",
	})
	if err != nil {
		return nil, err
	}
	return decodeProfile(body)
}

// decodeProfile reads a profile from either the {success, data} envelope or
// a bare user object.
func decodeProfile(body []byte) (*models.UserProfile, error) {
	var env struct {
		Success *bool           `json:"success"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	if err := decode(body, &env); err != nil {
		return nil, err
	}

	raw := body
	if env.Success != nil {
		if !*env.Success {
			return nil, errors.NewAppError(errors.ErrRejected, env.Message, 0)
		}
		raw = env.Data
	}

	var profile models.UserProfile
	if err := decode(raw, &profile); err != nil {
		return nil, err
	}
	if profile.Username == "" {
		return nil, fmt.Errorf("%w: profile has no username", errors.ErrMalformedResponse)
	}
	return &profile, nil
}

func (c *Client) ListCars(ctx context.Context) ([]models.Car, error) {
	body, _, err := c.do(ctx, request{method: http.MethodGet, path: carsPrefix + "/cars/", fallback: "Could not load cars"})
	if err != nil {
		return nil, err
	}

	var cars []models.Car
	if err := decodeList(body, &cars, "results", "cars"); err != nil {
		return nil, err
	}
	return cars, nil
}

func (c *Client) GetCar(ctx context.Context, id int64) (*models.Car, error) {
	body, _, err := c.do(ctx, request{method: http.MethodGet, path: fmt.Sprintf("%s/cars/%d/", carsPrefix, id), fallback: "Could not load car"})
	if err != nil {
		return nil, err
	}

	var car models.Car
	if err := decode(body, &car); err != nil {
		return nil, err
	}
	return &car, nil
}

// ListBrands accepts {results: [...]}, {brands: [...]} and bare arrays.
func (c *Client) ListBrands(ctx context.Context) ([]models.Brand, error) {
	body, _, err := c.do(ctx, request{method: http.MethodGet, path: carsPrefix + "/brands/"})
	if err != nil {
		return nil, err
	}

	var brands []models.Brand
	if err := decodeList(body, &brands, "results", "brands"); err != nil {
		return nil, err
	}
	return brands, nil
}

func (c *Client) GetBrand(ctx context.Context, id int64) (*models.Brand, error) {
	body, _, err := c.do(ctx, request{method: http.MethodGet, path: fmt.Sprintf("%s/brands/%d/", carsPrefix, id)})
	if err != nil {
		return nil, err
	}

	var brand models.Brand
	if err := decode(body, &brand); err != nil {
		return nil, err
	}
	return &brand, nil
}

// CreateBookingRecord posts the booking half of the saga. A 2xx reply with
// success=false is returned as an envelope, not an error.
func (c *Client) CreateBookingRecord(ctx context.Context, payload models.CreateBookingPayload, idempotencyKey string) (*models.Envelope, error) {
	return c.postEnvelope(ctx, carsPrefix+"/bookings/create/", payload, idempotencyKey, "Booking failed")
}

// CreatePayment posts the payment half of the saga.
func (c *Client) CreatePayment(ctx context.Context, payment models.PaymentRequest, idempotencyKey string) (*models.Envelope, error) {
	return c.postEnvelope(ctx, carsPrefix+"/payments/create/", payment, idempotencyKey, "Payment failed")
}

func (c *Client) postEnvelope(ctx context.Context, path string, payload interface{}, key, fallback string) (*models.Envelope, error) {
	body, _, err := c.do(ctx, request{
		method:         http.MethodPost,
		path:           path,
		body:           payload,
		idempotencyKey: key,
		fallback:       fallback,
	})
	if err != nil {
		return nil, err
	}

	var env models.Envelope
	if err := decode(body, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

func (c *Client) DeleteBooking(ctx context.Context, id int64) error {
	_, _, err := c.do(ctx, request{
		method:   http.MethodDelete,
		path:     fmt.Sprintf("%s/bookings/%d/", carsPrefix, id),
		fallback: "Could not cancel booking",
	})
	return err
}

func (c *Client) ListBookings(ctx context.Context) ([]models.Booking, error) {
	body, _, err := c.do(ctx, request{method: http.MethodGet, path: carsPrefix + "/bookings/", fallback: "Could not load bookings"})
	if err != nil {
		return nil, err
	}

	var bookings []models.Booking
	if err := decodeList(body, &bookings, "results", "bookings"); err != nil {
		return nil, err
	}
	return bookings, nil
}

func (c *Client) ListContracts(ctx context.Context) ([]models.Contract, error) {
	body, _, err := c.do(ctx, request{method: http.MethodGet, path: carsPrefix + "/contracts/", fallback: "Could not load contracts"})
	if err != nil {
		return nil, err
	}

	var contracts []models.Contract
	if err := decodeList(body, &contracts, "results", "contracts"); err != nil {
		return nil, err
	}
	return contracts, nil
}

// DownloadContract returns the PDF bytes of a contract.
func (c *Client) DownloadContract(ctx context.Context, id int64) ([]byte, error) {
	body, _, err := c.do(ctx, request{
		method:   http.MethodGet,
		path:     fmt.Sprintf("%s/contracts/%d/", carsPrefix, id),
		accept:   "application/pdf",
		fallback: "Could not download contract",
	})
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty contract file", errors.ErrMalformedResponse)
	}
	return body, nil
}
