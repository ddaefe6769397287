// Package mockapi is an in-memory implementation of the car-rental HTTP API
// for local development and end-to-end tests of the client.
package mockapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/amirk1998/car-rental-client/internal/logging"
	"github.com/amirk1998/car-rental-client/internal/models"
)

const (
	DemoUsername = "demo"
	DemoPassword = "demo12345"
)

type Config struct {
	JWTSecret string
	// DeclinePrefix makes payments with card numbers starting with it fail.
	DeclinePrefix  string
	AllowedOrigins []string
	TokenTTL       time.Duration
	BcryptCost     int
}

// RequestRecord is one entry of the request log.
type RequestRecord struct {
	Method         string
	Path           string
	Status         int
	IdempotencyKey string
	At             time.Time
}

type account struct {
	profile      models.UserProfile
	passwordHash []byte
}

type cachedResponse struct {
	status int
	body   gin.H
}

type Server struct {
	cfg Config
	log *zap.Logger

	mu        sync.Mutex
	accounts  map[string]*account
	brands    []models.Brand
	cars      []models.Car
	bookings  map[int64]*models.Booking
	owners    map[int64]string
	contracts []models.Contract
	requests  []RequestRecord
	nextID    int64

	// replayMu is separate from mu so handlers can respond while holding mu.
	replayMu sync.Mutex
	replays  map[string]cachedResponse
}

// New creates a server seeded with a demo account and a small fleet.
func New(cfg Config, log *zap.Logger) (*Server, error) {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}

	s := &Server{
		cfg:      cfg,
		log:      logging.OrNop(log).Named("mockapi"),
		accounts: map[string]*account{},
		bookings: map[int64]*models.Booking{},
		owners:   map[int64]string{},
		replays:  map[string]cachedResponse{},
		nextID:   100,
	}

	if err := s.addAccount(models.UserProfile{
		Username:    DemoUsername,
		Email:       "demo@example.uz",
		PhoneNumber: "+998901234567",
		FirstName:   "Demo",
		LastName:    "Driver",
	}, DemoPassword); err != nil {
		return nil, err
	}

	s.brands = []models.Brand{
		{ID: 1, Name: "Chevrolet"},
		{ID: 2, Name: "Kia"},
		{ID: 3, Name: "Hyundai"},
	}
	s.cars = []models.Car{
		{ID: 1, Name: "Cobalt", Brand: 1, BrandName: "Chevrolet", Model: "LTZ", Year: 2023, Seats: 5, PricePerDay: "350000.00", Description: "Reliable city sedan"},
		{ID: 2, Name: "Malibu", Brand: 1, BrandName: "Chevrolet", Model: "Turbo", Year: 2022, Seats: 5, PricePerDay: "650000.00", Description: "Business class sedan"},
		{ID: 3, Name: "K5", Brand: 2, BrandName: "Kia", Model: "GT Line", Year: 2024, Seats: 5, PricePerDay: "700000.00", Description: "Sporty midsize sedan"},
		{ID: 4, Name: "Sportage", Brand: 2, BrandName: "Kia", Model: "Premium", Year: 2023, Seats: 5, PricePerDay: "750000.00", Description: "Compact SUV"},
		{ID: 5, Name: "Tucson", Brand: 3, BrandName: "Hyundai", Model: "Elegance", Year: 2023, Seats: 5, PricePerDay: "720000.00", Description: "Family SUV"},
	}

	return s, nil
}

func (s *Server) addAccount(profile models.UserProfile, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	if err != nil {
		return err
	}
	s.accounts[profile.Username] = &account{profile: profile, passwordHash: hash}
	return nil
}

// Router builds the gin engine serving the API.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(s.requestLog(), gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if len(s.cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = s.cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowHeaders("Authorization", "Idempotency-Key")
	r.Use(cors.New(corsConfig))

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Not found."})
	})

	users := r.Group("/api/v1/users/api/v1")
	{
		users.POST("/token/", s.obtainToken)
		users.POST("/register/", s.register)
		users.GET("/me/", s.authRequired(), s.me)
		users.PATCH("/me/", s.authRequired(), s.updateMe)
	}

	cars := r.Group("/api/v1/cars/api/v1", s.authRequired())
	{
		cars.GET("/cars/", s.listCars)
		cars.GET("/cars/:id/", s.getCar)
		cars.GET("/brands/", s.listBrands)
		cars.GET("/brands/:id/", s.getBrand)
		cars.GET("/bookings/", s.listBookings)
		cars.POST("/bookings/create/", s.idempotent(), s.createBooking)
		cars.DELETE("/bookings/:id/", s.deleteBooking)
		cars.POST("/payments/create/", s.idempotent(), s.createPayment)
		cars.GET("/contracts/", s.listContracts)
		cars.GET("/contracts/:id/", s.downloadContract)
	}

	return r
}

// Requests returns a copy of the request log.
func (s *Server) Requests() []RequestRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RequestRecord, len(s.requests))
	copy(out, s.requests)
	return out
}

func (s *Server) newID() int64 {
	s.nextID++
	return s.nextID
}
