package service

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/amirk1998/car-rental-client/internal/api"
	"github.com/amirk1998/car-rental-client/internal/logging"
	"github.com/amirk1998/car-rental-client/internal/models"
	"github.com/amirk1998/car-rental-client/pkg/errors"
)

// Home is what the home screen needs: every car and the brand filter
// choices, "All" first.
type Home struct {
	Cars   []models.Car
	Brands []string
}

type CatalogService struct {
	api *api.Client
	log *zap.Logger
}

func NewCatalogService(client *api.Client, log *zap.Logger) *CatalogService {
	return &CatalogService{api: client, log: logging.OrNop(log).Named("catalog")}
}

// Home loads cars and brands concurrently. A failed brand list degrades to
// just "All"; an auth failure is returned either way.
func (s *CatalogService) Home(ctx context.Context) (*Home, error) {
	var cars []models.Car
	var brands []models.Brand
	var brandErr error

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		cars, err = s.api.ListCars(gctx)
		return err
	})
	g.Go(func() error {
		brands, brandErr = s.api.ListBrands(gctx)
		if errors.IsAuthFailure(brandErr) {
			return brandErr
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if brandErr != nil {
		s.log.Warn("brand list unavailable", zap.Error(brandErr))
		brands = nil
	}

	resolveBrandNames(cars, brands)

	return &Home{Cars: cars, Brands: BrandChoices(brands)}, nil
}

// Car returns one car, filling in the brand name from the brand endpoint
// when the car record lacks it.
func (s *CatalogService) Car(ctx context.Context, id int64) (*models.Car, error) {
	car, err := s.api.GetCar(ctx, id)
	if err != nil {
		return nil, err
	}

	if car.BrandName == "" && car.Brand != 0 {
		brand, err := s.api.GetBrand(ctx, car.Brand)
		switch {
		case errors.IsAuthFailure(err):
			return nil, err
		case err != nil:
			s.log.Debug("brand lookup failed", zap.Int64("brand", car.Brand), zap.Error(err))
		default:
			car.BrandName = brand.Name
		}
	}

	return car, nil
}

func (s *CatalogService) Brands(ctx context.Context) ([]models.Brand, error) {
	return s.api.ListBrands(ctx)
}

// BrandChoices de-duplicates and sorts brand names and puts "All" first.
func BrandChoices(brands []models.Brand) []string {
	seen := map[string]bool{}
	var names []string
	for _, b := range brands {
		name := strings.TrimSpace(b.Name)
		if name == "" || name == models.AllBrands || seen[strings.ToLower(name)] {
			continue
		}
		seen[strings.ToLower(name)] = true
		names = append(names, name)
	}
	sort.Strings(names)
	return append([]string{models.AllBrands}, names...)
}

// Filter keeps cars of f.Brand (everything for "All" or "") whose name,
// brand name or model contains f.Query, case-insensitively.
func Filter(cars []models.Car, f models.CarFilter) []models.Car {
	brand := f.Brand
	query := strings.ToLower(strings.TrimSpace(f.Query))
	out := make([]models.Car, 0, len(cars))
	for _, car := range cars {
		if brand != "" && brand != models.AllBrands && !strings.EqualFold(car.BrandName, brand) {
			continue
		}
		if query != "" &&
			!strings.Contains(strings.ToLower(car.Name), query) &&
			!strings.Contains(strings.ToLower(car.BrandName), query) &&
			!strings.Contains(strings.ToLower(car.Model), query) {
			continue
		}
		out = append(out, car)
	}
	return out
}

func resolveBrandNames(cars []models.Car, brands []models.Brand) {
	byID := make(map[int64]string, len(brands))
	for _, b := range brands {
		byID[b.ID] = b.Name
	}
	for i := range cars {
		if cars[i].BrandName == "" {
			cars[i].BrandName = byID[cars[i].Brand]
		}
	}
}
