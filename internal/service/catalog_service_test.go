package service

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amirk1998/car-rental-client/internal/models"
	"github.com/amirk1998/car-rental-client/pkg/errors"
)

const (
	carsPath   = "GET /api/v1/cars/api/v1/cars/"
	brandsPath = "GET /api/v1/cars/api/v1/brands/"
)

func TestHome(t *testing.T) {
	f := newFixture(t, map[string]func(http.ResponseWriter){
		carsPath: reply(http.StatusOK, `[
			{"id":1,"name":"Cobalt","brand":1,"model":"LTZ","price_per_day":"450000.00"},
			{"id":2,"name":"Nexia","brand":1,"brand_name":"Chevrolet","price_per_day":300000}]`),
		brandsPath: reply(http.StatusOK, `{"results":[{"id":2,"name":"Kia"},{"id":1,"name":"Chevrolet"},{"id":3,"name":"kia"}]}`),
	})

	home, err := NewCatalogService(f.client, nil).Home(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"All", "Chevrolet", "Kia"}, home.Brands)
	require.Len(t, home.Cars, 2)
	assert.Equal(t, "Chevrolet", home.Cars[0].BrandName)
	assert.Equal(t, models.Decimal("300000"), home.Cars[1].PricePerDay)
}

func TestHome_BrandFailureDegrades(t *testing.T) {
	f := newFixture(t, map[string]func(http.ResponseWriter){
		carsPath:   reply(http.StatusOK, `[]`),
		brandsPath: reply(http.StatusInternalServerError, `oops`),
	})

	home, err := NewCatalogService(f.client, nil).Home(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"All"}, home.Brands)
}

func TestHome_UnauthorizedPropagates(t *testing.T) {
	f := newFixture(t, map[string]func(http.ResponseWriter){
		carsPath:   reply(http.StatusOK, `[]`),
		brandsPath: reply(http.StatusUnauthorized, `{"detail":"expired"}`),
	})

	_, err := NewCatalogService(f.client, nil).Home(context.Background())
	assert.True(t, errors.IsAuthFailure(err))
}

func TestCar_ResolvesBrand(t *testing.T) {
	f := newFixture(t, map[string]func(http.ResponseWriter){
		"GET /api/v1/cars/api/v1/cars/5/":   reply(http.StatusOK, `{"id":5,"name":"Sportage","brand":2}`),
		"GET /api/v1/cars/api/v1/brands/2/": reply(http.StatusOK, `{"id":2,"name":"Kia"}`),
	})

	car, err := NewCatalogService(f.client, nil).Car(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, "Kia", car.BrandName)
}

func TestFilter(t *testing.T) {
	cars := []models.Car{
		{ID: 1, Name: "Cobalt", BrandName: "Chevrolet", Model: "LTZ"},
		{ID: 2, Name: "K5", BrandName: "Kia", Model: "GT Line"},
		{ID: 3, Name: "Sportage", BrandName: "Kia", Model: "Premium"},
	}

	assert.Len(t, Filter(cars, models.CarFilter{Brand: models.AllBrands, Query: ""}), 3)
	assert.Len(t, Filter(cars, models.CarFilter{Brand: "", Query: ""}), 3)
	assert.Len(t, Filter(cars, models.CarFilter{Brand: "kia", Query: ""}), 2)
	assert.Equal(t, int64(2), Filter(cars, models.CarFilter{Brand: "Kia", Query: "gt"})[0].ID)
	assert.Equal(t, int64(1), Filter(cars, models.CarFilter{Brand: models.AllBrands, Query: "chev"})[0].ID)
	assert.Empty(t, Filter(cars, models.CarFilter{Brand: "Chevrolet", Query: "sportage"}))
}
