package mockapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/amirk1998/car-rental-client/internal/models"
	"github.com/amirk1998/car-rental-client/pkg/money"
	"github.com/amirk1998/car-rental-client/pkg/validator"
)

const (
	statusPending = "pending"
	statusPaid    = "paid"
)

func (s *Server) listBookings(c *gin.Context) {
	username := c.GetString(usernameKey)

	s.mu.Lock()
	defer s.mu.Unlock()

	out := []models.Booking{}
	for id, booking := range s.bookings {
		if s.owners[id] == username {
			out = append(out, *booking)
		}
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) createBooking(c *gin.Context) {
	var req models.CreateBookingPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respond(c, http.StatusBadRequest, gin.H{"success": false, "message": "Invalid payload"})
		return
	}

	start, end, err := validator.New().ParseDateRange(req.StartDate, req.EndDate)
	if err != nil {
		s.respond(c, http.StatusOK, gin.H{"success": false, "message": "Invalid rental dates"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var car *models.Car
	for i := range s.cars {
		if s.cars[i].ID == req.Car {
			car = &s.cars[i]
		}
	}
	if car == nil {
		s.respond(c, http.StatusOK, gin.H{"success": false, "message": "Car not found"})
		return
	}

	if s.overlaps(req.Car, start, end) {
		s.respond(c, http.StatusOK, gin.H{"success": false, "message": "Car is not available for the selected dates"})
		return
	}

	price, err := money.Parse(string(car.PricePerDay))
	if err != nil {
		price = 0
	}
	total := strconv.FormatFloat(price*float64(money.RentalDays(start, end)), 'f', 2, 64)

	booking := &models.Booking{
		ID:          s.newID(),
		Car:         car.ID,
		CarName:     car.Name,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		PhoneNumber: req.PhoneNumber,
		Note:        req.Note,
		Status:      statusPending,
		TotalPrice:  models.Decimal(total),
		CreatedAt:   time.Now().UTC().Format(time.RFC3339),
	}
	s.bookings[booking.ID] = booking
	s.owners[booking.ID] = c.GetString(usernameKey)

	s.respond(c, http.StatusCreated, gin.H{
		"success": true,
		"message": "Booking created",
		"data": gin.H{
			"booking_id":  booking.ID,
			"car":         booking.Car,
			"start_date":  booking.StartDate,
			"end_date":    booking.EndDate,
			"total_price": booking.TotalPrice,
			"status":      booking.Status,
		},
	})
}

// overlaps reports whether car already has a booking intersecting
// [start, end]. Callers hold s.mu.
func (s *Server) overlaps(carID int64, start, end time.Time) bool {
	for _, b := range s.bookings {
		if b.Car != carID {
			continue
		}
		bs, err1 := time.Parse(validator.DateLayout, b.StartDate)
		be, err2 := time.Parse(validator.DateLayout, b.EndDate)
		if err1 != nil || err2 != nil {
			continue
		}
		if !start.After(be) && !end.Before(bs) {
			return true
		}
	}
	return false
}

func (s *Server) deleteBooking(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Not found."})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.bookings[id]; !ok || s.owners[id] != c.GetString(usernameKey) {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Not found."})
		return
	}

	delete(s.bookings, id)
	delete(s.owners, id)
	c.Status(http.StatusNoContent)
}

func (s *Server) createPayment(c *gin.Context) {
	var req models.PaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respond(c, http.StatusBadRequest, gin.H{"success": false, "message": "Invalid payload"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	booking, ok := s.bookings[req.Booking]
	if !ok || s.owners[req.Booking] != c.GetString(usernameKey) {
		s.respond(c, http.StatusOK, gin.H{"success": false, "message": "Booking not found"})
		return
	}
	if booking.Status == statusPaid {
		s.respond(c, http.StatusOK, gin.H{"success": false, "message": "Booking is already paid"})
		return
	}

	switch {
	case len(req.CardNumber) != 16 || validator.NormalizeCardNumber(req.CardNumber) != req.CardNumber:
		s.respond(c, http.StatusOK, gin.H{"success": false, "message": "Invalid card number"})
		return
	case req.CardType == "":
		s.respond(c, http.StatusOK, gin.H{"success": false, "message": "Card type is required"})
		return
	case s.cfg.DeclinePrefix != "" && strings.HasPrefix(req.CardNumber, s.cfg.DeclinePrefix):
		s.respond(c, http.StatusOK, gin.H{"success": false, "message": "card declined"})
		return
	}

	booking.Status = statusPaid
	contract := models.Contract{
		ID:        s.newID(),
		BookingID: booking.ID,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	s.contracts = append(s.contracts, contract)

	s.respond(c, http.StatusCreated, gin.H{
		"success": true,
		"message": "Payment successful",
		"data": gin.H{
			"booking":     booking.ID,
			"amount":      booking.TotalPrice,
			"card_type":   req.CardType,
			"card_last4":  req.CardNumber[12:],
			"contract_id": contract.ID,
		},
	})
}
