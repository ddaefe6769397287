package mockapi

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/phpdave11/gofpdf"

	"github.com/amirk1998/car-rental-client/internal/models"
	"github.com/amirk1998/car-rental-client/pkg/money"
)

func (s *Server) listContracts(c *gin.Context) {
	username := c.GetString(usernameKey)

	s.mu.Lock()
	defer s.mu.Unlock()

	out := []models.Contract{}
	for _, contract := range s.contracts {
		if s.owners[contract.BookingID] == username {
			out = append(out, contract)
		}
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) downloadContract(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Not found."})
		return
	}

	username := c.GetString(usernameKey)

	s.mu.Lock()
	var (
		contract *models.Contract
		booking  models.Booking
		profile  models.UserProfile
	)
	for i := range s.contracts {
		if s.contracts[i].ID == id && s.owners[s.contracts[i].BookingID] == username {
			contract = &s.contracts[i]
			if b, ok := s.bookings[contract.BookingID]; ok {
				booking = *b
			}
			profile = s.accounts[username].profile
		}
	}
	s.mu.Unlock()

	if contract == nil || booking.ID == 0 {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Not found."})
		return
	}

	pdf, err := buildContractPDF(*contract, booking, profile)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Could not render contract"})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="contract_%d.pdf"`, booking.ID))
	c.Data(http.StatusOK, "application/pdf", pdf)
}

func buildContractPDF(contract models.Contract, booking models.Booking, profile models.UserProfile) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Rental Contract", false)
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, "RENTAL CONTRACT")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 12)
	lines := []string{
		fmt.Sprintf("Contract No : %d", contract.ID),
		fmt.Sprintf("Booking No  : %d", booking.ID),
		fmt.Sprintf("Renter      : %s", profile.FullName()),
		fmt.Sprintf("Phone       : %s", booking.PhoneNumber),
		fmt.Sprintf("Car         : %s", booking.CarName),
		fmt.Sprintf("Period      : %s - %s", booking.StartDate, booking.EndDate),
		fmt.Sprintf("Total       : %s", money.FormatWithCurrency(string(booking.TotalPrice))),
		fmt.Sprintf("Issued      : %s", time.Now().Format("2006-01-02 15:04")),
	}
	for _, line := range lines {
		pdf.Cell(0, 7, line)
		pdf.Ln(7)
	}

	pdf.Ln(6)
	pdf.SetFont("Helvetica", "I", 10)
	pdf.MultiCell(0, 6, "The renter returns the car in the condition it was received, on the end date above.", "", "", false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
