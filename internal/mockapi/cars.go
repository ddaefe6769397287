package mockapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

func (s *Server) listCars(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.JSON(http.StatusOK, s.cars)
}

func (s *Server) getCar(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Not found."})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, car := range s.cars {
		if car.ID == id {
			c.JSON(http.StatusOK, car)
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"detail": "Not found."})
}

// listBrands answers in the paginated shape; the client also accepts the
// other shapes the real server has used.
func (s *Server) listBrands(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"count": len(s.brands), "results": s.brands})
}

func (s *Server) getBrand(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Not found."})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, brand := range s.brands {
		if brand.ID == id {
			c.JSON(http.StatusOK, brand)
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"detail": "Not found."})
}
