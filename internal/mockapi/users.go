package mockapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/amirk1998/car-rental-client/internal/models"
	"github.com/amirk1998/car-rental-client/pkg/validator"
)

func (s *Server) obtainToken(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid payload"})
		return
	}

	s.mu.Lock()
	acc, ok := s.accounts[req.Username]
	s.mu.Unlock()

	if !ok || bcrypt.CompareHashAndPassword(acc.passwordHash, []byte(req.Password)) != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "No active account found with the given credentials"})
		return
	}

	access, err := s.issueToken(req.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Could not issue token"})
		return
	}

	c.JSON(http.StatusOK, models.TokenResponse{Access: access, Refresh: access})
}

func (s *Server) register(c *gin.Context) {
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid payload"})
		return
	}

	v := validator.New()
	switch {
	case v.ValidateUsername(req.Username) != nil:
		c.JSON(http.StatusBadRequest, gin.H{"username": []string{"Enter a valid username."}})
		return
	case req.Password == "" || req.Password != req.Password2:
		c.JSON(http.StatusBadRequest, gin.H{"password": []string{"Password fields didn't match."}})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[req.Username]; exists {
		c.JSON(http.StatusBadRequest, gin.H{"username": []string{"A user with that username already exists."}})
		return
	}

	profile := models.UserProfile{
		Username:    req.Username,
		Email:       req.Email,
		PhoneNumber: req.PhoneNumber,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
	}
	if err := s.addAccount(profile, req.Password); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Could not create user"})
		return
	}

	c.JSON(http.StatusCreated, profile)
}

func (s *Server) me(c *gin.Context) {
	s.mu.Lock()
	profile := s.accounts[c.GetString(usernameKey)].profile
	s.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{"success": true, "data": profile})
}

func (s *Server) updateMe(c *gin.Context) {
	var req models.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid payload"})
		return
	}

	s.mu.Lock()
	acc := s.accounts[c.GetString(usernameKey)]
	if req.FirstName != "" {
		acc.profile.FirstName = req.FirstName
	}
	if req.LastName != "" {
		acc.profile.LastName = req.LastName
	}
	if req.PhoneNumber != "" {
		acc.profile.PhoneNumber = req.PhoneNumber
	}
	if req.Email != "" {
		acc.profile.Email = req.Email
	}
	profile := acc.profile
	s.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Profile updated", "data": profile})
}
