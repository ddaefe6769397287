package mockapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const (
	usernameKey       = "username"
	replayKey         = "replay_key"
	idempotencyHeader = "Idempotency-Key"
)

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		record := RequestRecord{
			Method:         c.Request.Method,
			Path:           c.Request.URL.Path,
			Status:         c.Writer.Status(),
			IdempotencyKey: c.GetHeader(idempotencyHeader),
			At:             start,
		}

		s.mu.Lock()
		s.requests = append(s.requests, record)
		s.mu.Unlock()

		s.log.Info("request",
			zap.String("method", record.Method),
			zap.String("path", record.Path),
			zap.Int("status", record.Status),
			zap.Duration("latency", time.Since(start)))
	}
}

func (s *Server) issueToken(username string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"username": username,
		"exp":      time.Now().Add(s.cfg.TokenTTL).Unix(),
		"iat":      time.Now().Unix(),
	})
	return token.SignedString([]byte(s.cfg.JWTSecret))
}

// authRequired accepts HS256 bearer tokens issued by this server.
func (s *Server) authRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Authentication credentials were not provided."})
			return
		}

		claims := jwt.MapClaims{}
		_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return []byte(s.cfg.JWTSecret), nil
		})
		username, _ := claims["username"].(string)
		if err != nil || username == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Given token not valid for any token type"})
			return
		}

		s.mu.Lock()
		_, exists := s.accounts[username]
		s.mu.Unlock()
		if !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "User not found"})
			return
		}

		c.Set(usernameKey, username)
		c.Next()
	}
}

// idempotent answers a repeated Idempotency-Key with the first response.
// Handlers store their response through respond.
func (s *Server) idempotent() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(idempotencyHeader)
		if key == "" {
			c.Next()
			return
		}

		cacheKey := c.GetString(usernameKey) + "|" + c.FullPath() + "|" + key
		s.replayMu.Lock()
		cached, ok := s.replays[cacheKey]
		s.replayMu.Unlock()
		if ok {
			c.Header("Idempotent-Replayed", "true")
			c.AbortWithStatusJSON(cached.status, cached.body)
			return
		}

		c.Set(replayKey, cacheKey)
		c.Next()
	}
}

// respond writes body and remembers it for idempotent replays.
func (s *Server) respond(c *gin.Context, status int, body gin.H) {
	if cacheKey := c.GetString(replayKey); cacheKey != "" {
		s.replayMu.Lock()
		s.replays[cacheKey] = cachedResponse{status: status, body: body}
		s.replayMu.Unlock()
	}
	c.JSON(status, body)
}
