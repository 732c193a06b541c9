package http

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/dkeye/huddle/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

const tokenKey = "token"

// AdminSession is the payload kept in the auth store. The cookie only
// carries its token.
type AdminSession struct {
	Username string    `json:"username"`
	LoginAt  time.Time `json:"loginAt"`
}

type AdminCredentials struct {
	Username     string
	PasswordHash []byte
}

// NewAdminCredentials hashes password unless a bcrypt hash is given.
func NewAdminCredentials(username, password, hash string, cost int) (AdminCredentials, error) {
	if hash != "" {
		return AdminCredentials{Username: username, PasswordHash: []byte(hash)}, nil
	}
	if password == "" {
		log.Warn().Str("module", "adapters.http").Msg("admin password not set, dashboard login disabled")
		return AdminCredentials{Username: username}, nil
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return AdminCredentials{}, err
	}
	return AdminCredentials{Username: username, PasswordHash: h}, nil
}

func (a AdminCredentials) verify(username, password string) bool {
	if len(a.PasswordHash) == 0 {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(a.Username)) == 1
	passOK := bcrypt.CompareHashAndPassword(a.PasswordHash, []byte(password)) == nil
	return userOK && passOK
}

type loginRequest struct {
	Username string `json:"username" binding:"required,max=128"`
	Password string `json:"password" binding:"required,max=128"`
}

func (h *handlers) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "username and password are required")
		return
	}
	if !h.admin.verify(req.Username, req.Password) {
		log.Warn().Str("module", "adapters.http").Str("user", req.Username).Str("remote", c.ClientIP()).Msg("login failed")
		abortError(c, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token := uuid.NewString()
	payload := AdminSession{Username: req.Username, LoginAt: time.Now()}
	h.auth.Set(token, payload)

	sess := sessions.Default(c)
	sess.Set(tokenKey, token)
	if err := sess.Save(); err != nil {
		h.auth.Destroy(token)
		log.Error().Err(err).Str("module", "adapters.http").Msg("save session")
		abortError(c, http.StatusInternalServerError, "could not start session")
		return
	}
	log.Info().Str("module", "adapters.http").Str("user", req.Username).Msg("admin logged in")
	c.JSON(http.StatusOK, gin.H{"success": true, "user": payload})
}

func (h *handlers) logout(c *gin.Context) {
	sess := sessions.Default(c)
	if token, ok := sess.Get(tokenKey).(string); ok {
		h.auth.Destroy(token)
	}
	sess.Clear()
	sess.Options(sessions.Options{Path: "/", MaxAge: -1})
	if err := sess.Save(); err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("clear session")
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *handlers) check(c *gin.Context) {
	s, ok := h.currentAdmin(c)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"authenticated": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"authenticated": true, "user": s})
}

func (h *handlers) currentAdmin(c *gin.Context) (AdminSession, bool) {
	token, ok := sessions.Default(c).Get(tokenKey).(string)
	if !ok || token == "" {
		return AdminSession{}, false
	}
	return h.auth.Get(token)
}

func (h *handlers) requireAdmin(c *gin.Context) {
	if _, ok := h.currentAdmin(c); !ok {
		abortError(c, http.StatusUnauthorized, domain.ErrUnauthenticated.Error())
		return
	}
	c.Next()
}
