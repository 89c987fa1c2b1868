package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"github.com/yukikurage/circuit/internal/constants"
	"github.com/yukikurage/circuit/internal/database"
	"github.com/yukikurage/circuit/internal/dto"
	apierrors "github.com/yukikurage/circuit/internal/errors"
	"github.com/yukikurage/circuit/internal/middleware"
	"github.com/yukikurage/circuit/internal/models"
	"github.com/yukikurage/circuit/internal/repository"
	"github.com/yukikurage/circuit/internal/services"
	"github.com/yukikurage/circuit/internal/validation"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type authTestEnv struct {
	db          *gorm.DB
	handler     *AuthHandler
	authService *services.AuthService
}

// openTestDB returns a fresh in-memory database with every table migrated.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(database.Models()...))
	require.NoError(t, validation.Register())

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// One connection keeps every query on the same in-memory database.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		sqlDB.Close()
	})

	return db
}

func setupAuthTestEnv(t *testing.T) authTestEnv {
	t.Helper()

	db := openTestDB(t)
	userRepo := repository.NewUserRepository(db)
	authService := services.NewAuthService(userRepo, services.NewTokenService("test-secret", time.Hour))
	handler := NewAuthHandler(authService, services.NewUserService(userRepo))

	return authTestEnv{
		db:          db,
		handler:     handler,
		authService: authService,
	}
}

func (env authTestEnv) router() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	store := cookie.NewStore([]byte("secret"))
	r.Use(sessions.Sessions(constants.SessionCookieName, store))
	r.POST("/api/auth/signup", env.handler.Signup)
	r.POST("/api/auth/login", env.handler.Login)
	r.POST("/api/auth/logout", env.handler.Logout)
	r.GET("/api/auth/me", middleware.RequireAuth(env.authService), env.handler.GetCurrentUser)
	r.POST("/api/auth/password", middleware.RequireAuth(env.authService), env.handler.ChangePassword)
	return r
}

func postJSON(t *testing.T, r http.Handler, url string, payload any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthHandler_Signup(t *testing.T) {
	env := setupAuthTestEnv(t)
	r := env.router()

	w := postJSON(t, r, "/api/auth/signup", map[string]string{
		"email":    "New.User@Example.com",
		"password": "supersecret",
		"name":     "New User",
	})

	require.Equal(t, http.StatusCreated, w.Code)

	var response dto.UserDTO
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	require.Equal(t, "new.user@example.com", response.Email)
	require.Equal(t, models.RoleMember, response.Role)
	require.Equal(t, models.ProfileActive, response.ProfileState)
	require.NotContains(t, w.Body.String(), "password")
}

func TestAuthHandler_SignupRejectsDuplicateAndShortPassword(t *testing.T) {
	env := setupAuthTestEnv(t)
	r := env.router()

	_, err := env.authService.Signup(context.Background(), services.SignupInput{
		Email:    "taken@example.com",
		Password: "supersecret",
		Name:     "Taken",
	})
	require.NoError(t, err)

	w := postJSON(t, r, "/api/auth/signup", map[string]string{
		"email":    "TAKEN@example.com",
		"password": "supersecret",
		"name":     "Again",
	})
	require.Equal(t, http.StatusConflict, w.Code)

	w = postJSON(t, r, "/api/auth/signup", map[string]string{
		"email":    "short@example.com",
		"password": "short",
		"name":     "Short",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	var apiErr apierrors.APIError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &apiErr))
	require.Equal(t, apierrors.ErrCodeInvalidInput, apiErr.Code)

	// Longer than bcrypt accepts, counted in runes by binding and in bytes by the service.
	for _, password := range []string{strings.Repeat("a", 80), strings.Repeat("é", 40)} {
		w = postJSON(t, r, "/api/auth/signup", map[string]string{
			"email":    "long@example.com",
			"password": password,
			"name":     "Long",
		})
		require.Equal(t, http.StatusBadRequest, w.Code)
		var tooLong apierrors.APIError
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tooLong))
		require.Equal(t, apierrors.ErrCodeInvalidInput, tooLong.Code)
		require.Contains(t, tooLong.Details, "password")
	}
}

func TestAuthHandler_Login(t *testing.T) {
	env := setupAuthTestEnv(t)
	r := env.router()

	_, err := env.authService.Signup(context.Background(), services.SignupInput{
		Email:    "existing@example.com",
		Password: "supersecret",
		Name:     "Existing",
	})
	require.NoError(t, err)

	w := postJSON(t, r, "/api/auth/login", map[string]string{
		"email":    "existing@example.com",
		"password": "supersecret",
	})

	require.Equal(t, http.StatusOK, w.Code)

	var response dto.LoginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	require.Equal(t, "existing@example.com", response.User.Email)
	require.NotEmpty(t, response.Token)
	require.Greater(t, response.ExpiresAt, time.Now().Unix())

	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)

	// The session cookie authenticates /me.
	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	me := httptest.NewRecorder()
	r.ServeHTTP(me, req)
	require.Equal(t, http.StatusOK, me.Code)

	// So does the bearer token, without any cookie.
	req = httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", constants.BearerPrefix+response.Token)
	me = httptest.NewRecorder()
	r.ServeHTTP(me, req)
	require.Equal(t, http.StatusOK, me.Code)

	var current dto.UserDTO
	require.NoError(t, json.Unmarshal(me.Body.Bytes(), &current))
	require.Equal(t, response.User.ID, current.ID)
}

func TestAuthHandler_LoginRejections(t *testing.T) {
	env := setupAuthTestEnv(t)
	r := env.router()

	user, err := env.authService.Signup(context.Background(), services.SignupInput{
		Email:    "banned@example.com",
		Password: "supersecret",
		Name:     "Banned",
	})
	require.NoError(t, err)

	w := postJSON(t, r, "/api/auth/login", map[string]string{
		"email":    "banned@example.com",
		"password": "wrong-password",
	})
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = postJSON(t, r, "/api/auth/login", map[string]string{
		"email":    "nobody@example.com",
		"password": "supersecret",
	})
	require.Equal(t, http.StatusUnauthorized, w.Code)

	require.NoError(t, env.db.Model(user).Update("profile_state", models.ProfileBanned).Error)

	w = postJSON(t, r, "/api/auth/login", map[string]string{
		"email":    "banned@example.com",
		"password": "supersecret",
	})
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestAuthHandler_LogoutClearsSession(t *testing.T) {
	env := setupAuthTestEnv(t)
	r := env.router()

	_, err := env.authService.Signup(context.Background(), services.SignupInput{
		Email:    "logout@example.com",
		Password: "supersecret",
		Name:     "Logout",
	})
	require.NoError(t, err)

	login := postJSON(t, r, "/api/auth/login", map[string]string{
		"email":    "logout@example.com",
		"password": "supersecret",
	})
	require.Equal(t, http.StatusOK, login.Code)

	logout := postJSON(t, r, "/api/auth/logout", map[string]string{}, login.Result().Cookies()...)
	require.Equal(t, http.StatusOK, logout.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	for _, c := range logout.Result().Cookies() {
		req.AddCookie(c)
	}
	me := httptest.NewRecorder()
	r.ServeHTTP(me, req)
	require.Equal(t, http.StatusUnauthorized, me.Code)
}

func TestAuthHandler_ChangePassword(t *testing.T) {
	env := setupAuthTestEnv(t)
	r := env.router()

	_, err := env.authService.Signup(context.Background(), services.SignupInput{
		Email:    "rotate@example.com",
		Password: "supersecret",
		Name:     "Rotate",
	})
	require.NoError(t, err)

	login := postJSON(t, r, "/api/auth/login", map[string]string{
		"email":    "rotate@example.com",
		"password": "supersecret",
	})
	require.Equal(t, http.StatusOK, login.Code)
	cookies := login.Result().Cookies()

	w := postJSON(t, r, "/api/auth/password", map[string]string{
		"current_password": "not-the-password",
		"new_password":     "evenmoresecret",
	}, cookies...)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = postJSON(t, r, "/api/auth/password", map[string]string{
		"current_password": "supersecret",
		"new_password":     "evenmoresecret",
	}, cookies...)
	require.Equal(t, http.StatusOK, w.Code)

	w = postJSON(t, r, "/api/auth/login", map[string]string{
		"email":    "rotate@example.com",
		"password": "evenmoresecret",
	})
	require.Equal(t, http.StatusOK, w.Code)
}
