package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailgate/mailgate/internal/models"
	"github.com/mailgate/mailgate/internal/repository"
	"github.com/mailgate/mailgate/internal/utils"
)

type fakeDomainRepo struct {
	byHash map[string]*models.Domain
}

func (f *fakeDomainRepo) Create(_ context.Context, _ *models.Domain) error { return nil }

func (f *fakeDomainRepo) GetByID(_ context.Context, _ string) (*models.Domain, error) {
	return nil, repository.ErrDomainNotFound
}

func (f *fakeDomainRepo) GetByName(_ context.Context, _ string) (*models.Domain, error) {
	return nil, repository.ErrDomainNotFound
}

func (f *fakeDomainRepo) GetByAPIKeyHash(_ context.Context, hash string) (*models.Domain, error) {
	domain, ok := f.byHash[hash]
	if !ok {
		return nil, repository.ErrDomainNotFound
	}
	return domain, nil
}

func (f *fakeDomainRepo) List(_ context.Context, _ string) ([]models.Domain, error) {
	return nil, nil
}

func (f *fakeDomainRepo) Update(_ context.Context, _ *models.Domain) error { return nil }

func (f *fakeDomainRepo) UpdateAPIKeyHash(_ context.Context, _, _ string) error { return nil }

func (f *fakeDomainRepo) Delete(_ context.Context, _ string) error { return nil }

func newAuthRouter(repo repository.DomainRepository) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(DomainAPIKeyMiddleware(repo))
	r.GET("/protected", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"domainId": c.GetString(ContextDomainID),
			"domain":   c.GetString(ContextDomainName),
		})
	})
	return r
}

func TestDomainAPIKeyMiddleware(t *testing.T) {
	apiKey := utils.GenerateAPIKey()
	domain := &models.Domain{
		ID:         "dom_acme12345678",
		Domain:     "acme.example.com",
		APIKeyHash: utils.HashAPIKey(apiKey),
	}
	router := newAuthRouter(&fakeDomainRepo{
		byHash: map[string]*models.Domain{domain.APIKeyHash: domain},
	})

	t.Run("missing key", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("wrong prefix", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set(APIKeyHeader, "sk_notavalidkey")
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("unknown key", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set(APIKeyHeader, utils.GenerateAPIKey())
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("valid key", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set(APIKeyHeader, apiKey)
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "dom_acme12345678")
		assert.Contains(t, w.Body.String(), "acme.example.com")
	})
}

func TestAdminAPIKeyMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AdminAPIKeyMiddleware(AdminAPIKeyConfig{
		HeaderName:  "X-Admin-Key",
		ValidAPIKey: "admin-secret",
	}))
	r.GET("/admin", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("X-Admin-Key", "wrong")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("X-Admin-Key", "admin-secret")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
