package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// routesFunc lets a plain function act as a RouteRegistrar.
type routesFunc func(rg *gin.RouterGroup)

func (f routesFunc) RegisterRoutes(rg *gin.RouterGroup) { f(rg) }

func TestNewRouter(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine)

	assert.NotNil(t, r)
	assert.Equal(t, "v1", r.apiVersion)
	assert.Empty(t, r.registrars)
}

func TestRouterWithAPIVersion(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine, WithAPIVersion("v2"))

	assert.Equal(t, "v2", r.apiVersion)
}

func TestRouterRegister(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine)

	r.Register(routesFunc(func(rg *gin.RouterGroup) {}))

	assert.Len(t, r.registrars, 1)
}

func TestRouterSetup(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine, WithAPIVersion("v1"))

	r.Register(routesFunc(func(rg *gin.RouterGroup) {
		rg.GET("/ping", func(c *gin.Context) {
			c.String(http.StatusOK, "pong")
		})
	}))
	r.Setup()

	req := httptest.NewRequest("GET", "/api/v1/ping", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", w.Body.String())
}

func TestRouterVersionPrefix(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine, WithAPIVersion("v2"))

	r.Register(routesFunc(func(rg *gin.RouterGroup) {
		rg.GET("/connectors", func(c *gin.Context) {
			c.String(http.StatusOK, "ok")
		})
	}))
	r.Setup()

	// mounted under v2, not v1
	req := httptest.NewRequest("GET", "/api/v1/connectors", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	req = httptest.NewRequest("GET", "/api/v2/connectors", nil)
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMultipleRegistrars(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine)

	connectors := routesFunc(func(rg *gin.RouterGroup) {
		rg.GET("/connectors", func(c *gin.Context) {
			c.String(http.StatusOK, "connectors")
		})
	})
	webhooks := routesFunc(func(rg *gin.RouterGroup) {
		rg.POST("/webhooks/stripe/abc", func(c *gin.Context) {
			c.String(http.StatusOK, "received")
		})
	})

	r.Register(connectors).Register(webhooks)
	r.Setup()

	req1 := httptest.NewRequest("GET", "/api/v1/connectors", nil)
	w1 := httptest.NewRecorder()
	engine.ServeHTTP(w1, req1)
	assert.Equal(t, http.StatusOK, w1.Code)
	assert.Equal(t, "connectors", w1.Body.String())

	req2 := httptest.NewRequest("POST", "/api/v1/webhooks/stripe/abc", nil)
	w2 := httptest.NewRecorder()
	engine.ServeHTTP(w2, req2)
	assert.Equal(t, http.StatusOK, w2.Code)
	assert.Equal(t, "received", w2.Body.String())
}
