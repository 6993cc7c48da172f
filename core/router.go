package core

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
)

// NewRouter constructs the Gin engine with routes wired.
func NewRouter(cfg Config, cookies *sessions.CookieStore, sessionStore *SessionStore, cart *CartStore, catalog CatalogClient, orders OrderRepository, metrics *MetricsService) *gin.Engine {
	startedAt := time.Now()
	r := gin.Default()

	// Global middleware: origin/CORS -> session -> CSRF
	r.Use(OriginRefererMiddleware(cfg))
	r.Use(SessionMiddleware(cfg, cookies))
	r.Use(CSRFMiddleware(cfg, cookies))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	checkout := NewCheckoutOrchestrator(catalog, orders, metrics)

	api := r.Group("/api/v1")
	{
		api.POST("/auth/login", func(c *gin.Context) {
			var req struct {
				Username string `json:"username"`
				Password string `json:"password"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
				return
			}

			user, err := sessionStore.Login(c.Request.Context(), req.Username, req.Password)
			if err != nil {
				respondError(c, http.StatusUnauthorized, "INVALID_CREDENTIALS", "incorrect username or password")
				return
			}
			current, _ := sessionStore.Current()

			sess := sessionFromContext(c)
			if sess == nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "session error")
				return
			}
			// reset cookie values (simple rotation), keeping the CSRF token
			// the middleware already issued for this cookie
			csrfToken := sess.Values["csrf_token"]
			sess.Values = map[interface{}]interface{}{}
			if csrfToken != nil {
				sess.Values["csrf_token"] = csrfToken
			}
			sess.Values["token"] = current.Token
			applySessionOptions(cfg, sess)
			if err := sess.Save(c.Request, c.Writer); err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to set session")
				return
			}

			metrics.Incr(c.Request.Context(), MetricLogins)
			c.JSON(http.StatusOK, gin.H{"user": gin.H{
				"username":     user.Username,
				"display_name": user.DisplayName,
				"role":         user.Role,
			}})
		})

		api.POST("/auth/logout", func(c *gin.Context) {
			sessionStore.Logout(c.Request.Context())

			sess := sessionFromContext(c)
			if sess == nil {
				respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "login required")
				return
			}
			sess.Values = map[interface{}]interface{}{}
			applySessionOptions(cfg, sess)
			sess.Options.MaxAge = -1 // Must be set AFTER applySessionOptions to properly delete cookie
			if err := sess.Save(c.Request, c.Writer); err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to clear session")
				return
			}
			c.Status(http.StatusNoContent)
		})

		api.GET("/users/me", func(c *gin.Context) {
			current, ok := cookieTokenMatches(c, sessionStore)
			if !ok {
				respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "login required")
				return
			}
			c.JSON(http.StatusOK, gin.H{
				"username":     current.User.Username,
				"display_name": current.User.DisplayName,
				"role":         current.User.Role,
				"expires_at":   current.ExpiresAt.UnixMilli(),
				"cart_count":   cart.Count(),
			})
		})

		api.GET("/products", func(c *gin.Context) {
			products, err := catalog.List(c.Request.Context())
			if err != nil {
				respondError(c, http.StatusBadGateway, "CATALOG_UNAVAILABLE", "failed to load products")
				return
			}

			opts := FilterOptions{
				Category:   c.Query("category"),
				SearchTerm: c.Query("q"),
			}
			if v := c.Query("in_stock"); v != "" {
				if b, err := strconv.ParseBool(v); err == nil {
					opts.InStockOnly = b
				}
			}
			c.JSON(http.StatusOK, gin.H{"products": FilterProducts(products, opts)})
		})

		api.GET("/products/:id", func(c *gin.Context) {
			p, err := catalog.Get(c.Request.Context(), c.Param("id"))
			if err != nil {
				if errors.Is(err, ErrProductNotFound) {
					respondError(c, http.StatusNotFound, "NOT_FOUND", "product not found")
					return
				}
				respondError(c, http.StatusBadGateway, "CATALOG_UNAVAILABLE", "failed to load product")
				return
			}
			c.JSON(http.StatusOK, p)
		})

		// Cart routes: anonymous shoppers may assemble a cart; only checkout
		// is gated on login.
		api.GET("/cart", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"lines": cart.Lines(),
				"total": cart.Total(),
				"count": cart.Count(),
			})
		})

		api.POST("/cart/items", func(c *gin.Context) {
			var req struct {
				ProductID string `json:"product_id"`
			}
			if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.ProductID) == "" {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "product_id is required")
				return
			}

			// Snapshot is taken from the catalog at add time.
			p, err := catalog.Get(c.Request.Context(), req.ProductID)
			if err != nil {
				if errors.Is(err, ErrProductNotFound) {
					respondError(c, http.StatusNotFound, "NOT_FOUND", "product not found")
					return
				}
				respondError(c, http.StatusBadGateway, "CATALOG_UNAVAILABLE", "failed to load product")
				return
			}

			if err := cart.Add(p); err != nil {
				respondError(c, http.StatusConflict, "STOCK_EXCEEDED", "not enough stock for this product")
				return
			}
			metrics.Incr(c.Request.Context(), MetricCartMutations)
			c.JSON(http.StatusOK, gin.H{"count": cart.Count(), "total": cart.Total()})
		})

		api.PUT("/cart/items/:id", func(c *gin.Context) {
			var req struct {
				Quantity int `json:"quantity"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
				return
			}
			cart.SetQuantity(c.Param("id"), req.Quantity)
			metrics.Incr(c.Request.Context(), MetricCartMutations)
			c.JSON(http.StatusOK, gin.H{"lines": cart.Lines(), "total": cart.Total()})
		})

		api.DELETE("/cart/items/:id", func(c *gin.Context) {
			cart.Remove(c.Param("id"))
			metrics.Incr(c.Request.Context(), MetricCartMutations)
			c.JSON(http.StatusOK, gin.H{"count": cart.Count(), "total": cart.Total()})
		})

		api.DELETE("/cart", func(c *gin.Context) {
			cart.Clear()
			metrics.Incr(c.Request.Context(), MetricCartMutations)
			c.Status(http.StatusNoContent)
		})

		api.POST("/cart/checkout", RequireLogin(sessionStore), func(c *gin.Context) {
			result, err := checkout.Checkout(c.Request.Context(), cart, sessionStore)
			if err != nil {
				respondCheckoutError(c, err)
				return
			}
			c.JSON(http.StatusOK, result)
		})

		// Retry reprocesses only the failed lines of a previous attempt.
		api.POST("/cart/checkout/retry", RequireLogin(sessionStore), func(c *gin.Context) {
			var prev CheckoutResult
			if err := c.ShouldBindJSON(&prev); err != nil || len(prev.Lines) == 0 {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "previous checkout result is required")
				return
			}
			result, err := checkout.Retry(c.Request.Context(), cart, sessionStore, prev)
			if err != nil {
				respondCheckoutError(c, err)
				return
			}
			c.JSON(http.StatusOK, result)
		})

		admin := api.Group("", AdminOnly(sessionStore))
		{
			admin.POST("/products", func(c *gin.Context) {
				p, ok := bindProduct(c)
				if !ok {
					return
				}
				created, err := catalog.Create(c.Request.Context(), p)
				if err != nil {
					respondError(c, http.StatusBadGateway, "CATALOG_UNAVAILABLE", "failed to create product")
					return
				}
				c.JSON(http.StatusCreated, created)
			})

			admin.PUT("/products/:id", func(c *gin.Context) {
				p, ok := bindProduct(c)
				if !ok {
					return
				}
				updated, err := catalog.Update(c.Request.Context(), c.Param("id"), p)
				if err != nil {
					if errors.Is(err, ErrProductNotFound) {
						respondError(c, http.StatusNotFound, "NOT_FOUND", "product not found")
						return
					}
					respondError(c, http.StatusBadGateway, "CATALOG_UNAVAILABLE", "failed to update product")
					return
				}
				c.JSON(http.StatusOK, updated)
			})

			admin.DELETE("/products/:id", func(c *gin.Context) {
				if err := catalog.Delete(c.Request.Context(), c.Param("id")); err != nil {
					if errors.Is(err, ErrProductNotFound) {
						respondError(c, http.StatusNotFound, "NOT_FOUND", "product not found")
						return
					}
					respondError(c, http.StatusBadGateway, "CATALOG_UNAVAILABLE", "failed to delete product")
					return
				}
				c.Status(http.StatusNoContent)
			})

			admin.GET("/admin/orders", func(c *gin.Context) {
				if orders == nil {
					c.JSON(http.StatusOK, gin.H{"orders": []OrderSummary{}, "total": 0})
					return
				}
				page := intQuery(c, "page", 1)
				perPage := intQuery(c, "per_page", 20)
				items, total, err := orders.List(c.Request.Context(), page, perPage)
				if err != nil {
					respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to list orders")
					return
				}
				c.JSON(http.StatusOK, gin.H{"orders": items, "total": total})
			})

			admin.GET("/admin/status", func(c *gin.Context) {
				st, err := CollectSystemStatus(c.Request.Context(), metrics, startedAt)
				if err != nil {
					respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to collect status")
					return
				}
				c.JSON(http.StatusOK, st)
			})
		}
	}

	return r
}

func respondCheckoutError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrRequiresLogin):
		respondError(c, http.StatusUnauthorized, "REQUIRES_LOGIN", "login before checking out")
	case errors.Is(err, ErrCartEmpty):
		respondError(c, http.StatusBadRequest, "CART_EMPTY", "cart is empty")
	default:
		respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "checkout failed")
	}
}

// bindProduct validates the admin product payload.
func bindProduct(c *gin.Context) (Product, bool) {
	var p Product
	if err := c.ShouldBindJSON(&p); err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
		return Product{}, false
	}
	if strings.TrimSpace(p.Title) == "" || strings.TrimSpace(p.Category) == "" {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "title and category are required")
		return Product{}, false
	}
	if p.Price < 0 {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "price must be zero or greater")
		return Product{}, false
	}
	if p.Stock < 0 {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "stock must be zero or greater")
		return Product{}, false
	}
	return p, true
}

func intQuery(c *gin.Context, name string, defaultVal int) int {
	if v := c.Query(name); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i > 0 {
			return i
		}
	}
	return defaultVal
}
