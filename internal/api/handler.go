package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// Handler serves catalog lookups.
type Handler struct {
	catalog *Catalog
}

// NewHandler returns a Handler over catalog.
func NewHandler(catalog *Catalog) *Handler {
	return &Handler{catalog: catalog}
}

// HealthCheck reports liveness and the number of loaded products.
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"service":  "menu-api",
		"products": h.catalog.Len(),
	})
}

// AllProducts returns the whole corpus.
func (h *Handler) AllProducts(c *gin.Context) {
	c.JSON(http.StatusOK, h.catalog.All())
}

// Product returns one product by case-insensitive name.
func (h *Handler) Product(c *gin.Context) {
	r, err := h.catalog.ByName(c.Param("name"))
	if err != nil {
		notFound(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// ProductField returns {field: value} for one product.
func (h *Handler) ProductField(c *gin.Context) {
	field := c.Param("field")
	v, err := h.catalog.Field(c.Param("name"), field)
	if err != nil {
		notFound(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{field: v})
}

// Item returns the product at a zero-based corpus position.
func (h *Handler) Item(c *gin.Context) {
	i, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		notFound(c, ErrProductNotFound)
		return
	}
	r, err := h.catalog.ByIndex(i)
	if err != nil {
		notFound(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func notFound(c *gin.Context, err error) {
	detail := "Not found"
	switch {
	case errors.Is(err, ErrProductNotFound):
		detail = "Product not found"
	case errors.Is(err, ErrFieldNotFound):
		detail = "Field not found"
	}
	c.JSON(http.StatusNotFound, gin.H{"detail": detail})
}
