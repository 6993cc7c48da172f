package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// CatalogClient abstracts the remote product catalog (a REST collection).
type CatalogClient interface {
	List(ctx context.Context) ([]Product, error)
	Get(ctx context.Context, id string) (Product, error)
	Create(ctx context.Context, p Product) (Product, error)
	Update(ctx context.Context, id string, p Product) (Product, error)
	Delete(ctx context.Context, id string) error
}

// ErrProductNotFound is returned for 404 responses from get/update/delete.
var ErrProductNotFound = errors.New("product not found")

// HTTPCatalogClient calls the catalog's REST endpoints.
type HTTPCatalogClient struct {
	client *http.Client
	base   string
}

func NewHTTPCatalogClient(baseURL string) *HTTPCatalogClient {
	return &HTTPCatalogClient{
		client: &http.Client{Timeout: 15 * time.Second},
		base:   strings.TrimRight(baseURL, "/"),
	}
}

// List fetches the full product collection.
func (c *HTTPCatalogClient) List(ctx context.Context) ([]Product, error) {
	var products []Product
	if err := c.do(ctx, http.MethodGet, c.base+"/products", nil, &products); err != nil {
		return nil, err
	}
	return products, nil
}

// Get fetches one product by id.
func (c *HTTPCatalogClient) Get(ctx context.Context, id string) (Product, error) {
	var p Product
	if err := c.do(ctx, http.MethodGet, c.productURL(id), nil, &p); err != nil {
		return Product{}, err
	}
	return p, nil
}

// Create adds a product and returns the stored representation (including the
// id assigned by the catalog).
func (c *HTTPCatalogClient) Create(ctx context.Context, p Product) (Product, error) {
	var created Product
	if err := c.do(ctx, http.MethodPost, c.base+"/products", p, &created); err != nil {
		return Product{}, err
	}
	return created, nil
}

// Update replaces the full product representation at id. Checkout relies on
// this accepting a modified stock field.
func (c *HTTPCatalogClient) Update(ctx context.Context, id string, p Product) (Product, error) {
	var updated Product
	if err := c.do(ctx, http.MethodPut, c.productURL(id), p, &updated); err != nil {
		return Product{}, err
	}
	return updated, nil
}

// Delete removes a product. A 404 maps to ErrProductNotFound.
func (c *HTTPCatalogClient) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, c.productURL(id), nil, nil)
}

func (c *HTTPCatalogClient) productURL(id string) string {
	return c.base + "/products/" + url.PathEscape(id)
}

// do issues one request with an optional JSON body and decodes the response
// into out when non-nil.
func (c *HTTPCatalogClient) do(ctx context.Context, method, endpoint string, body, out any) error {
	if c.base == "" {
		return errors.New("catalog url not configured")
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s %s: %w", method, endpoint, ErrProductNotFound)
	}
	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("catalog returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode catalog response: %w", err)
	}
	return nil
}
