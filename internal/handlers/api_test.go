package handlers_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/catalog/internal/config"
	"github.com/example/catalog/internal/database/dbtest"
	"github.com/example/catalog/internal/routes"
)

type apiClient struct {
	t   *testing.T
	app *fiber.App
}

func newAPI(t *testing.T) *apiClient {
	log := logrus.New()
	log.SetOutput(io.Discard)
	app := routes.NewApp(dbtest.New(t), &config.Config{CORSOrigins: "*"}, log)
	return &apiClient{t: t, app: app}
}

// do sends a request and decodes the JSON response into out when given.
func (a *apiClient) do(method, path string, body interface{}, out interface{}) int {
	a.t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(a.t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.app.Test(req, -1)
	require.NoError(a.t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(a.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

type category struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	ParentID *string `json:"parent_id"`
	Level    int     `json:"level"`
}

type product struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Brand    string  `json:"brand"`
	Category *string `json:"category"`
}

type apiError struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields"`
}

func categoryNames(items []category) []string {
	out := make([]string, len(items))
	for i, c := range items {
		out[i] = c.Name
	}
	return out
}

func TestCatalogScenario(t *testing.T) {
	api := newAPI(t)

	var electronics, phones, laptops category
	require.Equal(t, http.StatusCreated, api.do(http.MethodPost, "/api/v1/categories",
		map[string]interface{}{"name": "Electronics"}, &electronics))
	require.Equal(t, http.StatusCreated, api.do(http.MethodPost, "/api/v1/categories",
		map[string]interface{}{"name": "Phones", "parent_id": electronics.ID}, &phones))
	require.Equal(t, http.StatusCreated, api.do(http.MethodPost, "/api/v1/categories",
		map[string]interface{}{"name": "Laptops", "parent_id": electronics.ID}, &laptops))
	assert.Equal(t, 1, phones.Level)

	var descendants []category
	require.Equal(t, http.StatusOK, api.do(http.MethodGet,
		"/api/v1/categories/"+electronics.ID+"/descendants", nil, &descendants))
	assert.Equal(t, []string{"Laptops", "Phones"}, categoryNames(descendants))

	require.Equal(t, http.StatusCreated, api.do(http.MethodPost, "/api/v1/brands",
		map[string]string{"name": "Acme"}, nil))

	var created product
	require.Equal(t, http.StatusCreated, api.do(http.MethodPost, "/api/v1/products",
		map[string]string{"name": "Widget", "brand": "Acme", "category": "Phones"}, &created))

	var got product
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/api/v1/products/"+created.ID, nil, &got))
	assert.Equal(t, "Acme", got.Brand)
	require.NotNil(t, got.Category)
	assert.Equal(t, "Phones", *got.Category)

	var conflict apiError
	assert.Equal(t, http.StatusConflict, api.do(http.MethodDelete,
		"/api/v1/categories/"+electronics.ID, nil, &conflict))
	assert.Contains(t, conflict.Error, "Electronics")
}

func TestProductCreatesMissingBrand(t *testing.T) {
	api := newAPI(t)

	var created product
	require.Equal(t, http.StatusCreated, api.do(http.MethodPost, "/api/v1/products",
		map[string]string{"name": "Widget", "brand": "Globex"}, &created))
	assert.Equal(t, "Globex", created.Brand)
	assert.Nil(t, created.Category)

	require.Equal(t, http.StatusCreated, api.do(http.MethodPost, "/api/v1/products",
		map[string]string{"name": "Gadget", "brand": "Globex"}, nil))

	var brands []map[string]interface{}
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/api/v1/brands", nil, &brands))
	require.Len(t, brands, 1)
	assert.Equal(t, "Globex", brands[0]["name"])
}

func TestProductUpdateAndPatch(t *testing.T) {
	api := newAPI(t)

	var created product
	require.Equal(t, http.StatusCreated, api.do(http.MethodPost, "/api/v1/products",
		map[string]string{"name": "Widget", "brand": "Acme", "category": "Tools"}, &created))

	var updated product
	require.Equal(t, http.StatusOK, api.do(http.MethodPut, "/api/v1/products/"+created.ID,
		map[string]string{"name": "Widget 2", "brand": "Acme"}, &updated))
	assert.Equal(t, "Widget 2", updated.Name)
	assert.Nil(t, updated.Category)

	var patched product
	require.Equal(t, http.StatusOK, api.do(http.MethodPatch, "/api/v1/products/"+created.ID,
		map[string]string{"category": "Garden"}, &patched))
	assert.Equal(t, "Widget 2", patched.Name)
	require.NotNil(t, patched.Category)
	assert.Equal(t, "Garden", *patched.Category)

	assert.Equal(t, http.StatusNoContent, api.do(http.MethodDelete, "/api/v1/products/"+created.ID, nil, nil))
	assert.Equal(t, http.StatusNotFound, api.do(http.MethodGet, "/api/v1/products/"+created.ID, nil, nil))
}

func TestValidationErrors(t *testing.T) {
	api := newAPI(t)

	var body apiError
	require.Equal(t, http.StatusBadRequest, api.do(http.MethodPost, "/api/v1/products",
		map[string]string{"description": "no name"}, &body))
	assert.Equal(t, "required", body.Fields["name"])
	assert.Equal(t, "required", body.Fields["brand"])

	body = apiError{}
	require.Equal(t, http.StatusBadRequest, api.do(http.MethodGet, "/api/v1/brands/not-a-uuid", nil, &body))
	assert.Equal(t, "invalid id", body.Error)

	body = apiError{}
	require.Equal(t, http.StatusNotFound, api.do(http.MethodGet,
		"/api/v1/categories/6f1b3c2e-7d4a-4a8e-9a51-0c2d9e7b1f00", nil, &body))
	assert.Contains(t, body.Error, "not found")
}

func TestCategoryMoveOverHTTP(t *testing.T) {
	api := newAPI(t)

	var books, fiction category
	require.Equal(t, http.StatusCreated, api.do(http.MethodPost, "/api/v1/categories",
		map[string]string{"name": "Books"}, &books))
	require.Equal(t, http.StatusCreated, api.do(http.MethodPost, "/api/v1/categories",
		map[string]string{"name": "Fiction", "parent_id": books.ID}, &fiction))

	var body apiError
	assert.Equal(t, http.StatusBadRequest, api.do(http.MethodPatch, "/api/v1/categories/"+books.ID,
		map[string]string{"parent_id": fiction.ID}, &body))
	assert.Contains(t, body.Error, "descendant")

	var renamed category
	require.Equal(t, http.StatusOK, api.do(http.MethodPatch, "/api/v1/categories/"+fiction.ID,
		map[string]string{"name": "Novels"}, &renamed))
	assert.Equal(t, "Novels", renamed.Name)
	require.NotNil(t, renamed.ParentID)

	var moved category
	require.Equal(t, http.StatusOK, api.do(http.MethodPatch, "/api/v1/categories/"+fiction.ID,
		map[string]interface{}{"parent_id": nil}, &moved))
	assert.Nil(t, moved.ParentID)
	assert.Equal(t, 0, moved.Level)

	var roots []category
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/api/v1/categories", nil, &roots))
	assert.Equal(t, []string{"Books", "Novels"}, categoryNames(roots))

	assert.Equal(t, http.StatusNoContent, api.do(http.MethodDelete, "/api/v1/categories/"+books.ID, nil, nil))
}

func TestBrandDeleteRemovesProducts(t *testing.T) {
	api := newAPI(t)

	var created product
	require.Equal(t, http.StatusCreated, api.do(http.MethodPost, "/api/v1/products",
		map[string]string{"name": "Widget", "brand": "Acme"}, &created))

	var brands []map[string]interface{}
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/api/v1/brands", nil, &brands))
	require.Len(t, brands, 1)
	id := brands[0]["id"].(string)

	var dup apiError
	assert.Equal(t, http.StatusConflict, api.do(http.MethodPost, "/api/v1/brands",
		map[string]string{"name": "Acme"}, &dup))

	assert.Equal(t, http.StatusNoContent, api.do(http.MethodDelete, "/api/v1/brands/"+id, nil, nil))
	assert.Equal(t, http.StatusNotFound, api.do(http.MethodGet, "/api/v1/products/"+created.ID, nil, nil))
}

func TestHealth(t *testing.T) {
	api := newAPI(t)
	var body map[string]string
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/health", nil, &body))
	assert.Equal(t, "ok", body["status"])
}
