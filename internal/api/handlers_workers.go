package api

import (
	"database/sql"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "github.com/kiwix/mirrors-qa/internal/errors"
	"github.com/kiwix/mirrors-qa/internal/isocountry"
	"github.com/kiwix/mirrors-qa/internal/models"
	"github.com/kiwix/mirrors-qa/internal/store"
)

// WorkersHandler serves the Worker countries routes of the API surface (C4).
type WorkersHandler struct {
	db *sql.DB
}

// NewWorkersHandler constructs a WorkersHandler with explicit dependencies.
func NewWorkersHandler(db *sql.DB) *WorkersHandler {
	return &WorkersHandler{db: db}
}

// GetCountries handles GET /workers/{id}/countries: the token subject must
// equal {id}.
func (h *WorkersHandler) GetCountries(c *gin.Context) {
	id := c.Param("id")
	if err := requireSubject(c, id); err != nil {
		c.Error(err)
		return
	}

	q := store.New(h.db)
	worker, err := q.GetWorker(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"country_codes": worker.Countries})
}

type putCountriesBody struct {
	CountryCodes []string `json:"country_codes"`
}

// PutCountries handles PUT /workers/{id}/countries: the token subject must
// equal {id}; unknown codes are rejected, missing Country rows are created
// from the bundled ISO table, and the worker's country set is replaced
// atomically.
func (h *WorkersHandler) PutCountries(c *gin.Context) {
	id := c.Param("id")
	if err := requireSubject(c, id); err != nil {
		c.Error(err)
		return
	}

	var body putCountriesBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.Error(apperrors.NewValidation("malformed request body"))
		return
	}

	codes := make([]string, 0, len(body.CountryCodes))
	for _, raw := range body.CountryCodes {
		code := strings.ToLower(raw)
		if !isocountry.Valid(code) {
			c.Error(apperrors.NewValidation("unknown country code: " + raw))
			return
		}
		codes = append(codes, code)
	}

	err := store.WithTx(c.Request.Context(), h.db, func(q *store.Queries) error {
		if _, err := q.GetWorker(c.Request.Context(), id); err != nil {
			return err
		}
		for _, code := range codes {
			if _, err := q.GetCountry(c.Request.Context(), code); err != nil {
				if !apperrors.IsType(err, apperrors.NotFoundError) {
					return err
				}
				name, _ := isocountry.Name(code)
				if err := q.CreateCountry(c.Request.Context(), models.Country{Code: code, Name: name}); err != nil {
					return err
				}
			}
		}
		return q.SetWorkerCountries(c.Request.Context(), id, codes)
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"country_codes": codes})
}
