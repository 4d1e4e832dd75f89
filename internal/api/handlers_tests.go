package api

import (
	"database/sql"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/kiwix/mirrors-qa/internal/config"
	apperrors "github.com/kiwix/mirrors-qa/internal/errors"
	"github.com/kiwix/mirrors-qa/internal/models"
	"github.com/kiwix/mirrors-qa/internal/store"
)

// TestsHandler serves the Test list/get/patch routes of the API surface (C4).
type TestsHandler struct {
	db  *sql.DB
	cfg *config.BackendConfig
}

// NewTestsHandler constructs a TestsHandler with explicit dependencies.
func NewTestsHandler(db *sql.DB, cfg *config.BackendConfig) *TestsHandler {
	return &TestsHandler{db: db, cfg: cfg}
}

var testStatuses = map[string]models.TestStatus{
	"PENDING":   models.TestPending,
	"MISSED":    models.TestMissed,
	"SUCCEEDED": models.TestSucceeded,
	"ERRORED":   models.TestErrored,
}

// List handles GET /tests.
func (h *TestsHandler) List(c *gin.Context) {
	var filter models.TestFilter
	if v := c.Query("worker_id"); v != "" {
		filter.WorkerID = &v
	}
	if v := c.Query("country_code"); v != "" {
		if len(v) != 2 {
			c.Error(apperrors.NewValidation("country_code must be a 2-letter ISO code"))
			return
		}
		lc := strings.ToLower(v)
		filter.CountryCode = &lc
	}
	for _, raw := range c.QueryArray("status") {
		st, ok := testStatuses[strings.ToUpper(raw)]
		if !ok {
			c.Error(apperrors.NewValidation("unknown status: " + raw))
			return
		}
		filter.Statuses = append(filter.Statuses, st)
	}

	page, err := parsePage(c, h.cfg.MaxPageSize)
	if err != nil {
		c.Error(err)
		return
	}

	q := store.New(h.db)
	tests, meta, err := q.ListTests(c.Request.Context(), filter, page)
	if err != nil {
		c.Error(err)
		return
	}
	if tests == nil {
		tests = []models.Test{}
	}
	c.JSON(http.StatusOK, gin.H{"tests": tests, "metadata": meta})
}

func parsePage(c *gin.Context, maxPageSize int) (models.Page, error) {
	page := models.Page{PageSize: maxPageSize, PageNum: 1, SortBy: "requested_on", Order: "asc"}

	if v := c.Query("page_size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxPageSize {
			return models.Page{}, apperrors.NewValidation("page_size must be between 1 and the configured maximum")
		}
		page.PageSize = n
	}
	if v := c.Query("page_num"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return models.Page{}, apperrors.NewValidation("page_num must be >= 1")
		}
		page.PageNum = n
	}
	if v := c.Query("sort_by"); v != "" {
		switch v {
		case "requested_on", "started_on", "status", "worker_id", "country_code", "city":
			page.SortBy = v
		default:
			return models.Page{}, apperrors.NewValidation("unknown sort_by: " + v)
		}
	}
	if v := c.Query("order"); v != "" {
		switch strings.ToLower(v) {
		case "asc", "desc":
			page.Order = strings.ToLower(v)
		default:
			return models.Page{}, apperrors.NewValidation("order must be asc or desc")
		}
	}
	return page, nil
}

// Get handles GET /tests/{id}.
func (h *TestsHandler) Get(c *gin.Context) {
	q := store.New(h.db)
	t, err := q.GetTest(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// patchTestBody is the partial-update payload accepted by PATCH /tests/{id}.
type patchTestBody struct {
	StartedOn         *string  `json:"started_on"`
	Error             *string  `json:"error"`
	ISP               *string  `json:"isp"`
	IPAddress         *string  `json:"ip_address"`
	ASN               *int     `json:"asn"`
	City              *string  `json:"city"`
	LatencyMS         *float64 `json:"latency"`
	DownloadSizeBytes *int64   `json:"download_size"`
	DurationS         *float64 `json:"duration"`
	SpeedBPS          *float64 `json:"speed"`
	Status            *string  `json:"status"`
}

// Patch handles PATCH /tests/{id}: requires the bearer token subject to
// equal the Test's worker_id, applies the partial update, and advances the
// worker's last_seen_on.
func (h *TestsHandler) Patch(c *gin.Context) {
	q := store.New(h.db)
	id := c.Param("id")

	existing, err := q.GetTest(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}
	if err := requireSubject(c, existing.WorkerID); err != nil {
		c.Error(err)
		return
	}
	if existing.Status != models.TestPending {
		c.Error(apperrors.NewConflict("test is already in a terminal state"))
		return
	}

	var body patchTestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.Error(apperrors.NewValidation("malformed request body"))
		return
	}

	update := models.TestUpdate{
		Error:             body.Error,
		ISP:               body.ISP,
		IPAddress:         body.IPAddress,
		ASN:               body.ASN,
		City:              body.City,
		LatencyMS:         body.LatencyMS,
		DownloadSizeBytes: body.DownloadSizeBytes,
		DurationS:         body.DurationS,
		SpeedBPS:          body.SpeedBPS,
	}
	if body.StartedOn != nil {
		ts, err := parseTimestamp(*body.StartedOn)
		if err != nil {
			c.Error(apperrors.NewValidation("started_on must be ISO-8601"))
			return
		}
		update.StartedOn = &ts
	}
	if body.Status != nil {
		st, ok := testStatuses[strings.ToUpper(*body.Status)]
		if !ok {
			c.Error(apperrors.NewValidation("unknown status: " + *body.Status))
			return
		}
		update.Status = &st
	}

	updated, err := q.UpdateTest(c.Request.Context(), id, update)
	if err != nil {
		c.Error(err)
		return
	}
	if err := q.TouchWorker(c.Request.Context(), existing.WorkerID); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, updated)
}
