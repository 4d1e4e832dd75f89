// Package models defines the registry's persisted entities: Region,
// Country, Mirror, Worker, and Test.
package models

import "time"

// TestStatus is stored as a CHECK-constrained string enum rather than a
// database-native enum, so new values can be added by migration without a
// schema alteration.
type TestStatus string

const (
	TestPending   TestStatus = "PENDING"
	TestMissed    TestStatus = "MISSED"
	TestSucceeded TestStatus = "SUCCEEDED"
	TestErrored   TestStatus = "ERRORED"
)

// Region is a 2-letter continent grouping over Countries.
type Region struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Country is identified by its lowercase ISO 3166-1 alpha-2 code and
// optionally belongs to exactly one Region.
type Country struct {
	Code       string  `json:"code"`
	Name       string  `json:"name"`
	RegionCode *string `json:"region_code,omitempty"`
}

// Mirror is an HTTP(S) server serving a replica of the content catalog,
// identified by hostname. Fields beyond id/base_url/enabled are carried
// through from upstream crawl metadata.
type Mirror struct {
	ID             string   `json:"id"`
	BaseURL        string   `json:"base_url"`
	Enabled        bool     `json:"enabled"`
	CountryCode    *string  `json:"country_code,omitempty"`
	RegionCode     *string  `json:"region_code,omitempty"`
	ASN            *int     `json:"asn,omitempty"`
	Score          *int     `json:"score,omitempty"`
	Latitude       *float64 `json:"latitude,omitempty"`
	Longitude      *float64 `json:"longitude,omitempty"`
	CountryOnly    bool     `json:"country_only"`
	RegionOnly     bool     `json:"region_only"`
	ASOnly         bool     `json:"as_only"`
	OtherCountries []string `json:"other_countries"`
}

// Worker is an authenticated agent installation with an RSA identity; one
// per measurement site. Countries is populated separately by the store
// (many-to-many via worker_countries).
type Worker struct {
	ID                string    `json:"id"`
	PubkeyPEM         string    `json:"-"`
	PubkeyFingerprint string    `json:"pubkey_fingerprint"`
	LastSeenOn        time.Time `json:"last_seen_on"`
	Countries         []string  `json:"countries,omitempty"`
}

// Test is a single scheduled measurement of one Mirror from one Country by
// one Worker.
type Test struct {
	ID                string     `json:"id"`
	RequestedOn       time.Time  `json:"requested_on"`
	StartedOn         *time.Time `json:"started_on,omitempty"`
	Status            TestStatus `json:"status"`
	WorkerID          string     `json:"worker_id"`
	MirrorURL         string     `json:"mirror_url"`
	CountryCode       string     `json:"country_code"`
	IPAddress         *string    `json:"ip_address,omitempty"`
	ASN               *int       `json:"asn,omitempty"`
	ISP               *string    `json:"isp,omitempty"`
	City              *string    `json:"city,omitempty"`
	LatencyMS         *float64   `json:"latency_ms,omitempty"`
	DownloadSizeBytes *int64     `json:"download_size_bytes,omitempty"`
	DurationS         *float64   `json:"duration_s,omitempty"`
	SpeedBPS          *float64   `json:"speed_bps,omitempty"`
	Error             *string    `json:"error,omitempty"`
}

// TestUpdate is a partial update to a Test, applied by PATCH /tests/{id}.
// Unset fields preserve existing values.
type TestUpdate struct {
	StartedOn         *time.Time
	Error             *string
	ISP               *string
	IPAddress         *string
	ASN               *int
	City              *string
	LatencyMS         *float64
	DownloadSizeBytes *int64
	DurationS         *float64
	SpeedBPS          *float64
	Status            *TestStatus
}

// TestFilter narrows GET /tests results.
type TestFilter struct {
	WorkerID    *string
	CountryCode *string
	Statuses    []TestStatus
}

// Page describes pagination parameters for list_tests.
type Page struct {
	PageSize int
	PageNum  int
	SortBy   string
	Order    string
}

// PageMetadata is the pagination envelope returned alongside list results.
type PageMetadata struct {
	TotalRecords int `json:"total_records"`
	PageSize     int `json:"page_size"`
	CurrentPage  int `json:"current_page,omitempty"`
	FirstPage    int `json:"first_page,omitempty"`
	LastPage     int `json:"last_page,omitempty"`
}
