package shared

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Output format identifiers accepted by the public read surface via the
// alt query parameter.
const (
	FormatJson      = "json"
	FormatCsv       = "csv"
	FormatTsv       = "tsv"
	FormatDataTable = "datatable"
)

const DefaultFormat = FormatJson

var SupportedFormats = []string{FormatJson, FormatCsv, FormatTsv, FormatDataTable}

func IsSupportedFormat(format string) bool {
	for _, f := range SupportedFormats {
		if f == format {
			return true
		}
	}
	return false
}

// QueryState is the externally visible scheduling state of a query. It is
// derived from the two independent pause causes rather than stored, so that
// neither cause can clobber the other.
type QueryState string

const (
	StateActive          QueryState = "active"
	StatePausedError     QueryState = "paused_error"
	StatePausedAbandoned QueryState = "paused_abandoned"
)

// FormatList is stored as a JSON array in a single column.
type FormatList []string

func (f *FormatList) Scan(value interface{}) error {
	if value == nil {
		*f = nil
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("failed to unmarshal format list value: %v", value)
	}
	result := FormatList{}
	err := json.Unmarshal(bytes, &result)
	*f = result
	return err
}

func (f FormatList) Value() (driver.Value, error) {
	return json.Marshal(f)
}

// QueryDefinition is an owner-registered report query. The owner-controlled
// fields (name, request, interval, formats, anonymize, enabled) are written
// by the admin API; the remaining fields are maintained by the scheduler and
// the public endpoint.
type QueryDefinition struct {
	QueryId         string     `json:"query_id" gorm:"primaryKey"`
	OwnerRef        string     `json:"owner_ref" gorm:"not null"`
	Name            string     `json:"name" gorm:"not null"`
	Request         string     `json:"request" gorm:"not null"`
	RefreshInterval int        `json:"refresh_interval" gorm:"not null"`
	Formats         FormatList `json:"formats"`
	Anonymize       bool       `json:"anonymize"`
	Enabled         bool       `json:"enabled"`

	ErrorPaused           bool `json:"error_paused"`
	AbandonedPaused       bool `json:"abandoned_paused"`
	ConsecutiveErrorCount int  `json:"consecutive_error_count"`

	LastAttemptAt      *time.Time `json:"last_attempt_at"`
	LastSuccessAt      *time.Time `json:"last_success_at"`
	LastPublicAccessAt *time.Time `json:"last_public_access_at"`
	PublicRequestCount int64      `json:"public_request_count"`

	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`
}

// State derives the visible state from the pause causes. Error pausing wins
// when both causes hold, since it is the more conservative signal.
func (q *QueryDefinition) State() QueryState {
	if q.ErrorPaused {
		return StatePausedError
	}
	if q.AbandonedPaused {
		return StatePausedAbandoned
	}
	return StateActive
}

// AllowsFormat reports whether a public caller may request the given format.
// An empty format list means every supported format is allowed.
func (q *QueryDefinition) AllowsFormat(format string) bool {
	if len(q.Formats) == 0 {
		return IsSupportedFormat(format)
	}
	for _, f := range q.Formats {
		if f == format {
			return true
		}
	}
	return false
}

// CachedResponse holds the payload of the most recent successful fetch for a
// query. Failed fetches never touch it. If Anonymize is set on the owning
// query the payload is stored post-anonymization.
type CachedResponse struct {
	QueryId         string    `json:"query_id" gorm:"primaryKey"`
	Payload         []byte    `json:"payload" gorm:"not null"`
	ResolvedRequest string    `json:"resolved_request"`
	FetchedAt       time.Time `json:"fetched_at" gorm:"not null"`
}

// QueryError is one entry of a query's bounded error log, newest first when
// read back. Rows beyond the configured capacity are pruned on insert.
type QueryError struct {
	Id        uint      `json:"id" gorm:"primaryKey"`
	QueryId   string    `json:"query_id" gorm:"not null"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp" gorm:"not null"`
}
