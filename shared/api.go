package shared

import "time"

// QueryUpsertRequest carries the owner-controlled fields of a query
// registration over the admin API. Scheduling state and usage counters are
// managed server side and cannot be set through it.
type QueryUpsertRequest struct {
	OwnerRef        string     `json:"owner_ref"`
	Name            string     `json:"name"`
	Request         string     `json:"request"`
	RefreshInterval int        `json:"refresh_interval"`
	Formats         FormatList `json:"formats"`
	Anonymize       bool       `json:"anonymize"`
	Enabled         bool       `json:"enabled"`
}

// QueryDetails is the get-query response: the registration plus its error log
// and cache freshness.
type QueryDetails struct {
	Query     *QueryDefinition `json:"query"`
	State     QueryState       `json:"state"`
	Errors    []*QueryError    `json:"errors"`
	HasCache  bool             `json:"has_cache"`
	FetchedAt *time.Time       `json:"fetched_at,omitempty"`
}
