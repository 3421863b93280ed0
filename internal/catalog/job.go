package catalog

import "time"

// JobType names the kinds of crawl runs recorded in the job history.
type JobType string

// Crawl job types.
const (
	JobTypeNavigation    JobType = "navigation"
	JobTypeCategories    JobType = "categories"
	JobTypeProducts      JobType = "products"
	JobTypeProductDetail JobType = "product_detail"
	JobTypeComposite     JobType = "composite"
)

// JobStatus tracks a crawl job's lifecycle.
type JobStatus string

// Crawl job statuses.
const (
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// CrawlJob is one recorded crawl run. Records are append-only; FinishJob
// sets the terminal fields.
type CrawlJob struct {
	ID         string         `json:"id"`
	Type       JobType        `json:"type"`
	Status     JobStatus      `json:"status"`
	StartedAt  time.Time      `json:"startedAt"`
	FinishedAt *time.Time     `json:"finishedAt,omitempty"`
	Count      int            `json:"count"`
	Error      string         `json:"error,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`
}
