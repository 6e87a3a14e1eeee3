package models

import "encoding/json"

// JobKind routes a queued generation job to its handler.
type JobKind string

const (
	JobIndex        JobKind = "generateIndex"
	JobError        JobKind = "generateError"
	JobPost         JobKind = "generatePost"
	JobPage         JobKind = "generatePage"
	JobArchiveIndex JobKind = "generateArchiveIndex"
	JobArchiveMonth JobKind = "generateArchiveMonth"
)

// JobPayload is the body of a queued generation job. Site is always present;
// Path and Month are set depending on the job kind. Handlers re-read content
// rows by path at execution time, so the payload never carries row snapshots.
type JobPayload struct {
	Site  SiteConfig `json:"site"`
	Path  string     `json:"path,omitempty"`
	Month string     `json:"month,omitempty"`
}

// Job is one unit of queued regeneration work. It exists only on the queue
// and during worker execution.
type Job struct {
	ID      string
	Kind    JobKind
	Payload JobPayload
}

func (j *Job) Body() ([]byte, error) {
	return json.Marshal(j.Payload)
}
