package domain

import "time"

// DeploymentRecord is the durable artifact of a successful deploy.
// It is only written from a definitive success response; an exhausted
// retry loop never produces one.
type DeploymentRecord struct {
	ProjectName string    `json:"project_name"`
	URL         string    `json:"url"`
	CreatedAt   time.Time `json:"created_at"`
}
