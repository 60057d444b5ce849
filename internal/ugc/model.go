// Package ugc implements the user-contributed artist data workflow: URL
// submissions become contributions, which are approved (immediately for
// trusted contributors, otherwise by a moderator) and merged into the
// artist record.
package ugc

import (
	"errors"
	"time"
)

// Contribution is a submitted URL resolved to a platform identifier.
type Contribution struct {
	ID            string     `json:"id"`
	SubmittedURL  string     `json:"submitted_url"`
	SiteKey       string     `json:"site_key"`
	ExternalID    string     `json:"external_id"`
	ArtistID      string     `json:"artist_id"`
	ArtistName    string     `json:"artist_name"`
	ContributorID string     `json:"contributor_id,omitempty"`
	Accepted      bool       `json:"accepted"`
	CreatedAt     time.Time  `json:"created_at"`
	DateProcessed *time.Time `json:"date_processed,omitempty"`
}

// Status is the outcome of a submission.
type Status string

// Submission outcomes.
const (
	StatusAccepted Status = "accepted"
	StatusPending  Status = "pending"
	StatusError    Status = "error"
)

// Reason says why a submission was rejected.
type Reason string

// Rejection reasons.
const (
	ReasonNotApprovedLink Reason = "not_approved_link"
	ReasonDuplicate       Reason = "duplicate"
	ReasonUnauthorized    Reason = "unauthorized"
)

// User-facing messages.
const (
	MessageAccepted        = "We updated the artist with that data"
	MessagePending         = "Thanks for adding, we'll review this addition before posting"
	MessageNotApprovedLink = "The data you're trying to add isn't in our list of approved links"
	MessageDuplicate       = "This artist data has already been added"
)

// SubmitRequest is a URL submitted for an artist.
type SubmitRequest struct {
	URL      string
	ArtistID string
	// ContributorID is empty for anonymous submissions.
	ContributorID string
}

// SubmitResult reports what happened to a submission. Rejections are
// results with StatusError, not errors.
type SubmitResult struct {
	Status       Status        `json:"status"`
	Reason       Reason        `json:"reason,omitempty"`
	Message      string        `json:"message"`
	DisplayName  string        `json:"site_name,omitempty"`
	Contribution *Contribution `json:"contribution,omitempty"`
}

func rejected(reason Reason, message string) *SubmitResult {
	return &SubmitResult{Status: StatusError, Reason: reason, Message: message}
}

// ApproveRequest identifies a contribution and the value it writes.
type ApproveRequest struct {
	ContributionID string
	ArtistID       string
	SiteKey        string
	ExternalID     string
}

// BatchResult is the outcome of approving one contribution of a batch.
type BatchResult struct {
	ID    string `json:"id"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Stats counts one contributor's submissions.
type Stats struct {
	Total    int `json:"total"`
	Accepted int `json:"accepted"`
	Pending  int `json:"pending"`
}

// LeaderboardEntry ranks a contributor.
type LeaderboardEntry struct {
	UserID        string `json:"user_id"`
	DisplayName   string `json:"display_name"`
	Contributions int    `json:"contributions"`
	Accepted      int    `json:"accepted"`
	ArtistsAdded  int    `json:"artists_added"`
}

// Sentinel errors.
var (
	ErrAuthenticationRequired = errors.New("authentication required")
	ErrUnauthorized           = errors.New("unauthorized")
	ErrAlreadyAccepted        = errors.New("contribution already accepted")
	ErrNotFound               = errors.New("contribution not found")
	ErrUnsupportedSite        = errors.New("site cannot be stored on an artist")
)
