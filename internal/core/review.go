package core

import "time"

// ReviewStatus is the terminal state of a review attempt.
type ReviewStatus string

const (
	ReviewStatusCompleted ReviewStatus = "completed"
	ReviewStatusFailed    ReviewStatus = "failed"
)

// FailedReviewTitle is stored as the PR title when the failure happened
// before the pull request could be fetched.
const FailedReviewTitle = "Failed to fetch PR"

// ReviewRecord is the persisted outcome of one review run. Exactly one record
// is written per run that reaches a terminal state.
type ReviewRecord struct {
	ID           int64        `db:"id"`
	RepositoryID int64        `db:"repository_id"`
	PRNumber     int          `db:"pr_number"`
	PRTitle      string       `db:"pr_title"`
	PRURL        string       `db:"pr_url"`
	ReviewText   string       `db:"review"`
	Status       ReviewStatus `db:"status"`
	CreatedAt    time.Time    `db:"created_at"`
}

// Repository is a connected GitHub repository owned by a user.
type Repository struct {
	ID        int64     `db:"id"`
	GitHubID  int64     `db:"github_id"`
	Name      string    `db:"name"`
	Owner     string    `db:"owner"`
	FullName  string    `db:"full_name"`
	URL       string    `db:"url"`
	UserID    string    `db:"user_id"`
	CreatedAt time.Time `db:"created_at"`
}

// Tier is a subscription plan.
type Tier string

const (
	TierFree Tier = "FREE"
	TierPro  Tier = "PRO"
)

// User is the tenant that owns repositories and pays for reviews.
type User struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	Email     string    `db:"email"`
	Tier      Tier      `db:"subscription_tier"`
	CreatedAt time.Time `db:"created_at"`
}

// UsageKind identifies the kind of resource a counter tracks.
type UsageKind string

const (
	UsageRepository UsageKind = "repository"
	UsageReview     UsageKind = "review"
)

// UsageKey identifies one usage counter. RepositoryID is zero for the
// per-user repository counter.
type UsageKey struct {
	UserID       string
	RepositoryID int64
	Kind         UsageKind
}

// UsageCounter is the persisted value of one counter.
type UsageCounter struct {
	UserID       string    `db:"user_id"`
	RepositoryID int64     `db:"repository_id"`
	Kind         UsageKind `db:"kind"`
	Count        int       `db:"count"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// RepositoryIndex points at the vector collection currently serving a
// repository. Re-indexing writes a new collection and swaps this pointer.
type RepositoryIndex struct {
	RepositoryKey  string    `db:"repository_key"`
	CollectionName string    `db:"collection_name"`
	EmbedderModel  string    `db:"embedder_model"`
	ChunkCount     int       `db:"chunk_count"`
	IndexedAt      time.Time `db:"indexed_at"`
}

// ReviewPromptData feeds the review prompt template.
type ReviewPromptData struct {
	Title       string
	Description string
	Diff        string
	Context     []string
	RecentPRs   []string
}
