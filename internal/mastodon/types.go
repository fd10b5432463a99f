// Package mastodon is the bot's view of a Mastodon server: the account and
// status shapes it reads, a websocket streaming subscription, and the REST
// calls it makes.
package mastodon

import "time"

// Account is the subset of a Mastodon account the bot reads.
// StatusesCount is eventually consistent and may lag between events.
type Account struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	Acct          string    `json:"acct"`
	DisplayName   string    `json:"display_name"`
	StatusesCount int64     `json:"statuses_count"`
	CreatedAt     time.Time `json:"created_at"`
}

// Status is the subset of a Mastodon status the bot reads.
type Status struct {
	ID         string    `json:"id"`
	URL        string    `json:"url"`
	Visibility string    `json:"visibility"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
	Account    Account   `json:"account"`
}

// Notification is the subset of a Mastodon notification the bot reads.
type Notification struct {
	ID      string   `json:"id"`
	Type    string   `json:"type"`
	Account *Account `json:"account"`
	Status  *Status  `json:"status"`
}

// Visibility controls who can see a posted status.
type Visibility string

const (
	VisibilityPublic   Visibility = "public"
	VisibilityUnlisted Visibility = "unlisted"
	VisibilityPrivate  Visibility = "private"
	VisibilityDirect   Visibility = "direct"
)

// Stream names accepted by the streaming API.
const (
	StreamPublic      = "public"
	StreamPublicLocal = "public:local"
	StreamUser        = "user"
)
