package mastodon

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gomastodon "github.com/mattn/go-mastodon"
)

const defaultRequestTimeout = 30 * time.Second

// RESTConfig configures a RESTClient.
type RESTConfig struct {
	Server      string
	AccessToken string
	Timeout     time.Duration
	UserAgent   string
}

// RESTClient performs the REST calls the bot needs.
type RESTClient struct {
	client *gomastodon.Client
}

// NewRESTClient returns a client for cfg.Server.
func NewRESTClient(cfg RESTConfig) (*RESTClient, error) {
	server := strings.TrimRight(strings.TrimSpace(cfg.Server), "/")
	if server == "" {
		return nil, errors.New("mastodon server url is required")
	}
	client := gomastodon.NewClient(&gomastodon.Config{
		Server:      server,
		AccessToken: strings.TrimSpace(cfg.AccessToken),
	})
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	client.Timeout = timeout
	if cfg.UserAgent != "" {
		client.UserAgent = cfg.UserAgent
	}
	return &RESTClient{client: client}, nil
}

// PostStatus publishes text with the given visibility.
func (c *RESTClient) PostStatus(ctx context.Context, text string, visibility Visibility) (Status, error) {
	st, err := c.client.PostStatus(ctx, &gomastodon.Toot{
		Status:     text,
		Visibility: string(visibility),
	})
	if err != nil {
		return Status{}, fmt.Errorf("post status: %w", err)
	}
	return Status{
		ID:         string(st.ID),
		URL:        st.URL,
		Visibility: st.Visibility,
		Content:    st.Content,
		CreatedAt:  st.CreatedAt,
		Account:    fromAPIAccount(&st.Account),
	}, nil
}

// VerifyCredentials returns the account the access token belongs to.
func (c *RESTClient) VerifyCredentials(ctx context.Context) (Account, error) {
	acct, err := c.client.GetAccountCurrentUser(ctx)
	if err != nil {
		return Account{}, fmt.Errorf("verify credentials: %w", err)
	}
	return fromAPIAccount(acct), nil
}

func fromAPIAccount(a *gomastodon.Account) Account {
	if a == nil {
		return Account{}
	}
	return Account{
		ID:            string(a.ID),
		Username:      a.Username,
		Acct:          a.Acct,
		DisplayName:   a.DisplayName,
		StatusesCount: a.StatusesCount,
		CreatedAt:     a.CreatedAt,
	}
}
