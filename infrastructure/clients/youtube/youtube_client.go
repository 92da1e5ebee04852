package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"reelpipe/domain/model"
	"reelpipe/infrastructure/logger"
	"reelpipe/infrastructure/proxy"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

const maxTitleLength = 100

// Config represents YouTube API configuration
type Config struct {
	ClientID      string
	ClientSecret  string
	RedirectURL   string
	PrivacyStatus string
	CategoryID    string
	// TokenURL and APIEndpoint override Google's endpoints when set.
	TokenURL    string
	APIEndpoint string
	Timeout     time.Duration
}

// Client publishes shorts for accounts whose credential is an OAuth refresh
// token. A session blob is the JSON encoded oauth2.Token.
type Client struct {
	oauthConfig *oauth2.Config
	privacy     string
	category    string
	endpoint    string
	timeout     time.Duration
}

func NewYouTubeClient(cfg Config) *Client {
	endpoint := google.Endpoint
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}
	privacy := cfg.PrivacyStatus
	if privacy == "" {
		privacy = "public"
	}
	category := cfg.CategoryID
	if category == "" {
		category = "22"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &Client{
		oauthConfig: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{youtube.YoutubeUploadScope, youtube.YoutubeReadonlyScope},
			Endpoint:     endpoint,
		},
		privacy:  privacy,
		category: category,
		endpoint: cfg.APIEndpoint,
		timeout:  timeout,
	}
}

// AuthCodeURL is the consent page an operator visits to link an account.
// The username travels in state.
func (c *Client) AuthCodeURL(username string) string {
	return c.oauthConfig.AuthCodeURL(username, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades a consent code for a token that carries a refresh token.
func (c *Client) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := c.oauthConfig.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}
	if tok.RefreshToken == "" {
		return nil, fmt.Errorf("%w: no refresh token granted", model.ErrLoginFailed)
	}
	return tok, nil
}

// ExchangeCode completes account linking: the refresh token becomes the
// account credential and the token itself the first session.
func (c *Client) ExchangeCode(ctx context.Context, code string) (string, []byte, error) {
	tok, err := c.Exchange(ctx, code)
	if err != nil {
		return "", nil, err
	}
	blob, err := json.Marshal(tok)
	if err != nil {
		return "", nil, err
	}
	return tok.RefreshToken, blob, nil
}

func (c *Client) Login(ctx context.Context, account *model.Account, via *model.ProxyConfig) (*model.Session, error) {
	if account == nil || account.Password == "" {
		return nil, fmt.Errorf("%w: account has no linked credential", model.ErrLoginFailed)
	}
	ctx, err := c.withHTTPClient(ctx, via)
	if err != nil {
		return nil, err
	}
	tok, err := c.oauthConfig.TokenSource(ctx, &oauth2.Token{RefreshToken: account.Password}).Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrLoginFailed, err)
	}
	logger.GetLogger().WithField("account", account.Username).Info("YouTube login succeeded")
	return c.session(account.Username, tok, via)
}

func (c *Client) RestoreSession(ctx context.Context, username string, blob []byte, via *model.ProxyConfig) (*model.Session, error) {
	var tok oauth2.Token
	if err := json.Unmarshal(blob, &tok); err != nil || tok.RefreshToken == "" {
		return nil, fmt.Errorf("%w: unreadable session blob", model.ErrSessionInvalid)
	}
	if tok.Valid() {
		return c.session(username, &tok, via)
	}
	ctx, err := c.withHTTPClient(ctx, via)
	if err != nil {
		return nil, err
	}
	fresh, err := c.oauthConfig.TokenSource(ctx, &tok).Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrSessionInvalid, err)
	}
	return c.session(username, fresh, via)
}

// Publish uploads filePath as a public short. The first caption line, cut
// to 100 runes, becomes the title and the full caption the description.
func (c *Client) Publish(ctx context.Context, session *model.Session, filePath, caption string) (*model.MediaRef, error) {
	var tok oauth2.Token
	if session == nil || json.Unmarshal(session.Blob, &tok) != nil {
		return nil, fmt.Errorf("%w: unreadable session blob", model.ErrSessionInvalid)
	}
	ctx, err := c.withHTTPClient(ctx, session.Proxy)
	if err != nil {
		return nil, err
	}

	opts := []option.ClientOption{option.WithHTTPClient(c.oauthConfig.Client(ctx, &tok))}
	if c.endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.endpoint))
	}
	service, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create YouTube service: %w", err)
	}

	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       Title(caption),
			Description: caption,
			CategoryId:  c.category,
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus: c.privacy,
		},
	}

	response, err := service.Videos.Insert([]string{"snippet", "status"}, video).Media(file).Context(ctx).Do()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusUnauthorized {
			return nil, fmt.Errorf("%w: %v", model.ErrSessionInvalid, err)
		}
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return nil, fmt.Errorf("%w: %v", model.ErrSessionInvalid, err)
		}
		return nil, fmt.Errorf("failed to upload video: %w", err)
	}
	return &model.MediaRef{ID: response.Id, URL: "https://www.youtube.com/shorts/" + response.Id}, nil
}

// Title derives a video title from a caption.
func Title(caption string) string {
	title := strings.TrimSpace(strings.SplitN(caption, "\n", 2)[0])
	if title == "" {
		title = "Short"
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		title = string([]rune(title)[:maxTitleLength])
	}
	return title
}

func (c *Client) session(username string, tok *oauth2.Token, via *model.ProxyConfig) (*model.Session, error) {
	blob, err := json.Marshal(tok)
	if err != nil {
		return nil, err
	}
	return &model.Session{Username: username, Blob: blob, ExpiresAt: tok.Expiry, Proxy: via}, nil
}

// withHTTPClient makes oauth2 route token and API traffic through via.
func (c *Client) withHTTPClient(ctx context.Context, via *model.ProxyConfig) (context.Context, error) {
	client, err := proxy.NewHTTPClient(via, c.timeout)
	if err != nil {
		return nil, err
	}
	return context.WithValue(ctx, oauth2.HTTPClient, client), nil
}
