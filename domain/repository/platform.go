package repository

import (
	"context"

	"reelpipe/domain/model"
)

// IPlatformLister returns the most recent video links of a source account.
type IPlatformLister interface {
	ListRecentVideos(ctx context.Context, account string, limit int) ([]string, error)
}

// IDownloader resolves a source link to a direct media URL and fetches it.
// ResolveDownloadURL returns "" with a nil error when the source yields no media.
type IDownloader interface {
	ResolveDownloadURL(ctx context.Context, sourceLink string) (string, error)
	FetchToFile(ctx context.Context, mediaURL, path string) error
}

// IPublisher is the social platform client. Login and RestoreSession route
// through proxy when it is non-nil. Errors wrapping model.ErrLoginFailed or
// model.ErrSessionInvalid are credential failures.
type IPublisher interface {
	Login(ctx context.Context, account *model.Account, proxy *model.ProxyConfig) (*model.Session, error)
	RestoreSession(ctx context.Context, username string, blob []byte, proxy *model.ProxyConfig) (*model.Session, error)
	Publish(ctx context.Context, session *model.Session, filePath, caption string) (*model.MediaRef, error)
}

// INotifier is fire-and-forget.
type INotifier interface {
	Notify(ctx context.Context, message string)
}

// IAccountLinker runs the platform's consent flow. ExchangeCode returns the
// long-lived credential to store on the account and an initial session blob.
type IAccountLinker interface {
	AuthCodeURL(username string) string
	ExchangeCode(ctx context.Context, code string) (credential string, sessionBlob []byte, err error)
}
