package chrome

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/infra/crawler/types"
)

// Driver launches a browser process and connects to it.
type Driver interface {
	Launch(ctx context.Context) (Browser, error)
}

// Browser is a running browser process with a shared cookie store.
type Browser interface {
	NewPage(ctx context.Context) (Page, error)
	Cookies(ctx context.Context) ([]Cookie, error)
	SetCookies(ctx context.Context, cookies []Cookie) error
	ClearCookies(ctx context.Context) error
	Close() error
}

// Page is one tab with the stealth patches and emulation already applied.
// Every method honours the deadline carried by ctx.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Reload(ctx context.Context) error
	Snapshot(ctx context.Context) (types.PageSnapshot, error)
	WaitVisible(ctx context.Context, selector string) error
	SelectOption(ctx context.Context, selector, value string) error
	// ClickNavigate clicks selector and returns once the navigation the
	// click started has loaded. The wait is armed before the click.
	ClickNavigate(ctx context.Context, selector string) error
	Close() error
}

// Cookie is the driver-neutral cookie persisted in the session file.
// Expires is in seconds since the epoch, zero for session cookies.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires,omitempty"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite,omitempty"`
}

// Emulation is the identity every new page presents.
type Emulation struct {
	UserAgent      string
	AcceptLanguage string
	Platform       string
	Locale         string
	Timezone       string
	Latitude       float64
	Longitude      float64
	ViewportWidth  int
	ViewportHeight int
}

// Proxy is an upstream proxy. Server carries no credentials.
type Proxy struct {
	Server   string
	Username string
	Password string
}

func (p *Proxy) HasAuth() bool {
	return p != nil && p.Username != ""
}

type DriverConfig struct {
	Bin         string
	UserDataDir string
	Headless    bool
	NoSandbox   bool
	Leakless    bool
	Proxy       *Proxy
	Emulation   Emulation
}

// NewDriver returns the driver registered under name.
func NewDriver(name string, cfg DriverConfig) (Driver, error) {
	switch name {
	case "", "rod":
		return NewRodDriver(cfg), nil
	case "chromedp":
		return NewChromedpDriver(cfg), nil
	default:
		return nil, eris.Errorf("chrome: unknown driver %q", name)
	}
}
