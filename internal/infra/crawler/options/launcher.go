package options

import (
	"fmt"

	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
)

// LauncherOption tweaks one aspect of the rod launcher.
type LauncherOption func(l *launcher.Launcher)

// CreateLauncher builds a launcher with the automation fingerprint flags
// turned off, then applies opts in order. userMode reuses the user's
// installed browser and profile instead of a fresh one.
func CreateLauncher(userMode bool, opts ...LauncherOption) *launcher.Launcher {
	var l *launcher.Launcher
	if userMode {
		l = launcher.NewUserMode()
	} else {
		l = launcher.New()
	}
	l = l.Set("disable-blink-features", "AutomationControlled")
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func WithBin(bin string) LauncherOption {
	return func(l *launcher.Launcher) {
		if bin != "" {
			l.Bin(bin)
		}
	}
}

func WithUserDataDir(dir string) LauncherOption {
	return func(l *launcher.Launcher) {
		if dir != "" {
			l.UserDataDir(dir)
		}
	}
}

func WithHeadless(headless bool) LauncherOption {
	return func(l *launcher.Launcher) {
		l.Headless(headless)
	}
}

func WithNoSandbox(noSandbox bool) LauncherOption {
	return func(l *launcher.Launcher) {
		l.NoSandbox(noSandbox)
	}
}

func WithDisableDevShmUsage(disable bool) LauncherOption {
	return func(l *launcher.Launcher) {
		if disable {
			l.Set("disable-dev-shm-usage")
		} else {
			l.Delete("disable-dev-shm-usage")
		}
	}
}

func WithLeakless(leakless bool) LauncherOption {
	return func(l *launcher.Launcher) {
		l.Leakless(leakless)
	}
}

func WithUserAgent(userAgent string) LauncherOption {
	return func(l *launcher.Launcher) {
		if userAgent != "" {
			l.Set("user-agent", userAgent)
		}
	}
}

// WithProxy points the browser at an upstream proxy. Only scheme, host and
// port belong here; credentials are answered through the auth handler.
func WithProxy(server string) LauncherOption {
	return func(l *launcher.Launcher) {
		if server != "" {
			l.Proxy(server)
		}
	}
}

func WithWindowSize(width, height int) LauncherOption {
	return func(l *launcher.Launcher) {
		if width > 0 && height > 0 {
			l.Set(flags.Flag("window-size"), fmt.Sprintf("%d,%d", width, height))
		}
	}
}

func WithLang(lang string) LauncherOption {
	return func(l *launcher.Launcher) {
		if lang != "" {
			l.Set(flags.Flag("lang"), lang)
		}
	}
}
