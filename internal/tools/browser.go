package tools

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"

	"toolchat/internal/logging"
	"toolchat/internal/sandbox"
	"toolchat/internal/tooling"
)

// BrowserOptions configures the browser tool.
type BrowserOptions struct {
	// DebuggerURL attaches to an already running Chrome instead of
	// launching one.
	DebuggerURL string

	// Headless controls launched instances. Ignored when attaching.
	Headless bool

	// NavTimeout bounds page navigation. Zero means 30 seconds.
	NavTimeout time.Duration

	// Store receives opened page handles so other tools (and sandbox
	// snippets) can look them up by name. Nil means the shared store.
	Store *sandbox.Store
}

// Browser drives Chrome pages through go-rod. Opened pages are registered in
// the named result store under an opaque handle, so a page outlives the call
// that opened it and later calls address it by handle.
type Browser struct {
	opts  BrowserOptions
	store *sandbox.Store

	mu      sync.Mutex
	browser *rod.Browser
}

// NewBrowser creates the browser tool. Chrome is not started until the first
// call that needs it.
func NewBrowser(opts BrowserOptions) *Browser {
	if opts.NavTimeout <= 0 {
		opts.NavTimeout = 30 * time.Second
	}
	store := opts.Store
	if store == nil {
		store = sandbox.Results()
	}
	return &Browser{opts: opts, store: store}
}

func (b *Browser) Name() string { return "browser" }

func (b *Browser) Preprompt() string {
	return strings.TrimSpace(`
browser: drive a web browser.
  open — navigate a new page to the URL in the code block; the result carries
  a page handle for use in later calls.
  eval — first line of the code block is a page handle, the rest is a
  JavaScript expression evaluated on that page; its value is the result.
  close — close the page whose handle is in the code block.`)
}

// Execute dispatches the open/eval/close commands.
func (b *Browser) Execute(ctx context.Context, command, content string, log tooling.LogFunc) (any, error) {
	switch command {
	case "open":
		return b.open(ctx, strings.TrimSpace(content), log)
	case "eval":
		handle, js, err := splitHandle(content)
		if err != nil {
			return nil, err
		}
		return b.eval(ctx, handle, js, log)
	case "close":
		return b.close(strings.TrimSpace(content), log)
	default:
		return nil, fmt.Errorf("unknown browser command %q", command)
	}
}

// Shutdown closes every tracked page and the browser itself.
func (b *Browser) Shutdown() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, key := range b.store.Keys() {
		if page, ok := b.page(key); ok {
			_ = page.Close()
			b.store.Delete(key)
		}
	}
	if b.browser == nil {
		return nil
	}
	err := b.browser.Close()
	b.browser = nil
	return err
}

func (b *Browser) open(ctx context.Context, url string, log tooling.LogFunc) (any, error) {
	if url == "" {
		return nil, fmt.Errorf("open requires a URL")
	}
	browser, err := b.ensure(ctx)
	if err != nil {
		return nil, err
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", url, err)
	}
	if err := page.Context(ctx).Timeout(b.opts.NavTimeout).WaitLoad(); err != nil {
		log("page load wait: %v", err)
	}

	handle := "page-" + uuid.NewString()[:8]
	b.store.Set(handle, page)
	log("opened %s as %s", url, handle)
	logging.Browser("opened %s (handle %s)", url, handle)
	return map[string]string{"handle": handle, "url": url}, nil
}

func (b *Browser) eval(ctx context.Context, handle, js string, log tooling.LogFunc) (any, error) {
	page, ok := b.page(handle)
	if !ok {
		return nil, fmt.Errorf("unknown page handle %q", handle)
	}

	log("eval on %s", handle)
	res, err := page.Context(ctx).Eval(js)
	if err != nil {
		return nil, fmt.Errorf("eval failed: %w", err)
	}
	return res.Value.Val(), nil
}

func (b *Browser) close(handle string, log tooling.LogFunc) (any, error) {
	page, ok := b.page(handle)
	if !ok {
		return nil, fmt.Errorf("unknown page handle %q", handle)
	}
	b.store.Delete(handle)
	if err := page.Close(); err != nil {
		return nil, fmt.Errorf("close %s: %w", handle, err)
	}
	log("closed %s", handle)
	return "closed", nil
}

// page looks a handle up in the store and type-checks it.
func (b *Browser) page(handle string) (*rod.Page, bool) {
	page, ok := b.store.Get(handle).(*rod.Page)
	return page, ok
}

// ensure connects to Chrome on first use.
func (b *Browser) ensure(ctx context.Context) (*rod.Browser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browser != nil {
		return b.browser, nil
	}

	controlURL := b.opts.DebuggerURL
	if controlURL == "" {
		url, err := launcher.New().Headless(b.opts.Headless).Launch()
		if err != nil {
			return nil, fmt.Errorf("launch chrome: %w", err)
		}
		controlURL = url
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}
	b.browser = browser
	logging.Browser("connected to %s", controlURL)
	return browser, nil
}

// splitHandle separates the handle line from the body of an eval block.
func splitHandle(content string) (handle, rest string, err error) {
	content = strings.TrimSpace(content)
	handle, rest, _ = strings.Cut(content, "\n")
	handle = strings.TrimSpace(handle)
	rest = strings.TrimSpace(rest)
	if handle == "" {
		return "", "", fmt.Errorf("first line must be a page handle")
	}
	if rest == "" {
		return "", "", fmt.Errorf("missing JavaScript after the handle line")
	}
	return handle, rest, nil
}
