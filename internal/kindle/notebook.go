// Package kindle captures the Kindle notebook (highlights and notes per
// book) with a headless browser and returns it as a library snapshot.
package kindle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/mcao2/readwise-ankify/internal/library"
	"github.com/mcao2/readwise-ankify/internal/logging"
)

const (
	DefaultNotebookURL = "https://read.amazon.com/notebook"
	DefaultBookLimit   = 10

	signInForm      = `form[name="signIn"]`
	libraryPane     = "#library"
	libraryRows     = "#kp-notebook-library > div"
	annotationsPane = "#kp-notebook-annotations-pane > div"
)

// ErrMissingCredentials is returned when the notebook asks for a sign-in
// and no user or password is configured
var ErrMissingCredentials = errors.New("amazon user and password are required to sign in")

const bookEntryJS = `() => JSON.stringify({
	id: this.id || "",
	title: this.querySelector("h2")?.innerText || "",
	author: this.querySelector("p")?.innerText || "",
})`

const annotationsJS = `() => JSON.stringify(Array.from(
	document.querySelectorAll("#kp-notebook-annotations > div"),
	(el) => ({
		id: el.id || "",
		highlight: el.querySelector("#highlight")?.innerText || "",
		note: el.querySelector("#note")?.innerText || "",
		location: el.querySelector("#kp-annotation-location")?.value || "",
	}),
))`

// bookOpenedJS reports whether the annotation pane shows the given book.
// Pages without the asin marker are accepted as soon as the pane renders.
const bookOpenedJS = `(asin) => {
	if (!document.querySelector("#kp-notebook-annotations-pane > div")) return false;
	const marker = document.querySelector("#kp-notebook-annotations-asin");
	return !marker || marker.value === asin;
}`

// Config configures a notebook capture
type Config struct {
	User        string
	Password    string
	NotebookURL string
	BookLimit   int
	Headless    bool

	// RemoteURL is the DevTools WebSocket URL of a running browser. Empty
	// launches a local one.
	RemoteURL string

	// Timeout bounds every wait for the page. Default: 60s.
	Timeout time.Duration
}

func (c *Config) defaults() {
	if c.NotebookURL == "" {
		c.NotebookURL = DefaultNotebookURL
	}
	if c.BookLimit <= 0 {
		c.BookLimit = DefaultBookLimit
	}
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
}

// Notebook captures snapshots from the Kindle notebook page
type Notebook struct {
	cfg Config
	now func() time.Time
}

// NewNotebook creates a Notebook
func NewNotebook(cfg Config) *Notebook {
	cfg.defaults()
	return &Notebook{cfg: cfg, now: time.Now}
}

// Capture signs in if needed, walks the first BookLimit books of the
// library and returns everything as a snapshot
func (n *Notebook) Capture(ctx context.Context) (*library.Snapshot, error) {
	logger := logging.From(ctx)

	browser, cleanup, err := n.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	page, err := stealth.Page(browser)
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	defer page.Close()
	page = page.Context(ctx)

	logger.Info("opening kindle notebook", "url", n.cfg.NotebookURL)
	if err := page.Navigate(n.cfg.NotebookURL); err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", n.cfg.NotebookURL, err)
	}
	if err := page.Timeout(n.cfg.Timeout).WaitLoad(); err != nil {
		logger.Warn("notebook page did not finish loading", "error", err)
	}

	if err := n.signIn(ctx, page); err != nil {
		return nil, err
	}

	rows, err := page.Timeout(n.cfg.Timeout).Elements(libraryRows)
	if err != nil {
		return nil, fmt.Errorf("failed to list books: %w", err)
	}
	if len(rows) > n.cfg.BookLimit {
		rows = rows[:n.cfg.BookLimit]
	}

	books := make([]library.Book, 0, len(rows))
	for i, row := range rows {
		book, err := n.readBook(ctx, page, row)
		if err != nil {
			return nil, fmt.Errorf("failed to read book %d: %w", i+1, err)
		}
		logger.Debug("captured book", "id", book.ID, "title", book.Title, "annotations", len(book.Annotations))
		books = append(books, book)
	}

	snap := newSnapshot(n.cfg.User, n.cfg.NotebookURL, books, n.now())
	logger.Info("captured kindle notebook", "books", len(snap.Books), "annotations", snap.AnnotationCount())
	return snap, nil
}

func (n *Notebook) connect(ctx context.Context) (*rod.Browser, func(), error) {
	controlURL := n.cfg.RemoteURL
	var lnch *launcher.Launcher

	if controlURL == "" {
		lnch = launcher.New().
			Headless(n.cfg.Headless).
			Set("disable-blink-features", "AutomationControlled")
		u, err := lnch.Launch()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to launch browser: %w", err)
		}
		controlURL = u
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		if lnch != nil {
			lnch.Cleanup()
		}
		return nil, nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	cleanup := func() {
		if lnch == nil {
			// attached browsers keep running
			return
		}
		browser.Close()
		lnch.Cleanup()
	}
	return browser, cleanup, nil
}

func (n *Notebook) signIn(ctx context.Context, page *rod.Page) error {
	hasForm, _, err := page.Has(signInForm)
	if err != nil {
		return fmt.Errorf("failed to inspect notebook page: %w", err)
	}
	if !hasForm {
		return nil
	}
	if n.cfg.User == "" || n.cfg.Password == "" {
		return ErrMissingCredentials
	}

	logging.From(ctx).Info("signing in", "user", n.cfg.User)
	wait := page.Timeout(n.cfg.Timeout)
	for _, field := range []struct{ selector, value string }{
		{"#ap_email", n.cfg.User},
		{"#ap_password", n.cfg.Password},
	} {
		el, err := wait.Element(field.selector)
		if err != nil {
			return fmt.Errorf("sign-in field %s not found: %w", field.selector, err)
		}
		if err := el.Input(field.value); err != nil {
			return fmt.Errorf("failed to fill %s: %w", field.selector, err)
		}
	}

	submit, err := wait.Element("#signInSubmit")
	if err != nil {
		return fmt.Errorf("sign-in button not found: %w", err)
	}
	if err := submit.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("failed to submit sign-in: %w", err)
	}

	if _, err := wait.Element(libraryPane); err != nil {
		return fmt.Errorf("library did not load after sign-in: %w", err)
	}
	return nil
}

func (n *Notebook) readBook(ctx context.Context, page *rod.Page, row *rod.Element) (library.Book, error) {
	res, err := row.Eval(bookEntryJS)
	if err != nil {
		return library.Book{}, err
	}
	entry, err := parseBookEntry(res.Value.Str())
	if err != nil {
		return library.Book{}, err
	}

	if err := sleep(ctx, 200*time.Millisecond); err != nil {
		return library.Book{}, err
	}
	if err := row.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return library.Book{}, fmt.Errorf("failed to open %q: %w", entry.Title, err)
	}
	if err := page.Timeout(n.cfg.Timeout).Wait(rod.Eval(bookOpenedJS, entry.ID)); err != nil {
		return library.Book{}, fmt.Errorf("annotations of %q did not load: %w", entry.Title, err)
	}

	res, err = page.Eval(annotationsJS)
	if err != nil {
		return library.Book{}, err
	}
	annotations, err := parseAnnotations(res.Value.Str())
	if err != nil {
		return library.Book{}, err
	}
	return toBook(entry, annotations), nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
