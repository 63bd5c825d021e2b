package fetcher

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"hostsync/atomicfile"
	"hostsync/logger"
	"hostsync/source"
)

const copyBufferSize = 4096

// Outcome is how a fetch ended.
type Outcome int

const (
	OutcomeSkipped     Outcome = iota // nothing to fetch for this item
	OutcomeNotModified                // server answered 304
	OutcomeUpdated                    // new content committed
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeNotModified:
		return "not_modified"
	case OutcomeUpdated:
		return "updated"
	case OutcomeFailed:
		return "failed"
	default:
		return "outcome(" + strconv.Itoa(int(o)) + ")"
	}
}

// Options configures a Fetcher. Zero values get defaults.
type Options struct {
	Client    *http.Client
	Resolver  source.Resolver
	Granter   source.Granter
	UserAgent string
}

// Fetcher refreshes the local mirror of a single item.
type Fetcher struct {
	client    *http.Client
	resolver  source.Resolver
	granter   source.Granter
	userAgent string
	log       *logger.Logger
}

func New(opts Options) *Fetcher {
	if opts.Client == nil {
		opts.Client = NewHTTPClient(DefaultConnectTimeout, DefaultReadTimeout)
	}
	if opts.Granter == nil {
		opts.Granter = source.FileGranter{}
	}
	return &Fetcher{
		client:    opts.Client,
		resolver:  opts.Resolver,
		granter:   opts.Granter,
		userAgent: opts.UserAgent,
		log:       logger.With("fetcher"),
	}
}

// Fetch runs the update protocol for item: acquire a grant for content
// references, skip what is not downloadable, send a conditional GET, and
// stream a 200 body into the mirror through an atomic replace.
//
// The returned error is always a *Error.
func (f *Fetcher) Fetch(ctx context.Context, item source.Item) (Outcome, error) {
	if source.Classify(item.Location) == source.KindContent {
		if !f.granter.TryAcquire(item.Location) {
			f.log.Debugf("%s: read grant refused for %s", item.Title, item.Location)
			return OutcomeFailed, newPermissionDenied()
		}
	}

	path, ok := f.resolver.MirrorPath(item.Location)
	if !ok || !item.Enabled || !source.IsDownloadable(item.Location) {
		f.log.Debugf("%s: nothing to download for %q", item.Title, item.Location)
		return OutcomeSkipped, nil
	}

	u, err := url.Parse(item.Location)
	if err == nil && u.Host == "" {
		err = errors.New("missing host")
	}
	if err != nil {
		return OutcomeFailed, newInvalidLocation(item.Location, err)
	}

	mirror := atomicfile.New(path)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return OutcomeFailed, newInvalidLocation(item.Location, err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	f.setIfModifiedSince(req, mirror)

	resp, err := f.client.Do(req)
	if err != nil {
		return OutcomeFailed, newIOError(err)
	}
	defer resp.Body.Close()

	f.log.Debugf("%s: local = %s remote = %s", item.Title,
		req.Header.Get("If-Modified-Since"), resp.Header.Get("Last-Modified"))

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotModified:
		f.log.Debugf("%s: not modified", item.Title)
		return OutcomeNotModified, nil
	default:
		f.log.Debugf("%s: server responded with %d for %s", item.Title, resp.StatusCode, item.Location)
		return OutcomeFailed, newUpstreamError(resp.StatusCode, statusText(resp))
	}

	if err := f.download(mirror, resp.Body); err != nil {
		return OutcomeFailed, newIOError(err)
	}

	f.applyLastModified(item, mirror, resp.Header.Get("Last-Modified"))
	return OutcomeUpdated, nil
}

// setIfModifiedSince makes the request conditional when a readable mirror
// with a known modification time exists. Any failure here only means the
// request is sent unconditionally.
func (f *Fetcher) setIfModifiedSince(req *http.Request, mirror *atomicfile.File) {
	r, err := mirror.OpenRead()
	if err != nil {
		return
	}
	r.Close()

	mod, err := mirror.ModTime()
	if err != nil || mod.Unix() <= 0 {
		return
	}
	req.Header.Set("If-Modified-Since", mod.UTC().Format(http.TimeFormat))
}

func (f *Fetcher) download(mirror *atomicfile.File, body io.Reader) error {
	w, err := mirror.BeginWrite()
	if err != nil {
		return err
	}
	defer func() {
		if err := mirror.Abandon(w); err != nil {
			f.log.Warnf("failed to discard staged write %s: %v", w.Name(), err)
		}
	}()

	if _, err := io.CopyBuffer(w, body, make([]byte, copyBufferSize)); err != nil {
		return err
	}
	return mirror.Commit(w)
}

func (f *Fetcher) applyLastModified(item source.Item, mirror *atomicfile.File, header string) {
	modified, err := http.ParseTime(header)
	if header == "" || err != nil || modified.Unix() <= 0 {
		f.log.Debugf("%s: could not set last modified", item.Title)
		return
	}
	if err := mirror.SetModTime(modified); err != nil {
		f.log.Debugf("%s: could not set last modified: %v", item.Title, err)
	}
}

func statusText(resp *http.Response) string {
	code := strconv.Itoa(resp.StatusCode)
	text := strings.TrimSpace(strings.TrimPrefix(resp.Status, code))
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	return text
}

// ModTime returns the modification time of item's mirror, or the zero time
// when it has none.
func (f *Fetcher) ModTime(item source.Item) time.Time {
	path, ok := f.resolver.MirrorPath(item.Location)
	if !ok {
		return time.Time{}
	}
	t, err := atomicfile.New(path).ModTime()
	if err != nil {
		return time.Time{}
	}
	return t
}
