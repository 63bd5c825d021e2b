package source

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/miekg/dns"
)

// Item is one rule list entry. Items are identified by Location; Title is
// only a display label and may repeat.
type Item struct {
	Title    string `json:"title"`
	Location string `json:"location"`
	Enabled  bool   `json:"enabled"`
}

// Kind classifies an item location.
type Kind int

const (
	KindUnknown Kind = iota
	KindHTTP         // http:// or https:// URL
	KindContent      // content: reference, needs a read grant
	KindFile         // file: URL on local storage
	KindHost         // a bare host name, nothing to fetch
)

func (k Kind) String() string {
	switch k {
	case KindHTTP:
		return "http"
	case KindContent:
		return "content"
	case KindFile:
		return "file"
	case KindHost:
		return "host"
	default:
		return "unknown"
	}
}

const contentPrefix = "content:"

// maxMirrorName keeps escaped names below the usual 255 byte filename limit.
const maxMirrorName = 240

// Classify returns the kind of location.
func Classify(location string) Kind {
	switch {
	case IsDownloadable(location):
		return KindHTTP
	case strings.HasPrefix(location, contentPrefix):
		return KindContent
	case strings.HasPrefix(location, "file:"):
		return KindFile
	case isHostName(location):
		return KindHost
	default:
		return KindUnknown
	}
}

// IsDownloadable reports whether location is fetched over the network.
func IsDownloadable(location string) bool {
	return strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://")
}

func isHostName(location string) bool {
	if location == "" || strings.ContainsAny(location, "/: \t") {
		return false
	}
	_, ok := dns.IsDomainName(location)
	return ok
}

// Resolver maps locations to their local mirror files.
type Resolver struct {
	// Dir holds mirrors of network locations.
	Dir string
}

// MirrorPath returns where the content of location is stored locally. Bare
// hosts and unknown locations have no mirror.
func (r Resolver) MirrorPath(location string) (string, bool) {
	switch Classify(location) {
	case KindHTTP:
		return filepath.Join(r.Dir, mirrorName(location)), true
	case KindFile, KindContent:
		return localPath(location)
	default:
		return "", false
	}
}

// mirrorName escapes the whole URL into a single path element, e.g.
// "http://example.com/" becomes "http%3A%2F%2Fexample.com%2F". Names that
// would be too long for the filesystem fall back to a hash of the URL.
func mirrorName(location string) string {
	name := url.QueryEscape(location)
	if len(name) <= maxMirrorName {
		return name
	}
	h := sha256.Sum256([]byte(location))
	return "sha256-" + hex.EncodeToString(h[:])
}

// localPath extracts the local file path of a file: URL or content: reference.
func localPath(location string) (string, bool) {
	u, err := url.Parse(location)
	if err != nil {
		return "", false
	}
	p := u.Path
	if p == "" {
		p = u.Opaque
	}
	if p == "" {
		return "", false
	}
	return filepath.FromSlash(p), true
}
