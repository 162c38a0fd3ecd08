// Package giturl parses and normalizes the Git URL forms a lockfile can
// carry: "git+ssh://…", "git+https://…", "git+http://…", "git://…", and
// the GitHub shorthand "github:owner/repo[#ref]".
package giturl

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Recognized reports whether rawURL is one of the Git-dependency URL forms
// a "Git entry".
func Recognized(rawURL string) bool {
	switch {
	case strings.HasPrefix(rawURL, "git+ssh://"),
		strings.HasPrefix(rawURL, "git+https://"),
		strings.HasPrefix(rawURL, "git+http://"),
		strings.HasPrefix(rawURL, "git://"),
		strings.HasPrefix(rawURL, "github:"):
		return true
	default:
		return false
	}
}

// Parsed holds the decomposed components of a Git dependency URL.
type Parsed struct {
	Scheme    string // "ssh", "https", "http", "git"
	Host      string
	Path      string // e.g. "owner/repo.git" or "owner/repo"
	Reference string // contents of the URL fragment, or "HEAD" if absent
}

var githubShorthand = regexp.MustCompile(`^github:([^/]+)/([^#]+?)(?:#(.+))?$`)

// Parse decomposes a Git dependency URL into scheme, host, path, and
// reference. The fragment after "#" becomes Reference; if absent, it
// defaults to "HEAD".
func Parse(rawURL string) (*Parsed, error) {
	if m := githubShorthand.FindStringSubmatch(rawURL); m != nil {
		ref := m[3]
		if ref == "" {
			ref = "HEAD"
		}
		return &Parsed{
			Scheme:    "https",
			Host:      "github.com",
			Path:      strings.TrimSuffix(m[2], ".git") + ".git",
			Reference: ref,
		}, nil
	}

	trimmed := strings.TrimPrefix(rawURL, "git+")
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parsing git url %q: %w", rawURL, err)
	}
	if u.Host == "" || u.Path == "" {
		return nil, fmt.Errorf("git url %q is missing host or path", rawURL)
	}

	ref := u.Fragment
	if ref == "" {
		ref = "HEAD"
	}

	return &Parsed{
		Scheme:    u.Scheme,
		Host:      u.Host,
		Path:      strings.TrimPrefix(u.Path, "/"),
		Reference: ref,
	}, nil
}

// Normalize rebuilds the canonical "git+<scheme>://host/path.git" form for
// gitUrl, stripping embedded credentials and any existing fragment, per
// the lockfile scanner.
func (p *Parsed) Normalize() string {
	path := p.Path
	if !strings.HasSuffix(path, ".git") {
		path += ".git"
	}
	return fmt.Sprintf("git+%s://%s/%s", p.Scheme, p.Host, path)
}

// CloneURL returns the bare transport URL (no "git+" prefix, no
// credentials, no fragment) suitable for passing to `git clone` or
// `git ls-remote`.
func (p *Parsed) CloneURL() string {
	path := p.Path
	if !strings.HasSuffix(path, ".git") {
		path += ".git"
	}
	return fmt.Sprintf("%s://%s/%s", p.Scheme, p.Host, path)
}

// SameHostPath reports whether two Git URLs point at the same host and
// repository path, ignoring scheme — used to detect the npm SSH-to-HTTPS
// anomaly.
func SameHostPath(a, b string) bool {
	pa, errA := Parse(a)
	pb, errB := Parse(b)
	if errA != nil || errB != nil {
		return false
	}
	return pa.Host == pb.Host && strings.TrimSuffix(pa.Path, ".git") == strings.TrimSuffix(pb.Path, ".git")
}

// DetectSSHToHTTPSAnomaly reports whether packageJSONURL uses ssh:// while
// lockfileURL uses https:// for the same host/path — the npm anomaly named
// during reference resolution.
func DetectSSHToHTTPSAnomaly(packageJSONURL, lockfileURL string) bool {
	return strings.Contains(packageJSONURL, "ssh://") &&
		strings.Contains(lockfileURL, "https://") &&
		SameHostPath(packageJSONURL, lockfileURL)
}
