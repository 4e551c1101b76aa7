// Package repourl validates and normalizes remote repository URLs.
//
// Validation is purely syntactic: no network access is performed. A URL is
// accepted when it uses http or https, points at an allow-listed Git hosting
// domain and names at least an owner and a repository in its path.
package repourl

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidURL is wrapped by every error returned from Normalize.
var ErrInvalidURL = errors.New("invalid repository URL")

// DefaultHosts is the allow-list used when a Validator has no hosts configured.
var DefaultHosts = []string{"github.com", "gitlab.com", "bitbucket.org"}

// Validator checks repository URLs against an allow-list of hosts.
// The zero value uses DefaultHosts.
type Validator struct {
	AllowedHosts []string
}

// New returns a Validator for the given hosts, or DefaultHosts when none are given.
func New(hosts ...string) *Validator {
	return &Validator{AllowedHosts: hosts}
}

// Validate reports whether raw is an acceptable repository URL.
func (v *Validator) Validate(raw string) bool {
	_, err := v.Normalize(raw)
	return err == nil
}

// Normalize validates raw and returns its canonical form: lower-case scheme
// and host, no credentials, query or fragment, and no trailing slash or
// ".git" suffix.
func (v *Validator) Normalize(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidURL)
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("%w: scheme %q must be http or https", ErrInvalidURL, u.Scheme)
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	if !v.hostAllowed(host) {
		return "", fmt.Errorf("%w: host %q is not in the allowed list (%s)", ErrInvalidURL, host, strings.Join(v.hosts(), ", "))
	}

	segments := pathSegments(u.Path)
	if len(segments) < 2 {
		return "", fmt.Errorf("%w: path %q must name an owner and a repository", ErrInvalidURL, u.Path)
	}
	last := len(segments) - 1
	segments[last] = strings.TrimSuffix(segments[last], ".git")
	if segments[last] == "" {
		return "", fmt.Errorf("%w: empty repository name", ErrInvalidURL)
	}

	if port := u.Port(); port != "" {
		host = host + ":" + port
	}

	return scheme + "://" + host + "/" + strings.Join(segments, "/"), nil
}

// Name returns the repository name (the last path segment without ".git")
// of a valid URL.
func (v *Validator) Name(raw string) (string, error) {
	normalized, err := v.Normalize(raw)
	if err != nil {
		return "", err
	}
	return normalized[strings.LastIndex(normalized, "/")+1:], nil
}

func (v *Validator) hosts() []string {
	if len(v.AllowedHosts) == 0 {
		return DefaultHosts
	}
	return v.AllowedHosts
}

func (v *Validator) hostAllowed(host string) bool {
	for _, h := range v.hosts() {
		if strings.EqualFold(strings.TrimSpace(h), host) {
			return true
		}
	}
	return false
}

func pathSegments(p string) []string {
	var out []string
	for _, s := range strings.Split(p, "/") {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
