package vcs

import (
	"os"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
)

// DefaultTokenUsername is sent with token credentials when no username is
// configured. GitHub, GitLab and Bitbucket accept any non-empty name.
const DefaultTokenUsername = "x-access-token"

// AuthProvider resolves the transport credentials for a remote URL.
// A nil method means anonymous access.
type AuthProvider interface {
	Method(remoteURL string) (transport.AuthMethod, error)
}

// TokenAuth supplies HTTP basic credentials built from an access token.
type TokenAuth struct {
	Username string
	Token    string
}

// TokenFromEnv returns a TokenAuth reading the token from the named
// environment variable, or nil when the variable is unset or empty.
func TokenFromEnv(envVar, username string) *TokenAuth {
	if envVar == "" {
		return nil
	}
	token := strings.TrimSpace(os.Getenv(envVar))
	if token == "" {
		return nil
	}
	return &TokenAuth{Username: username, Token: token}
}

// Method implements AuthProvider. Credentials are only offered over HTTPS;
// plain HTTP and SSH remotes are accessed anonymously.
func (a *TokenAuth) Method(remoteURL string) (transport.AuthMethod, error) {
	if a == nil || a.Token == "" {
		return nil, nil
	}
	if !strings.HasPrefix(strings.ToLower(remoteURL), "https://") {
		return nil, nil
	}
	user := a.Username
	if user == "" {
		user = DefaultTokenUsername
	}
	return &githttp.BasicAuth{Username: user, Password: a.Token}, nil
}
