// Visey Recommender - Hybrid Content Recommendation Service
// SPDX-License-Identifier: AGPL-3.0-or-later

package platform

import (
	"fmt"
	"net/http"

	"github.com/visey/recommender/internal/config"
)

// authenticator applies credentials to an outgoing request. The method is
// fixed at construction; invalid credential combinations are rejected by
// config validation before a client is ever built.
type authenticator interface {
	apply(req *http.Request)
	configured() bool
}

// newAuthenticator builds an authenticator for the configured auth type.
func newAuthenticator(cfg *config.PlatformConfig) (authenticator, error) {
	switch cfg.AuthType {
	case config.AuthNone, "":
		return noneAuth{}, nil
	case config.AuthBasic:
		return basicAuth{username: cfg.Username, password: cfg.Password}, nil
	case config.AuthBearer:
		return bearerAuth{token: cfg.Token}, nil
	case config.AuthApplicationPassword:
		// Application passwords travel as HTTP basic credentials; the
		// platform distinguishes them server-side.
		return basicAuth{username: cfg.Username, password: cfg.AppPassword}, nil
	default:
		return nil, fmt.Errorf("unsupported auth type %q", cfg.AuthType)
	}
}

type noneAuth struct{}

func (noneAuth) apply(*http.Request) {}
func (noneAuth) configured() bool    { return false }

type basicAuth struct {
	username string
	password string
}

func (a basicAuth) apply(req *http.Request) {
	req.SetBasicAuth(a.username, a.password)
}
func (basicAuth) configured() bool { return true }

type bearerAuth struct {
	token string
}

func (a bearerAuth) apply(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+a.token)
}
func (bearerAuth) configured() bool { return true }
