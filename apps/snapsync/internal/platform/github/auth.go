// Package github builds authenticated go-github clients for the snapshot
// adapters: a token client for local runs and a GitHub App installation
// client for deployed ones.
package github

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/bradleyfalzon/ghinstallation/v2"
	gogithub "github.com/google/go-github/v75/github"
	"golang.org/x/oauth2"
)

const defaultAPIURL = "https://api.github.com"

// AppCredentials identify a GitHub App installation.
type AppCredentials struct {
	AppID          int64
	InstallationID int64
	PrivateKeyPath string
}

// Enabled reports whether App auth is configured.
func (a AppCredentials) Enabled() bool {
	return a.AppID != 0 && a.InstallationID != 0 && a.PrivateKeyPath != ""
}

// NewClient picks App auth when configured and falls back to token auth.
func NewClient(token string, app AppCredentials, baseURL string) (*gogithub.Client, error) {
	if app.Enabled() {
		return NewAppClient(app.AppID, app.InstallationID, app.PrivateKeyPath, baseURL)
	}
	return NewTokenClient(token, baseURL), nil
}

// NewTokenClient creates a client authenticated with a personal access token.
// An empty token yields an anonymous client. Pass baseURL="" for the real API
// or the address of a fake (e.g. "http://localhost:9090").
func NewTokenClient(token, baseURL string) *gogithub.Client {
	var httpClient *http.Client
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		httpClient = oauth2.NewClient(context.Background(), ts)
	}
	c := gogithub.NewClient(httpClient)
	applyBaseURL(c, baseURL)
	return c
}

// NewAppClient creates a client authenticated as a GitHub App installation.
func NewAppClient(appID, installationID int64, privateKeyPath, baseURL string) (*gogithub.Client, error) {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = defaultAPIURL
	}

	tr, err := ghinstallation.NewKeyFromFile(http.DefaultTransport, appID, installationID, privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("github app auth: %w", err)
	}
	tr.BaseURL = base

	c := gogithub.NewClient(&http.Client{Transport: tr})
	applyBaseURL(c, baseURL)
	return c, nil
}

func applyBaseURL(c *gogithub.Client, baseURL string) {
	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL == "" || baseURL == defaultAPIURL {
		return
	}
	u, err := url.Parse(baseURL + "/")
	if err != nil {
		return
	}
	c.BaseURL = u
}
