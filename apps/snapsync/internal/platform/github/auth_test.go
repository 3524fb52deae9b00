package github_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tilsley/snapsync/apps/snapsync/internal/platform/github"
)

func TestNewTokenClient_DefaultBaseURL(t *testing.T) {
	c := github.NewTokenClient("", "")
	assert.Equal(t, "https://api.github.com/", c.BaseURL.String())
}

func TestNewTokenClient_CustomBaseURL(t *testing.T) {
	c := github.NewTokenClient("tok", "http://localhost:9090/")
	assert.Equal(t, "http://localhost:9090/", c.BaseURL.String())
}

func TestNewClient_FallsBackToToken(t *testing.T) {
	c, err := github.NewClient("tok", github.AppCredentials{AppID: 1}, "http://localhost:9090")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9090/", c.BaseURL.String())
}

func TestNewClient_AppKeyMissing(t *testing.T) {
	_, err := github.NewClient("", github.AppCredentials{
		AppID:          1,
		InstallationID: 2,
		PrivateKeyPath: "/nonexistent/key.pem",
	}, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "github app auth")
}
