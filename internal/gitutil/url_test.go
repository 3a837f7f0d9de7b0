package gitutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePullRequestURL(t *testing.T) {
	tests := []struct {
		name      string
		url       string
		wantOwner string
		wantRepo  string
		wantID    int
		wantErr   bool
	}{
		{name: "Valid HTTPS URL", url: "https://github.com/acme/widgets/pull/42", wantOwner: "acme", wantRepo: "widgets", wantID: 42},
		{name: "Valid URL without scheme", url: "github.com/acme/widgets/pull/456", wantOwner: "acme", wantRepo: "widgets", wantID: 456},
		{name: "URL with trailing slash", url: "https://github.com/acme/widgets/pull/789/", wantOwner: "acme", wantRepo: "widgets", wantID: 789},
		{name: "Invalid PR ID", url: "https://github.com/acme/widgets/pull/abc", wantErr: true},
		{name: "Issue URL", url: "https://github.com/acme/widgets/issues/123", wantErr: true},
		{name: "Too many segments", url: "https://github.com/acme/widgets/pull/123/files", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			owner, repo, id, err := ParsePullRequestURL(tt.url)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantOwner, owner)
			assert.Equal(t, tt.wantRepo, repo)
			assert.Equal(t, tt.wantID, id)
		})
	}
}

func TestParseRepository(t *testing.T) {
	tests := []struct {
		ref       string
		wantOwner string
		wantRepo  string
		wantErr   bool
	}{
		{ref: "acme/widgets", wantOwner: "acme", wantRepo: "widgets"},
		{ref: "https://github.com/acme/widgets", wantOwner: "acme", wantRepo: "widgets"},
		{ref: "https://github.com/acme/widgets.git", wantOwner: "acme", wantRepo: "widgets"},
		{ref: "github.com/acme/widgets/", wantOwner: "acme", wantRepo: "widgets"},
		{ref: "widgets", wantErr: true},
		{ref: "https://github.com/acme/widgets/pull/1", wantErr: true},
		{ref: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			owner, repo, err := ParseRepository(tt.ref)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantOwner, owner)
			assert.Equal(t, tt.wantRepo, repo)
		})
	}
}

func TestCloneURL(t *testing.T) {
	assert.Equal(t, "https://github.com/acme/widgets.git", CloneURL("acme", "widgets"))
}
