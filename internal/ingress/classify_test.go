package ingress

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sevigo/review-warden/internal/core"
)

const openedPayload = `{
  "action": "opened",
  "number": 42,
  "pull_request": {"number": 42, "title": "Add widget cache"},
  "repository": {"name": "widgets", "full_name": "acme/widgets", "owner": {"login": "acme"}},
  "installation": {"id": 77}
}`

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		eventType string
		payload   string
		wantKind  Kind
		wantErr   bool
	}{
		{name: "ping", eventType: "ping", payload: `{"zen":"Keep it logically awesome."}`, wantKind: KindPing},
		{name: "malformed ping", eventType: "ping", payload: `{"zen":`, wantErr: true},
		{name: "opened", eventType: "pull_request", payload: openedPayload, wantKind: KindReviewRequested},
		{
			name:      "synchronize",
			eventType: "pull_request",
			payload:   `{"action":"synchronize","number":7,"repository":{"name":"widgets","owner":{"login":"acme"}}}`,
			wantKind:  KindReviewRequested,
		},
		{
			name:      "closed is ignored",
			eventType: "pull_request",
			payload:   `{"action":"closed","number":7,"repository":{"name":"widgets","owner":{"login":"acme"}}}`,
			wantKind:  KindIgnored,
		},
		{name: "opened without repository", eventType: "pull_request", payload: `{"action":"opened","number":7}`, wantErr: true},
		{name: "malformed pull request", eventType: "pull_request", payload: `not json`, wantErr: true},
		{name: "other event", eventType: "push", payload: `{"ref":"refs/heads/main"}`, wantKind: KindIgnored},
		{name: "malformed other event", eventType: "issues", payload: `[`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Classify([]byte(tt.payload), tt.eventType, "delivery-1")
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, core.ErrParse)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, out.Kind)
			if tt.wantKind == KindReviewRequested {
				assert.NotNil(t, out.Event)
			} else {
				assert.Nil(t, out.Event)
			}
		})
	}
}

func TestClassifyReviewEvent(t *testing.T) {
	out, err := Classify([]byte(openedPayload), "pull_request", "delivery-42")
	require.NoError(t, err)
	require.Equal(t, KindReviewRequested, out.Kind)

	assert.Equal(t, &core.ReviewRequestEvent{
		Owner:          "acme",
		Repo:           "widgets",
		PRNumber:       42,
		RequestID:      "delivery-42",
		InstallationID: 77,
	}, out.Event)
}

func TestClassifyGeneratesRequestID(t *testing.T) {
	a, err := Classify([]byte(openedPayload), "pull_request", "")
	require.NoError(t, err)
	b, err := Classify([]byte(openedPayload), "pull_request", "")
	require.NoError(t, err)

	assert.NotEmpty(t, a.Event.RequestID)
	assert.NotEqual(t, a.Event.RequestID, b.Event.RequestID)
}
