package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/smtp"
	"testing"
	"time"

	"github.com/jordan-wright/email"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/publsync/internal/config"
	"github.com/JonMunkholm/publsync/internal/pipeline"
	"github.com/JonMunkholm/publsync/internal/source"
)

type sendCall struct {
	addr    string
	hasAuth bool
}

func newTestMailer(cfg config.NotifyConfig, results ...error) (*Mailer, *[]sendCall) {
	m := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	calls := &[]sendCall{}
	m.send = func(e *email.Email, addr string, auth smtp.Auth) error {
		*calls = append(*calls, sendCall{addr: addr, hasAuth: auth != nil})
		if len(*calls) <= len(results) {
			return results[len(*calls)-1]
		}
		return nil
	}
	return m, calls
}

var enabled = config.NotifyConfig{
	SMTPHost: "smtp.example.com",
	SMTPPort: 587,
	SMTPUser: "bot@example.com",
	To:       []string{"ops@example.com"},
}

func failedRun() pipeline.Result {
	res := pipeline.Result{
		RunID:    "run-9",
		Started:  time.Date(2024, 12, 29, 9, 0, 0, 0, time.UTC),
		Duration: 2 * time.Second,
		Stages: []pipeline.StageResult{
			{Name: pipeline.StageMembers},
			{Name: pipeline.StageRefunds, Err: fmt.Errorf("refunds: %w", &source.NotFoundError{Dir: "downloads", Pattern: "*_refunds.csv"})},
		},
	}
	res.Members.Inserted = 4
	return res
}

func TestMessage(t *testing.T) {
	mail := Message("bot@example.com", []string{"ops@example.com"}, failedRun())

	require.Equal(t, "publsync <bot@example.com>", mail.From)
	require.Equal(t, []string{"ops@example.com"}, mail.To)
	require.Equal(t, "[publsync] sync failed (2024-12-29 09:00)", mail.Subject)

	body := string(mail.Text)
	require.Contains(t, body, "Run run-9 finished with status Failed")
	require.Contains(t, body, "- refunds: No CSV export found (Code: SRC001)")
	require.Contains(t, body, "New members: 4")
	require.NotContains(t, body, "- members")
}

func TestNotifyFailure(t *testing.T) {
	tests := []struct {
		name      string
		cfg       config.NotifyConfig
		res       pipeline.Result
		results   []error
		wantCalls []sendCall
		wantErr   string
	}{
		{
			name: "success is not reported",
			cfg:  enabled,
			res:  pipeline.Result{Stages: []pipeline.StageResult{{Name: pipeline.StageMembers}}},
		},
		{
			name: "disabled",
			cfg:  config.NotifyConfig{},
			res:  failedRun(),
		},
		{
			name:      "sent with auth",
			cfg:       enabled,
			res:       failedRun(),
			wantCalls: []sendCall{{"smtp.example.com:587", true}},
		},
		{
			name:      "retries without auth",
			cfg:       enabled,
			res:       failedRun(),
			results:   []error{errors.New("smtp: server doesn't support AUTH")},
			wantCalls: []sendCall{{"smtp.example.com:587", true}, {"smtp.example.com:587", false}},
		},
		{
			name:      "other errors are returned",
			cfg:       enabled,
			res:       failedRun(),
			results:   []error{errors.New("connection refused")},
			wantCalls: []sendCall{{"smtp.example.com:587", true}},
			wantErr:   "connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, calls := newTestMailer(tt.cfg, tt.results...)
			err := m.NotifyFailure(context.Background(), tt.res)
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			if tt.wantCalls == nil {
				require.Empty(t, *calls)
				return
			}
			require.Equal(t, tt.wantCalls, *calls)
		})
	}
}
