package email

import (
	"context"
	"errors"
	"net/smtp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ysrdora/nextframe/internal/domain/port"
)

func TestNotifyFailureSendsMessage(t *testing.T) {
	n := NewSMTPNotifier("mailhog", 1025, "noreply@nextframe.local", zap.NewNop())
	var gotAddr string
	var gotTo []string
	var gotMsg []byte
	n.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, msg
		return nil
	}

	err := n.NotifyFailure(context.Background(), port.FailureNotice{
		UserEmail: "ana@example.com",
		JobID:     "job-1",
		VideoKey:  "videos/clip.mp4",
		Mode:      "boundary",
		Reason:    "no frames captured",
	})

	require.NoError(t, err)
	assert.Equal(t, "mailhog:1025", gotAddr)
	assert.Equal(t, []string{"ana@example.com"}, gotTo)
	assert.Contains(t, string(gotMsg), "Subject: Next Frame - Frame Capture Failed [Job job-1]")
	assert.Contains(t, string(gotMsg), "Error: no frames captured")
	assert.Contains(t, string(gotMsg), "Mode: boundary")
}

func TestNotifyFailureWrapsSendError(t *testing.T) {
	n := NewSMTPNotifier("mailhog", 1025, "noreply@nextframe.local", zap.NewNop())
	boom := errors.New("connection refused")
	n.send = func(string, smtp.Auth, string, []string, []byte) error { return boom }

	err := n.NotifyFailure(context.Background(), port.FailureNotice{UserEmail: "a@b.c", JobID: "j"})

	assert.ErrorIs(t, err, boom)
}
