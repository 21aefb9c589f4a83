package email

import (
	"context"
	"fmt"
	"net/smtp"

	"go.uber.org/zap"

	"github.com/ysrdora/nextframe/internal/domain/port"
)

type SMTPNotifier struct {
	host   string
	port   int
	from   string
	logger *zap.Logger
	send   func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPNotifier(host string, port int, from string, logger *zap.Logger) *SMTPNotifier {
	return &SMTPNotifier{host: host, port: port, from: from, logger: logger, send: smtp.SendMail}
}

func (n *SMTPNotifier) NotifyFailure(_ context.Context, notice port.FailureNotice) error {
	addr := fmt.Sprintf("%s:%d", n.host, n.port)

	err := n.send(addr, nil, n.from, []string{notice.UserEmail}, n.message(notice))
	if err != nil {
		n.logger.Error("failed to send failure notification email",
			zap.String("to", notice.UserEmail),
			zap.String("job_id", notice.JobID),
			zap.Error(err),
		)
		return fmt.Errorf("send email: %w", err)
	}

	n.logger.Info("failure notification email sent",
		zap.String("to", notice.UserEmail),
		zap.String("job_id", notice.JobID),
	)
	return nil
}

func (n *SMTPNotifier) message(notice port.FailureNotice) []byte {
	subject := fmt.Sprintf("Next Frame - Frame Capture Failed [Job %s]", notice.JobID)
	body := fmt.Sprintf(
		"Hello,\r\n\r\n"+
			"Your frame capture job has permanently failed after all retry attempts.\r\n\r\n"+
			"Job ID: %s\r\n"+
			"Video: %s\r\n"+
			"Mode: %s\r\n"+
			"Error: %s\r\n\r\n"+
			"Please upload the video again or open it in the editor.\r\n\r\n"+
			"-- Next Frame",
		notice.JobID, notice.VideoKey, notice.Mode, notice.Reason,
	)

	return []byte(fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s",
		n.from, notice.UserEmail, subject, body,
	))
}
