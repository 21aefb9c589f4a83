package port

import "context"

// FailureNotice describes a capture job that failed for good.
type FailureNotice struct {
	UserEmail string
	JobID     string
	VideoKey  string
	Mode      string
	Reason    string
}

type FailureNotifier interface {
	NotifyFailure(ctx context.Context, notice FailureNotice) error
}
