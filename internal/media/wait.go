// Package media holds helpers that turn MediaElement notifications into
// blocking calls.
package media

import (
	"context"
	"errors"

	"github.com/ysrdora/nextframe/internal/domain/port"
)

// ErrElement is reported when an element raises EventError without a cause.
var ErrElement = errors.New("media element error")

// SeekAndWait asks el to move to t and blocks until it reports the seek as
// completed, it raises an error, or ctx is done. There is no timeout besides ctx.
//
// When el is a port.SeekSequencer, a seeked event only counts once the seek
// issued here (or a later one) has settled; otherwise the first seeked wins.
func SeekAndWait(ctx context.Context, el port.MediaElement, t float64) error {
	seeked := make(chan struct{}, 1)
	failed := make(chan error, 1)

	removeSeeked := el.On(port.EventSeeked, func() {
		select {
		case seeked <- struct{}{}:
		default:
		}
	})
	defer removeSeeked()
	removeErr := el.On(port.EventError, func() {
		select {
		case failed <- elementErr(el):
		default:
		}
	})
	defer removeErr()

	el.SetCurrentTime(t)

	seq, numbered := el.(port.SeekSequencer)
	var target uint64
	if numbered {
		target = seq.SeekIssued()
	}
	for {
		if numbered && seq.SeekSettled() >= target {
			return nil
		}
		select {
		case <-seeked:
			if !numbered {
				return nil
			}
		case err := <-failed:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// WaitReady blocks until el reaches at least the given ready state. It
// returns at once when that is already the case, so a load that completed
// before the call is never missed.
func WaitReady(ctx context.Context, el port.MediaElement, level port.ReadyState) error {
	done := make(chan error, 1)
	signal := func(err error) {
		select {
		case done <- err:
		default:
		}
	}

	check := func() {
		if el.ReadyState() >= level {
			signal(nil)
		}
	}
	removeMeta := el.On(port.EventLoadedMetadata, check)
	defer removeMeta()
	removeData := el.On(port.EventLoadedData, check)
	defer removeData()
	removeErr := el.On(port.EventError, func() { signal(elementErr(el)) })
	defer removeErr()

	if el.ReadyState() >= level {
		return nil
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func elementErr(el port.MediaElement) error {
	if err := el.Err(); err != nil {
		return err
	}
	return ErrElement
}
