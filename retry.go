package userpool

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/kesh-lab/userpool/transport"
)

// authRequestFunc issues one logical authentication request. When
// stripDevice is true the request must omit all device context; it is
// set only for the recovery attempt after the provider reported the
// referenced device gone.
type authRequestFunc func(ctx context.Context, stripDevice bool) (*transport.AuthResponse, error)

// callWithDeviceRecovery runs fn, recovering exactly once from a
// resource-not-found failure: the stale device record for username is
// dropped and fn re-issued with device context stripped. A second
// failure of any kind, including a repeated not-found, propagates
// unmodified.
func (e *Engine) callWithDeviceRecovery(ctx context.Context, username string, fn authRequestFunc) (*transport.AuthResponse, error) {
	delay := e.config.Transport.RetryBaseDelay
	if delay <= 0 {
		delay = time.Millisecond
	}
	backoff := retry.WithMaxRetries(1, retry.NewConstant(delay))

	var (
		response    *transport.AuthResponse
		stripDevice bool
	)
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		resp, err := fn(ctx, stripDevice)
		if err == nil {
			response = resp
			return nil
		}
		if stripDevice || !isResourceNotFound(err) {
			return err
		}

		stripDevice = true
		e.forgetStaleDevice(ctx, username)
		return retry.RetryableError(err)
	})
	if err != nil {
		return nil, err
	}
	if stripDevice {
		e.metricInc(MetricRetryRecovered)
	}
	return response, nil
}

func isResourceNotFound(err error) bool {
	var serviceErr *transport.ServiceError
	if !errors.As(err, &serviceErr) {
		return false
	}
	return serviceErr.Code == errCodeResourceNotFound
}

// forgetStaleDevice drops the remembered device record ahead of the
// recovery attempt. Best effort: a store failure must not turn a
// recoverable round into a fatal one.
func (e *Engine) forgetStaleDevice(ctx context.Context, username string) {
	if e.store == nil {
		return
	}
	if err := e.store.ForgetDevice(ctx, username); err != nil {
		e.logger.Debug().Err(err).Str("username", username).
			Msg("stale device record cleanup failed")
		return
	}
	e.emitEvent(ctx, AuthEvent{
		EventType: eventDeviceForgotten,
		Username:  username,
		Success:   true,
	})
}
