package userpool

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kesh-lab/userpool/srp"
	"github.com/kesh-lab/userpool/tokenstore"
	"github.com/kesh-lab/userpool/transport"
)

// Engine defines a public type used by userpool APIs.
//
// Engine instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Engine struct {
	config   Config
	provider transport.IdentityProvider
	store    tokenstore.Store
	state    *signInStateStore
	events   *eventDispatcher
	metrics  *Metrics
	logger   zerolog.Logger
}

// Close describes the close operation and its observable behavior.
//
// Close may return an error when input validation, dependency calls, or security checks fail.
// Close does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.events != nil {
		e.events.Close()
	}
}

// EventsDropped describes the eventsdropped operation and its observable behavior.
//
// EventsDropped may return an error when input validation, dependency calls, or security checks fail.
// EventsDropped does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) EventsDropped() uint64 {
	if e == nil || e.events == nil {
		return 0
	}
	return e.events.Dropped()
}

// EventsDelivered describes the eventsdelivered operation and its observable behavior.
//
// EventsDelivered may return an error when input validation, dependency calls, or security checks fail.
// EventsDelivered does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) EventsDelivered() uint64 {
	if e == nil || e.events == nil {
		return 0
	}
	return e.events.Delivered()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot may return an error when input validation, dependency calls, or security checks fail.
// MetricsSnapshot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) emitEvent(ctx context.Context, event AuthEvent) {
	if e == nil || e.events == nil {
		return
	}
	event.Timestamp = time.Now()
	event.EventID = uuid.NewString()
	e.events.Emit(ctx, event)
}

// attemptContext is the working set of one sign-in attempt while the
// engine drives it. Secrets in it never outlive the attempt.
type attemptContext struct {
	username  string
	password  string
	details   SignInDetails
	srpClient *srp.Client
	device    *DeviceMetadata
	metadata  map[string]string
}

// mergedClientMetadata layers per-call metadata from ctx and opts over
// the configured defaults. Per-call keys win.
func (e *Engine) mergedClientMetadata(ctx context.Context, opts *SignInOptions) map[string]string {
	merged := cloneStringMap(e.config.UserPool.ClientMetadata)

	overlay := clientMetadataFromContext(ctx)
	if opts != nil && opts.ClientMetadata != nil {
		overlay = opts.ClientMetadata
	}
	if len(overlay) == 0 {
		return merged
	}
	if merged == nil {
		merged = make(map[string]string, len(overlay))
	}
	for k, v := range overlay {
		merged[k] = v
	}
	return merged
}

// rememberedDevice resolves the device context for an attempt. An
// explicit key on ctx wins over the persisted record; no record is not
// an error, the attempt simply runs deviceless.
func (e *Engine) rememberedDevice(ctx context.Context, username string) *DeviceMetadata {
	if key := deviceKeyFromContext(ctx); key != "" {
		return &DeviceMetadata{DeviceKey: key}
	}
	if e.store == nil {
		return nil
	}
	device, err := e.store.GetDevice(ctx, username)
	if err != nil {
		if !errors.Is(err, tokenstore.ErrDeviceNotFound) {
			e.logger.Debug().Err(err).Str("username", username).
				Msg("device record lookup failed")
		}
		return nil
	}
	return device
}

// driveResponse interprets one service response and loops until the
// attempt reaches a terminal: tokens issued, a caller-facing challenge,
// or an error. Verifier rounds are answered internally, never exposed.
func (e *Engine) driveResponse(ctx context.Context, attempt *attemptContext, resp *transport.AuthResponse) (*SignInResult, error) {
	for {
		if resp == nil {
			return nil, e.failSignIn(ctx, attempt, ErrResponseMalformed)
		}
		if resp.AuthenticationResult != nil {
			return e.completeSignIn(ctx, attempt, resp.AuthenticationResult)
		}
		if resp.ChallengeName == "" {
			return nil, e.failSignIn(ctx, attempt, ErrResponseMalformed)
		}

		e.metricInc(MetricChallengeRound)

		if !srpChallenges[resp.ChallengeName] {
			step, err := nextStepForChallenge(resp.ChallengeName, resp.ChallengeParameters)
			if err != nil {
				e.metricInc(MetricChallengeUnsupported)
				return nil, e.failSignIn(ctx, attempt, err)
			}
			e.state.advance(attempt.username, resp.Session, resp.ChallengeName)
			e.emitEvent(ctx, AuthEvent{
				EventType: eventChallengeIssued,
				Username:  attempt.username,
				FlowType:  string(attempt.details.AuthFlowType),
				Success:   true,
				Metadata:  map[string]string{"challenge": resp.ChallengeName},
			})
			return &SignInResult{IsSignedIn: false, NextStep: step}, nil
		}

		next, err := e.answerVerifierChallenge(ctx, attempt, resp)
		if err != nil {
			return nil, err
		}
		resp = next
	}
}

// answerVerifierChallenge responds to one internally handled SRP round.
func (e *Engine) answerVerifierChallenge(ctx context.Context, attempt *attemptContext, resp *transport.AuthResponse) (*transport.AuthResponse, error) {
	challengeName := resp.ChallengeName
	params := resp.ChallengeParameters
	session := resp.Session

	// The device verifier rounds bind to a fresh ephemeral, not the one
	// the opening message used.
	if challengeName == transport.ChallengeDeviceSRPAuth {
		client, err := srp.NewClient(e.config.poolName())
		if err != nil {
			e.metricInc(MetricSRPFailure)
			return nil, e.failSignIn(ctx, attempt, err)
		}
		attempt.srpClient = client
	}

	e.state.advance(attempt.username, session, challengeName)

	next, err := e.callWithDeviceRecovery(ctx, attempt.username, func(ctx context.Context, stripDevice bool) (*transport.AuthResponse, error) {
		round := &challengeRound{
			username:  attempt.username,
			password:  attempt.password,
			params:    params,
			srpClient: attempt.srpClient,
			device:    attempt.device,
		}
		if stripDevice {
			attempt.device = nil
			round.device = nil
		}
		responses, err := buildChallengeResponses(challengeName, round)
		if err != nil {
			return nil, err
		}
		return e.provider.RespondToAuthChallenge(ctx, &transport.RespondToAuthChallengeInput{
			ChallengeName:      challengeName,
			ChallengeResponses: responses,
			ClientID:           e.config.UserPool.ClientID,
			Session:            session,
			ClientMetadata:     attempt.metadata,
		})
	})
	if err != nil {
		if errors.Is(err, srp.ErrServerParameterMalformed) ||
			errors.Is(err, srp.ErrServerEphemeralInvalid) ||
			errors.Is(err, srp.ErrScramblerZero) {
			e.metricInc(MetricSRPFailure)
		}
		return nil, e.failSignIn(ctx, attempt, err)
	}
	return next, nil
}

// completeSignIn is the success terminal: hand tokens and device
// material to the store, clear the active slot, notify.
func (e *Engine) completeSignIn(ctx context.Context, attempt *attemptContext, result *transport.AuthenticationResult) (*SignInResult, error) {
	subject, expiresAt := accessTokenClaims(result.AccessToken)
	now := time.Now()
	if expiresAt == 0 {
		expiresAt = now.Add(time.Duration(result.ExpiresIn) * time.Second).Unix()
	}

	device := e.registerNewDevice(ctx, attempt, result)

	cached := &tokenstore.CachedSession{
		Username:     attempt.username,
		AccessToken:  result.AccessToken,
		IDToken:      result.IDToken,
		RefreshToken: result.RefreshToken,
		TokenType:    result.TokenType,
		LoginID:      attempt.details.LoginID,
		AuthFlowType: string(attempt.details.AuthFlowType),
		IssuedAt:     now.Unix(),
		ExpiresAt:    expiresAt,
	}

	if e.store != nil {
		// Handoff is best-effort: the tokens are already issued and a
		// cache outage must not fail the completed sign-in.
		if err := e.store.Cache(ctx, cached, device); err != nil {
			e.metricInc(MetricCacheHandoffFailed)
			e.logger.Error().Err(err).Str("username", attempt.username).
				Msg("token cache handoff failed")
			e.emitEvent(ctx, AuthEvent{
				EventType: eventCacheWriteFailed,
				Username:  attempt.username,
				Error:     err.Error(),
			})
		} else {
			e.metricInc(MetricCacheHandoff)
		}
	}

	e.state.clear()
	attempt.password = ""

	e.metricInc(MetricSignInSuccess)
	e.emitEvent(ctx, AuthEvent{
		EventType: eventSignedIn,
		Username:  attempt.username,
		Subject:   subject,
		FlowType:  string(attempt.details.AuthFlowType),
		Success:   true,
	})

	return &SignInResult{
		IsSignedIn: true,
		NextStep:   NextStep{SignInStep: StepDone},
	}, nil
}

// registerNewDevice confirms a provider-issued device key with locally
// generated verifier material. Best effort: device registration
// problems never fail the sign-in that produced the tokens.
func (e *Engine) registerNewDevice(ctx context.Context, attempt *attemptContext, result *transport.AuthenticationResult) *DeviceMetadata {
	meta := result.NewDeviceMetadata
	if meta == nil {
		return attempt.device
	}

	devicePassword, err := srp.RandomDevicePassword()
	if err != nil {
		e.logger.Warn().Err(err).Msg("device password generation failed")
		return nil
	}
	verifier, err := srp.GenerateVerifier(meta.DeviceGroupKey, meta.DeviceKey, devicePassword)
	if err != nil {
		e.logger.Warn().Err(err).Msg("device verifier generation failed")
		return nil
	}

	device := &DeviceMetadata{
		DeviceKey:      meta.DeviceKey,
		DeviceGroupKey: meta.DeviceGroupKey,
		DevicePassword: devicePassword,
	}

	confirmer, ok := e.provider.(transport.DeviceConfirmer)
	if !ok || !e.config.Device.RememberDevices {
		return device
	}

	_, err = confirmer.ConfirmDevice(ctx, &transport.ConfirmDeviceInput{
		AccessToken: result.AccessToken,
		DeviceKey:   meta.DeviceKey,
		DeviceName:  e.config.Device.NamePrefix + "-" + uuid.NewString(),
		DeviceSecretVerifierConfig: transport.DeviceSecretVerifierConfig{
			PasswordVerifier: verifier.PasswordVerifier,
			Salt:             verifier.Salt,
		},
	})
	if err != nil {
		e.logger.Warn().Err(err).Str("username", attempt.username).
			Msg("device confirmation failed")
		return device
	}
	device.Remembered = true
	return device
}

// failSignIn clears the active slot, records the failure, and returns
// err for the caller to classify. The slot is always empty before the
// error surfaces.
func (e *Engine) failSignIn(ctx context.Context, attempt *attemptContext, err error) error {
	e.state.clear()
	attempt.password = ""

	e.metricInc(MetricSignInFailure)
	e.emitEvent(ctx, AuthEvent{
		EventType: eventSignInFailed,
		Username:  attempt.username,
		FlowType:  string(attempt.details.AuthFlowType),
		Error:     err.Error(),
	})
	return err
}

// benignNextStep translates the closed set of expected alternate
// outcomes into continuation steps. All other service errors propagate
// verbatim.
func benignNextStep(err error) (NextStep, bool) {
	var serviceErr *transport.ServiceError
	if !errors.As(err, &serviceErr) {
		return NextStep{}, false
	}
	switch serviceErr.Code {
	case errCodePasswordResetRequired:
		return NextStep{SignInStep: StepResetPassword}, true
	case errCodeUserNotConfirmed:
		return NextStep{SignInStep: StepConfirmSignUp}, true
	default:
		return NextStep{}, false
	}
}

// accessTokenClaims pulls the subject and expiry off the issued access
// token. The client holds no pool signing key, so the claims are read
// without verification; they only seed diagnostics and the cache TTL.
func accessTokenClaims(token string) (subject string, expiresAt int64) {
	if token == "" {
		return "", 0
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", 0
	}
	subject, _ = claims.GetSubject()
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		expiresAt = exp.Unix()
	}
	return subject, expiresAt
}
