package userpool

import (
	"context"

	"github.com/kesh-lab/userpool/transport"
)

// ConfirmSignIn describes the confirmsignin operation and its observable behavior.
//
// ConfirmSignIn answers the outstanding challenge of the active sign-in
// attempt with the caller's response: the delivered code, the new
// password, the MFA type selection, or the custom challenge answer.
// The attempt continues from the session token recorded when the
// challenge was issued.
// ConfirmSignIn may return an error when input validation, dependency calls, or security checks fail.
func (e *Engine) ConfirmSignIn(ctx context.Context, input ConfirmSignInInput) (*SignInResult, error) {
	if e == nil || e.provider == nil {
		return nil, ErrEngineNotReady
	}

	if input.Username == "" {
		e.metricInc(MetricValidationFailure)
		return nil, ErrUsernameEmpty
	}
	if input.ChallengeResponse == "" {
		e.metricInc(MetricValidationFailure)
		return nil, ErrChallengeResponseEmpty
	}

	active := e.state.snapshot()
	if active == nil || active.Username != input.Username || active.ChallengeName == "" {
		return nil, ErrNoActiveSignIn
	}

	attempt := &attemptContext{
		username: active.Username,
		details:  active.Details,
		device:   e.rememberedDevice(ctx, active.Username),
		metadata: e.mergedClientMetadata(ctx, input.Options),
	}

	if srpChallenges[active.ChallengeName] {
		// Verifier rounds are answered internally and never reach a
		// caller; an attempt parked on one is a protocol violation.
		return nil, e.failSignIn(ctx, attempt, ErrChallengeUnsupported)
	}

	responses, err := buildChallengeResponses(active.ChallengeName, &challengeRound{
		username: attempt.username,
		answer:   input.ChallengeResponse,
	})
	if err != nil {
		return nil, e.failSignIn(ctx, attempt, err)
	}

	resp, err := e.callWithDeviceRecovery(ctx, attempt.username, func(ctx context.Context, stripDevice bool) (*transport.AuthResponse, error) {
		return e.provider.RespondToAuthChallenge(ctx, &transport.RespondToAuthChallengeInput{
			ChallengeName:      active.ChallengeName,
			ChallengeResponses: responses,
			ClientID:           e.config.UserPool.ClientID,
			Session:            active.Session,
			ClientMetadata:     attempt.metadata,
		})
	})
	if err != nil {
		if step, ok := benignNextStep(err); ok {
			e.state.clear()
			e.metricInc(MetricBenignOutcome)
			return &SignInResult{IsSignedIn: false, NextStep: step}, nil
		}
		return nil, e.failSignIn(ctx, attempt, err)
	}

	return e.driveResponse(ctx, attempt, resp)
}
