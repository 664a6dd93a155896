package userpool

import (
	"context"
	"time"

	"github.com/kesh-lab/userpool/srp"
	"github.com/kesh-lab/userpool/transport"
)

// SignIn describes the signin operation and its observable behavior.
//
// SignIn runs the SRP password-proof flow: the opening message carries a
// fresh public ephemeral, the provider's verifier challenge is answered
// internally, and the password never leaves the process.
// SignIn may return an error when input validation, dependency calls, or security checks fail.
func (e *Engine) SignIn(ctx context.Context, input SignInInput) (*SignInResult, error) {
	return e.signIn(ctx, input, FlowUserSRP)
}

// SignInWithPassword describes the signinwithpassword operation and its observable behavior.
//
// SignInWithPassword sends the password in the opening request. Intended
// for pools that do not enable SRP; prefer [Engine.SignIn].
// SignInWithPassword may return an error when input validation, dependency calls, or security checks fail.
func (e *Engine) SignInWithPassword(ctx context.Context, input SignInInput) (*SignInResult, error) {
	return e.signIn(ctx, input, FlowUserPassword)
}

// SignInWithCustomAuth describes the signinwithcustomauth operation and its observable behavior.
//
// SignInWithCustomAuth opens the pool's custom challenge flow. When a
// password is supplied the flow begins with an SRP round before the
// custom rounds; with an empty password the custom rounds start
// immediately.
// SignInWithCustomAuth may return an error when input validation, dependency calls, or security checks fail.
func (e *Engine) SignInWithCustomAuth(ctx context.Context, input SignInInput) (*SignInResult, error) {
	flow := FlowCustomWithoutSRP
	if input.Password != "" {
		flow = FlowCustomWithSRP
	}
	return e.signIn(ctx, input, flow)
}

func (e *Engine) signIn(ctx context.Context, input SignInInput, flow AuthFlowType) (*SignInResult, error) {
	if e == nil || e.provider == nil {
		return nil, ErrEngineNotReady
	}

	if input.Username == "" {
		e.metricInc(MetricValidationFailure)
		return nil, ErrUsernameEmpty
	}
	if input.Password == "" && flow != FlowCustomWithoutSRP {
		e.metricInc(MetricValidationFailure)
		return nil, ErrPasswordEmpty
	}

	details := SignInDetails{
		LoginID:      input.Username,
		AuthFlowType: flow,
	}
	if err := e.state.begin(input.Username, details); err != nil {
		return nil, err
	}

	attempt := &attemptContext{
		username: input.Username,
		password: input.Password,
		details:  details,
		device:   e.rememberedDevice(ctx, input.Username),
		metadata: e.mergedClientMetadata(ctx, input.Options),
	}

	usesSRP := flow == FlowUserSRP || flow == FlowCustomWithSRP
	if usesSRP {
		client, err := srp.NewClient(e.config.poolName())
		if err != nil {
			e.metricInc(MetricSRPFailure)
			return nil, e.failSignIn(ctx, attempt, err)
		}
		attempt.srpClient = client
	}

	resp, err := e.callWithDeviceRecovery(ctx, attempt.username, func(ctx context.Context, stripDevice bool) (*transport.AuthResponse, error) {
		if stripDevice {
			attempt.device = nil
		}
		params := e.initialAuthParameters(attempt, flow)

		start := time.Now()
		resp, err := e.provider.InitiateAuth(ctx, &transport.InitiateAuthInput{
			AuthFlow:       wireAuthFlow(flow),
			AuthParameters: params,
			ClientID:       e.config.UserPool.ClientID,
			ClientMetadata: attempt.metadata,
		})
		if e.metrics.LatencyEnabled() {
			e.metrics.Observe(MetricInitiateLatency, time.Since(start))
		}
		return resp, err
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

// initialAuthParameters builds the flow-specific opening parameters.
func (e *Engine) initialAuthParameters(attempt *attemptContext, flow AuthFlowType) map[string]string {
	params := map[string]string{
		"USERNAME": attempt.username,
	}
	switch flow {
	case FlowUserSRP:
		params["SRP_A"] = attempt.srpClient.EphemeralA()
	case FlowUserPassword:
		params["PASSWORD"] = attempt.password
	case FlowCustomWithSRP:
		params["SRP_A"] = attempt.srpClient.EphemeralA()
		params["CHALLENGE_NAME"] = "SRP_A"
	case FlowCustomWithoutSRP:
		// Username only; the pool's triggers define the first round.
	}
	if attempt.device != nil {
		params["DEVICE_KEY"] = attempt.device.DeviceKey
	}
	return params
}

// wireAuthFlow maps the public flow variant onto the protocol's flow
// identifier. Both custom variants open with CUSTOM_AUTH.
func wireAuthFlow(flow AuthFlowType) string {
	switch flow {
	case FlowUserPassword:
		return transport.FlowUserPasswordAuth
	case FlowCustomWithSRP, FlowCustomWithoutSRP:
		return transport.FlowCustomAuth
	default:
		return transport.FlowUserSRPAuth
	}
}
