package userpool

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/kesh-lab/userpool/tokenstore"
	"github.com/kesh-lab/userpool/transport"
)

// scriptedProvider replays queued responses and records every request
// it receives.
type scriptedProvider struct {
	mu sync.Mutex

	initiateQueue []scriptedReply
	respondQueue  []scriptedReply

	initiateInputs []*transport.InitiateAuthInput
	respondInputs  []*transport.RespondToAuthChallengeInput
}

type scriptedReply struct {
	resp *transport.AuthResponse
	err  error
}

func (p *scriptedProvider) queueInitiate(resp *transport.AuthResponse, err error) {
	p.initiateQueue = append(p.initiateQueue, scriptedReply{resp: resp, err: err})
}

func (p *scriptedProvider) queueRespond(resp *transport.AuthResponse, err error) {
	p.respondQueue = append(p.respondQueue, scriptedReply{resp: resp, err: err})
}

func (p *scriptedProvider) InitiateAuth(_ context.Context, input *transport.InitiateAuthInput) (*transport.AuthResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.initiateInputs = append(p.initiateInputs, input)
	if len(p.initiateQueue) == 0 {
		return nil, &transport.ServiceError{Code: "InternalErrorException", Message: "no scripted reply"}
	}
	reply := p.initiateQueue[0]
	p.initiateQueue = p.initiateQueue[1:]
	return reply.resp, reply.err
}

func (p *scriptedProvider) RespondToAuthChallenge(_ context.Context, input *transport.RespondToAuthChallengeInput) (*transport.AuthResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.respondInputs = append(p.respondInputs, input)
	if len(p.respondQueue) == 0 {
		return nil, &transport.ServiceError{Code: "InternalErrorException", Message: "no scripted reply"}
	}
	reply := p.respondQueue[0]
	p.respondQueue = p.respondQueue[1:]
	return reply.resp, reply.err
}

// countingStore wraps a MemoryStore and counts cache handoffs.
type countingStore struct {
	tokenstore.Store
	mu         sync.Mutex
	cacheCalls int
	lastCached *tokenstore.CachedSession
}

func (s *countingStore) Cache(ctx context.Context, session *tokenstore.CachedSession, device *tokenstore.DeviceMetadata) error {
	s.mu.Lock()
	s.cacheCalls++
	s.lastCached = session
	s.mu.Unlock()
	return s.Store.Cache(ctx, session, device)
}

func testConfig() Config {
	cfg := defaultConfig()
	cfg.UserPool.PoolID = "us-west-2_TestPool"
	cfg.UserPool.ClientID = "test-client-id"
	cfg.UserPool.Region = "us-west-2"
	return cfg
}

func newTestEngine(t *testing.T, provider transport.IdentityProvider) (*Engine, *countingStore, *ChannelSink) {
	t.Helper()

	memory := tokenstore.NewMemoryStore()
	t.Cleanup(memory.Stop)
	store := &countingStore{Store: memory}
	sink := NewChannelSink(64)

	engine, err := New().
		WithConfig(testConfig()).
		WithTransport(provider).
		WithTokenStore(store).
		WithEventSink(sink).
		WithMetricsEnabled(true).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine, store, sink
}

func successResponse() *transport.AuthResponse {
	return &transport.AuthResponse{
		AuthenticationResult: &transport.AuthenticationResult{
			AccessToken:  "access-token",
			IDToken:      "id-token",
			RefreshToken: "refresh-token",
			TokenType:    "Bearer",
			ExpiresIn:    3600,
		},
	}
}

// drainEvents closes the engine's dispatcher and collects everything
// that reached the sink.
func drainEvents(engine *Engine, sink *ChannelSink) []AuthEvent {
	engine.Close()
	var events []AuthEvent
	for {
		select {
		case event := <-sink.Events():
			events = append(events, event)
		default:
			return events
		}
	}
}

func TestSignInEmptyUsernameFailsBeforeNetwork(t *testing.T) {
	provider := &scriptedProvider{}
	engine, _, _ := newTestEngine(t, provider)

	if _, err := engine.SignIn(context.Background(), SignInInput{Password: "Passw0rd!"}); !errors.Is(err, ErrUsernameEmpty) {
		t.Fatalf("expected ErrUsernameEmpty, got %v", err)
	}
	if _, err := engine.SignIn(context.Background(), SignInInput{Username: "alice"}); !errors.Is(err, ErrPasswordEmpty) {
		t.Fatalf("expected ErrPasswordEmpty, got %v", err)
	}
	if len(provider.initiateInputs) != 0 {
		t.Fatalf("expected no network calls, got %d", len(provider.initiateInputs))
	}
}

func TestSignInWithPasswordSuccess(t *testing.T) {
	provider := &scriptedProvider{}
	provider.queueInitiate(successResponse(), nil)
	engine, store, sink := newTestEngine(t, provider)

	result, err := engine.SignInWithPassword(context.Background(), SignInInput{
		Username: "alice",
		Password: "Passw0rd!",
	})
	if err != nil {
		t.Fatalf("SignInWithPassword failed: %v", err)
	}
	if !result.IsSignedIn || result.NextStep.SignInStep != StepDone {
		t.Fatalf("expected DONE result, got %+v", result)
	}

	if store.cacheCalls != 1 {
		t.Fatalf("expected exactly one cache handoff, got %d", store.cacheCalls)
	}
	if store.lastCached.Username != "alice" || store.lastCached.RefreshToken != "refresh-token" {
		t.Fatalf("unexpected cached session: %+v", store.lastCached)
	}
	if store.lastCached.AuthFlowType != string(FlowUserPassword) {
		t.Fatalf("unexpected flow type: %q", store.lastCached.AuthFlowType)
	}

	if active := engine.state.snapshot(); active != nil {
		t.Fatalf("expected empty sign-in slot after success, got %+v", active)
	}

	input := provider.initiateInputs[0]
	if input.AuthFlow != transport.FlowUserPasswordAuth {
		t.Fatalf("unexpected auth flow: %q", input.AuthFlow)
	}
	if input.AuthParameters["USERNAME"] != "alice" || input.AuthParameters["PASSWORD"] != "Passw0rd!" {
		t.Fatalf("unexpected auth parameters: %+v", input.AuthParameters)
	}

	events := drainEvents(engine, sink)
	var signedIn int
	for _, event := range events {
		if event.EventType == eventSignedIn {
			signedIn++
			if event.Username != "alice" {
				t.Fatalf("unexpected event identity: %+v", event)
			}
		}
	}
	if signedIn != 1 {
		t.Fatalf("expected exactly one signed_in event, got %d", signedIn)
	}

	if engine.metrics.Value(MetricSignInSuccess) != 1 {
		t.Fatal("expected sign-in success metric")
	}
}

func TestSignInSRPFlowAnswersVerifierRound(t *testing.T) {
	provider := &scriptedProvider{}
	provider.queueInitiate(&transport.AuthResponse{
		ChallengeName: transport.ChallengePasswordVerifier,
		ChallengeParameters: map[string]string{
			"SALT":         "a1b2c3d4",
			"SRP_B":        strings.Repeat("1f2e3d4c", 96),
			"SECRET_BLOCK": base64.StdEncoding.EncodeToString([]byte("secret-block")),
			"USERNAME":     "alice",
		},
		Session: "session-1",
	}, nil)
	provider.queueRespond(successResponse(), nil)
	engine, _, _ := newTestEngine(t, provider)

	result, err := engine.SignIn(context.Background(), SignInInput{
		Username: "alice",
		Password: "Passw0rd!",
	})
	if err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	if !result.IsSignedIn || result.NextStep.SignInStep != StepDone {
		t.Fatalf("expected DONE result, got %+v", result)
	}

	opening := provider.initiateInputs[0]
	if opening.AuthFlow != transport.FlowUserSRPAuth {
		t.Fatalf("unexpected auth flow: %q", opening.AuthFlow)
	}
	if opening.AuthParameters["SRP_A"] == "" {
		t.Fatal("expected SRP_A in the opening message")
	}
	if opening.AuthParameters["PASSWORD"] != "" {
		t.Fatal("password must not appear in the opening message")
	}

	answer := provider.respondInputs[0]
	if answer.ChallengeName != transport.ChallengePasswordVerifier {
		t.Fatalf("unexpected challenge name: %q", answer.ChallengeName)
	}
	if answer.Session != "session-1" {
		t.Fatalf("expected session echo, got %q", answer.Session)
	}
	responses := answer.ChallengeResponses
	if responses["PASSWORD_CLAIM_SIGNATURE"] == "" || responses["TIMESTAMP"] == "" {
		t.Fatalf("incomplete verifier responses: %+v", responses)
	}
	if responses["PASSWORD_CLAIM_SECRET_BLOCK"] != base64.StdEncoding.EncodeToString([]byte("secret-block")) {
		t.Fatal("expected secret block echo")
	}
}

func TestSignInSMSChallengeContinuation(t *testing.T) {
	provider := &scriptedProvider{}
	provider.queueInitiate(&transport.AuthResponse{
		ChallengeName: transport.ChallengeSMSMFA,
		ChallengeParameters: map[string]string{
			"CODE_DELIVERY_DESTINATION":     "+*******1234",
			"CODE_DELIVERY_DELIVERY_MEDIUM": "SMS",
			"USERNAME":                      "alice",
		},
		Session: "session-sms",
	}, nil)
	engine, store, _ := newTestEngine(t, provider)

	result, err := engine.SignInWithPassword(context.Background(), SignInInput{
		Username: "alice",
		Password: "Passw0rd!",
	})
	if err != nil {
		t.Fatalf("SignInWithPassword failed: %v", err)
	}
	if result.IsSignedIn {
		t.Fatal("expected continuation, not terminal success")
	}
	if result.NextStep.SignInStep != StepConfirmSignInWithSMSCode {
		t.Fatalf("unexpected step: %q", result.NextStep.SignInStep)
	}
	if result.NextStep.CodeDeliveryDestination != "+*******1234" {
		t.Fatalf("expected masked destination, got %q", result.NextStep.CodeDeliveryDestination)
	}

	active := engine.state.snapshot()
	if active == nil || active.Session != "session-sms" || active.Username != "alice" {
		t.Fatalf("expected populated sign-in slot, got %+v", active)
	}
	if active.ChallengeName != transport.ChallengeSMSMFA {
		t.Fatalf("unexpected active challenge: %q", active.ChallengeName)
	}
	if store.cacheCalls != 0 {
		t.Fatal("no tokens should be cached before the flow completes")
	}
}

func TestSignInUnknownChallengeIsFatal(t *testing.T) {
	provider := &scriptedProvider{}
	provider.queueInitiate(&transport.AuthResponse{
		ChallengeName: "BIOMETRIC_SCAN",
		Session:       "session-x",
	}, nil)
	engine, _, _ := newTestEngine(t, provider)

	_, err := engine.SignInWithPassword(context.Background(), SignInInput{
		Username: "alice",
		Password: "Passw0rd!",
	})
	if !errors.Is(err, ErrChallengeUnsupported) {
		t.Fatalf("expected ErrChallengeUnsupported, got %v", err)
	}
	if active := engine.state.snapshot(); active != nil {
		t.Fatalf("expected empty slot after protocol violation, got %+v", active)
	}
}

func TestSignInResponseWithoutTokensOrChallenge(t *testing.T) {
	provider := &scriptedProvider{}
	provider.queueInitiate(&transport.AuthResponse{}, nil)
	engine, _, _ := newTestEngine(t, provider)

	_, err := engine.SignInWithPassword(context.Background(), SignInInput{
		Username: "alice",
		Password: "Passw0rd!",
	})
	if !errors.Is(err, ErrResponseMalformed) {
		t.Fatalf("expected ErrResponseMalformed, got %v", err)
	}
	if active := engine.state.snapshot(); active != nil {
		t.Fatal("expected empty slot after malformed response")
	}
}

func TestSignInBenignErrorsMapToSteps(t *testing.T) {
	tests := []struct {
		code string
		step SignInStep
	}{
		{"PasswordResetRequiredException", StepResetPassword},
		{"UserNotConfirmedException", StepConfirmSignUp},
	}

	for _, tc := range tests {
		provider := &scriptedProvider{}
		provider.queueInitiate(nil, &transport.ServiceError{Code: tc.code})
		engine, _, _ := newTestEngine(t, provider)

		result, err := engine.SignInWithPassword(context.Background(), SignInInput{
			Username: "alice",
			Password: "Passw0rd!",
		})
		if err != nil {
			t.Fatalf("%s: expected benign continuation, got error %v", tc.code, err)
		}
		if result.IsSignedIn || result.NextStep.SignInStep != tc.step {
			t.Fatalf("%s: unexpected result %+v", tc.code, result)
		}
		if active := engine.state.snapshot(); active != nil {
			t.Fatalf("%s: expected empty slot", tc.code)
		}
	}
}

func TestSignInUnrecognizedServiceErrorPropagates(t *testing.T) {
	provider := &scriptedProvider{}
	provider.queueInitiate(nil, &transport.ServiceError{Code: "NotAuthorizedException", Message: "bad creds"})
	provider.queueInitiate(successResponse(), nil)
	engine, _, _ := newTestEngine(t, provider)

	_, err := engine.SignInWithPassword(context.Background(), SignInInput{
		Username: "alice",
		Password: "wrong",
	})
	var serviceErr *transport.ServiceError
	if !errors.As(err, &serviceErr) || serviceErr.Code != "NotAuthorizedException" {
		t.Fatalf("expected NotAuthorizedException to propagate, got %v", err)
	}

	// A failed attempt must leave nothing behind that interferes with
	// the next one.
	result, err := engine.SignInWithPassword(context.Background(), SignInInput{
		Username: "alice",
		Password: "Passw0rd!",
	})
	if err != nil {
		t.Fatalf("follow-up sign-in failed: %v", err)
	}
	if !result.IsSignedIn {
		t.Fatalf("expected DONE on follow-up, got %+v", result)
	}
}

func TestSignInResourceNotFoundRetriesOnce(t *testing.T) {
	provider := &scriptedProvider{}
	provider.queueInitiate(nil, &transport.ServiceError{Code: "ResourceNotFoundException", Message: "device gone"})
	provider.queueInitiate(successResponse(), nil)
	engine, store, _ := newTestEngine(t, provider)

	// Seed a remembered device so the first opening message carries it.
	seedDevice := &tokenstore.DeviceMetadata{
		DeviceKey:      "us-west-2_stale",
		DeviceGroupKey: "group",
		DevicePassword: "secret",
		Remembered:     true,
	}
	if err := store.Cache(context.Background(), &tokenstore.CachedSession{
		Username:  "alice",
		ExpiresAt: 1,
	}, seedDevice); err != nil {
		t.Fatalf("seed device: %v", err)
	}
	store.cacheCalls = 0

	result, err := engine.SignInWithPassword(context.Background(), SignInInput{
		Username: "alice",
		Password: "Passw0rd!",
	})
	if err != nil {
		t.Fatalf("expected retried sign-in to succeed, got %v", err)
	}
	if !result.IsSignedIn {
		t.Fatalf("expected DONE result, got %+v", result)
	}
	if len(provider.initiateInputs) != 2 {
		t.Fatalf("expected exactly two requests, got %d", len(provider.initiateInputs))
	}
	if provider.initiateInputs[0].AuthParameters["DEVICE_KEY"] != "us-west-2_stale" {
		t.Fatal("expected first request to carry the stale device key")
	}
	if provider.initiateInputs[1].AuthParameters["DEVICE_KEY"] != "" {
		t.Fatal("expected device context stripped from the retry")
	}
	if _, err := store.GetDevice(context.Background(), "alice"); !errors.Is(err, tokenstore.ErrDeviceNotFound) {
		t.Fatalf("expected stale device record dropped, got %v", err)
	}
	if engine.metrics.Value(MetricRetryRecovered) != 1 {
		t.Fatal("expected retry recovery metric")
	}
}

func TestSignInResourceNotFoundTwiceStops(t *testing.T) {
	provider := &scriptedProvider{}
	provider.queueInitiate(nil, &transport.ServiceError{Code: "ResourceNotFoundException", Message: "first"})
	provider.queueInitiate(nil, &transport.ServiceError{Code: "ResourceNotFoundException", Message: "second"})
	engine, _, _ := newTestEngine(t, provider)

	_, err := engine.SignInWithPassword(context.Background(), SignInInput{
		Username: "alice",
		Password: "Passw0rd!",
	})
	var serviceErr *transport.ServiceError
	if !errors.As(err, &serviceErr) || serviceErr.Message != "second" {
		t.Fatalf("expected the second failure to propagate, got %v", err)
	}
	if len(provider.initiateInputs) != 2 {
		t.Fatalf("expected no third request, got %d", len(provider.initiateInputs))
	}
	if active := engine.state.snapshot(); active != nil {
		t.Fatal("expected empty slot after both attempts failed")
	}
}

func TestSignInRejectsConcurrentDifferentUsername(t *testing.T) {
	provider := &scriptedProvider{}
	provider.queueInitiate(&transport.AuthResponse{
		ChallengeName: transport.ChallengeSMSMFA,
		Session:       "session-sms",
	}, nil)
	engine, _, _ := newTestEngine(t, provider)

	if _, err := engine.SignInWithPassword(context.Background(), SignInInput{
		Username: "alice",
		Password: "Passw0rd!",
	}); err != nil {
		t.Fatalf("first sign-in failed: %v", err)
	}

	_, err := engine.SignInWithPassword(context.Background(), SignInInput{
		Username: "bob",
		Password: "Passw0rd!",
	})
	if !errors.Is(err, ErrSignInInProgress) {
		t.Fatalf("expected ErrSignInInProgress, got %v", err)
	}

	// A fresh begin for the same username replaces the stale attempt.
	provider.queueInitiate(successResponse(), nil)
	result, err := engine.SignInWithPassword(context.Background(), SignInInput{
		Username: "alice",
		Password: "Passw0rd!",
	})
	if err != nil || !result.IsSignedIn {
		t.Fatalf("expected same-username restart to succeed, got %+v, %v", result, err)
	}
}

func TestSignInCustomAuthVariants(t *testing.T) {
	provider := &scriptedProvider{}
	provider.queueInitiate(&transport.AuthResponse{
		ChallengeName: transport.ChallengeCustom,
		ChallengeParameters: map[string]string{
			"question": "favorite color",
			"USERNAME": "alice",
		},
		Session: "session-custom",
	}, nil)
	engine, _, _ := newTestEngine(t, provider)

	result, err := engine.SignInWithCustomAuth(context.Background(), SignInInput{Username: "alice"})
	if err != nil {
		t.Fatalf("SignInWithCustomAuth failed: %v", err)
	}
	if result.NextStep.SignInStep != StepConfirmSignInWithCustomChallenge {
		t.Fatalf("unexpected step: %q", result.NextStep.SignInStep)
	}
	if result.NextStep.AdditionalInfo["question"] != "favorite color" {
		t.Fatalf("expected public parameters, got %+v", result.NextStep.AdditionalInfo)
	}
	if _, leaked := result.NextStep.AdditionalInfo["USERNAME"]; leaked {
		t.Fatal("internal parameters must not reach the caller")
	}

	opening := provider.initiateInputs[0]
	if opening.AuthFlow != transport.FlowCustomAuth {
		t.Fatalf("unexpected auth flow: %q", opening.AuthFlow)
	}
	if opening.AuthParameters["SRP_A"] != "" {
		t.Fatal("passwordless custom flow must not open with SRP")
	}
}
