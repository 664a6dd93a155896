package userpool

import (
	"github.com/kesh-lab/userpool/tokenstore"
	"github.com/kesh-lab/userpool/transport"
)

// AuthFlowType identifies which sign-in flow variant produced an
// attempt. It is recorded in SignInDetails and in the cached session.
type AuthFlowType string

const (
	// FlowUserSRP is an exported constant or variable used by the sign-in engine.
	FlowUserSRP AuthFlowType = "USER_SRP_AUTH"
	// FlowUserPassword is an exported constant or variable used by the sign-in engine.
	FlowUserPassword AuthFlowType = "USER_PASSWORD_AUTH"
	// FlowCustomWithSRP is an exported constant or variable used by the sign-in engine.
	FlowCustomWithSRP AuthFlowType = "CUSTOM_AUTH_WITH_SRP"
	// FlowCustomWithoutSRP is an exported constant or variable used by the sign-in engine.
	FlowCustomWithoutSRP AuthFlowType = "CUSTOM_AUTH_WITHOUT_SRP"
)

// SignInStep is the caller-facing tag of a sign-in result: either the
// terminal StepDone or the continuation the caller must perform next.
type SignInStep string

const (
	// StepDone is an exported constant or variable used by the sign-in engine.
	StepDone SignInStep = "DONE"
	// StepConfirmSignInWithSMSCode is an exported constant or variable used by the sign-in engine.
	StepConfirmSignInWithSMSCode SignInStep = "CONFIRM_SIGN_IN_WITH_SMS_CODE"
	// StepConfirmSignInWithTOTPCode is an exported constant or variable used by the sign-in engine.
	StepConfirmSignInWithTOTPCode SignInStep = "CONFIRM_SIGN_IN_WITH_TOTP_CODE"
	// StepContinueSignInWithMFASelection is an exported constant or variable used by the sign-in engine.
	StepContinueSignInWithMFASelection SignInStep = "CONTINUE_SIGN_IN_WITH_MFA_SELECTION"
	// StepConfirmSignInWithNewPassword is an exported constant or variable used by the sign-in engine.
	StepConfirmSignInWithNewPassword SignInStep = "CONFIRM_SIGN_IN_WITH_NEW_PASSWORD"
	// StepConfirmSignInWithCustomChallenge is an exported constant or variable used by the sign-in engine.
	StepConfirmSignInWithCustomChallenge SignInStep = "CONFIRM_SIGN_IN_WITH_CUSTOM_CHALLENGE"
	// StepContinueSignInWithTOTPSetup is an exported constant or variable used by the sign-in engine.
	StepContinueSignInWithTOTPSetup SignInStep = "CONTINUE_SIGN_IN_WITH_TOTP_SETUP"
	// StepResetPassword is an exported constant or variable used by the sign-in engine.
	StepResetPassword SignInStep = "RESET_PASSWORD"
	// StepConfirmSignUp is an exported constant or variable used by the sign-in engine.
	StepConfirmSignUp SignInStep = "CONFIRM_SIGN_UP"
)

// NextStep carries the step tag plus the subset of challenge parameters
// that are safe to expose to the caller.
type NextStep struct {
	SignInStep SignInStep
	// CodeDeliveryDestination is the masked destination (phone or
	// email) a verification code was sent to, when the provider
	// reports one.
	CodeDeliveryDestination string
	// CodeDeliveryMedium is "SMS" or "EMAIL" when a code was sent.
	CodeDeliveryMedium string
	// AllowedMFATypes lists the choices for StepContinueSignInWithMFASelection.
	AllowedMFATypes []string
	// MissingAttributes lists the attributes the provider requires
	// with a new password for StepConfirmSignInWithNewPassword.
	MissingAttributes []string
	// AdditionalInfo carries the provider's public parameters for a
	// custom challenge round.
	AdditionalInfo map[string]string
}

// SignInResult defines a public type used by userpool APIs.
//
// SignInResult instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type SignInResult struct {
	IsSignedIn bool
	NextStep   NextStep
}

// SignInDetails records which identity and flow variant an attempt was
// started with. Immutable for the lifetime of the attempt.
type SignInDetails struct {
	LoginID      string
	AuthFlowType AuthFlowType
}

// SignInOptions defines a public type used by userpool APIs.
//
// SignInOptions instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type SignInOptions struct {
	ClientMetadata map[string]string
}

// SignInInput defines a public type used by userpool APIs.
//
// SignInInput instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type SignInInput struct {
	Username string
	Password string
	Options  *SignInOptions
}

// ConfirmSignInInput answers the outstanding challenge of the active
// sign-in attempt. ChallengeResponse is the code, new password, MFA
// type selection, or custom answer the current step asks for.
type ConfirmSignInInput struct {
	Username          string
	ChallengeResponse string
	Options           *SignInOptions
}

// Aliases for the persistence types so callers only import this package.
type (
	// CachedSession defines a public type used by userpool APIs.
	CachedSession = tokenstore.CachedSession
	// DeviceMetadata defines a public type used by userpool APIs.
	DeviceMetadata = tokenstore.DeviceMetadata
	// ServiceError defines a public type used by userpool APIs.
	ServiceError = transport.ServiceError
)
