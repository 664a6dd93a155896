package userpool

import "errors"

var (
	// ErrUsernameEmpty is an exported constant or variable used by the sign-in engine.
	ErrUsernameEmpty = errors.New("username must not be empty")
	// ErrPasswordEmpty is an exported constant or variable used by the sign-in engine.
	ErrPasswordEmpty = errors.New("password must not be empty")
	// ErrChallengeResponseEmpty is an exported constant or variable used by the sign-in engine.
	ErrChallengeResponseEmpty = errors.New("challenge response must not be empty")
	// ErrConfigInvalid is an exported constant or variable used by the sign-in engine.
	ErrConfigInvalid = errors.New("user pool configuration invalid")
	// ErrEngineNotReady is an exported constant or variable used by the sign-in engine.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrNoActiveSignIn is an exported constant or variable used by the sign-in engine.
	ErrNoActiveSignIn = errors.New("no sign-in attempt in progress")
	// ErrSignInInProgress is an exported constant or variable used by the sign-in engine.
	ErrSignInInProgress = errors.New("another sign-in attempt is already in progress")
	// ErrChallengeUnsupported is an exported constant or variable used by the sign-in engine.
	ErrChallengeUnsupported = errors.New("unsupported challenge name")
	// ErrResponseMalformed is an exported constant or variable used by the sign-in engine.
	ErrResponseMalformed = errors.New("service response carries neither tokens nor a valid challenge")
	// ErrDeviceNotRemembered is an exported constant or variable used by the sign-in engine.
	ErrDeviceNotRemembered = errors.New("no remembered device for user")
	// ErrStoreUnavailable is an exported constant or variable used by the sign-in engine.
	ErrStoreUnavailable = errors.New("token store backend unavailable")
)

// Remote error codes the orchestrator recognizes by name. The transport
// surfaces every remote failure as a [transport.ServiceError]; only the
// codes below receive special handling, everything else propagates
// verbatim.
const (
	errCodeResourceNotFound      = "ResourceNotFoundException"
	errCodePasswordResetRequired = "PasswordResetRequiredException"
	errCodeUserNotConfirmed      = "UserNotConfirmedException"
)
