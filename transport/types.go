package transport

import (
	"context"
	"fmt"
)

// Auth flow identifiers accepted by InitiateAuth.
const (
	FlowUserSRPAuth      = "USER_SRP_AUTH"
	FlowUserPasswordAuth = "USER_PASSWORD_AUTH"
	FlowCustomAuth       = "CUSTOM_AUTH"
)

// Challenge names the provider can return. The set is closed per
// protocol revision; anything outside it is a protocol violation the
// caller must surface, never swallow.
const (
	ChallengePasswordVerifier       = "PASSWORD_VERIFIER"
	ChallengeSMSMFA                 = "SMS_MFA"
	ChallengeSoftwareTokenMFA       = "SOFTWARE_TOKEN_MFA"
	ChallengeSelectMFAType          = "SELECT_MFA_TYPE"
	ChallengeNewPasswordRequired    = "NEW_PASSWORD_REQUIRED"
	ChallengeDeviceSRPAuth          = "DEVICE_SRP_AUTH"
	ChallengeDevicePasswordVerifier = "DEVICE_PASSWORD_VERIFIER"
	ChallengeCustom                 = "CUSTOM_CHALLENGE"
	ChallengeMFASetup               = "MFA_SETUP"
)

// InitiateAuthInput is the opening request of a sign-in flow.
type InitiateAuthInput struct {
	AuthFlow       string            `json:"AuthFlow"`
	AuthParameters map[string]string `json:"AuthParameters"`
	ClientID       string            `json:"ClientId"`
	ClientMetadata map[string]string `json:"ClientMetadata,omitempty"`
}

// RespondToAuthChallengeInput answers one outstanding challenge round.
type RespondToAuthChallengeInput struct {
	ChallengeName      string            `json:"ChallengeName"`
	ChallengeResponses map[string]string `json:"ChallengeResponses"`
	ClientID           string            `json:"ClientId"`
	Session            string            `json:"Session,omitempty"`
	ClientMetadata     map[string]string `json:"ClientMetadata,omitempty"`
}

// NewDeviceMetadata is returned once when the provider registers the
// calling device during a successful authentication.
type NewDeviceMetadata struct {
	DeviceKey      string `json:"DeviceKey"`
	DeviceGroupKey string `json:"DeviceGroupKey"`
}

// AuthenticationResult is the terminal success payload of a flow.
type AuthenticationResult struct {
	AccessToken       string             `json:"AccessToken"`
	IDToken           string             `json:"IdToken"`
	RefreshToken      string             `json:"RefreshToken"`
	TokenType         string             `json:"TokenType"`
	ExpiresIn         int32              `json:"ExpiresIn"`
	NewDeviceMetadata *NewDeviceMetadata `json:"NewDeviceMetadata,omitempty"`
}

// AuthResponse is the shared response shape of both operations: either
// AuthenticationResult is set (terminal success) or ChallengeName plus
// Session describe the next round.
type AuthResponse struct {
	ChallengeName        string                `json:"ChallengeName,omitempty"`
	ChallengeParameters  map[string]string     `json:"ChallengeParameters,omitempty"`
	Session              string                `json:"Session,omitempty"`
	AuthenticationResult *AuthenticationResult `json:"AuthenticationResult,omitempty"`
}

// DeviceSecretVerifierConfig carries the client-generated verifier the
// provider stores for a confirmed device.
type DeviceSecretVerifierConfig struct {
	PasswordVerifier string `json:"PasswordVerifier"`
	Salt             string `json:"Salt"`
}

// ConfirmDeviceInput registers a newly issued device key with its
// verifier material.
type ConfirmDeviceInput struct {
	AccessToken                string                     `json:"AccessToken"`
	DeviceKey                  string                     `json:"DeviceKey"`
	DeviceName                 string                     `json:"DeviceName,omitempty"`
	DeviceSecretVerifierConfig DeviceSecretVerifierConfig `json:"DeviceSecretVerifierConfig"`
}

// ConfirmDeviceOutput defines a public type used by transport APIs.
type ConfirmDeviceOutput struct {
	UserConfirmationNecessary bool `json:"UserConfirmationNecessary"`
}

// ServiceError is a named remote failure. Code is the provider's
// exception name and is the only field callers may classify on.
type ServiceError struct {
	Code    string
	Message string
}

func (e *ServiceError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IdentityProvider is the narrow RPC surface the sign-in engine drives.
// Implementations must return (*ServiceError) for remote protocol
// failures so the engine can classify them by name.
type IdentityProvider interface {
	InitiateAuth(ctx context.Context, input *InitiateAuthInput) (*AuthResponse, error)
	RespondToAuthChallenge(ctx context.Context, input *RespondToAuthChallengeInput) (*AuthResponse, error)
}

// DeviceConfirmer is the optional extension providers implement when
// they support device registration. Providers without it simply skip
// device confirmation.
type DeviceConfirmer interface {
	ConfirmDevice(ctx context.Context, input *ConfirmDeviceInput) (*ConfirmDeviceOutput, error)
}
