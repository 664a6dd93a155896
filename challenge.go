package userpool

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/kesh-lab/userpool/srp"
	"github.com/kesh-lab/userpool/transport"
)

// challengeRound bundles everything a responder may need to answer one
// challenge: the attempt's identity and secrets, the server's challenge
// parameters, and the caller's answer for confirmation rounds.
type challengeRound struct {
	username string
	password string
	answer   string
	params   map[string]string

	srpClient *srp.Client
	device    *DeviceMetadata
}

// challengeResponder builds the ChallengeResponses map answering one
// round. The registry over challenge names is closed; dispatch on an
// unknown name fails before any response is built.
type challengeResponder func(r *challengeRound) (map[string]string, error)

var challengeResponders = map[string]challengeResponder{
	transport.ChallengePasswordVerifier:       respondPasswordVerifier,
	transport.ChallengeDeviceSRPAuth:          respondDeviceSRPAuth,
	transport.ChallengeDevicePasswordVerifier: respondDevicePasswordVerifier,
	transport.ChallengeSMSMFA:                 respondSMSMFA,
	transport.ChallengeSoftwareTokenMFA:       respondSoftwareTokenMFA,
	transport.ChallengeSelectMFAType:          respondSelectMFAType,
	transport.ChallengeNewPasswordRequired:    respondNewPassword,
	transport.ChallengeCustom:                 respondCustomChallenge,
	transport.ChallengeMFASetup:               respondCustomChallenge,
}

func buildChallengeResponses(challengeName string, r *challengeRound) (map[string]string, error) {
	responder, ok := challengeResponders[challengeName]
	if !ok {
		return nil, ErrChallengeUnsupported
	}
	return responder(r)
}

func respondPasswordVerifier(r *challengeRound) (map[string]string, error) {
	if r.srpClient == nil {
		return nil, ErrChallengeUnsupported
	}

	// The provider may substitute a derived identity for the verifier
	// round; it must be used in the proof and echoed back.
	username := r.params["USER_ID_FOR_SRP"]
	if username == "" {
		username = r.username
	}

	claim, err := r.srpClient.PasswordClaim(
		username,
		r.password,
		r.params["SALT"],
		r.params["SRP_B"],
		r.params["SECRET_BLOCK"],
		time.Now(),
	)
	if err != nil {
		return nil, err
	}

	responses := map[string]string{
		"USERNAME":                    username,
		"PASSWORD_CLAIM_SIGNATURE":    claim.Signature,
		"PASSWORD_CLAIM_SECRET_BLOCK": claim.SecretBlock,
		"TIMESTAMP":                   claim.Timestamp,
	}
	if r.device != nil {
		responses["DEVICE_KEY"] = r.device.DeviceKey
	}
	return responses, nil
}

func respondDeviceSRPAuth(r *challengeRound) (map[string]string, error) {
	if r.srpClient == nil || r.device == nil {
		return nil, ErrDeviceNotRemembered
	}
	return map[string]string{
		"USERNAME":   r.username,
		"DEVICE_KEY": r.device.DeviceKey,
		"SRP_A":      r.srpClient.EphemeralA(),
	}, nil
}

func respondDevicePasswordVerifier(r *challengeRound) (map[string]string, error) {
	if r.srpClient == nil || r.device == nil {
		return nil, ErrDeviceNotRemembered
	}

	claim, err := r.srpClient.DeviceClaim(
		r.device.DeviceGroupKey,
		r.device.DeviceKey,
		r.device.DevicePassword,
		r.params["SALT"],
		r.params["SRP_B"],
		r.params["SECRET_BLOCK"],
		time.Now(),
	)
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"USERNAME":                    r.username,
		"DEVICE_KEY":                  r.device.DeviceKey,
		"PASSWORD_CLAIM_SIGNATURE":    claim.Signature,
		"PASSWORD_CLAIM_SECRET_BLOCK": claim.SecretBlock,
		"TIMESTAMP":                   claim.Timestamp,
	}, nil
}

func respondSMSMFA(r *challengeRound) (map[string]string, error) {
	return map[string]string{
		"USERNAME":     r.username,
		"SMS_MFA_CODE": r.answer,
	}, nil
}

func respondSoftwareTokenMFA(r *challengeRound) (map[string]string, error) {
	return map[string]string{
		"USERNAME":                r.username,
		"SOFTWARE_TOKEN_MFA_CODE": r.answer,
	}, nil
}

func respondSelectMFAType(r *challengeRound) (map[string]string, error) {
	return map[string]string{
		"USERNAME": r.username,
		"ANSWER":   r.answer,
	}, nil
}

func respondNewPassword(r *challengeRound) (map[string]string, error) {
	return map[string]string{
		"USERNAME":     r.username,
		"NEW_PASSWORD": r.answer,
	}, nil
}

func respondCustomChallenge(r *challengeRound) (map[string]string, error) {
	return map[string]string{
		"USERNAME": r.username,
		"ANSWER":   r.answer,
	}, nil
}

// srpChallenges are answered by the engine itself; everything else is
// handed to the caller as a continuation step.
var srpChallenges = map[string]bool{
	transport.ChallengePasswordVerifier:       true,
	transport.ChallengeDeviceSRPAuth:          true,
	transport.ChallengeDevicePasswordVerifier: true,
}

// nextStepForChallenge maps a caller-facing challenge to its public
// step tag plus the safe subset of challenge parameters. The mapping is
// total over the supported set; an unknown name is a protocol
// violation.
func nextStepForChallenge(challengeName string, params map[string]string) (NextStep, error) {
	switch challengeName {
	case transport.ChallengeSMSMFA:
		return NextStep{
			SignInStep:              StepConfirmSignInWithSMSCode,
			CodeDeliveryDestination: params["CODE_DELIVERY_DESTINATION"],
			CodeDeliveryMedium:      params["CODE_DELIVERY_DELIVERY_MEDIUM"],
		}, nil
	case transport.ChallengeSoftwareTokenMFA:
		return NextStep{
			SignInStep: StepConfirmSignInWithTOTPCode,
		}, nil
	case transport.ChallengeSelectMFAType:
		return NextStep{
			SignInStep:      StepContinueSignInWithMFASelection,
			AllowedMFATypes: decodeStringList(params["MFAS_CAN_CHOOSE"]),
		}, nil
	case transport.ChallengeNewPasswordRequired:
		return NextStep{
			SignInStep:        StepConfirmSignInWithNewPassword,
			MissingAttributes: decodeAttributeList(params["requiredAttributes"]),
		}, nil
	case transport.ChallengeCustom:
		return NextStep{
			SignInStep:     StepConfirmSignInWithCustomChallenge,
			AdditionalInfo: publicChallengeParameters(params),
		}, nil
	case transport.ChallengeMFASetup:
		return NextStep{
			SignInStep: StepContinueSignInWithTOTPSetup,
		}, nil
	default:
		return NextStep{}, ErrChallengeUnsupported
	}
}

// decodeStringList parses the provider's JSON-array-in-a-string
// parameter encoding. A malformed value yields nil rather than failing
// the round; the step tag alone is still actionable.
func decodeStringList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}

func decodeAttributeList(raw string) []string {
	attrs := decodeStringList(raw)
	for i, a := range attrs {
		attrs[i] = strings.TrimPrefix(a, "userAttributes.")
	}
	return attrs
}

// publicChallengeParameters filters a custom round's parameters down to
// what the authoring trigger marked public. Internal bookkeeping keys
// (the USERNAME echo) never reach the caller.
func publicChallengeParameters(params map[string]string) map[string]string {
	if len(params) == 0 {
		return nil
	}
	out := make(map[string]string, len(params))
	for k, v := range params {
		if k == "USERNAME" || k == "USER_ID_FOR_SRP" {
			continue
		}
		out[k] = v
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
