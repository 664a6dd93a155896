package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	targetPrefix           = "AWSCognitoIdentityProviderService"
	contentTypeAmzJSON     = "application/x-amz-json-1.1"
	defaultRequestTimeout  = 30 * time.Second
	maxErrorBodyBytes      = 1 << 16
	headerTarget           = "X-Amz-Target"
	opInitiateAuth         = "InitiateAuth"
	opRespondAuthChallenge = "RespondToAuthChallenge"
	opConfirmDevice        = "ConfirmDevice"
)

type wireError struct {
	Type    string `json:"__type"`
	Message string `json:"message"`
}

// HTTPClient speaks the provider's JSON RPC envelope over HTTP. The
// zero value is not usable; construct with [NewHTTPClient].
type HTTPClient struct {
	endpoint string
	client   *http.Client
}

// NewHTTPClient creates an [IdentityProvider] bound to the regional
// endpoint. When httpClient is nil a client with a 30s timeout is used.
func NewHTTPClient(endpoint string, httpClient *http.Client) (*HTTPClient, error) {
	if endpoint == "" {
		return nil, errors.New("transport: endpoint must not be empty")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	return &HTTPClient{
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   httpClient,
	}, nil
}

// InitiateAuth describes the initiateauth operation and its observable behavior.
//
// InitiateAuth may return an error when the request cannot be encoded, the
// endpoint is unreachable, or the provider reports a named failure.
func (c *HTTPClient) InitiateAuth(ctx context.Context, input *InitiateAuthInput) (*AuthResponse, error) {
	return c.call(ctx, opInitiateAuth, input)
}

// RespondToAuthChallenge describes the respondtoauthchallenge operation and its observable behavior.
//
// RespondToAuthChallenge may return an error when the request cannot be
// encoded, the endpoint is unreachable, or the provider reports a named failure.
func (c *HTTPClient) RespondToAuthChallenge(ctx context.Context, input *RespondToAuthChallengeInput) (*AuthResponse, error) {
	return c.call(ctx, opRespondAuthChallenge, input)
}

// ConfirmDevice registers a freshly issued device's verifier material
// so later sign-ins from it can answer the device challenges.
//
// ConfirmDevice may return an error when the request cannot be encoded,
// the endpoint is unreachable, or the provider reports a named failure.
func (c *HTTPClient) ConfirmDevice(ctx context.Context, input *ConfirmDeviceInput) (*ConfirmDeviceOutput, error) {
	out := &ConfirmDeviceOutput{}
	if err := c.callInto(ctx, opConfirmDevice, input, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) call(ctx context.Context, op string, input any) (*AuthResponse, error) {
	out := &AuthResponse{}
	if err := c.callInto(ctx, op, input, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) callInto(ctx context.Context, op string, input, out any) error {
	body, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("transport: encode %s request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("transport: build %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", contentTypeAmzJSON)
	req.Header.Set(headerTarget, targetPrefix+"."+op)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("transport: %s round trip: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Only error bodies get a read cap; a success payload (token
		// bundles can be large) is decoded in full.
		payload, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		if err != nil {
			return fmt.Errorf("transport: read %s error response: %w", op, err)
		}
		return decodeServiceError(resp.StatusCode, payload)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("transport: decode %s response: %w", op, err)
	}
	return nil
}

func decodeServiceError(status int, payload []byte) error {
	var we wireError
	if err := json.Unmarshal(payload, &we); err == nil && we.Type != "" {
		// Error type may arrive namespaced ("prefix#CodeName").
		code := we.Type
		if i := strings.LastIndexByte(code, '#'); i >= 0 {
			code = code[i+1:]
		}
		return &ServiceError{Code: code, Message: we.Message}
	}
	return &ServiceError{
		Code:    "InternalErrorException",
		Message: fmt.Sprintf("unexpected HTTP status %d", status),
	}
}
