package srp

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"
	"time"

	"golang.org/x/crypto/hkdf"
)

// RFC 5054 / RFC 3526 3072-bit MODP group. The provider pins this group;
// it is not negotiable per pool.
const nHex = "FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD129024E088A67CC74" +
	"020BBEA63B139B22514A08798E3404DDEF9519B3CD3A431B302B0A6DF25F1437" +
	"4FE1356D6D51C245E485B576625E7EC6F44C42E9A637ED6B0BFF5CB6F406B7ED" +
	"EE386BFB5A899FA5AE9F24117C4B1FE649286651ECE45B3DC2007CB8A163BF05" +
	"98DA48361C55D39A69163FA8FD24CF5F83655D23DCA3AD961C62F356208552BB" +
	"9ED529077096966D670C354E4ABC9804F1746C08CA18217C32905E462E36CE3B" +
	"E39E772C180E86039B2783A2EC07A28FB5C55DF06F4C52C9DE2BCBF695581718" +
	"3995497CEA956AE515D2261898FA051015728E5A8AAAC42DAD33170D04507A33" +
	"A85521ABDF1CBA64ECFB850458DBEF0A8AEA71575D060C7DB3970F85A6E1E4C7" +
	"ABF5AE8CDB0933D71E8C94E04A25619DCEE3D2261AD2EE6BF12FFA06D98A0864" +
	"D87602733EC86A64521F2B18177B200CBBE117577A615D6C770988C0BAD946E2" +
	"08E24FA074E5AB3143DB5BFCE0FD108E4B82D120A93AD2CAFFFFFFFFFFFFFFFF"

const derivedKeyInfo = "Caldera Derived Key"

const (
	derivedKeySize     = 16
	ephemeralSecretLen = 128
	deviceSaltLen      = 16
	devicePasswordLen  = 40
)

var (
	// ErrServerEphemeralInvalid is an exported constant or variable used by the SRP engine.
	ErrServerEphemeralInvalid = errors.New("srp: server ephemeral B mod N is zero")
	// ErrScramblerZero is an exported constant or variable used by the SRP engine.
	ErrScramblerZero = errors.New("srp: scrambling parameter U hashed to zero")
	// ErrServerParameterMalformed is an exported constant or variable used by the SRP engine.
	ErrServerParameterMalformed = errors.New("srp: malformed server challenge parameter")
	// ErrRandomSource is an exported constant or variable used by the SRP engine.
	ErrRandomSource = errors.New("srp: unable to read randomness")
)

var (
	groupN *big.Int
	groupG = big.NewInt(2)
	groupK *big.Int
)

func init() {
	n, ok := new(big.Int).SetString(nHex, 16)
	if !ok {
		panic("srp: bad group modulus constant")
	}
	groupN = n
	groupK = hashHexToInt(padHex(groupN) + padHex(groupG))
}

// Client holds one sign-in attempt's ephemeral SRP secret and the pool
// name the password hash is scoped to. A Client must not be reused
// across attempts; the server binds its own ephemeral to the A value
// sent in the opening message.
type Client struct {
	poolName string
	a        *big.Int
	bigA     *big.Int
}

// NewClient creates a Client with a freshly generated ephemeral secret.
//
// NewClient may return an error when the platform randomness source fails.
func NewClient(poolName string) (*Client, error) {
	for {
		buf := make([]byte, ephemeralSecretLen)
		if _, err := io.ReadFull(rand.Reader, buf); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRandomSource, err)
		}
		a := new(big.Int).Mod(new(big.Int).SetBytes(buf), groupN)

		client, err := NewClientFromSecret(poolName, a)
		if err == nil {
			return client, nil
		}
		// A ≡ 0 mod N is rejected by the protocol; draw again.
	}
}

// NewClientFromSecret creates a Client from a caller-supplied ephemeral
// secret. Intended for deterministic derivation tests; production code
// uses [NewClient].
func NewClientFromSecret(poolName string, a *big.Int) (*Client, error) {
	bigA := new(big.Int).Exp(groupG, a, groupN)
	if new(big.Int).Mod(bigA, groupN).Sign() == 0 {
		return nil, errors.New("srp: illegal ephemeral A = 0")
	}
	return &Client{
		poolName: poolName,
		a:        new(big.Int).Set(a),
		bigA:     bigA,
	}, nil
}

// EphemeralA returns the public ephemeral value for the opening
// authentication message, as an uppercase-insensitive hex string.
func (c *Client) EphemeralA() string {
	return c.bigA.Text(16)
}

// Claim is the computed password proof for one verifier round.
type Claim struct {
	Signature   string // base64 HMAC proof
	SecretBlock string // echoed base64 secret block from the challenge
	Timestamp   string // formatted timestamp the proof was bound to
}

// PasswordClaim derives the shared session key from the password
// verifier challenge and signs the proof message. saltHex and
// serverBHex are the hex values from the challenge parameters,
// secretBlockB64 the opaque secret block, and ts the proof timestamp
// (see [Timestamp]).
//
// PasswordClaim may return an error when server parameters are
// malformed; a wrong password is never detected locally.
func (c *Client) PasswordClaim(username, password, saltHex, serverBHex, secretBlockB64 string, ts time.Time) (*Claim, error) {
	identity := c.poolName + username
	passwordHash := hashString(c.poolName + username + ":" + password)
	return c.claim(identity, passwordHash, saltHex, serverBHex, secretBlockB64, ts)
}

// DeviceClaim is the device-verifier variant of [PasswordClaim]: the
// identity is deviceGroupKey+deviceKey and the secret is the locally
// generated device password.
func (c *Client) DeviceClaim(deviceGroupKey, deviceKey, devicePassword, saltHex, serverBHex, secretBlockB64 string, ts time.Time) (*Claim, error) {
	identity := deviceGroupKey + deviceKey
	passwordHash := hashString(deviceGroupKey + deviceKey + ":" + devicePassword)
	return c.claim(identity, passwordHash, saltHex, serverBHex, secretBlockB64, ts)
}

func (c *Client) claim(identity, passwordHashHex, saltHex, serverBHex, secretBlockB64 string, ts time.Time) (*Claim, error) {
	serverB, ok := new(big.Int).SetString(serverBHex, 16)
	if !ok {
		return nil, fmt.Errorf("%w: server ephemeral is not hex", ErrServerParameterMalformed)
	}
	if new(big.Int).Mod(serverB, groupN).Sign() == 0 {
		return nil, ErrServerEphemeralInvalid
	}
	salt, ok := new(big.Int).SetString(saltHex, 16)
	if !ok {
		return nil, fmt.Errorf("%w: salt is not hex", ErrServerParameterMalformed)
	}
	secretBlock, err := base64.StdEncoding.DecodeString(secretBlockB64)
	if err != nil {
		return nil, fmt.Errorf("%w: secret block is not base64", ErrServerParameterMalformed)
	}

	u := hashHexToInt(padHex(c.bigA) + padHex(serverB))
	if u.Sign() == 0 {
		return nil, ErrScramblerZero
	}

	x := hashHexToInt(padHex(salt) + passwordHashHex)

	// S = (B - k*g^x) ^ (a + U*x) mod N
	gPowX := new(big.Int).Exp(groupG, x, groupN)
	base := new(big.Int).Sub(serverB, new(big.Int).Mul(groupK, gPowX))
	base.Mod(base, groupN)
	exp := new(big.Int).Add(c.a, new(big.Int).Mul(u, x))
	s := new(big.Int).Exp(base, exp, groupN)

	key, err := deriveKey(s, u)
	if err != nil {
		return nil, err
	}

	stamp := Timestamp(ts)
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(identity))
	mac.Write(secretBlock)
	mac.Write([]byte(stamp))

	return &Claim{
		Signature:   base64.StdEncoding.EncodeToString(mac.Sum(nil)),
		SecretBlock: secretBlockB64,
		Timestamp:   stamp,
	}, nil
}

func deriveKey(s, u *big.Int) ([]byte, error) {
	ikm, err := hex.DecodeString(padHex(s))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServerParameterMalformed, err)
	}
	salt, err := hex.DecodeString(padHex(u))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServerParameterMalformed, err)
	}

	key := make([]byte, derivedKeySize)
	r := hkdf.New(sha256.New, ikm, salt, []byte(derivedKeyInfo))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("srp: hkdf expand failed: %w", err)
	}
	return key, nil
}

// Timestamp formats t in the fixed proof-binding layout the verifier
// expects: weekday, non-padded day, literal UTC zone.
func Timestamp(t time.Time) string {
	return t.UTC().Format("Mon Jan 2 15:04:05 UTC 2006")
}

// Verifier is locally generated device-confirmation material: the salted
// password verifier and its salt, both base64 of the padded big-endian
// bytes.
type Verifier struct {
	PasswordVerifier string
	Salt             string
}

// GenerateVerifier creates the device password verifier registered with
// the provider when a new device is confirmed.
func GenerateVerifier(deviceGroupKey, deviceKey, devicePassword string) (*Verifier, error) {
	saltBytes := make([]byte, deviceSaltLen)
	if _, err := io.ReadFull(rand.Reader, saltBytes); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRandomSource, err)
	}
	salt := new(big.Int).SetBytes(saltBytes)

	fullPasswordHash := hashString(deviceGroupKey + deviceKey + ":" + devicePassword)
	x := hashHexToInt(padHex(salt) + fullPasswordHash)
	v := new(big.Int).Exp(groupG, x, groupN)

	verifierBytes, err := hex.DecodeString(padHex(v))
	if err != nil {
		return nil, err
	}
	saltPadded, err := hex.DecodeString(padHex(salt))
	if err != nil {
		return nil, err
	}

	return &Verifier{
		PasswordVerifier: base64.StdEncoding.EncodeToString(verifierBytes),
		Salt:             base64.StdEncoding.EncodeToString(saltPadded),
	}, nil
}

// RandomDevicePassword generates the secret half of a newly registered
// device's credentials. The plaintext is persisted client-side only.
func RandomDevicePassword() (string, error) {
	buf := make([]byte, devicePasswordLen)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", fmt.Errorf("%w: %v", ErrRandomSource, err)
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}

// padHex renders v as an even-length hex string with a leading zero
// byte whenever the top nibble would set the sign bit. The verifier
// hashes these exact bytes; both rules are load-bearing.
func padHex(v *big.Int) string {
	h := v.Text(16)
	if len(h)%2 == 1 {
		return "0" + h
	}
	if strings.ContainsRune("89abcdef", rune(h[0])) {
		return "00" + h
	}
	return h
}

// hashString hashes the UTF-8 bytes of s and returns lowercase hex,
// left-padded to the full digest width.
func hashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return fmt.Sprintf("%064x", new(big.Int).SetBytes(sum[:]))
}

// hashHexToInt hex-decodes s, hashes the raw bytes, and interprets the
// digest as a big-endian integer.
func hashHexToInt(s string) *big.Int {
	raw, err := hex.DecodeString(s)
	if err != nil {
		// Inputs are produced by padHex and are always valid hex.
		panic("srp: non-hex input to hashHexToInt")
	}
	sum := sha256.Sum256(raw)
	return new(big.Int).SetBytes(sum[:])
}
