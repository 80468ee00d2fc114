package device

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// hostClientTokenTTL is long-lived: host clients are expected to stay
// connected for the life of the desktop/laptop session (spec §4.5).
const hostClientTokenTTL = 365 * 24 * time.Hour

// hostClientClaims carries the minimum identity a host client needs to
// reconnect: which client record it is, and which tenant owns it.
type hostClientClaims struct {
	jwt.RegisteredClaims
	Tenant string `json:"workspace_id"`
}

// MintHostClientToken issues the long-lived bearer credential returned once
// at client registration (spec §4.5, §6 "POST /api/clients/register"),
// HMAC-signed with secret. The registration handler passes the host-client
// secret installed by SetHostClientSecret, which is separate from the
// secret used for tenant bearer tokens.
func MintHostClientToken(secret []byte, clientID, tenant string) (string, error) {
	now := time.Now()
	claims := hostClientClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   clientID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(hostClientTokenTTL)),
		},
		Tenant: tenant,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

var errInvalidHostClientToken = errors.New("device: invalid or expired host client token")

// hostClientSecret is set once at process startup by NewWSHandlers's caller
// via SetHostClientSecret; kept package-level because the WebSocket upgrade
// path authenticates purely from the URL-embedded token, with no request
// context to thread a Signer through.
var hostClientSecret []byte

// SetHostClientSecret installs the HMAC secret used to mint and validate
// host-client tokens. Called once during service startup.
func SetHostClientSecret(secret []byte) {
	hostClientSecret = secret
}

// ParseHostClientToken validates a host-client bearer token and extracts its
// client id and tenant.
func ParseHostClientToken(raw string) (clientID, tenant string, err error) {
	claims := &hostClientClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errInvalidHostClientToken
		}
		return hostClientSecret, nil
	})
	if err != nil || !token.Valid {
		return "", "", errInvalidHostClientToken
	}
	if claims.Subject == "" || claims.Tenant == "" {
		return "", "", errInvalidHostClientToken
	}
	return claims.Subject, claims.Tenant, nil
}
