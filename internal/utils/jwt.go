package utils // package utils provides helper functions for access token creation and parsing

import (
    "errors"  // sentinel error for rejected tokens
    "strconv" // numeric parsing for string subjects
    "time"    // time utilities for generating expirations

    "github.com/golang-jwt/jwt/v5" // JWT library for creating signed tokens
)

// AccessToken represents a signed JWT access token along with its expiry.
// The Token field contains the JWT string.  Exp stores the expiration
// timestamp as a time.Time.  Access tokens are sent in the Authorization
// header on HTTP calls and as a bearer token on the realtime handshake.
type AccessToken struct {
    Token string    // the serialized JWT string
    Exp   time.Time // the UTC expiration time
}

// Identity is the authenticated bidder carried by an access token.
type Identity struct {
    UserID uint64
    Email  string
    Name   string
}

// ErrInvalidToken is returned for tokens that fail signature, expiry or
// claim checks.
var ErrInvalidToken = errors.New("invalid token")

// NewAccessToken builds and signs an HS256 JWT for a bidder.  It takes the
// signing secret, the identity and a TTL in minutes.  The JWT includes the
// subject (sub), email, name, expiration (exp) and issued at (iat).
func NewAccessToken(secret string, id Identity, ttlMin int) (AccessToken, error) {
    now := time.Now().UTC()
    // Calculate the expiration time by adding the TTL to the current UTC time.
    exp := now.Add(time.Duration(ttlMin) * time.Minute)
    claims := jwt.MapClaims{
        "sub":   id.UserID,
        "email": id.Email,
        "name":  id.Name,
        "exp":   exp.Unix(),
        "iat":   now.Unix(),
    }
    // Create a new token object specifying the signing method (HS256) and
    // include the claims.
    t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
    signed, err := t.SignedString([]byte(secret))
    if err != nil {
        return AccessToken{}, err
    }
    return AccessToken{Token: signed, Exp: exp}, nil
}

// ParseAccessToken verifies raw with the HS256 secret and returns the
// identity it carries.  Any failure is reported as ErrInvalidToken.
func ParseAccessToken(secret, raw string) (Identity, error) {
    tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
        // Type assert the signing method to HMAC; reject others.
        if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
            return nil, ErrInvalidToken
        }
        return []byte(secret), nil
    }, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
    if err != nil || !tok.Valid {
        return Identity{}, ErrInvalidToken
    }
    claims, ok := tok.Claims.(jwt.MapClaims)
    if !ok {
        return Identity{}, ErrInvalidToken
    }
    uid, ok := subject(claims["sub"])
    if !ok {
        return Identity{}, ErrInvalidToken
    }
    email, _ := claims["email"].(string)
    name, _ := claims["name"].(string)
    return Identity{UserID: uid, Email: email, Name: name}, nil
}

// subject converts the sub claim into a user ID.  JSON numbers decode as
// float64; string subjects are accepted as well.
func subject(v interface{}) (uint64, bool) {
    switch t := v.(type) {
    case float64:
        if t <= 0 || t != float64(uint64(t)) {
            return 0, false
        }
        return uint64(t), true
    case string:
        n, err := strconv.ParseUint(t, 10, 64)
        return n, err == nil && n > 0
    }
    return 0, false
}
