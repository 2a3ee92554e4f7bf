// Package signing produces and verifies expiring HMAC-signed download links
// for stored objects.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"
)

var (
	ErrMissingParams = errors.New("missing signed params")
	ErrExpired       = errors.New("signed url expired")
	ErrBadSignature  = errors.New("signature mismatch")
)

type Signer struct {
	Secret []byte
	// Now is overridable in tests.
	Now func() time.Time
}

type Signed struct {
	Key string
	Exp int64
	UID string
	Sig string
}

func New(secret string) *Signer {
	return &Signer{Secret: []byte(secret), Now: time.Now}
}

func (s *Signer) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func (s *Signer) Sign(key, userID string, exp time.Time) Signed {
	return Signed{Key: key, Exp: exp.Unix(), UID: userID, Sig: s.signValue(key, userID, exp.Unix())}
}

// Verify checks the signature and that exp has not passed.
func (s *Signer) Verify(signed Signed) error {
	if s.now().Unix() > signed.Exp {
		return ErrExpired
	}
	want := s.signValue(signed.Key, signed.UID, signed.Exp)
	if !hmac.Equal([]byte(signed.Sig), []byte(want)) {
		return ErrBadSignature
	}
	return nil
}

func (s *Signer) signValue(key, userID string, exp int64) string {
	mac := hmac.New(sha256.New, s.Secret)
	mac.Write([]byte(key))
	mac.Write([]byte("|"))
	mac.Write([]byte(userID))
	mac.Write([]byte("|"))
	mac.Write([]byte(strconv.FormatInt(exp, 10)))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func BuildSignedURL(base string, signed Signed) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("key", signed.Key)
	q.Set("exp", strconv.FormatInt(signed.Exp, 10))
	q.Set("uid", signed.UID)
	q.Set("sig", signed.Sig)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func ExtractSigned(query url.Values) (Signed, error) {
	key := strings.TrimSpace(query.Get("key"))
	uid := strings.TrimSpace(query.Get("uid"))
	expStr := strings.TrimSpace(query.Get("exp"))
	sig := strings.TrimSpace(query.Get("sig"))
	if key == "" || uid == "" || expStr == "" || sig == "" {
		return Signed{}, ErrMissingParams
	}
	exp, err := strconv.ParseInt(expStr, 10, 64)
	if err != nil {
		return Signed{}, err
	}
	return Signed{Key: key, Exp: exp, UID: uid, Sig: sig}, nil
}
