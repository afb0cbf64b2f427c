package middleware

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/mnehpets/httprpc/rpc"
)

var (
	ErrCookieFormat  = errors.New("invalid principal cookie format")
	ErrCookieInvalid = errors.New("invalid principal cookie")
	ErrCookieExpired = errors.New("expired principal cookie")
	ErrSealerConfig  = errors.New("invalid sealer configuration")
)

// maxCookieLen bounds the attacker-controlled input decoded for one cookie.
const maxCookieLen = 8192

// KeySize is the key length expected by the default AEAD.
const KeySize = chacha20poly1305.KeySize

// DefaultCookieName is the cookie carrying the sealed principal.
const DefaultCookieName = "RPCP"

// Sealer seals and opens byte strings with an AEAD, with key rotation.
//
// A sealed value is keyID "." base64url(nonce || ciphertext). KeyID selects
// the key used to seal; every key in Keys is accepted when opening.
type Sealer struct {
	KeyID   string
	Keys    map[string][]byte
	NewAEAD func(key []byte) (cipher.AEAD, error)
}

// NewSealer validates keys and returns a Sealer. A nil newAEAD selects
// XChaCha20-Poly1305.
func NewSealer(keyID string, keys map[string][]byte, newAEAD func(key []byte) (cipher.AEAD, error)) (*Sealer, error) {
	if newAEAD == nil {
		newAEAD = chacha20poly1305.NewX
	}
	if _, ok := keys[keyID]; !ok {
		return nil, fmt.Errorf("%w: key %q not found", ErrSealerConfig, keyID)
	}
	for id, k := range keys {
		if _, err := newAEAD(k); err != nil {
			return nil, fmt.Errorf("%w: key %q: %v", ErrSealerConfig, id, err)
		}
	}
	return &Sealer{KeyID: keyID, Keys: keys, NewAEAD: newAEAD}, nil
}

// Seal encrypts plain, binding it to aad.
func (s *Sealer) Seal(plain, aad []byte) (string, error) {
	if s == nil || s.NewAEAD == nil {
		return "", ErrSealerConfig
	}
	key, ok := s.Keys[s.KeyID]
	if !ok {
		return "", ErrSealerConfig
	}
	aead, err := s.NewAEAD(key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plain)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := aead.Seal(nonce, nonce, plain, aad)
	return s.KeyID + "." + base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal.
func (s *Sealer) Open(sealed string, aad []byte) ([]byte, error) {
	if s == nil || s.NewAEAD == nil {
		return nil, ErrSealerConfig
	}
	if sealed == "" || len(sealed) > maxCookieLen {
		return nil, ErrCookieFormat
	}
	keyID, enc, ok := strings.Cut(sealed, ".")
	if !ok || keyID == "" || enc == "" {
		return nil, ErrCookieFormat
	}
	key, ok := s.Keys[keyID]
	if !ok {
		return nil, ErrCookieInvalid
	}
	raw, err := base64.RawURLEncoding.DecodeString(enc)
	if err != nil {
		return nil, ErrCookieFormat
	}
	aead, err := s.NewAEAD(key)
	if err != nil {
		return nil, err
	}
	if len(raw) < aead.NonceSize()+aead.Overhead() {
		return nil, ErrCookieFormat
	}
	plain, err := aead.Open(nil, raw[:aead.NonceSize()], raw[aead.NonceSize():], aad)
	if err != nil {
		return nil, ErrCookieInvalid
	}
	return plain, nil
}

// claims is the sealed payload of a principal cookie.
type claims struct {
	Name    string    `cbor:"1,keysasint"`
	Roles   []string  `cbor:"2,keysasint,omitempty"`
	Issued  time.Time `cbor:"3,keysasint"`
	Expires time.Time `cbor:"4,keysasint"`
}

// PrincipalCookie carries an rpc.Principal in a sealed, HttpOnly cookie.
// The cookie name, domain, path and secure flag are bound into the seal, so
// a value cannot be replayed under different attributes.
type PrincipalCookie struct {
	Sealer   *Sealer
	Name     string
	Path     string
	Domain   string
	Secure   bool
	SameSite http.SameSite
}

// CookieOption configures a PrincipalCookie.
type CookieOption func(*PrincipalCookie)

func WithCookieName(name string) CookieOption {
	return func(c *PrincipalCookie) { c.Name = name }
}

func WithPath(path string) CookieOption {
	return func(c *PrincipalCookie) { c.Path = path }
}

func WithDomain(domain string) CookieOption {
	return func(c *PrincipalCookie) { c.Domain = domain }
}

// WithSecure controls the Secure attribute. It defaults to true.
func WithSecure(secure bool) CookieOption {
	return func(c *PrincipalCookie) { c.Secure = secure }
}

func WithSameSite(mode http.SameSite) CookieOption {
	return func(c *PrincipalCookie) { c.SameSite = mode }
}

// NewPrincipalCookie returns a cookie codec sealing with s.
//
// Defaults: name DefaultCookieName, path "/", Secure, SameSite=Lax.
func NewPrincipalCookie(s *Sealer, opts ...CookieOption) (*PrincipalCookie, error) {
	if s == nil {
		return nil, ErrSealerConfig
	}
	c := &PrincipalCookie{
		Sealer:   s,
		Name:     DefaultCookieName,
		Path:     "/",
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.Path == "" {
		c.Path = "/"
	}
	return c, nil
}

func (c *PrincipalCookie) aad() []byte {
	secure := "f"
	if c.Secure {
		secure = "t"
	}
	return []byte(c.Name + ":" + c.Domain + ":" + c.Path + ":" + secure)
}

// Issue returns a cookie carrying p, valid for ttl.
func (c *PrincipalCookie) Issue(p rpc.Principal, ttl time.Duration) (*http.Cookie, error) {
	now := time.Now().Truncate(time.Second)
	return c.issue(claims{Name: p.Name, Roles: p.Roles, Issued: now, Expires: now.Add(ttl)})
}

func (c *PrincipalCookie) issue(cl claims) (*http.Cookie, error) {
	maxAge := int(time.Until(cl.Expires).Seconds())
	if maxAge <= 0 {
		return nil, ErrCookieExpired
	}
	plain, err := cbor.Marshal(cl)
	if err != nil {
		return nil, err
	}
	val, err := c.Sealer.Seal(plain, c.aad())
	if err != nil {
		return nil, err
	}
	return &http.Cookie{
		Name:     c.Name,
		Value:    val,
		Path:     c.Path,
		Domain:   c.Domain,
		MaxAge:   maxAge,
		Expires:  cl.Expires,
		Secure:   c.Secure,
		HttpOnly: true,
		SameSite: c.SameSite,
	}, nil
}

// Read opens a cookie produced by Issue.
func (c *PrincipalCookie) Read(cookie *http.Cookie) (rpc.Principal, time.Time, error) {
	cl, err := c.read(cookie)
	if err != nil {
		return rpc.Principal{}, time.Time{}, err
	}
	return rpc.Principal{Name: cl.Name, Roles: cl.Roles}, cl.Expires, nil
}

func (c *PrincipalCookie) read(cookie *http.Cookie) (claims, error) {
	if cookie == nil {
		return claims{}, ErrCookieFormat
	}
	plain, err := c.Sealer.Open(cookie.Value, c.aad())
	if err != nil {
		return claims{}, err
	}
	var cl claims
	if err := cbor.Unmarshal(plain, &cl); err != nil {
		return claims{}, ErrCookieInvalid
	}
	if cl.Name == "" {
		return claims{}, ErrCookieInvalid
	}
	if cl.Expires.IsZero() || !time.Now().Before(cl.Expires) {
		return claims{}, ErrCookieExpired
	}
	return cl, nil
}

// Clear returns a cookie that removes the principal cookie from the client.
func (c *PrincipalCookie) Clear() *http.Cookie {
	return &http.Cookie{
		Name:     c.Name,
		Path:     c.Path,
		Domain:   c.Domain,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		Secure:   c.Secure,
		HttpOnly: true,
		SameSite: c.SameSite,
	}
}
