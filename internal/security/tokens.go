// Package security issues, verifies, rotates, and revokes the signed bearer
// credentials that authenticate every request, and keeps the refresh-token
// family bookkeeping used by rotation.
package security

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"encoding/hex"
	"errors"
	"log"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"comicguess-auth-core/backend/internal/revocation"
)

// TokenType distinguishes access tokens from refresh tokens in the "type"
// claim.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// nearExpiryWindow is the remaining lifetime under which ValidateSecurity
// advises clients to refresh proactively.
const nearExpiryWindow = 15 * time.Minute

// Claims is the full claim set carried by both token types. Family is set
// only on refresh tokens (and on access tokens minted alongside one);
// Username and Email are optional denormalized display claims.
type Claims struct {
	jwt.RegisteredClaims
	TokenType string `json:"type"`
	Family    string `json:"fam,omitempty"`
	Username  string `json:"username,omitempty"`
	Email     string `json:"email,omitempty"`
}

// ExtraClaims are optional denormalized claims attached to access tokens.
type ExtraClaims struct {
	Username string
	Email    string
}

// TokenPair is the result of minting both tokens for a fresh login.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessJTI        string
	RefreshJTI       string
	Family           string
	ExpiresIn        time.Duration
	RefreshExpiresIn time.Duration
}

// RefreshResult is the outcome of exchanging a refresh token. RefreshToken
// is set only when Rotated is true.
type RefreshResult struct {
	AccessToken  string
	RefreshToken string
	Rotated      bool
}

// SecurityReport is the non-throwing introspection result clients use to
// decide whether to refresh proactively.
type SecurityReport struct {
	Valid         bool
	TokenType     string
	UserID        string
	JTI           string
	IssuedAt      time.Time
	ExpiresAt     time.Time
	Age           time.Duration
	TimeToExpiry  time.Duration
	NearExpiry    bool
	ShouldRefresh bool
}

// Options configures a TokenProvider. Zero values fall back to the
// documented defaults.
type Options struct {
	// Issuer and Audience are set on every token and validated on verify.
	Issuer   string
	Audience string
	// AccessTTL is the access token lifetime. Default 1h.
	AccessTTL time.Duration
	// RefreshTTL is the refresh token lifetime. Default 168h.
	RefreshTTL time.Duration
	// ClockSkew is the leeway applied to time-based claims when the caller
	// allows it. Default 30s.
	ClockSkew time.Duration
	// RotationThreshold is the minimum refresh-token age before a refresh
	// call issues a replacement refresh token. Default 15m.
	RotationThreshold time.Duration
	// MaxTokenAge bounds replay risk: tokens issued further in the past are
	// rejected even when exp has not passed. Default 720h (30 days).
	MaxTokenAge time.Duration
	// FailClosed treats a failed revocation-store check as "revoked".
	// Default false: availability wins and the degradation is logged.
	FailClosed bool
}

func (o Options) withDefaults() Options {
	if o.AccessTTL <= 0 {
		o.AccessTTL = time.Hour
	}
	if o.RefreshTTL <= 0 {
		o.RefreshTTL = 168 * time.Hour
	}
	if o.ClockSkew <= 0 {
		o.ClockSkew = 30 * time.Second
	}
	if o.RotationThreshold <= 0 {
		o.RotationThreshold = 15 * time.Minute
	}
	if o.MaxTokenAge <= 0 {
		o.MaxTokenAge = 720 * time.Hour
	}
	return o
}

// TokenProvider mints and validates signed bearer credentials (RS256 or
// ES256) and mediates revocation checks. It owns no long-lived state beyond
// the revocation store and the derived family index.
type TokenProvider struct {
	privateKey crypto.Signer
	publicKey  crypto.PublicKey
	opts       Options
	revoked    revocation.Store
	families   *FamilyIndex
	nowF       func() time.Time
}

// NewTokenProvider returns a TokenProvider signing with the given private
// key. revoked must not be nil; a MemoryStore suffices for single-instance
// deployments.
func NewTokenProvider(privateKey crypto.Signer, publicKey crypto.PublicKey, revoked revocation.Store, opts Options) *TokenProvider {
	return &TokenProvider{
		privateKey: privateKey,
		publicKey:  publicKey,
		opts:       opts.withDefaults(),
		revoked:    revoked,
		families:   NewFamilyIndex(),
		nowF:       func() time.Time { return time.Now().UTC() },
	}
}

// IssueAccess mints an access token for userID. family may be empty; when
// set, it ties the access token to a refresh-token family for display and
// audit purposes. Returns the signed token and its jti.
func (p *TokenProvider) IssueAccess(userID string, extra ExtraClaims, family string) (token, jti string, err error) {
	jti, err = generateJTI()
	if err != nil {
		return "", "", err
	}
	now := p.nowF()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   userID,
			Issuer:    p.opts.Issuer,
			Audience:  jwt.ClaimStrings{p.opts.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.opts.AccessTTL)),
		},
		TokenType: string(TokenTypeAccess),
		Family:    family,
		Username:  extra.Username,
		Email:     extra.Email,
	}
	token, err = p.sign(claims)
	return token, jti, err
}

// IssueRefresh mints a refresh token for userID. When family is empty a new
// family id is generated; either way the family index entry is ensured with
// a rotation count starting at zero.
func (p *TokenProvider) IssueRefresh(userID, family string) (token, jti, familyID string, err error) {
	jti, err = generateJTI()
	if err != nil {
		return "", "", "", err
	}
	familyID = family
	if familyID == "" {
		familyID = uuid.New().String()
	}
	now := p.nowF()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   userID,
			Issuer:    p.opts.Issuer,
			Audience:  jwt.ClaimStrings{p.opts.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.opts.RefreshTTL)),
		},
		TokenType: string(TokenTypeRefresh),
		Family:    familyID,
	}
	token, err = p.sign(claims)
	if err != nil {
		return "", "", "", err
	}
	p.families.Ensure(familyID, userID)
	return token, jti, familyID, nil
}

// CreateTokenPair mints a refresh token first (establishing the family) and
// an access token under the same family.
func (p *TokenProvider) CreateTokenPair(userID string, extra ExtraClaims) (*TokenPair, error) {
	refresh, refreshJTI, family, err := p.IssueRefresh(userID, "")
	if err != nil {
		return nil, err
	}
	access, accessJTI, err := p.IssueAccess(userID, extra, family)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessJTI:        accessJTI,
		RefreshJTI:       refreshJTI,
		Family:           family,
		ExpiresIn:        p.opts.AccessTTL,
		RefreshExpiresIn: p.opts.RefreshTTL,
	}, nil
}

// Verify validates a token and returns its claims. expectedType may be empty
// to accept either type. allowClockSkew applies the configured leeway to the
// time-based claims. Failures are *TokenError values and are terminal for
// the token: callers must treat them as an authentication failure, never
// retry.
func (p *TokenProvider) Verify(ctx context.Context, tokenString string, expectedType TokenType, allowClockSkew bool) (*Claims, error) {
	unverified := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, unverified); err != nil {
		return nil, newTokenError(KindMalformed, err)
	}

	if expectedType != "" && unverified.TokenType != string(expectedType) {
		return nil, newTokenError(KindWrongType, errors.New("unexpected token type "+unverified.TokenType))
	}

	if unverified.ID != "" {
		revoked, err := p.revoked.IsRevoked(ctx, unverified.ID)
		if err != nil {
			revoked = p.degraded("jti check", err)
		}
		if revoked {
			return nil, newTokenError(KindRevoked, nil)
		}
	}
	if unverified.Subject != "" && unverified.IssuedAt != nil {
		revoked, err := p.revoked.IsRevokedForUser(ctx, unverified.Subject, unverified.IssuedAt.Time)
		if err != nil {
			revoked = p.degraded("account check", err)
		}
		if revoked {
			return nil, newTokenError(KindRevoked, nil)
		}
	}

	leeway := time.Duration(0)
	if allowClockSkew {
		leeway = p.opts.ClockSkew
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, p.keyFunc,
		jwt.WithValidMethods([]string{"RS256", "ES256"}),
		jwt.WithIssuer(p.opts.Issuer),
		jwt.WithAudience(p.opts.Audience),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(leeway),
		jwt.WithTimeFunc(p.nowF),
	)
	if err != nil {
		return nil, classifyJWTError(err)
	}
	if !token.Valid {
		return nil, newTokenError(KindSignatureInvalid, nil)
	}

	now := p.nowF()
	if claims.IssuedAt != nil {
		issuedAt := claims.IssuedAt.Time
		if issuedAt.After(now.Add(leeway)) {
			return nil, newTokenError(KindIssuedInFuture, nil)
		}
		if now.Sub(issuedAt) > p.opts.MaxTokenAge {
			return nil, newTokenError(KindTooOld, nil)
		}
	}

	if claims.TokenType == string(TokenTypeRefresh) && claims.Family != "" {
		p.families.Touch(claims.Family)
	}
	return claims, nil
}

// RefreshAccessToken exchanges a valid refresh token for a new access token.
// When rotate is set and the refresh token is older than the rotation
// threshold, the old refresh token is revoked and a replacement pair is
// minted under the same family; a replay of the old refresh token then fails
// with Revoked.
func (p *TokenProvider) RefreshAccessToken(ctx context.Context, refreshToken string, rotate bool) (*RefreshResult, error) {
	claims, err := p.Verify(ctx, refreshToken, TokenTypeRefresh, true)
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, newTokenError(KindMalformed, errors.New("refresh token has no subject"))
	}

	if rotate && claims.IssuedAt != nil && p.nowF().Sub(claims.IssuedAt.Time) > p.opts.RotationThreshold {
		var exp time.Time
		if claims.ExpiresAt != nil {
			exp = claims.ExpiresAt.Time
		}
		if err := p.revoked.Revoke(ctx, claims.ID, exp); err != nil {
			// Rotation must not outlive a replayable predecessor.
			return nil, err
		}
		access, _, err := p.IssueAccess(claims.Subject, ExtraClaims{}, claims.Family)
		if err != nil {
			return nil, err
		}
		refresh, _, _, err := p.IssueRefresh(claims.Subject, claims.Family)
		if err != nil {
			return nil, err
		}
		p.families.Rotate(claims.Family)
		return &RefreshResult{AccessToken: access, RefreshToken: refresh, Rotated: true}, nil
	}

	access, _, err := p.IssueAccess(claims.Subject, ExtraClaims{}, claims.Family)
	if err != nil {
		return nil, err
	}
	return &RefreshResult{AccessToken: access, Rotated: false}, nil
}

// Revoke invalidates a specific token. The token need not verify fully, so
// expired or otherwise rejected tokens can still be revoked explicitly; only
// jti and exp are read.
func (p *TokenProvider) Revoke(ctx context.Context, tokenString string) error {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return newTokenError(KindMalformed, err)
	}
	if claims.ID == "" || claims.ExpiresAt == nil {
		return newTokenError(KindMalformed, errors.New("token has no jti or exp"))
	}
	return p.revoked.Revoke(ctx, claims.ID, claims.ExpiresAt.Time)
}

// RevokeAllForUser invalidates every outstanding token of userID by
// recording an account-wide revocation timestamp, and drops the user's
// refresh-token families. Tokens issued strictly after this call verify
// normally.
func (p *TokenProvider) RevokeAllForUser(ctx context.Context, userID string) error {
	if err := p.revoked.RevokeAllForUser(ctx, userID, p.nowF()); err != nil {
		return err
	}
	p.families.DropUser(userID)
	return nil
}

// Logout revokes the access token and, when present, the refresh token and
// its family. Best-effort on the refresh side: an unparseable refresh token
// does not undo the access revocation.
func (p *TokenProvider) Logout(ctx context.Context, accessToken, refreshToken string) error {
	if err := p.Revoke(ctx, accessToken); err != nil {
		return err
	}
	if refreshToken == "" {
		return nil
	}
	if err := p.Revoke(ctx, refreshToken); err != nil {
		return err
	}
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(refreshToken, claims); err == nil && claims.Family != "" {
		p.families.Drop(claims.Family)
	}
	return nil
}

// GetUserID verifies the token and returns its subject.
func (p *TokenProvider) GetUserID(ctx context.Context, tokenString string) (string, error) {
	claims, err := p.Verify(ctx, tokenString, "", true)
	if err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", newTokenError(KindMalformed, errors.New("token has no subject"))
	}
	return claims.Subject, nil
}

// ValidateSecurity inspects a token without failing: the report says whether
// it verifies, how old it is, how long it has left, and whether the client
// should refresh now.
func (p *TokenProvider) ValidateSecurity(ctx context.Context, tokenString string) SecurityReport {
	claims, err := p.Verify(ctx, tokenString, "", true)
	if err != nil {
		return SecurityReport{Valid: false, ShouldRefresh: true}
	}
	now := p.nowF()
	report := SecurityReport{
		Valid:     true,
		TokenType: claims.TokenType,
		UserID:    claims.Subject,
		JTI:       claims.ID,
	}
	if claims.IssuedAt != nil {
		report.IssuedAt = claims.IssuedAt.Time
		report.Age = now.Sub(claims.IssuedAt.Time)
	}
	if claims.ExpiresAt != nil {
		report.ExpiresAt = claims.ExpiresAt.Time
		report.TimeToExpiry = claims.ExpiresAt.Time.Sub(now)
		if report.TimeToExpiry < nearExpiryWindow {
			report.NearExpiry = true
			report.ShouldRefresh = true
		}
	}
	return report
}

// Family returns a copy of the family index entry, for introspection.
func (p *TokenProvider) Family(familyID string) (Family, bool) {
	return p.families.Get(familyID)
}

// degraded resolves a revocation-store failure per the fail-closed policy
// and logs the degradation either way.
func (p *TokenProvider) degraded(op string, err error) bool {
	log.Printf("security: revocation %s failed (fail_closed=%t): %v", op, p.opts.FailClosed, err)
	return p.opts.FailClosed
}

func (p *TokenProvider) sign(claims jwt.Claims) (string, error) {
	var method jwt.SigningMethod
	switch p.privateKey.Public().(type) {
	case *rsa.PublicKey:
		method = jwt.SigningMethodRS256
	case *ecdsa.PublicKey:
		method = jwt.SigningMethodES256
	default:
		return "", ErrInvalidKey
	}
	t := jwt.NewWithClaims(method, claims)
	return t.SignedString(p.privateKey)
}

func (p *TokenProvider) keyFunc(token *jwt.Token) (interface{}, error) {
	switch token.Method.(type) {
	case *jwt.SigningMethodRSA, *jwt.SigningMethodECDSA:
		return p.publicKey, nil
	default:
		return nil, ErrInvalidToken
	}
}

func classifyJWTError(err error) *TokenError {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return newTokenError(KindExpired, err)
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return newTokenError(KindNotYetValid, err)
	case errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return newTokenError(KindIssuedInFuture, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return newTokenError(KindSignatureInvalid, err)
	default:
		return newTokenError(KindMalformed, err)
	}
}

func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
