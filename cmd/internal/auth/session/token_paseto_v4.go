package session

import (
	"time"

	paseto "aidanwoods.dev/go-paseto"
)

// ClientClaims is the envelope carried by a client token.
type ClientClaims struct {
	ClientID  string
	ExpiresAt time.Time
	IssuedAt  time.Time
	Issuer    string
}

// ClientTokenManager issues and verifies client tokens.
type ClientTokenManager interface {
	Issue(clientID string, now time.Time) (token string, exp time.Time, err error)
	Verify(token string, now time.Time) (ClientClaims, error)
}

// NewClientTokenManager builds the manager selected by cfg.TokenFormat.
func NewClientTokenManager(cfg Config) (ClientTokenManager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.TokenFormat {
	case TokenFormatJWT:
		return NewJWTManager(cfg)
	default:
		return NewPasetoV4PublicManager(cfg)
	}
}

type pasetoV4PublicManager struct {
	issuer    string
	ttl       time.Duration
	clockSkew time.Duration

	secret paseto.V4AsymmetricSecretKey
	public paseto.V4AsymmetricPublicKey
}

// NewPasetoV4PublicManager builds a ClientTokenManager based on PASETO v4.public.
//
// An empty PasetoV4SecretKeyHex generates an ephemeral keypair: tokens then
// stop verifying after a restart, which logs every client out.
func NewPasetoV4PublicManager(cfg Config) (ClientTokenManager, error) {
	var secret paseto.V4AsymmetricSecretKey
	if cfg.PasetoV4SecretKeyHex == "" {
		secret = paseto.NewV4AsymmetricSecretKey()
	} else {
		s, err := paseto.NewV4AsymmetricSecretKeyFromHex(cfg.PasetoV4SecretKeyHex)
		if err != nil {
			return nil, ErrConfig
		}
		secret = s
	}

	return &pasetoV4PublicManager{
		issuer:    cfg.Issuer,
		ttl:       cfg.ClientTokenTTL,
		clockSkew: cfg.ClockSkew,
		secret:    secret,
		public:    secret.Public(),
	}, nil
}

func (m *pasetoV4PublicManager) Issue(clientID string, now time.Time) (string, time.Time, error) {
	exp := now.Add(m.ttl)

	tok := paseto.NewToken()
	tok.SetIssuer(m.issuer)
	tok.SetIssuedAt(now)
	tok.SetNotBefore(now)
	tok.SetExpiration(exp)
	_ = tok.Set("cid", clientID)

	return tok.V4Sign(m.secret, nil), exp, nil
}

func (m *pasetoV4PublicManager) Verify(token string, now time.Time) (ClientClaims, error) {
	// Validate slightly in the future so "nbf" tolerates clock differences.
	validNow := now.Add(m.clockSkew)

	// Fresh parser per call so rules never accumulate.
	p := paseto.NewParser()
	p.AddRule(paseto.IssuedBy(m.issuer))
	p.AddRule(paseto.NotExpired())
	p.AddRule(paseto.ValidAt(validNow))

	parsed, err := p.ParseV4Public(m.public, token, nil)
	if err != nil {
		return ClientClaims{}, ErrInvalidToken
	}

	iss, _ := parsed.GetIssuer()
	exp, _ := parsed.GetExpiration()
	iat, _ := parsed.GetIssuedAt()

	cid, err := parsed.GetString("cid")
	if err != nil || cid == "" {
		return ClientClaims{}, ErrInvalidToken
	}

	return ClientClaims{
		ClientID:  cid,
		ExpiresAt: exp,
		IssuedAt:  iat,
		Issuer:    iss,
	}, nil
}
