package auth

import (
	"errors"
	"fmt"
	"time"

	"task-tracker/internal/models"
	"task-tracker/internal/storage"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// TokenTTL is how long a session token stays valid after issuance.
const TokenTTL = 7 * 24 * time.Hour

var (
	// ErrEmailTaken is returned by Register when the email already has an account.
	ErrEmailTaken = errors.New("auth: email is already registered")
	// ErrInvalidCredentials covers both unknown email and wrong password,
	// so login failures don't reveal which accounts exist.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrTokenExpired is returned when a token's expiry has passed.
	ErrTokenExpired = errors.New("auth: token expired")
	// ErrTokenInvalid is returned for malformed tokens or bad signatures.
	ErrTokenInvalid = errors.New("auth: token invalid")
)

// HashPassword hashes a plaintext password with bcrypt.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword compares a plaintext password against a bcrypt hash.
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Identity is the caller identity extracted from a verified token. Claims
// are trusted as of issuance; they are not re-checked against the user
// table, so a deleted account's token stays usable until it expires.
type Identity struct {
	UserID int64
	Email  string
}

// Authenticator issues and verifies session tokens and owns the
// register/login flows.
type Authenticator struct {
	db     *storage.DB
	secret []byte
	now    func() time.Time
}

// NewAuthenticator creates an Authenticator signing tokens with secret.
func NewAuthenticator(db *storage.DB, secret []byte) *Authenticator {
	return &Authenticator{db: db, secret: secret, now: time.Now}
}

// Register creates a new account. The email pre-check gives a friendly
// error; the schema's unique constraint is what actually prevents
// duplicates when two registrations race.
func (a *Authenticator) Register(name, email, password string) (*models.User, error) {
	_, err := a.db.GetUserByEmail(email)
	if err == nil {
		return nil, ErrEmailTaken
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("looking up email: %w", err)
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	user, err := a.db.CreateUser(name, email, hash)
	if err != nil {
		if errors.Is(err, storage.ErrDuplicateEmail) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("creating user: %w", err)
	}
	return user, nil
}

// Login validates credentials and issues a signed session token valid for
// TokenTTL. Unknown email and wrong password return the same error.
func (a *Authenticator) Login(email, password string) (*models.User, string, error) {
	user, err := a.db.GetUserByEmail(email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", fmt.Errorf("looking up email: %w", err)
	}

	if !CheckPassword(password, user.PasswordHash) {
		return nil, "", ErrInvalidCredentials
	}

	token, err := a.issueToken(user)
	if err != nil {
		return nil, "", fmt.Errorf("signing token: %w", err)
	}

	user.PasswordHash = ""
	return user, token, nil
}

func (a *Authenticator) issueToken(user *models.User) (string, error) {
	now := a.now()
	claims := models.Claims{
		UserID: user.ID,
		Email:  user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// VerifyToken checks a token's signature and expiry and returns the
// embedded identity. No database round-trip happens here.
func (a *Authenticator) VerifyToken(tokenString string) (Identity, error) {
	claims := &models.Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) { return a.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return a.now() }),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, ErrTokenExpired
		}
		return Identity{}, ErrTokenInvalid
	}
	if !token.Valid {
		return Identity{}, ErrTokenInvalid
	}

	return Identity{UserID: claims.UserID, Email: claims.Email}, nil
}
