// Package directory is the user/account registry. The transfer engine
// consumes it for ownership and status checks; the transport adapter uses it
// for registration, login and account management.
package directory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/tmahmood/finledger/internal/config"
	"github.com/tmahmood/finledger/internal/ledger"
	"github.com/tmahmood/finledger/internal/models"
	"github.com/tmahmood/finledger/internal/utils"
)

// ErrInvalidCredentials is returned for unknown users and wrong PINs alike.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Service provides directory operations backed by the ledger store.
type Service struct {
	store ledger.Store
	log   *logrus.Logger
	cfg   *config.Config
}

// NewService initializes a new directory service
func NewService(store ledger.Store, log *logrus.Logger, cfg *config.Config) *Service {
	return &Service{store: store, log: log, cfg: cfg}
}

// Register creates a new user with a hashed PIN.
func (s *Service) Register(ctx context.Context, mobile, email, fullName, pin string) (*models.User, error) {
	mobile, err := validateMobileNumber(mobile)
	if err != nil {
		return nil, err
	}
	email, err = validateEmail(email)
	if err != nil {
		return nil, err
	}
	if err := validatePIN(pin); err != nil {
		return nil, err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash PIN: %w", err)
	}

	user := &models.User{
		ID:           uuid.New(),
		MobileNumber: mobile,
		Email:        email,
		FullName:     fullName,
		PINHash:      string(hashed),
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	s.log.Infof("User registered: %s", user.MobileNumber)
	return user, nil
}

// Login authenticates a user and returns a JWT token
func (s *Service) Login(ctx context.Context, mobile, pin string) (string, error) {
	user, err := s.store.FindUserByMobile(ctx, mobile)
	if err != nil {
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PINHash), []byte(pin)); err != nil {
		return "", ErrInvalidCredentials
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   user.ID.String(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
	})
	tokenString, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	s.log.Infof("User logged in: %s", user.MobileNumber)
	return tokenString, nil
}

// CreateAccount opens a new active account with a zero balance.
func (s *Service) CreateAccount(ctx context.Context, userID uuid.UUID) (*models.Account, error) {
	number, err := utils.GenerateAccountNumber("5100", 14)
	if err != nil {
		return nil, fmt.Errorf("failed to generate account number: %w", err)
	}

	account := &models.Account{
		ID:        uuid.New(),
		UserID:    userID,
		Number:    number,
		Balance:   decimal.Zero,
		Status:    models.AccountActive,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateAccount(ctx, account); err != nil {
		return nil, err
	}

	s.log.Infof("Account %s created for user %s", account.Number, userID)
	return account, nil
}

// ListAccounts returns the user's accounts.
func (s *Service) ListAccounts(ctx context.Context, userID uuid.UUID) ([]*models.Account, error) {
	return s.store.ListAccountsByUser(ctx, userID)
}

// OwnerOf returns the owning user of an account.
func (s *Service) OwnerOf(ctx context.Context, accountID uuid.UUID) (uuid.UUID, error) {
	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return uuid.Nil, err
	}
	return account.UserID, nil
}

// IsActive reports whether the account may move funds.
func (s *Service) IsActive(ctx context.Context, accountID uuid.UUID) (bool, error) {
	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return false, err
	}
	return account.Status == models.AccountActive, nil
}
