package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/nkiryanov/settlement/internal/apperrors"
	"github.com/nkiryanov/settlement/internal/models"
	"github.com/nkiryanov/settlement/internal/repository"
)

const (
	defaultAccessHeaderName = "Authorization"
	defaultAccessAuthScheme = "Bearer"
)

var errNoAccessToken = errors.New("access token not found in request")

// Interface to create or compare seller password hashes
type PasswordHasher interface {
	// Generate Hash from password
	Hash(password string) (string, error)

	// Compare known hashedPassword and seller provided password
	// Must be protected against timing attacks
	Compare(hashedPassword string, password string) error
}

type TokenManager interface {
	Generate(seller models.Seller) (models.IssuedToken, error)
	ParseAccess(access string) (uuid.UUID, error)
}

type Config struct {
	// Header to read access token from. Default 'Authorization'
	AccessHeaderName string

	// Scheme that prefixes the token in the header. Default 'Bearer'
	AccessAuthScheme string

	// BcryptHasher if not set
	Hasher PasswordHasher
}

type AuthService struct {
	accessHeaderName string
	accessAuthScheme string

	hasher  PasswordHasher
	tokens  TokenManager
	storage repository.Storage
}

func NewService(cfg Config, tokens TokenManager, storage repository.Storage) (*AuthService, error) {
	if cfg.AccessHeaderName == "" {
		cfg.AccessHeaderName = defaultAccessHeaderName
	}
	if cfg.AccessAuthScheme == "" {
		cfg.AccessAuthScheme = defaultAccessAuthScheme
	}
	if cfg.Hasher == nil {
		cfg.Hasher = BcryptHasher{}
	}

	return &AuthService{
		accessHeaderName: cfg.AccessHeaderName,
		accessAuthScheme: cfg.AccessAuthScheme,
		hasher:           cfg.Hasher,
		tokens:           tokens,
		storage:          storage,
	}, nil
}

// Register seller with zero balance and return access token
func (s *AuthService) Register(ctx context.Context, username string, password string) (models.IssuedToken, error) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return models.IssuedToken{}, fmt.Errorf("can't use this as password, error=%w", err)
	}

	var seller models.Seller
	err = s.storage.InTx(ctx, func(storage repository.Storage) error {
		seller, err = storage.Seller().CreateSeller(ctx, username, hash)
		if err != nil {
			return err
		}
		return storage.Balance().CreateBalance(ctx, seller.ID)
	})
	if err != nil {
		return models.IssuedToken{}, err
	}

	return s.issue(seller)
}

// Has to return apperrors.ErrSellerNotFound if username or password is wrong
func (s *AuthService) Login(ctx context.Context, username string, password string) (models.IssuedToken, error) {
	seller, err := s.storage.Seller().GetSellerByUsername(ctx, username)
	if err != nil {
		return models.IssuedToken{}, err
	}

	err = s.hasher.Compare(seller.HashedPassword, password)
	if err != nil {
		return models.IssuedToken{}, apperrors.ErrSellerNotFound
	}

	return s.issue(seller)
}

// Read access token from request and load the seller it belongs to
func (s *AuthService) Auth(ctx context.Context, r *http.Request) (models.Seller, error) {
	header := r.Header.Get(s.accessHeaderName)
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, s.accessAuthScheme) || token == "" {
		return models.Seller{}, errNoAccessToken
	}

	sellerID, err := s.tokens.ParseAccess(token)
	if err != nil {
		return models.Seller{}, err
	}

	return s.storage.Seller().GetSellerByID(ctx, sellerID)
}

func (s *AuthService) issue(seller models.Seller) (models.IssuedToken, error) {
	token, err := s.tokens.Generate(seller)
	if err != nil {
		return token, fmt.Errorf("token could not generated, sorry. %w", err)
	}
	return token, nil
}
