package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/septivank/utility-billing-service/internal/db"
	"go.uber.org/zap"
)

var (
	// ErrUnauthenticated means no valid identity could be resolved from the request
	ErrUnauthenticated = errors.New("authentication required")
	// ErrForbidden means the caller is authenticated but not entitled to the resource
	ErrForbidden = errors.New("permission denied")
)

// Identity is the resolved caller: who they are and what role they carry
type Identity struct {
	UserID uuid.UUID
	Role   string
}

// IsAdmin reports whether the caller holds the administrative role
func (i Identity) IsAdmin() bool {
	return i.Role == db.RoleAdmin
}

// CanAccess is the single ownership predicate shared by all handlers: the
// caller may touch a resource it owns, or anything if it is an admin.
func (i Identity) CanAccess(ownerID uuid.UUID) bool {
	return i.IsAdmin() || i.UserID == ownerID
}

// SessionStore resolves bearer tokens and profile roles from the data store
type SessionStore interface {
	GetSessionUser(ctx context.Context, tokenHash string) (uuid.UUID, bool, error)
	GetProfileRole(ctx context.Context, userID uuid.UUID) (string, bool, error)
}

// Authenticator resolves request credentials into an Identity
type Authenticator struct {
	store  SessionStore
	logger *zap.Logger
}

// NewAuthenticator creates a new authenticator
func NewAuthenticator(store SessionStore, logger *zap.Logger) *Authenticator {
	return &Authenticator{store: store, logger: logger}
}

// Resolve turns an Authorization header into an Identity. The token is
// matched by its SHA-256 against active sessions; the role comes from the
// caller's profile row, defaulting to an ordinary user when no profile
// exists.
func (a *Authenticator) Resolve(ctx context.Context, authorization string) (Identity, error) {
	token := strings.TrimSpace(strings.TrimPrefix(authorization, "Bearer "))
	if token == "" {
		return Identity{}, ErrUnauthenticated
	}

	sum := sha256.Sum256([]byte(token))
	tokenHash := hex.EncodeToString(sum[:])

	userID, found, err := a.store.GetSessionUser(ctx, tokenHash)
	if err != nil {
		a.logger.Error("session lookup failed", zap.Error(err))
		return Identity{}, fmt.Errorf("failed to resolve session: %w", err)
	}
	if !found {
		a.logger.Debug("no active session for presented token")
		return Identity{}, ErrUnauthenticated
	}

	role, found, err := a.store.GetProfileRole(ctx, userID)
	if err != nil {
		a.logger.Error("profile role lookup failed",
			zap.Error(err),
			zap.String("user_id", userID.String()),
		)
		return Identity{}, fmt.Errorf("failed to resolve profile role: %w", err)
	}
	if !found {
		role = "user"
	}

	return Identity{UserID: userID, Role: role}, nil
}
