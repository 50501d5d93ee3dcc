package auth_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/septivank/utility-billing-service/internal/auth"
	"github.com/septivank/utility-billing-service/internal/db"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeSessionStore struct {
	sessions   map[string]uuid.UUID
	roles      map[uuid.UUID]string
	sessionErr error
}

func (f *fakeSessionStore) GetSessionUser(_ context.Context, tokenHash string) (uuid.UUID, bool, error) {
	if f.sessionErr != nil {
		return uuid.Nil, false, f.sessionErr
	}
	userID, ok := f.sessions[tokenHash]
	return userID, ok, nil
}

func (f *fakeSessionStore) GetProfileRole(_ context.Context, userID uuid.UUID) (string, bool, error) {
	role, ok := f.roles[userID]
	return role, ok, nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func TestResolve_ValidToken(t *testing.T) {
	userID := uuid.New()
	store := &fakeSessionStore{
		sessions: map[string]uuid.UUID{hashToken("secret-token"): userID},
		roles:    map[uuid.UUID]string{userID: db.RoleAdmin},
	}
	a := auth.NewAuthenticator(store, zap.NewNop())

	identity, err := a.Resolve(context.Background(), "Bearer secret-token")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if identity.UserID != userID {
		t.Errorf("Expected user %s, got %s", userID, identity.UserID)
	}
	if !identity.IsAdmin() {
		t.Error("Expected admin identity")
	}
}

func TestResolve_MissingHeader(t *testing.T) {
	a := auth.NewAuthenticator(&fakeSessionStore{}, zap.NewNop())

	_, err := a.Resolve(context.Background(), "")
	if !errors.Is(err, auth.ErrUnauthenticated) {
		t.Errorf("Expected ErrUnauthenticated, got %v", err)
	}
}

func TestResolve_UnknownToken(t *testing.T) {
	a := auth.NewAuthenticator(&fakeSessionStore{sessions: map[string]uuid.UUID{}}, zap.NewNop())

	_, err := a.Resolve(context.Background(), "Bearer nope")
	if !errors.Is(err, auth.ErrUnauthenticated) {
		t.Errorf("Expected ErrUnauthenticated, got %v", err)
	}
}

func TestResolve_MissingProfileIsNotAdmin(t *testing.T) {
	userID := uuid.New()
	store := &fakeSessionStore{
		sessions: map[string]uuid.UUID{hashToken("tok"): userID},
		roles:    map[uuid.UUID]string{},
	}
	a := auth.NewAuthenticator(store, zap.NewNop())

	identity, err := a.Resolve(context.Background(), "Bearer tok")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if identity.IsAdmin() {
		t.Error("Expected missing profile to default to a non-admin role")
	}
}

func TestResolve_StoreErrorIsLogged(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	store := &fakeSessionStore{sessionErr: errors.New("connection reset")}
	a := auth.NewAuthenticator(store, zap.New(core))

	_, err := a.Resolve(context.Background(), "Bearer tok")
	if err == nil {
		t.Fatal("Expected error when the session store fails")
	}
	if errors.Is(err, auth.ErrUnauthenticated) {
		t.Error("Store failures should not read as unauthenticated")
	}
	if logs.FilterMessage("session lookup failed").Len() != 1 {
		t.Errorf("Expected one session lookup failure log, got %d entries", logs.Len())
	}
}

func TestCanAccess(t *testing.T) {
	owner := uuid.New()
	other := uuid.New()

	ordinary := auth.Identity{UserID: owner, Role: "user"}
	if !ordinary.CanAccess(owner) {
		t.Error("Expected owner to access own resource")
	}
	if ordinary.CanAccess(other) {
		t.Error("Expected non-owner to be denied")
	}

	admin := auth.Identity{UserID: uuid.New(), Role: db.RoleAdmin}
	if !admin.CanAccess(other) {
		t.Error("Expected admin to access any resource")
	}
}
