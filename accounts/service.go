// Package accounts wraps the /accounts/ API surface: login and its
// polymorphic outcomes, registration and email verification, 2FA
// provisioning, and profile maintenance. All persistence of authentication
// state is delegated to the session store.
package accounts

import (
	"context"
	"net/http"

	"github.com/pkg/errors"

	"github.com/tunzadent/dentclient/session"
)

// Doer is the accounts service's view of the gateway client.
type Doer interface {
	Do(ctx context.Context, method, path string, body, out any) error
}

// Service provides account operations over the gateway.
type Service struct {
	client Doer
	store  *session.Store
}

// NewService initializes an accounts Service with required dependencies.
func NewService(client Doer, store *session.Store) (*Service, error) {
	if client == nil {
		return nil, errors.New("[accounts.NewService] client is required")
	}
	if store == nil {
		return nil, errors.New("[accounts.NewService] session store is required")
	}
	return &Service{client: client, store: store}, nil
}

// Profile fetches the current user's profile.
func (s *Service) Profile(ctx context.Context) (*session.Identity, error) {
	var identity session.Identity
	if err := s.client.Do(ctx, http.MethodGet, "/accounts/profile/", nil, &identity); err != nil {
		return nil, errors.Wrap(err, "[Profile]")
	}
	return &identity, nil
}

// ProfileUpdate carries the editable profile fields; nil fields are left
// unchanged by the server.
type ProfileUpdate struct {
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
	Email     *string `json:"email,omitempty"`
}

// UpdateProfile patches the profile and propagates the updated identity to
// the session store so observers see the new name immediately.
func (s *Service) UpdateProfile(ctx context.Context, update ProfileUpdate) (*session.Identity, error) {
	var identity session.Identity
	if err := s.client.Do(ctx, http.MethodPatch, "/accounts/profile/update/", update, &identity); err != nil {
		return nil, errors.Wrap(err, "[UpdateProfile]")
	}
	if err := s.store.UpdateIdentity(&identity); err != nil {
		return nil, errors.Wrap(err, "[UpdateProfile] store identity")
	}
	return &identity, nil
}

// ChangePassword validates the new password locally against the server's
// strength rules before sending, so obvious rejections do not round-trip.
func (s *Service) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	if err := ValidatePasswordStrength(newPassword); err != nil {
		return err
	}

	body := map[string]string{
		"old_password": oldPassword,
		"new_password": newPassword,
	}
	if err := s.client.Do(ctx, http.MethodPost, "/accounts/change-password/", body, nil); err != nil {
		return errors.Wrap(err, "[ChangePassword]")
	}
	return nil
}

// RegenerateBackupCodes replaces the account's 2FA backup codes and returns
// the new plaintext codes; they are shown once and never retrievable again.
func (s *Service) RegenerateBackupCodes(ctx context.Context) ([]string, error) {
	var resp struct {
		BackupCodes []string `json:"backup_codes"`
		Message     string   `json:"message"`
	}
	if err := s.client.Do(ctx, http.MethodPost, "/accounts/2fa/regenerate-backup-codes/", nil, &resp); err != nil {
		return nil, errors.Wrap(err, "[RegenerateBackupCodes]")
	}
	return resp.BackupCodes, nil
}
