package accounts

import (
	"context"
	"net/http"

	"github.com/pkg/errors"

	"github.com/tunzadent/dentclient/session"
)

// TwoFAProvisioning is the secret material for first-time 2FA setup. QRCode
// is a data URI suitable for rendering; ManualEntryKey is the same secret
// for authenticator apps that cannot scan.
type TwoFAProvisioning struct {
	Secret         string `json:"secret"`
	QRCode         string `json:"qr_code"`
	ManualEntryKey string `json:"manual_entry_key"`
	UserID         int64  `json:"user_id"`
}

// Setup2FA provisions a TOTP secret for an account that has verified its
// email but never completed 2FA setup.
func (s *Service) Setup2FA(ctx context.Context, challenge *TwoFAChallenge) (*TwoFAProvisioning, error) {
	if challenge == nil {
		return nil, errors.New("[Setup2FA] challenge is required")
	}

	body := map[string]any{
		"username": challenge.Username,
		"password": challenge.Password,
		"user_id":  challenge.UserID,
	}
	var provisioning TwoFAProvisioning
	if err := s.client.Do(ctx, http.MethodPost, "/accounts/2fa/setup/", body, &provisioning); err != nil {
		return nil, errors.Wrap(err, "[Setup2FA]")
	}
	return &provisioning, nil
}

// TwoFAEnrollment is the result of completing 2FA setup. The backup codes
// are shown once; completing setup also logs the user in.
type TwoFAEnrollment struct {
	Message     string   `json:"message"`
	BackupCodes []string `json:"backup_codes"`
	Identity    *session.Identity
}

type completeTwoFAResponse struct {
	Message     string            `json:"message"`
	BackupCodes []string          `json:"backup_codes"`
	Access      string            `json:"access"`
	Refresh     string            `json:"refresh"`
	User        *session.Identity `json:"user"`
}

// Complete2FA verifies the first one-time code against the freshly
// provisioned secret. Success yields tokens, so the session is established
// here; the challenge should be discarded by the caller afterwards.
func (s *Service) Complete2FA(ctx context.Context, challenge *TwoFAChallenge, code string) (*TwoFAEnrollment, error) {
	if challenge == nil {
		return nil, errors.New("[Complete2FA] challenge is required")
	}
	if code == "" {
		return nil, errors.New("[Complete2FA] code is required")
	}

	body := map[string]any{
		"username": challenge.Username,
		"password": challenge.Password,
		"user_id":  challenge.UserID,
		"token":    code,
	}
	var resp completeTwoFAResponse
	if err := s.client.Do(ctx, http.MethodPost, "/accounts/2fa/complete/", body, &resp); err != nil {
		return nil, errors.Wrap(err, "[Complete2FA]")
	}

	if resp.Access != "" && resp.Refresh != "" && resp.User != nil {
		if err := s.store.Establish(resp.Access, resp.Refresh, resp.User); err != nil {
			return nil, errors.Wrap(err, "[Complete2FA] establish session")
		}
	}

	return &TwoFAEnrollment{
		Message:     resp.Message,
		BackupCodes: resp.BackupCodes,
		Identity:    resp.User,
	}, nil
}
