package accounts

import (
	"context"
	"net/http"

	"github.com/pkg/errors"

	"github.com/tunzadent/dentclient/session"
)

// Registration is a new-account request. Role defaults to dentist on the
// server when omitted.
type Registration struct {
	Username        string           `json:"username"`
	Email           string           `json:"email"`
	Password        string           `json:"password"`
	PasswordConfirm string           `json:"password_confirm"`
	FirstName       string           `json:"first_name,omitempty"`
	LastName        string           `json:"last_name,omitempty"`
	Role            session.RoleType `json:"role,omitempty"`
}

// RegistrationResult reports where the verification email went. Registering
// never logs the user in; verification is a separate step.
type RegistrationResult struct {
	Message string `json:"message"`
	Email   string `json:"email"`
}

// Register creates an account and triggers the verification email. Password
// confirmation and strength are checked locally first.
func (s *Service) Register(ctx context.Context, registration Registration) (*RegistrationResult, error) {
	if registration.Password != registration.PasswordConfirm {
		return nil, errors.New("passwords don't match")
	}
	if err := ValidatePasswordStrength(registration.Password); err != nil {
		return nil, err
	}

	var result RegistrationResult
	if err := s.client.Do(ctx, http.MethodPost, "/accounts/register/", registration, &result); err != nil {
		return nil, errors.Wrap(err, "[Register]")
	}
	return &result, nil
}

// VerifyEmail redeems an email-verification token. Verification does not log
// the user in; the session stays unchanged.
func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	if token == "" {
		return errors.New("[VerifyEmail] token is required")
	}

	body := map[string]string{"token": token}
	if err := s.client.Do(ctx, http.MethodPost, "/accounts/verify-email/", body, nil); err != nil {
		return errors.Wrap(err, "[VerifyEmail]")
	}
	return nil
}

// ResendVerification requests a fresh verification email for an unverified
// account.
func (s *Service) ResendVerification(ctx context.Context, email string) error {
	if email == "" {
		return errors.New("[ResendVerification] email is required")
	}

	body := map[string]string{"email": email}
	if err := s.client.Do(ctx, http.MethodPost, "/accounts/resend-verification/", body, nil); err != nil {
		return errors.Wrap(err, "[ResendVerification]")
	}
	return nil
}
