package accounts

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"

	"github.com/tunzadent/dentclient/gateway"
	"github.com/tunzadent/dentclient/session"
)

// LoginStatus identifies which of the four login outcomes the server chose.
type LoginStatus string

const (
	// LoginSucceeded means tokens and identity were issued and the session is
	// now established.
	LoginSucceeded LoginStatus = "succeeded"
	// LoginEmailVerificationRequired means the account exists but its email
	// address has not been verified yet.
	LoginEmailVerificationRequired LoginStatus = "email_verification_required"
	// LoginTwoFASetupRequired means the account has never provisioned a 2FA
	// secret; continue with Setup2FA/Complete2FA using the returned challenge.
	LoginTwoFASetupRequired LoginStatus = "2fa_setup_required"
	// LoginTwoFARequired means the account is provisioned and a current
	// one-time code is needed; call Login again with Credentials.TwoFACode.
	LoginTwoFARequired LoginStatus = "2fa_required"
)

// Credentials is a login attempt. TwoFACode is only needed when a previous
// attempt returned LoginTwoFARequired.
type Credentials struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	TwoFACode string `json:"two_fa_token,omitempty"`
}

// TwoFAChallenge is the transient state between "login rejected pending 2FA"
// and "2FA verified". It holds the password in memory only and must never be
// persisted; discard it as soon as the flow completes.
type TwoFAChallenge struct {
	Username string
	Password string
	UserID   int64 // set for the setup flow only
}

// LoginOutcome is the result of a login attempt that did not error.
type LoginOutcome struct {
	Status    LoginStatus
	Message   string
	Email     string            // set for LoginEmailVerificationRequired
	Challenge *TwoFAChallenge   // set for the two 2FA outcomes
	Identity  *session.Identity // set for LoginSucceeded
}

// loginResponse mirrors the polymorphic login payload; the optional fields
// describe which outcome applies.
type loginResponse struct {
	RequiresEmailVerification bool              `json:"requires_email_verification"`
	RequiresTwoFASetup        bool              `json:"requires_2fa_setup"`
	RequiresTwoFA             bool              `json:"requires_2fa"`
	UserID                    int64             `json:"user_id"`
	Email                     string            `json:"email"`
	Message                   string            `json:"message"`
	Access                    string            `json:"access"`
	Refresh                   string            `json:"refresh"`
	User                      *session.Identity `json:"user"`
}

// Login authenticates against /accounts/login/ and maps the polymorphic
// response onto one of four outcomes. Only the full-credential outcome
// touches the session store; the session stays unchanged for the other
// three. Transport and credential errors propagate to the caller.
func (s *Service) Login(ctx context.Context, creds Credentials) (*LoginOutcome, error) {
	var resp loginResponse
	if err := s.client.Do(ctx, http.MethodPost, "/accounts/login/", creds, &resp); err != nil {
		// The verification-required signal rides on a 403, so it surfaces
		// here as an APIError rather than a decoded body.
		if outcome := verificationOutcomeFromError(err); outcome != nil {
			return outcome, nil
		}
		return nil, errors.Wrap(err, "[Login]")
	}
	return s.resolveOutcome(creds, &resp)
}

func verificationOutcomeFromError(err error) *LoginOutcome {
	var apiErr *gateway.APIError
	if !errors.As(err, &apiErr) || len(apiErr.Raw) == 0 {
		return nil
	}
	var resp loginResponse
	if json.Unmarshal(apiErr.Raw, &resp) != nil || !resp.RequiresEmailVerification {
		return nil
	}
	return &LoginOutcome{
		Status:  LoginEmailVerificationRequired,
		Message: resp.Message,
		Email:   resp.Email,
	}
}

// resolveOutcome applies the fixed precedence order. A response should carry
// only one signal; if it is ever ambiguous, this order governs.
func (s *Service) resolveOutcome(creds Credentials, resp *loginResponse) (*LoginOutcome, error) {
	switch {
	case resp.RequiresEmailVerification:
		return &LoginOutcome{
			Status:  LoginEmailVerificationRequired,
			Message: resp.Message,
			Email:   resp.Email,
		}, nil

	case resp.RequiresTwoFASetup:
		return &LoginOutcome{
			Status:  LoginTwoFASetupRequired,
			Message: resp.Message,
			Challenge: &TwoFAChallenge{
				Username: creds.Username,
				Password: creds.Password,
				UserID:   resp.UserID,
			},
		}, nil

	case resp.RequiresTwoFA:
		return &LoginOutcome{
			Status:  LoginTwoFARequired,
			Message: resp.Message,
			Challenge: &TwoFAChallenge{
				Username: creds.Username,
				Password: creds.Password,
			},
		}, nil

	case resp.Access != "" && resp.Refresh != "" && resp.User != nil:
		if err := s.store.Establish(resp.Access, resp.Refresh, resp.User); err != nil {
			return nil, errors.Wrap(err, "[Login] establish session")
		}
		return &LoginOutcome{Status: LoginSucceeded, Identity: resp.User}, nil
	}

	return nil, errors.New("[Login] unrecognized login response")
}

// Logout destroys the local session. It has no network effect and always
// succeeds.
func (s *Service) Logout() {
	s.store.Logout()
}
