package accounts_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tunzadent/dentclient/accounts"
	"github.com/tunzadent/dentclient/gateway"
	"github.com/tunzadent/dentclient/internal/utils"
	"github.com/tunzadent/dentclient/session"
	"github.com/tunzadent/dentclient/session/repofakes"
)

// fakeClient is an in-memory Doer returning canned responses per path.
type fakeClient struct {
	responses map[string]any
	errs      map[string]error
	calls     []string
	bodies    map[string]any
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		responses: make(map[string]any),
		errs:      make(map[string]error),
		bodies:    make(map[string]any),
	}
}

func (f *fakeClient) Do(_ context.Context, method, path string, body, out any) error {
	f.calls = append(f.calls, method+" "+path)
	f.bodies[path] = body
	if err := f.errs[path]; err != nil {
		return err
	}
	resp, ok := f.responses[path]
	if !ok || out == nil {
		return nil
	}
	encoded, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return json.Unmarshal(encoded, out)
}

type testFixture struct {
	client  *fakeClient
	repo    *repofakes.FakeSessionRepo
	store   *session.Store
	service *accounts.Service
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	client := newFakeClient()
	repo := repofakes.NewFakeSessionRepo()
	store, err := session.NewStore(repo)
	require.NoError(t, err)
	service, err := accounts.NewService(client, store)
	require.NoError(t, err)

	return &testFixture{client: client, repo: repo, store: store, service: service}
}

func testUser() map[string]any {
	return map[string]any{
		"id":         1,
		"username":   "hygieia",
		"email":      "hygieia@example.com",
		"first_name": "Hy",
		"last_name":  "Gieia",
		"role":       "dentist",
	}
}

func TestLoginSetupOutcomeTakesPrecedenceOverCredentialPayload(t *testing.T) {
	f := setupTestFixture(t)
	// Ambiguous response carrying both a 2FA-setup signal and a full
	// credential payload: the setup signal must win and nothing may be
	// persisted.
	f.client.responses["/accounts/login/"] = map[string]any{
		"requires_2fa_setup": true,
		"user_id":            42,
		"access":             "a",
		"refresh":            "r",
		"user":               testUser(),
	}

	outcome, err := f.service.Login(context.Background(), accounts.Credentials{Username: "hygieia", Password: "pw"})
	require.NoError(t, err)

	require.Equal(t, accounts.LoginTwoFASetupRequired, outcome.Status)
	require.NotNil(t, outcome.Challenge)
	require.Equal(t, int64(42), outcome.Challenge.UserID)
	require.False(t, f.store.IsAuthenticated())
	for _, key := range []string{session.KeyAccessToken, session.KeyRefreshToken, session.KeyUser} {
		_, err := f.repo.Get(key)
		require.ErrorIs(t, err, session.ErrKeyNotFound, "no token may be persisted for a 2FA-setup outcome")
	}
}

func TestLoginSuccessEstablishesSession(t *testing.T) {
	f := setupTestFixture(t)
	f.client.responses["/accounts/login/"] = map[string]any{
		"access":  "access-1",
		"refresh": "refresh-1",
		"user":    testUser(),
	}

	outcome, err := f.service.Login(context.Background(), accounts.Credentials{Username: "hygieia", Password: "pw"})
	require.NoError(t, err)

	require.Equal(t, accounts.LoginSucceeded, outcome.Status)
	require.Equal(t, "hygieia", outcome.Identity.Username)
	require.True(t, f.store.IsAuthenticated())
	require.Equal(t, "access-1", f.store.AccessToken())
	require.Equal(t, "refresh-1", f.store.RefreshToken())
}

func TestLoginTwoFAChallengeLeavesSessionUnchanged(t *testing.T) {
	f := setupTestFixture(t)
	f.client.responses["/accounts/login/"] = map[string]any{
		"requires_2fa": true,
		"message":      "Please provide your 2FA code",
	}

	outcome, err := f.service.Login(context.Background(), accounts.Credentials{Username: "hygieia", Password: "pw"})
	require.NoError(t, err)

	require.Equal(t, accounts.LoginTwoFARequired, outcome.Status)
	require.Equal(t, "hygieia", outcome.Challenge.Username)
	require.Equal(t, "pw", outcome.Challenge.Password)
	require.False(t, f.store.IsAuthenticated())
}

func TestLoginEmailVerificationRequiredRidesOnAPIError(t *testing.T) {
	f := setupTestFixture(t)
	raw, err := json.Marshal(map[string]any{
		"error":                       "Please verify your email before logging in",
		"requires_email_verification": true,
		"email":                       "hygieia@example.com",
	})
	require.NoError(t, err)
	f.client.errs["/accounts/login/"] = &gateway.APIError{
		StatusCode: http.StatusForbidden,
		Detail:     "Please verify your email before logging in",
		Raw:        raw,
	}

	outcome, loginErr := f.service.Login(context.Background(), accounts.Credentials{Username: "hygieia", Password: "pw"})
	require.NoError(t, loginErr)

	require.Equal(t, accounts.LoginEmailVerificationRequired, outcome.Status)
	require.Equal(t, "hygieia@example.com", outcome.Email)
	require.False(t, f.store.IsAuthenticated())
}

func TestLoginBadCredentialsPropagates(t *testing.T) {
	f := setupTestFixture(t)
	raw, _ := json.Marshal(map[string]string{"error": "Invalid credentials"})
	f.client.errs["/accounts/login/"] = &gateway.APIError{
		StatusCode: http.StatusUnauthorized,
		Detail:     "Invalid credentials",
		Raw:        raw,
	}

	outcome, err := f.service.Login(context.Background(), accounts.Credentials{Username: "hygieia", Password: "wrong"})

	require.Nil(t, outcome)
	require.True(t, gateway.IsStatus(err, http.StatusUnauthorized))
	require.False(t, f.store.IsAuthenticated())
}

func TestComplete2FAEstablishesSessionAndReturnsBackupCodes(t *testing.T) {
	f := setupTestFixture(t)
	f.client.responses["/accounts/2fa/complete/"] = map[string]any{
		"message":      "2FA enabled successfully",
		"backup_codes": []string{"AAAA1111", "BBBB2222"},
		"access":       "access-1",
		"refresh":      "refresh-1",
		"user":         testUser(),
	}

	challenge := &accounts.TwoFAChallenge{Username: "hygieia", Password: "pw", UserID: 1}
	enrollment, err := f.service.Complete2FA(context.Background(), challenge, "123456")
	require.NoError(t, err)

	require.Equal(t, []string{"AAAA1111", "BBBB2222"}, enrollment.BackupCodes)
	require.True(t, f.store.IsAuthenticated())
}

func TestSetup2FASendsChallengeAndDecodesProvisioning(t *testing.T) {
	f := setupTestFixture(t)
	f.client.responses["/accounts/2fa/setup/"] = map[string]any{
		"secret":           "JBSWY3DPEHPK3PXP",
		"qr_code":          "data:image/png;base64,abc",
		"manual_entry_key": "JBSW Y3DP EHPK 3PXP",
		"user_id":          42,
	}

	challenge := &accounts.TwoFAChallenge{Username: "hygieia", Password: "pw", UserID: 42}
	provisioning, err := f.service.Setup2FA(context.Background(), challenge)
	require.NoError(t, err)

	require.Equal(t, []string{"POST /accounts/2fa/setup/"}, f.client.calls)
	body, ok := f.client.bodies["/accounts/2fa/setup/"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "hygieia", body["username"])
	require.Equal(t, "pw", body["password"])
	require.Equal(t, int64(42), body["user_id"])
	require.Equal(t, "JBSWY3DPEHPK3PXP", provisioning.Secret)
	require.Equal(t, "JBSW Y3DP EHPK 3PXP", provisioning.ManualEntryKey)
}

func TestSetup2FARequiresChallenge(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.service.Setup2FA(context.Background(), nil)

	require.Error(t, err)
	require.Empty(t, f.client.calls, "nothing should reach the network")
}

func TestVerifyEmailSendsToken(t *testing.T) {
	f := setupTestFixture(t)

	require.NoError(t, f.service.VerifyEmail(context.Background(), "tok-123"))

	require.Equal(t, []string{"POST /accounts/verify-email/"}, f.client.calls)
	body, ok := f.client.bodies["/accounts/verify-email/"].(map[string]string)
	require.True(t, ok)
	require.Equal(t, "tok-123", body["token"])

	require.Error(t, f.service.VerifyEmail(context.Background(), ""))
	require.Len(t, f.client.calls, 1, "empty token is rejected locally")
}

func TestResendVerificationSendsEmail(t *testing.T) {
	f := setupTestFixture(t)

	require.NoError(t, f.service.ResendVerification(context.Background(), "hygieia@example.com"))

	require.Equal(t, []string{"POST /accounts/resend-verification/"}, f.client.calls)
	body, ok := f.client.bodies["/accounts/resend-verification/"].(map[string]string)
	require.True(t, ok)
	require.Equal(t, "hygieia@example.com", body["email"])

	require.Error(t, f.service.ResendVerification(context.Background(), ""))
	require.Len(t, f.client.calls, 1, "empty email is rejected locally")
}

func TestChangePasswordChecksStrengthBeforeSending(t *testing.T) {
	f := setupTestFixture(t)

	err := f.service.ChangePassword(context.Background(), "Old!pass1", "weak")
	require.Error(t, err)
	require.Empty(t, f.client.calls, "weak password never reaches the network")

	require.NoError(t, f.service.ChangePassword(context.Background(), "Old!pass1", "N3w!passw"))
	require.Equal(t, []string{"POST /accounts/change-password/"}, f.client.calls)
	body, ok := f.client.bodies["/accounts/change-password/"].(map[string]string)
	require.True(t, ok)
	require.Equal(t, "Old!pass1", body["old_password"])
	require.Equal(t, "N3w!passw", body["new_password"])
}

func TestProfileFetchesIdentity(t *testing.T) {
	f := setupTestFixture(t)
	f.client.responses["/accounts/profile/"] = testUser()

	identity, err := f.service.Profile(context.Background())
	require.NoError(t, err)

	require.Equal(t, []string{"GET /accounts/profile/"}, f.client.calls)
	require.Equal(t, "hygieia", identity.Username)
	require.Equal(t, session.RoleDentist, identity.Role)
}

func TestRegenerateBackupCodesReturnsFreshCodes(t *testing.T) {
	f := setupTestFixture(t)
	f.client.responses["/accounts/2fa/regenerate-backup-codes/"] = map[string]any{
		"message":      "Backup codes regenerated",
		"backup_codes": []string{"CCCC3333", "DDDD4444"},
	}

	codes, err := f.service.RegenerateBackupCodes(context.Background())
	require.NoError(t, err)

	require.Equal(t, []string{"POST /accounts/2fa/regenerate-backup-codes/"}, f.client.calls)
	require.Equal(t, []string{"CCCC3333", "DDDD4444"}, codes)
}

func TestRegisterRejectsMismatchedPasswordsLocally(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.service.Register(context.Background(), accounts.Registration{
		Username:        "hygieia",
		Email:           "hygieia@example.com",
		Password:        "Str0ng!pass",
		PasswordConfirm: "different",
	})

	require.Error(t, err)
	require.Empty(t, f.client.calls, "nothing should reach the network")
}

func TestUpdateProfilePropagatesIdentityToStore(t *testing.T) {
	f := setupTestFixture(t)
	require.NoError(t, f.store.Establish("a", "r", &session.Identity{ID: 1, Username: "hygieia", FirstName: "Hy"}))

	updated := testUser()
	updated["first_name"] = "Renamed"
	f.client.responses["/accounts/profile/update/"] = updated

	identity, err := f.service.UpdateProfile(context.Background(), accounts.ProfileUpdate{
		FirstName: utils.Ptr("Renamed"),
	})
	require.NoError(t, err)

	require.Equal(t, "Renamed", identity.FirstName)
	require.Equal(t, "Renamed", f.store.Identity().FirstName)
	require.Equal(t, "a", f.store.AccessToken(), "tokens untouched by profile update")
}

func TestValidatePasswordStrength(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{"valid", "Str0ng!pass", false},
		{"too short", "S1!a", true},
		{"no uppercase", "str0ng!pass", true},
		{"no lowercase", "STR0NG!PASS", true},
		{"no number", "Strong!pass", true},
		{"no special", "Str0ngpass", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := accounts.ValidatePasswordStrength(tt.password)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}
