package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	interrors "github.com/tunzadent/dentclient/internal/errors"
)

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

type refreshResponse struct {
	Access string `json:"access"`
}

// refreshAccessToken exchanges the stored refresh token for a new access
// token and stores it. Callers that queued behind an in-flight refresh skip
// the network call when the access token already changed; tokens are
// fungible bearer credentials, so reusing the other caller's result is safe.
func (c *Client) refreshAccessToken(ctx context.Context, staleAccess string) error {
	c.refreshLock.Lock()
	defer c.refreshLock.Unlock()

	if current := c.creds.AccessToken(); current != "" && current != staleAccess {
		return nil
	}

	refreshToken := c.creds.RefreshToken()
	if refreshToken == "" {
		return interrors.ErrRefreshTokenMissing
	}

	payload, err := json.Marshal(refreshRequest{Refresh: refreshToken})
	if err != nil {
		return errors.Wrap(err, "[gateway.refresh] marshal request")
	}

	// The refresh call goes out bare: no bearer header, no interceptors, and
	// never through the retry path itself.
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+refreshPath, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "[gateway.refresh] create request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(interrors.ErrRefreshFailed, "do request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Wrapf(interrors.ErrRefreshFailed, "status %d", resp.StatusCode)
	}

	var result refreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return errors.Wrapf(interrors.ErrRefreshFailed, "decode response: %v", err)
	}
	if result.Access == "" {
		return errors.Wrap(interrors.ErrRefreshFailed, "empty access token")
	}

	if err := c.creds.SetAccessToken(result.Access); err != nil {
		return errors.Wrap(err, "[gateway.refresh] store access token")
	}

	log.Debug().Msg("access token refreshed")
	return nil
}
