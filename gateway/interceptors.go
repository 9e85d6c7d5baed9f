package gateway

import (
	"net/http"

	"github.com/google/uuid"
)

// bearerInterceptor attaches the current access token, if any. Requests
// proceed without the header when the store is anonymous; the server rejects
// them as needed.
func (c *Client) bearerInterceptor(req *http.Request) {
	if token := c.creds.AccessToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// requestIDInterceptor tags every outgoing request with a correlation ID so
// client and server logs can be matched up.
func requestIDInterceptor(req *http.Request) {
	req.Header.Set("X-Request-ID", uuid.NewString())
}
