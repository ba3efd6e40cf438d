// Package directory is the stateless request/response client for
// out-of-band session management: creating sessions, fetching session
// state and issuing invitations. It is independent of the live
// connection and performs no retries of its own; each call is
// independently retryable by the caller under the caller's policy.
package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	collab "go-collab/internal/pkg/collab/domain"
)

// ErrRequestFailed marks any directory call failure, transport or
// application level.
var ErrRequestFailed = errors.New("directory: request failed")

// APIError is a structured non-2xx response from the directory API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("directory: status %d: %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error { return ErrRequestFailed }

// Client talks to the directory API at a fixed base endpoint.
type Client struct {
	base string
	http *http.Client
}

// NewClient constructs a Client for the given base URL, e.g.
// "http://coordinator:8080". A nil httpClient gets a 10s-timeout default.
func NewClient(base string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{base: strings.TrimRight(base, "/"), http: httpClient}
}

// CreateSessionInput carries the data to open a new session.
type CreateSessionInput struct {
	Title       string                  `json:"title"`
	Description string                  `json:"description"`
	Kind        collab.SessionKind      `json:"kind"`
	OwnerID     string                  `json:"owner_id"`
	Settings    *collab.SessionSettings `json:"settings,omitempty"`
}

// CreateSession registers a new session and returns it with its primary
// artifact reference populated.
func (c *Client) CreateSession(ctx context.Context, in CreateSessionInput) (*collab.Session, error) {
	var out collab.Session
	if err := c.do(ctx, http.MethodPost, "/api/v1/session", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetSession fetches full session state: metadata, participants and the
// artifact's current version. Also used by the artifact update channel
// for full-state resync after a frame gap.
func (c *Client) GetSession(ctx context.Context, sessionID string) (*collab.Session, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session id is required", ErrRequestFailed)
	}
	var out collab.Session
	if err := c.do(ctx, http.MethodGet, "/api/v1/session/"+sessionID, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetArtifact fetches the authoritative artifact state for a session.
func (c *Client) GetArtifact(ctx context.Context, sessionID string) (*collab.Artifact, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session id is required", ErrRequestFailed)
	}
	var out collab.Artifact
	if err := c.do(ctx, http.MethodGet, "/api/v1/session/"+sessionID+"/artifact", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// InviteInput carries the data to issue an invitation.
type InviteInput struct {
	SessionID      string      `json:"-"`
	InviterID      string      `json:"inviter_id"`
	InviteeContact string      `json:"invitee_contact"`
	InviteeName    string      `json:"invitee_name"`
	Role           collab.Role `json:"role"`
	Message        string      `json:"message,omitempty"`
}

// InviteParticipant issues a single-use invitation for the session.
func (c *Client) InviteParticipant(ctx context.Context, in InviteInput) (*collab.Invitation, error) {
	if in.SessionID == "" {
		return nil, fmt.Errorf("%w: session id is required", ErrRequestFailed)
	}
	var out collab.Invitation
	if err := c.do(ctx, http.MethodPost, "/api/v1/session/"+in.SessionID+"/invitation", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%w: encode request: %v", ErrRequestFailed, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrRequestFailed, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		var envelope struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &envelope) == nil && envelope.Error != "" {
			apiErr.Message = envelope.Error
		}
		return apiErr
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("%w: decode response: %v", ErrRequestFailed, err)
		}
	}
	return nil
}
