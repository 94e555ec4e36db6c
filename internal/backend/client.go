/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrUnauthorized is returned when the server rejects the bearer token.
var ErrUnauthorized = errors.New("unauthorized")

// Client talks to the layout service.
type Client struct {
	BaseURL string
	Token   string // bearer token
	client  *http.Client
}

// NewClient creates a client. A trailing slash on baseURL is ignored and a
// non-positive timeout defaults to 10s.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *Client) do(ctx context.Context, method, p string, body, dest any) error {
	u, err := url.Parse(c.BaseURL + p)
	if err != nil {
		return err
	}
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("server %s %s: %s", method, u.Path, resp.Status)
	}
	if dest == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(dest)
}

// IssueToken asks the server for a bearer token and stores it on the client.
func (c *Client) IssueToken(ctx context.Context, subject string, ttl time.Duration) (TokenResponse, error) {
	var tr TokenResponse
	req := map[string]any{"subject": subject, "ttl_seconds": int64(ttl / time.Second)}
	if err := c.do(ctx, http.MethodPost, "/api/auth/token", req, &tr); err != nil {
		return tr, err
	}
	c.Token = tr.Token
	return tr, nil
}

// Positions returns the stored positions for a board.
func (c *Client) Positions(ctx context.Context, board string) ([]Position, error) {
	var env PositionsEnvelope
	if err := c.do(ctx, http.MethodGet, "/api/boards/"+url.PathEscape(board)+"/positions", nil, &env); err != nil {
		return nil, err
	}
	return env.Positions, nil
}

// PutPositions upserts positions for a board.
func (c *Client) PutPositions(ctx context.Context, board string, ps []Position) error {
	return c.do(ctx, http.MethodPut, "/api/boards/"+url.PathEscape(board)+"/positions", PositionsEnvelope{Positions: ps}, nil)
}

// DeletePosition removes one item's position.
func (c *Client) DeletePosition(ctx context.Context, board, itemID string) error {
	return c.do(ctx, http.MethodDelete, "/api/boards/"+url.PathEscape(board)+"/positions/"+url.PathEscape(itemID), nil, nil)
}

// Healthy reports whether /readyz answers 200.
func (c *Client) Healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/readyz", nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
