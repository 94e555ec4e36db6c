/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package ui

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"genstage/internal/backend"
	"genstage/internal/config"
	"genstage/internal/stage"
)

type emptyStore struct{}

func (emptyStore) Positions(context.Context, string) ([]backend.Position, error) {
	return nil, backend.ErrNotFound
}
func (emptyStore) PutPositions(context.Context, string, string, []backend.Position) error {
	return nil
}
func (emptyStore) DeletePositions(context.Context, string, []string) error { return nil }
func (emptyStore) Ping(context.Context) error                              { return nil }

func TestLogOptionsFromConfig(t *testing.T) {
	cfg := config.Defaults()
	cfg.Logging = config.LoggingConfig{Level: "debug", Format: "json", Source: true, File: "/tmp/gst.log"}
	o := LogOptions(cfg)
	assert.Equal(t, "debug", o.Level)
	assert.Equal(t, "json", o.Format)
	assert.True(t, o.AddSource)
	assert.Equal(t, "/tmp/gst.log", o.File)
}

func TestSessionOptionsFromConfig(t *testing.T) {
	cfg := config.Defaults()
	cfg.Fetch.MaxDimension = 2048
	cfg.Canvas.RetryAfterMs = 1500
	loop := stage.NewManualLoop(time.Now())

	o := SessionOptionsFrom(cfg, "secret", loop)
	assert.Same(t, loop, o.Loop)
	assert.Equal(t, "secret", o.Fetch.Token)
	assert.Equal(t, 2048, o.Fetch.MaxDimension)
	assert.Equal(t, 1500*time.Millisecond, o.Stage.RetryAfter)
	assert.Equal(t, cfg.Fetch.CacheMaxBytes, o.CacheMaxBytes)
	assert.NotEmpty(t, o.Subject)
	assert.Nil(t, o.Remote)
}

func TestConnectRemoteDisabled(t *testing.T) {
	c, err := ConnectRemote(context.Background(), config.Defaults(), "me")
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestConnectRemoteIssuesToken(t *testing.T) {
	t.Setenv("GST_BACKEND_TOKEN", "")
	srv := httptest.NewServer(backend.NewServer(emptyStore{}, "test-secret").Handler())
	defer srv.Close()

	cfg := config.Defaults()
	cfg.General.EnableServer = true
	cfg.Backend.BaseURL = srv.URL
	c, err := ConnectRemote(context.Background(), cfg, "me")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.NotEmpty(t, c.Token)

	_, err = c.Positions(context.Background(), "board")
	assert.ErrorIs(t, err, backend.ErrNotFound)
}

func TestConnectRemoteUnreachable(t *testing.T) {
	srv := httptest.NewServer(nil)
	url := srv.URL
	srv.Close()

	cfg := config.Defaults()
	cfg.General.EnableServer = true
	cfg.Backend.BaseURL = url
	cfg.Backend.TimeoutMs = 500
	_, err := ConnectRemote(context.Background(), cfg, "me")
	assert.Error(t, err)
}
