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
	"errors"
	"fmt"
	"os"
	"os/user"
	"strings"
	"time"

	"genstage/internal/backend"
	"genstage/internal/config"
	"genstage/internal/imageload"
	applog "genstage/internal/log"
	"genstage/internal/stage"
)

// remoteTokenTTL is how long a layout service token issued at startup lives.
const remoteTokenTTL = 24 * time.Hour

// LogOptions maps the logging section onto logger options. Env overrides
// have already been applied by config.Load.
func LogOptions(cfg config.AppConfig) applog.Options {
	return applog.Options{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		AddSource: cfg.Logging.Source,
		File:      cfg.Logging.File,
	}
}

// SessionOptionsFrom builds session options from the user config. token is
// the image host bearer token from the keyring.
func SessionOptionsFrom(cfg config.AppConfig, token string, loop stage.Loop) SessionOptions {
	return SessionOptions{
		Loop:  loop,
		Stage: cfg.StageOptions(),
		Fetch: imageload.Options{
			Timeout:           cfg.Fetch.FetchTimeout(),
			MaxBytes:          cfg.Fetch.MaxBytes,
			MaxDimension:      cfg.Fetch.MaxDimension,
			Token:             token,
			AllowPrivateHosts: cfg.Fetch.AllowPrivateHosts,
		},
		CacheMaxBytes: cfg.Fetch.CacheMaxBytes,
		Subject:       Subject(),
	}
}

// Subject names the local user on remote positions.
func Subject() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	if h, err := os.Hostname(); err == nil {
		return h
	}
	return "genstage"
}

// ConnectRemote returns a layout service client when the server is enabled
// in the config. GST_BACKEND_TOKEN supplies a token; otherwise one is issued.
func ConnectRemote(ctx context.Context, cfg config.AppConfig, subject string) (*backend.Client, error) {
	if !cfg.General.EnableServer {
		return nil, nil
	}
	c := backend.NewClient(cfg.Backend.BaseURL, strings.TrimSpace(os.Getenv("GST_BACKEND_TOKEN")), cfg.Backend.EffectiveTimeout())
	if !c.Healthy(ctx) {
		return nil, fmt.Errorf("layout service at %s is not ready", c.BaseURL)
	}
	if c.Token != "" {
		return c, nil
	}
	if _, err := c.IssueToken(ctx, subject, remoteTokenTTL); err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	if c.Token == "" {
		return nil, errors.New("issue token: empty token")
	}
	return c, nil
}
