/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package catalog

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Feed reads records from an HTTP endpoint returning the same JSON as a record file.
type Feed struct {
	URL    string
	Token  string // bearer token
	client *http.Client
}

// NewFeed creates a feed client with a 10 second timeout.
func NewFeed(url, token string) *Feed {
	return &Feed{URL: strings.TrimSpace(url), Token: token, client: &http.Client{Timeout: 10 * time.Second}}
}

func (f *Feed) Records(ctx context.Context) ([]Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if f.Token != "" {
		req.Header.Set("Authorization", "Bearer "+f.Token)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch records: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("feed %s: %s", req.URL.Redacted(), resp.Status)
	}
	return Decode(resp.Body)
}
