/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"syncd/pkg/cli"
)

// apiClient is a thin JSON client over the coordinator's HTTP surface.
type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient(baseURL string) *apiClient {
	return &apiClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *apiClient) get(path string, out any) error {
	return c.do(http.MethodGet, path, nil, out)
}

func (c *apiClient) post(path string, body, out any) error {
	return c.do(http.MethodPost, path, body, out)
}

func (c *apiClient) delete(path string, out any) error {
	return c.do(http.MethodDelete, path, nil, out)
}

// getFile streams a GET response body straight to w, for endpoints whose
// response isn't JSON (event log exports). Returns the server-reported
// error message if the status code signals failure.
func (c *apiClient) getFile(path string, w io.Writer) error {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return fmt.Errorf("invalid coordinator address %q: %w", c.baseURL, err)
	}

	resp, err := c.http.Get(u.String() + path)
	if err != nil {
		if netErr, ok := err.(net.Error); ok {
			return cli.ErrConnectionFailed(u.Hostname(), u.Port(), netErr)
		}
		return cli.ErrConnectionFailed(u.Hostname(), u.Port(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		var apiErr struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		json.Unmarshal(data, &apiErr)
		return cli.NewCLIError(apiErr.Message).WithDetail(fmt.Sprintf("%s (%s)", apiErr.Error, resp.Status))
	}

	_, err = io.Copy(w, resp.Body)
	return err
}

func (c *apiClient) do(method, path string, body, out any) error {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return fmt.Errorf("invalid coordinator address %q: %w", c.baseURL, err)
	}

	var reqBody io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reqBody = bytes.NewReader(buf)
	}

	req, err := http.NewRequest(method, u.String()+path, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if netErr, ok := err.(net.Error); ok {
			return cli.ErrConnectionFailed(u.Hostname(), u.Port(), netErr)
		}
		return cli.ErrConnectionFailed(u.Hostname(), u.Port(), err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		json.Unmarshal(data, &apiErr)
		return cli.NewCLIError(apiErr.Message).WithDetail(fmt.Sprintf("%s (%s)", apiErr.Error, resp.Status))
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}
