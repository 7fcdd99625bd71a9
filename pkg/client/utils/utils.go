// Copyright (c) Sony Research Inc. All rights reserved.

// Package utils provides address resolution and HTTP plumbing shared by the
// client subcommands.
package utils

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var httpClient = &http.Client{Timeout: 10 * time.Second}

// GetAgentList resolves the agent source into a list of host addresses.
// A source containing commas (or a single bare host) is used directly;
// anything that names an existing file is read one address per line.
func GetAgentList(source string) ([]string, error) {
	if source == "" {
		return nil, fmt.Errorf("agent source must be specified")
	}
	if _, err := os.Stat(source); err == nil {
		return ReadAddressListFromFile(source)
	}

	var agents []string
	for _, part := range strings.Split(source, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			agents = append(agents, part)
		}
	}
	if len(agents) == 0 {
		return nil, fmt.Errorf("no agent addresses in %q", source)
	}
	return agents, nil
}

// ReadAddressListFromFile reads agent addresses from a file, one per line.
// Empty lines are skipped.
func ReadAddressListFromFile(filePath string) ([]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("unable to open agent list file: %w", err)
	}
	defer file.Close()

	var addressList []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		addressList = append(addressList, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading agent list file: %w", err)
	}
	if len(addressList) == 0 {
		return nil, fmt.Errorf("agent list file is empty")
	}
	return addressList, nil
}

// AgentURL builds the endpoint URL for one agent.
func AgentURL(address, port, path string) string {
	return "http://" + address + ":" + port + path
}

// GetJSON fetches url and decodes the JSON response into out.
func GetJSON(url string, out any) error {
	resp, err := httpClient.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

// PostJSON posts body (may be nil) as JSON to url and decodes the response
// into out (may be nil).
func PostJSON(url string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	resp, err := httpClient.Post(url, "application/json", reader)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

// PutJSON sends body as JSON with a PUT and decodes the response into out.
func PutJSON(url string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPut, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out any) error {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("agent returned %s: %s", resp.Status, apiErr.Error)
		}
		return fmt.Errorf("agent returned %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// FormatTimestamp converts unix milliseconds to a human-readable form.
func FormatTimestamp(ms int64) string {
	if ms == 0 {
		return ""
	}
	return time.UnixMilli(ms).Local().Format(time.RFC3339)
}

// AppendWithTimestamp appends data to dir/filename, creating the directory
// and file when missing. Each append starts on a fresh line.
func AppendWithTimestamp(dir string, filename string, data []byte) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	fullPath := filepath.Join(dir, filename)
	file, err := os.OpenFile(fullPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	if _, err := file.WriteString("\n"); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		return fmt.Errorf("failed to write data: %w", err)
	}
	return nil
}
