package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

var colorRed = string("\033[31m")

func apiCall(method, path string, body interface{}) (string, error) {
	state, err := getState()
	if err != nil {
		return "", err
	}
	baseUrl, ok := state["api_url"]
	if !ok {
		return "", fmt.Errorf("set api_url with `config set api_url`")
	}

	var reqBody io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return "", err
		}
		reqBody = bytes.NewReader(buf)
	}

	req, err := http.NewRequest(method, baseUrl+path, reqBody)
	if err != nil {
		return "", err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to connect to covault daemon: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal(respBody, &apiErr); err == nil && apiErr.Error != "" {
			return "", fmt.Errorf("%s", apiErr.Error)
		}
		return "", fmt.Errorf("daemon replied with status %d", resp.StatusCode)
	}

	return jsonResponse(respBody), nil
}

// jsonResponse re-indents the daemon reply for printing.
func jsonResponse(buf []byte) string {
	if len(buf) == 0 {
		return ""
	}
	var indented bytes.Buffer
	if err := json.Indent(&indented, buf, "", "  "); err != nil {
		return string(buf)
	}
	return indented.String()
}

func getState() (map[string]string, error) {
	file, err := os.ReadFile(statePath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		if err := writeState(initialState); err != nil {
			return nil, err
		}
		return initialState, nil
	}

	data := map[string]string{}
	json.Unmarshal(file, &data)
	return data, nil
}

func setState(partialState map[string]string) error {
	state, err := getState()
	if err != nil {
		return err
	}

	for key, value := range partialState {
		state[key] = value
	}
	return writeState(state)
}

func writeState(state map[string]string) error {
	dir := filepath.Dir(statePath)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		err = os.MkdirAll(dir, 0755)
		if err != nil {
			return fmt.Errorf("failed to create directory: %v", err)
		}
	}

	buf, _ := json.MarshalIndent(state, "", "  ")
	if err := os.WriteFile(statePath, buf, 0755); err != nil {
		return fmt.Errorf("writing to file: %w", err)
	}

	return nil
}

func printErr(err error) {
	msg := fmt.Sprintf("%s%s", colorRed, capitalize(err.Error()))
	fmt.Fprintln(os.Stderr, msg)
}

func capitalize(s string) string {
	if len(s) == 0 {
		return s
	}
	ss := strings.ToUpper(s[0:1])
	ss += s[1:]
	return ss
}

func formatVersion() string {
	return fmt.Sprintf(
		"\nVersion: %s\nCommit: %s\nDate: %s", version, commit, date,
	)
}
