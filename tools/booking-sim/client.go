package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type apiError struct {
	Status int
	Kind   string `json:"kind"`
	Msg    string `json:"message"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("status=%d kind=%s: %s", e.Status, e.Kind, e.Msg)
}

type client struct {
	base string
	http *http.Client
}

func newClient(base string) *client {
	return &client{base: strings.TrimRight(base, "/"), http: &http.Client{Timeout: 15 * time.Second}}
}

type slot struct {
	StartAt string `json:"start_at"`
	EndAt   string `json:"end_at"`
}

type session struct {
	SessionID         string `json:"session_id"`
	State             string `json:"state"`
	ExpiresInSeconds  int    `json:"expires_in_seconds"`
	RemainingAttempts int    `json:"remaining_attempts"`
	RedirectURL       string `json:"redirect_url"`
	TelegramLink      string `json:"telegram_link"`
}

type appointment struct {
	AppointmentID string `json:"appointment_id"`
	StartAt       string `json:"start_at"`
	EndAt         string `json:"end_at"`
	Status        string `json:"status"`
}

func (c *client) slots(ctx context.Context, masterID, serviceID, date string) ([]slot, error) {
	q := url.Values{"master_id": {masterID}, "service_id": {serviceID}, "date": {date}}
	var out struct {
		Slots []slot `json:"slots"`
	}
	err := c.do(ctx, http.MethodGet, "/api/v1/public/slots?"+q.Encode(), nil, &out)
	return out.Slots, err
}

func (c *client) start(ctx context.Context, body map[string]string) (session, error) {
	var out session
	err := c.do(ctx, http.MethodPost, "/api/v1/public/verification/sessions", body, &out)
	return out, err
}

func (c *client) verify(ctx context.Context, sessionID, code string) (session, error) {
	var out session
	err := c.do(ctx, http.MethodPost, "/api/v1/public/verification/sessions/"+url.PathEscape(sessionID)+"/verify", map[string]string{"code": code}, &out)
	return out, err
}

func (c *client) status(ctx context.Context, sessionID string) (session, error) {
	var out session
	err := c.do(ctx, http.MethodGet, "/api/v1/public/verification/sessions/"+url.PathEscape(sessionID), nil, &out)
	return out, err
}

func (c *client) book(ctx context.Context, sessionID string, profile map[string]string) (appointment, error) {
	var out appointment
	err := c.do(ctx, http.MethodPost, "/api/v1/public/verification/sessions/"+url.PathEscape(sessionID)+"/appointment", profile, &out)
	return out, err
}

func (c *client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var env struct {
			Error apiError `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&env)
		env.Error.Status = resp.StatusCode
		return &env.Error
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
