/* Copyright 2025, Pulumi Corporation.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	api "github.com/luthermonson/go-proxmox"

	"github.com/hctamu/goproxmoxer/pkg/proxmox"
)

// DefaultRenewAge is how long a ticket is used before it is renewed.
const DefaultRenewAge = 3600 * time.Second

// Credential authenticates outgoing HTTPS requests.
type Credential interface {
	// Stamp adds the cookies and headers a request needs, renewing the
	// credential first if it expired.
	Stamp(ctx context.Context, req *http.Request) error

	// Cookies returns the cookies Stamp sets, if any.
	Cookies() []*http.Cookie

	// Tokens returns the ticket and CSRF token, or empty strings.
	Tokens() (ticket, csrf string)
}

var (
	_ Credential = NoAuth{}
	_ Credential = (*TicketAuth)(nil)
	_ Credential = (*TokenAuth)(nil)
)

// NoAuth leaves requests untouched.
type NoAuth struct{}

// Stamp does nothing.
func (NoAuth) Stamp(context.Context, *http.Request) error { return nil }

// Cookies returns nil.
func (NoAuth) Cookies() []*http.Cookie { return nil }

// Tokens returns empty strings.
func (NoAuth) Tokens() (ticket, csrf string) { return "", "" }

// TicketAuth logs in with a password and keeps the returned ticket and CSRF
// token. The ticket is renewed, using itself as the password, on the first
// request made after RenewAge elapsed.
//
// TicketAuth is not safe for concurrent use.
type TicketAuth struct {
	// RenewAge defaults to DefaultRenewAge. Zero renews before every request.
	RenewAge time.Duration

	baseURL    string
	service    string
	username   string
	otp        string
	client     *http.Client
	serializer proxmox.Serializer

	ticket string
	csrf   string
	birth  time.Time
}

// loginData is the payload of a successful /access/ticket call.
type loginData struct {
	api.Session
	NeedTFA any `json:"NeedTFA"`
}

// NewTicketAuth logs in immediately and fails with an AuthenticationError when
// the server rejects the credentials.
func NewTicketAuth(
	ctx context.Context, client *http.Client, baseURL, service, username, password, otp string,
) (*TicketAuth, error) {
	auth := &TicketAuth{
		RenewAge:   DefaultRenewAge,
		baseURL:    baseURL,
		service:    strings.ToUpper(service),
		username:   username,
		otp:        otp,
		client:     client,
		serializer: proxmox.JSONSerializer{},
	}
	if err := auth.login(ctx, password, otp); err != nil {
		return nil, err
	}
	return auth, nil
}

func (a *TicketAuth) login(ctx context.Context, password, otp string) error {
	form := url.Values{"username": {a.username}, "password": {password}}
	if otp != "" {
		form.Set("otp", otp)
	}

	endpoint := a.baseURL + "/access/ticket"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", a.serializer.AcceptTypes())

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to log in to %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read login response: %w", err)
	}

	var payload struct {
		Data *loginData `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || payload.Data == nil {
		return &proxmox.AuthenticationError{
			Message: fmt.Sprintf("Couldn't authenticate user: %s to %s", a.username, endpoint),
		}
	}
	if payload.Data.NeedTFA != nil {
		return &proxmox.AuthenticationError{
			Message: "Couldn't authenticate user: missing Two Factor Authentication (TFA)",
		}
	}

	a.ticket = payload.Data.Ticket
	a.csrf = payload.Data.CSRFPreventionToken
	a.birth = time.Now()
	return nil
}

// Stamp sets the auth cookie and, for requests other than GET, the CSRF
// header.
func (a *TicketAuth) Stamp(ctx context.Context, req *http.Request) error {
	if time.Since(a.birth) >= a.RenewAge {
		if err := a.login(ctx, a.ticket, ""); err != nil {
			return fmt.Errorf("failed to renew ticket: %w", err)
		}
	}
	for _, cookie := range a.Cookies() {
		req.AddCookie(cookie)
	}
	if req.Method != http.MethodGet && a.csrf != "" {
		req.Header.Set("CSRFPreventionToken", a.csrf)
	}
	return nil
}

// Cookies returns the auth cookie for the current ticket.
func (a *TicketAuth) Cookies() []*http.Cookie {
	return []*http.Cookie{{Name: a.service + "AuthCookie", Value: a.ticket}}
}

// Tokens returns the current ticket and CSRF token.
func (a *TicketAuth) Tokens() (ticket, csrf string) {
	return a.ticket, a.csrf
}

// TokenAuth stamps a static API token header.
type TokenAuth struct {
	header string
}

// NewTokenAuth builds the "<SVC>APIToken=<user>!<name><sep><value>" header.
func NewTokenAuth(service, username, tokenName, tokenValue, separator string) *TokenAuth {
	return &TokenAuth{
		header: fmt.Sprintf("%sAPIToken=%s!%s%s%s",
			strings.ToUpper(service), username, tokenName, separator, tokenValue),
	}
}

// Stamp sets the Authorization header.
func (a *TokenAuth) Stamp(_ context.Context, req *http.Request) error {
	req.Header.Set("Authorization", a.header)
	return nil
}

// Cookies returns nil; the token travels in a header.
func (a *TokenAuth) Cookies() []*http.Cookie {
	return nil
}

// Tokens returns empty strings; API tokens carry no ticket.
func (a *TokenAuth) Tokens() (ticket, csrf string) {
	return "", ""
}
