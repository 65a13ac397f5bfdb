package crm

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"contact-automation/internal/faults"
)

// HTTPGateway is a JSON REST client for the CRM.
type HTTPGateway struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

func NewHTTPGateway(baseURL, token string, timeout time.Duration) *HTTPGateway {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &HTTPGateway{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		Client:  &http.Client{Timeout: timeout},
	}
}

func (g *HTTPGateway) CreateLead(ctx context.Context, key string, f LeadFields) (string, error) {
	var out struct {
		LeadID string `json:"lead_id"`
	}
	if err := g.do(ctx, "create lead", http.MethodPost, "/leads", key, f, &out); err != nil {
		return "", err
	}
	if out.LeadID == "" {
		return "", faults.Malformed("create lead", errors.New("missing lead_id"))
	}
	return out.LeadID, nil
}

func (g *HTTPGateway) CreateTicket(ctx context.Context, key string, f TicketFields) (string, error) {
	var out struct {
		TicketNumber string `json:"ticket_number"`
	}
	if err := g.do(ctx, "create ticket", http.MethodPost, "/tickets", key, f, &out); err != nil {
		return "", err
	}
	if out.TicketNumber == "" {
		return "", faults.Malformed("create ticket", errors.New("missing ticket_number"))
	}
	return out.TicketNumber, nil
}

func (g *HTTPGateway) CreateTask(ctx context.Context, key, leadID string, dueAt time.Time, text string) (string, error) {
	in := struct {
		LeadID string    `json:"lead_id"`
		DueAt  time.Time `json:"due_at"`
		Text   string    `json:"text"`
	}{leadID, dueAt, text}
	var out struct {
		TaskID string `json:"task_id"`
	}
	if err := g.do(ctx, "create task", http.MethodPost, "/tasks", key, in, &out); err != nil {
		return "", err
	}
	if out.TaskID == "" {
		return "", faults.Malformed("create task", errors.New("missing task_id"))
	}
	return out.TaskID, nil
}

func (g *HTTPGateway) AddNote(ctx context.Context, entityID, text string) (bool, error) {
	in := struct {
		EntityID string `json:"entity_id"`
		Text     string `json:"text"`
	}{entityID, text}
	var out struct {
		OK bool `json:"ok"`
	}
	sum := sha256.Sum256([]byte(entityID + "\x00" + text))
	key := "note:" + hex.EncodeToString(sum[:12])
	if err := g.do(ctx, "add note", http.MethodPost, "/notes", key, in, &out); err != nil {
		return false, err
	}
	return out.OK, nil
}

func (g *HTTPGateway) FindCustomerByPhone(ctx context.Context, phone string) (Customer, error) {
	var out struct {
		Customers []Customer `json:"customers"`
	}
	path := "/customers?phone=" + url.QueryEscape(phone)
	if err := g.do(ctx, "find customer", http.MethodGet, path, "", nil, &out); err != nil {
		return Customer{}, err
	}
	if len(out.Customers) == 0 {
		return Customer{}, ErrNotFound
	}
	return out.Customers[0], nil
}

func (g *HTTPGateway) do(ctx context.Context, op, method, path, key string, in, out any) error {
	if g.BaseURL == "" || g.Token == "" {
		return faults.ErrNotConfigured
	}
	var body *bytes.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode: %w", op, err)
		}
		body = bytes.NewReader(b)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+g.Token)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}

	resp, err := g.Client.Do(req)
	if err != nil {
		return faults.Transport(op, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound && method == http.MethodGet {
		return ErrNotFound
	}
	if err := faults.Status(op, resp.StatusCode); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return faults.Malformed(op, err)
	}
	return nil
}
