package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	// ErrDisabled indica cliente sem credenciais configuradas.
	ErrDisabled = errors.New("supabase: cliente não configurado")
	// ErrNotFound indica identidade inexistente no provedor.
	ErrNotFound = errors.New("supabase: identidade não encontrada")
)

// Client encapsula chamadas à Admin API do Supabase (GoTrue).
type Client struct {
	httpClient *http.Client
	baseURL    string
	serviceKey string
}

// Config descreve credenciais essenciais para o cliente.
type Config struct {
	URL        string
	ServiceKey string
}

// New cria um novo cliente utilizando a service key.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("supabase: url obrigatória")
	}
	if strings.TrimSpace(cfg.ServiceKey) == "" {
		return nil, errors.New("supabase: service key obrigatória")
	}

	return &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.URL), "/"),
		serviceKey: strings.TrimSpace(cfg.ServiceKey),
	}, nil
}

type adminUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type adminUserList struct {
	Users []adminUser `json:"users"`
}

// EnsureUser garante identidade para o e-mail e devolve o ID remoto.
// Cria a identidade quando inexistente; em conflito, resolve via busca.
func (c *Client) EnsureUser(ctx context.Context, email string) (string, error) {
	if c == nil {
		return "", ErrDisabled
	}

	payload := map[string]any{
		"email":         strings.ToLower(strings.TrimSpace(email)),
		"email_confirm": true,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/v1/admin/users", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var created adminUser
		if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
			return "", err
		}
		return created.ID, nil
	case resp.StatusCode == http.StatusUnprocessableEntity || resp.StatusCode == http.StatusConflict:
		// Identidade já existe: resolve pelo e-mail.
		return c.findUserByEmail(ctx, email)
	default:
		return "", fmt.Errorf("supabase: criação de identidade falhou (status %d)", resp.StatusCode)
	}
}

// DeleteUser remove a identidade remota.
func (c *Client) DeleteUser(ctx context.Context, id string) error {
	if c == nil {
		return ErrDisabled
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return ErrNotFound
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/auth/v1/admin/users/"+url.PathEscape(id), nil)
	if err != nil {
		return err
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("supabase: remoção de identidade falhou (status %d)", resp.StatusCode)
	}
	return nil
}

func (c *Client) findUserByEmail(ctx context.Context, email string) (string, error) {
	q := url.Values{}
	q.Set("email", strings.ToLower(strings.TrimSpace(email)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/v1/admin/users?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("supabase: busca de identidade falhou (status %d)", resp.StatusCode)
	}

	var list adminUserList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return "", err
	}

	wanted := strings.ToLower(strings.TrimSpace(email))
	for _, u := range list.Users {
		if strings.EqualFold(u.Email, wanted) {
			return u.ID, nil
		}
	}
	return "", ErrNotFound
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.serviceKey)
	req.Header.Set("Authorization", "Bearer "+c.serviceKey)
}
