package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const defaultResendBase = "https://api.resend.com"

// ResendMailer envia e-mails pela API do Resend.
type ResendMailer struct {
	httpClient *http.Client
	apiKey     string
	from       string
	baseURL    string
}

// NewResendMailer cria o cliente. Devolve nil quando a API key está ausente,
// seguindo o padrão de notificador desligado.
func NewResendMailer(apiKey, from string) *ResendMailer {
	if strings.TrimSpace(apiKey) == "" {
		return nil
	}
	return &ResendMailer{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		apiKey:     strings.TrimSpace(apiKey),
		from:       strings.TrimSpace(from),
		baseURL:    defaultResendBase,
	}
}

// Send envia a mensagem via POST /emails.
func (m *ResendMailer) Send(ctx context.Context, msg Message) error {
	if m == nil || m.apiKey == "" {
		return errors.New("resend: mailer não configurado")
	}
	if len(msg.To) == 0 {
		return errors.New("resend: destinatário obrigatório")
	}

	payload := map[string]any{
		"from":    m.from,
		"to":      msg.To,
		"subject": msg.Subject,
		"html":    msg.HTML,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/emails", bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.apiKey)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("resend: envio falhou (status %d)", resp.StatusCode)
	}
	return nil
}
