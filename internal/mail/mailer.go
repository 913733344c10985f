package mail

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Mailer envia e-mails transacionais.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// Message descreve um envio transacional.
type Message struct {
	To      []string
	Subject string
	HTML    string
}

// MagicLinkMessage monta o e-mail do link de acesso com código de apoio.
func MagicLinkMessage(to, baseURL, token, code string, ttl time.Duration) Message {
	link := fmt.Sprintf("%s?token=%s", strings.TrimRight(baseURL, "/"), token)

	var b strings.Builder
	b.WriteString("<p>Olá!</p>")
	b.WriteString(fmt.Sprintf(`<p>Use o link abaixo para entrar na PsicoZen. Ele expira em %s e funciona uma única vez.</p>`, formatTTL(ttl)))
	b.WriteString(fmt.Sprintf(`<p><a href="%s">Entrar na PsicoZen</a></p>`, link))
	b.WriteString(fmt.Sprintf("<p>Se preferir, informe o código <strong>%s</strong> na tela de login.</p>", code))
	b.WriteString("<p>Se você não solicitou este acesso, ignore este e-mail.</p>")

	return Message{
		To:      []string{to},
		Subject: "Seu link de acesso à PsicoZen",
		HTML:    b.String(),
	}
}

// AlertMessage monta o e-mail de alerta do emociograma para gestores.
func AlertMessage(to []string, severidade, colaborador, setor string, nivel int, registradoEm time.Time) Message {
	titulo := "Alerta de bem-estar"
	if severidade == "critical" {
		titulo = "Alerta crítico de bem-estar"
	}

	quem := colaborador
	if quem == "" {
		quem = "Um colaborador (registro anônimo)"
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("<p><strong>%s</strong></p>", titulo))
	b.WriteString(fmt.Sprintf("<p>%s registrou nível %d no emociograma em %s.</p>", quem, nivel, registradoEm.Format("02/01/2006 15:04")))
	if setor != "" {
		b.WriteString(fmt.Sprintf("<p>Setor: %s</p>", setor))
	}
	b.WriteString("<p>Acesse o painel para acompanhar e registrar a resolução do alerta.</p>")

	return Message{
		To:      to,
		Subject: titulo + " — PsicoZen",
		HTML:    b.String(),
	}
}

func formatTTL(ttl time.Duration) string {
	if ttl >= time.Hour {
		return fmt.Sprintf("%d hora(s)", int(ttl.Hours()))
	}
	return fmt.Sprintf("%d minutos", int(ttl.Minutes()))
}
