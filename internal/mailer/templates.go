package mailer

import (
	"bytes"
	"fmt"
	"html/template"
	"net/url"
	"strings"
)

var (
	paymentLinkTmpl = template.Must(template.New("payment_link").Parse(`<div style="font-family: Arial, sans-serif; background-color: #f9f9f9; padding: 32px; border-radius: 8px; max-width: 600px; margin: 0 auto;">
  <h2 style="color: #333;">¡Gracias por registrarte, {{.Name}}!</h2>
  <p style="color: #555; font-size: 16px; line-height: 1.6;">Estamos encantados de que formes parte de {{.EventName}}. Para completar tu registro, realiza tu pago con el botón a continuación:</p>
  <div style="margin-top: 24px; text-align: center;">
    <a href="{{.PaymentURL}}" style="background-color: #0070f3; color: #ffffff; padding: 12px 24px; border-radius: 6px; text-decoration: none; font-size: 16px; display: inline-block;">Pagar entrada</a>
  </div>
  <p style="color: #888; font-size: 14px; margin-top: 24px;">Si el botón no funciona, copia y pega este enlace en tu navegador:</p>
  <p style="color: #555; word-break: break-word;">{{.PaymentURL}}</p>
  <p style="color: #999; font-size: 12px; margin-top: 32px;">Este mensaje fue enviado automáticamente. Por favor, no respondas a este correo.</p>
</div>`))

	ticketTmpl = template.Must(template.New("ticket").Parse(`<div style="font-family: Arial, sans-serif; background-color: #f5f5f5; padding: 20px;">
  <div style="background-color: #ffffff; padding: 30px; border-radius: 8px; max-width: 480px; margin: 0 auto; text-align: center;">
    <p style="font-size: 18px; font-weight: bold;">Hola {{.Name}},</p>
    <p>Gracias por tu compra. Este es tu ticket para {{.EventName}}:</p>
    <div style="display: inline-block; padding: 10px; border: 2px solid #e0e0e0; border-radius: 12px; margin: 20px 0; background-color: #fafafa;">
      <img src="{{.QRImageURL}}" alt="QR del ticket" width="200" height="200">
    </div>
    <p style="font-size: 16px; font-weight: bold;">{{.TicketCode}}</p>
    <p style="font-size: 14px; color: #555;">Muestra este QR en la entrada del evento.</p>
    <p style="margin-top: 30px;">¡Nos vemos pronto!</p>
  </div>
</div>`))

	reminderTmpl = template.Must(template.New("reminder").Parse(`<div style="font-family: Arial, sans-serif; background-color: #f9f9f9; padding: 32px; border-radius: 8px; max-width: 600px; margin: 0 auto;">
  <h2 style="color: #333;">Hola {{.Name}}, tu lugar te espera</h2>
  <p style="color: #555; font-size: 16px; line-height: 1.6;">Te recordamos que tu registro en {{.EventName}} aún no tiene un pago confirmado. Puedes completarlo aquí:</p>
  <div style="margin-top: 24px; text-align: center;">
    <a href="{{.PaymentURL}}" style="background-color: #0070f3; color: #ffffff; padding: 12px 24px; border-radius: 6px; text-decoration: none; font-size: 16px; display: inline-block;">Completar pago</a>
  </div>
  <p style="color: #999; font-size: 12px; margin-top: 32px;">Si ya realizaste el pago, ignora este mensaje.</p>
</div>`))
)

type PaymentLinkData struct {
	Name       string
	EventName  string
	PaymentURL string
}

type TicketData struct {
	Name       string
	EventName  string
	TicketCode string
	ScanURL    string
	QRImageURL string
}

type ReminderData struct {
	Name       string
	EventName  string
	PaymentURL string
}

// Rendered is a subject with its HTML and plain-text bodies.
type Rendered struct {
	Subject string
	HTML    string
	Text    string
}

func RenderPaymentLink(d PaymentLinkData) (Rendered, error) {
	html, err := execute(paymentLinkTmpl, d)
	if err != nil {
		return Rendered{}, err
	}
	return Rendered{
		Subject: "Completa tu pago",
		HTML:    html,
		Text:    fmt.Sprintf("Hola %s,\n\nPara completar tu registro en %s realiza tu pago aquí:\n%s\n", d.Name, d.EventName, d.PaymentURL),
	}, nil
}

func RenderTicket(d TicketData) (Rendered, error) {
	html, err := execute(ticketTmpl, d)
	if err != nil {
		return Rendered{}, err
	}
	return Rendered{
		Subject: fmt.Sprintf("Tu entrada con QR (%s)", d.TicketCode),
		HTML:    html,
		Text:    fmt.Sprintf("Hola %s,\n\nTu entrada %s para %s está lista. Presenta este enlace en la puerta:\n%s\n", d.Name, d.TicketCode, d.EventName, d.ScanURL),
	}, nil
}

func RenderReminder(d ReminderData) (Rendered, error) {
	html, err := execute(reminderTmpl, d)
	if err != nil {
		return Rendered{}, err
	}
	return Rendered{
		Subject: "Recordatorio: completa tu pago",
		HTML:    html,
		Text:    fmt.Sprintf("Hola %s,\n\nTu registro en %s aún no tiene un pago confirmado. Complétalo aquí:\n%s\n", d.Name, d.EventName, d.PaymentURL),
	}, nil
}

// ScanURL is the link encoded in a ticket QR.
func ScanURL(website, token string) string {
	return strings.TrimRight(website, "/") + "/scan?token=" + url.QueryEscape(token)
}

// QRImageURL points at the PNG rendering of a ticket QR.
func QRImageURL(website, token string) string {
	return strings.TrimRight(website, "/") + "/qr?token=" + url.QueryEscape(token)
}

func execute(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s: %w", t.Name(), err)
	}
	return buf.String(), nil
}
