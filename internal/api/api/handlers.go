package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/zlog"

	"conftickets/internal/dto"
	"conftickets/internal/mailer"
	"conftickets/internal/qr"
	"conftickets/internal/service"
	"conftickets/internal/signature"
)

const maxWebhookBody = 1 << 20

func (r *Routers) Register(c *ginext.Context) {
	var req dto.RegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.RegistrationResponse{
			Error: map[string][]string{"root": {"Invalid request body"}},
		})
		return
	}

	res, err := r.Service.Register(c.Request.Context(), req)
	var verr *service.ValidationError
	switch {
	case err == nil:
		c.JSON(http.StatusCreated, dto.RegistrationResponse{Success: true, CheckoutURL: res.CheckoutURL})
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, dto.RegistrationResponse{Error: verr.Fields})
	case errors.Is(err, service.ErrDuplicateEmail):
		c.JSON(http.StatusConflict, dto.RegistrationResponse{
			Error: map[string][]string{"email": {"Este correo ya está registrado"}},
		})
	case errors.Is(err, service.ErrPaymentGateway):
		c.JSON(http.StatusBadGateway, dto.RegistrationResponse{
			Error: map[string][]string{"root": {"No se pudo generar el enlace de pago"}},
		})
	default:
		zlog.Logger.Error().Err(err).Str("email", req.Email).Msg("registration failed")
		c.JSON(http.StatusInternalServerError, dto.RegistrationResponse{
			Error: map[string][]string{"root": {dto.InternalError}},
		})
	}
}

func (r *Routers) PaymentRedirect(c *ginext.Context) {
	c.Redirect(http.StatusFound, r.Service.PaymentRedirect(c.Request.Context(), c.Param("userId")))
}

func (r *Routers) PaymentWebhook(c *ginext.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		dto.BadResponseError(c, dto.MalformedWebhook, "Unreadable body")
		return
	}

	n, err := service.ParsePaymentNotification(body, c.Request.URL.Query())
	if err != nil {
		dto.BadResponseError(c, dto.MalformedWebhook, err.Error())
		return
	}

	_, err = r.Service.HandlePaymentNotification(c.Request.Context(), n)
	switch {
	case err == nil:
		dto.Acknowledge(c)
	case errors.Is(err, service.ErrMalformedWebhook):
		dto.BadResponseError(c, dto.MalformedWebhook, err.Error())
	case errors.Is(err, service.ErrMissingReference):
		zlog.Logger.Warn().Err(err).Str("payment_id", n.PaymentID).Msg("payment webhook without reference")
		dto.ErrorResponse(c, http.StatusNotFound, dto.MissingReference, err.Error())
	case errors.Is(err, service.ErrTicketNotFound):
		zlog.Logger.Warn().Err(err).Str("payment_id", n.PaymentID).Msg("payment webhook for unknown ticket")
		dto.TicketNotFoundError(c)
	default:
		zlog.Logger.Error().Err(err).Str("payment_id", n.PaymentID).Msg("payment webhook failed")
		dto.ErrorResponse(c, http.StatusInternalServerError, dto.GatewayUnavailable, dto.InternalError)
	}
}

func (r *Routers) EmailWebhook(c *ginext.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		dto.BadResponseError(c, dto.MalformedWebhook, "Unreadable body")
		return
	}

	_, err = r.Service.HandleEmailStatus(c.Request.Context(), body, signature.Headers{
		ID:        c.GetHeader(signature.HeaderID),
		Timestamp: c.GetHeader(signature.HeaderTimestamp),
		Signature: c.GetHeader(signature.HeaderSignature),
	})
	switch {
	case err == nil:
		dto.Acknowledge(c)
	case errors.Is(err, service.ErrInvalidSignature):
		zlog.Logger.Warn().Err(err).Msg("email webhook rejected")
		dto.BadResponseError(c, dto.InvalidSignature, "Invalid signature")
	case errors.Is(err, service.ErrMalformedWebhook):
		dto.BadResponseError(c, dto.MalformedWebhook, err.Error())
	default:
		zlog.Logger.Error().Err(err).Msg("email webhook failed")
		dto.InternalServerError(c)
	}
}

func (r *Routers) Scan(c *ginext.Context) {
	req := service.ScanRequest{
		Token: c.Query("token"),
		Code:  c.Query("code"),
		Staff: r.isStaff(c),
	}

	res, err := r.Service.VerifyScan(c.Request.Context(), req)
	switch {
	case err == nil:
	case errors.Is(err, service.ErrStaffRequired):
		c.JSON(http.StatusUnauthorized, dto.ScanResponse{Status: string(service.ScanError), Message: "Se requiere autenticación"})
		return
	case errors.Is(err, service.ErrBadFormat):
		c.JSON(http.StatusBadRequest, dto.ScanResponse{Status: string(service.ScanError), Message: "Formato de código inválido. Usa TK-XXX"})
		return
	case errors.Is(err, service.ErrMissingParameter):
		c.JSON(http.StatusBadRequest, dto.ScanResponse{Status: string(service.ScanError), Message: "Falta el parámetro token o code"})
		return
	default:
		zlog.Logger.Error().Err(err).Msg("scan failed")
		c.JSON(http.StatusUnauthorized, dto.ScanResponse{Status: string(service.ScanInvalid), Message: "Token o código inválido"})
		return
	}

	c.JSON(scanStatusCode(res), scanResponse(res))
}

func scanStatusCode(res *service.ScanResult) int {
	if res.Status != service.ScanInvalid {
		return http.StatusOK
	}
	if res.Reason == service.ReasonNotFound {
		return http.StatusNotFound
	}
	return http.StatusUnauthorized
}

func scanResponse(res *service.ScanResult) dto.ScanResponse {
	out := dto.ScanResponse{Status: string(res.Status), Message: res.Message}
	if res.Ticket == nil {
		return out
	}
	out.User = &dto.ScanUser{Name: res.Ticket.User.Name, Email: res.Ticket.User.Email}
	out.Ticket = &dto.ScanTicket{
		ID:          res.Ticket.ID,
		Code:        res.Ticket.Code(),
		CheckedIn:   res.Ticket.CheckedIn,
		CheckedInAt: res.Ticket.CheckedInAt,
		Paid:        res.Ticket.Paid,
	}
	return out
}

// QR renders the scan link for a valid token as a PNG.
func (r *Routers) QR(c *ginext.Context) {
	tok := c.Query("token")
	if tok == "" {
		dto.BadResponseError(c, dto.FieldIncorrect, "Field 'token' is required")
		return
	}
	if _, err := r.Tokens.Verify(tok); err != nil {
		dto.ErrorResponse(c, http.StatusUnauthorized, dto.Unauthorized, "Invalid token")
		return
	}

	png, err := qr.PNG(mailer.ScanURL(r.WebsiteURL, tok), qr.DefaultSize)
	if err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to render qr")
		dto.InternalServerError(c)
		return
	}
	c.Header("Cache-Control", "private, max-age=86400")
	c.Data(http.StatusOK, "image/png", png)
}

func (r *Routers) APIKeys(c *ginext.Context) {
	keys, err := r.Keys.Info(c.Request.Context())
	if err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to list api keys")
		dto.InternalServerError(c)
		return
	}
	dto.SuccessResponse(c, keys)
}

func (r *Routers) Health(c *ginext.Context) {
	if r.DB != nil {
		if err := r.DB.PingContext(c.Request.Context()); err != nil {
			dto.ErrorResponse(c, http.StatusServiceUnavailable, dto.ServiceUnavailable, "database unreachable")
			return
		}
	}
	dto.SuccessResponse(c, "ok")
}

// isStaff reports whether the request carries valid staff Basic credentials.
func (r *Routers) isStaff(c *ginext.Context) bool {
	email, password, ok := c.Request.BasicAuth()
	if !ok {
		return false
	}
	if _, err := r.Service.AuthenticateStaff(c.Request.Context(), email, password); err != nil {
		zlog.Logger.Warn().Str("email", email).Msg("staff authentication failed")
		return false
	}
	return true
}

func (r *Routers) staffOnly(c *ginext.Context) {
	if !r.isStaff(c) {
		c.Header("WWW-Authenticate", `Basic realm="staff"`)
		dto.UnauthorizedError(c)
		c.Abort()
		return
	}
	c.Next()
}
