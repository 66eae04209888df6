package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conftickets/internal/mailer"
	"conftickets/internal/model"
)

func TestVerifyScan_TokenChecksInOnce(t *testing.T) {
	f := newFixture(t)
	f.repo.addTicket(7, ana)
	tok, err := f.codec.Issue(ana.ID, 7)
	require.NoError(t, err)

	res, err := f.svc.VerifyScan(context.Background(), ScanRequest{Token: tok})
	require.NoError(t, err)
	assert.Equal(t, ScanSuccess, res.Status)
	assert.Equal(t, ModeToken, res.Mode)
	assert.Equal(t, "Asistencia registrada", res.Message)
	require.NotNil(t, res.Ticket)
	assert.Equal(t, "Ana", res.Ticket.User.Name)
	require.NotNil(t, res.Ticket.CheckedInAt)
	first := *res.Ticket.CheckedInAt
	assert.Equal(t, f.now, first)

	f.now = f.now.Add(time.Hour)
	res, err = f.svc.VerifyScan(context.Background(), ScanRequest{Token: tok})
	require.NoError(t, err)
	assert.Equal(t, ScanAlreadyCheckedIn, res.Status)
	assert.Equal(t, "Este ticket ya fue usado", res.Message)
	assert.Equal(t, first, *res.Ticket.CheckedInAt)
	assert.Equal(t, first, *f.repo.ticket(7).CheckedInAt)
}

func TestVerifyScan_TokenFromScanURL(t *testing.T) {
	f := newFixture(t)
	f.repo.addTicket(7, ana)
	tok, err := f.codec.Issue(ana.ID, 7)
	require.NoError(t, err)

	res, err := f.svc.VerifyScan(context.Background(), ScanRequest{Token: mailer.ScanURL("https://site.example", tok)})
	require.NoError(t, err)
	assert.Equal(t, ScanSuccess, res.Status)
}

func TestVerifyScan_ConcurrentScansSucceedOnce(t *testing.T) {
	f := newFixture(t)
	f.repo.addTicket(7, ana)
	tok, err := f.codec.Issue(ana.ID, 7)
	require.NoError(t, err)

	const n = 8
	var wg sync.WaitGroup
	results := make(chan ScanStatus, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.svc.VerifyScan(context.Background(), ScanRequest{Token: tok})
			if assert.NoError(t, err) {
				results <- res.Status
			}
		}()
	}
	wg.Wait()
	close(results)

	counts := map[ScanStatus]int{}
	for s := range results {
		counts[s]++
	}
	assert.Equal(t, 1, counts[ScanSuccess])
	assert.Equal(t, n-1, counts[ScanAlreadyCheckedIn])
}

func TestVerifyScan_RejectedTokens(t *testing.T) {
	f := newFixture(t)
	f.repo.addTicket(7, ana)
	f.repo.addTicket(8, model.User{ID: "user-bob", Name: "Bob", Email: "bob@x.com"})

	expired, err := f.codec.Issue(ana.ID, 7)
	require.NoError(t, err)

	f.now = f.now.Add(25 * time.Hour)
	fresh, err := f.codec.Issue("user-bob", 7)
	require.NoError(t, err)

	tests := []struct {
		name   string
		token  string
		reason InvalidReason
	}{
		{"garbage", "not-a-token", ReasonUnauthenticated},
		{"expired", expired, ReasonUnauthenticated},
		{"owner mismatch", fresh, ReasonNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := f.svc.VerifyScan(context.Background(), ScanRequest{Token: tt.token})
			require.NoError(t, err)
			assert.Equal(t, ScanInvalid, res.Status)
			assert.Equal(t, tt.reason, res.Reason)
			assert.Nil(t, res.Ticket)
		})
	}
	assert.False(t, f.repo.ticket(7).CheckedIn)
}

func TestVerifyScan_UnknownTicketWithLiveToken(t *testing.T) {
	f := newFixture(t)
	tok, err := f.codec.Issue(ana.ID, 99)
	require.NoError(t, err)

	res, err := f.svc.VerifyScan(context.Background(), ScanRequest{Token: tok})
	require.NoError(t, err)
	assert.Equal(t, ScanInvalid, res.Status)
	assert.Equal(t, ReasonNotFound, res.Reason)
	assert.Equal(t, "Ticket inválido", res.Message)
}

func TestVerifyScan_ManualCode(t *testing.T) {
	f := newFixture(t)
	f.repo.addTicket(7, ana)

	res, err := f.svc.VerifyScan(context.Background(), ScanRequest{Code: "TK-007", Staff: true})
	require.NoError(t, err)
	assert.Equal(t, ScanSuccess, res.Status)
	assert.Equal(t, ModeCode, res.Mode)
	assert.True(t, f.repo.ticket(7).CheckedIn)

	res, err = f.svc.VerifyScan(context.Background(), ScanRequest{Code: "TK-7", Staff: true})
	require.NoError(t, err)
	assert.Equal(t, ScanAlreadyCheckedIn, res.Status)
}

func TestVerifyScan_ManualCodeUnknown(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.VerifyScan(context.Background(), ScanRequest{Code: "TK-007", Staff: true})
	require.NoError(t, err)
	assert.Equal(t, ScanInvalid, res.Status)
	assert.Equal(t, ReasonNotFound, res.Reason)
	assert.Equal(t, "Ticket no encontrado", res.Message)
}

func TestVerifyScan_RequestErrors(t *testing.T) {
	f := newFixture(t)
	f.repo.addTicket(7, ana)

	tests := []struct {
		name string
		req  ScanRequest
		want error
	}{
		{"nothing", ScanRequest{}, ErrMissingParameter},
		{"blank", ScanRequest{Token: "  ", Code: " "}, ErrMissingParameter},
		{"code without staff", ScanRequest{Code: "TK-007"}, ErrStaffRequired},
		{"lowercase prefix", ScanRequest{Code: "tk-007", Staff: true}, ErrBadFormat},
		{"no dash", ScanRequest{Code: "TK007", Staff: true}, ErrBadFormat},
		{"no digits", ScanRequest{Code: "TK-", Staff: true}, ErrBadFormat},
		{"trailing letters", ScanRequest{Code: "TK-12a", Staff: true}, ErrBadFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.VerifyScan(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.False(t, f.repo.ticket(7).CheckedIn)
}

func TestVerifyScan_TokenWinsOverCode(t *testing.T) {
	f := newFixture(t)
	f.repo.addTicket(7, ana)
	f.repo.addTicket(8, model.User{ID: "user-bob", Name: "Bob", Email: "bob@x.com"})
	tok, err := f.codec.Issue(ana.ID, 7)
	require.NoError(t, err)

	res, err := f.svc.VerifyScan(context.Background(), ScanRequest{Token: tok, Code: "TK-008"})
	require.NoError(t, err)
	assert.Equal(t, ModeToken, res.Mode)
	assert.True(t, f.repo.ticket(7).CheckedIn)
	assert.False(t, f.repo.ticket(8).CheckedIn)
}
