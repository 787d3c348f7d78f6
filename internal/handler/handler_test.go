package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/showbook-chat/internal/bot"
	"github.com/iliyamo/showbook-chat/internal/checkin"
	"github.com/iliyamo/showbook-chat/internal/model"
)

type recordingDispatcher struct {
	mu     sync.Mutex
	events []bot.Event
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, ev bot.Event) {
	if _, ok := ctx.Deadline(); !ok {
		panic("dispatch without deadline")
	}
	d.mu.Lock()
	d.events = append(d.events, ev)
	d.mu.Unlock()
}

func serve(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestWebhookVerify(t *testing.T) {
	e := echo.New()
	h := NewWebhookHandler("s3cret", &recordingDispatcher{}, time.Second, nil)
	e.GET("/webhook", h.Verify)

	ok := serve(e, http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=s3cret&hub.challenge=4242", "")
	assert.Equal(t, http.StatusOK, ok.Code)
	assert.Equal(t, "4242", ok.Body.String())

	bad := serve(e, http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=nope&hub.challenge=4242", "")
	assert.Equal(t, http.StatusForbidden, bad.Code)
}

func TestWebhookReceiveDispatchesInBackground(t *testing.T) {
	e := echo.New()
	d := &recordingDispatcher{}
	h := NewWebhookHandler("s3cret", d, time.Second, nil)
	e.POST("/webhook", h.Receive)

	body := `{"object":"whatsapp_business_account","entry":[{"changes":[{"value":{"messages":[
		{"id":"wamid.1","from":"9198","type":"text","text":{"body":"show_x1"}},
		{"id":"wamid.2","from":"9198","type":"interactive","interactive":{"type":"button_reply","button_reply":{"id":"BOOK_NOW","title":"Book Now"}}}
	]}}]}]}`
	rec := serve(e, http.MethodPost, "/webhook", body)
	assert.Equal(t, http.StatusOK, rec.Code)

	h.Wait()
	require.Len(t, d.events, 2)
	assert.Equal(t, bot.KindTrigger, d.events[0].Kind)
	assert.Equal(t, "SHOW_X1", d.events[0].Arg)
	assert.Equal(t, bot.KindBookNow, d.events[1].Kind)
	assert.Equal(t, "wamid.2", d.events[1].ID)
}

func TestWebhookReceiveAcknowledgesGarbage(t *testing.T) {
	e := echo.New()
	d := &recordingDispatcher{}
	h := NewWebhookHandler("s3cret", d, time.Second, nil)
	e.POST("/webhook", h.Receive)

	rec := serve(e, http.MethodPost, "/webhook", "{nope")
	assert.Equal(t, http.StatusOK, rec.Code)
	h.Wait()
	assert.Empty(t, d.events)
}

type pinger struct{ err error }

func (p pinger) PingContext(context.Context) error { return p.err }

func TestHealth(t *testing.T) {
	e := echo.New()
	e.GET("/healthz", (&HealthHandler{DB: pinger{}}).Health)
	e.GET("/down", (&HealthHandler{DB: pinger{err: errors.New("connection refused")}}).Health)

	assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/healthz", "").Code)
	down := serve(e, http.MethodGet, "/down", "")
	assert.Equal(t, http.StatusServiceUnavailable, down.Code)
	assert.Contains(t, down.Body.String(), "connection refused")
}

type fakeVerifier struct {
	out *checkin.Outcome
	err error
}

func (f fakeVerifier) Verify(context.Context, string, uint64) (*checkin.Outcome, error) {
	return f.out, f.err
}

func TestTicketVerify(t *testing.T) {
	admitted := &checkin.Outcome{Valid: true, Booking: &model.Booking{
		Ref: "BK-1", BookerName: "Asha", Quantity: 1, Lines: []model.BookingSeat{{SeatCode: "A1"}},
	}}
	cases := []struct {
		name     string
		verifier fakeVerifier
		body     string
		code     int
		contains string
	}{
		{"admitted", fakeVerifier{out: admitted}, `{"token":"t","show_id":3}`, http.StatusOK, `"seats":["A1"]`},
		{"rejected", fakeVerifier{out: &checkin.Outcome{Reason: checkin.ReasonStaleTicket}}, `{"token":"t"}`, http.StatusOK, `"reason":"STALE_TICKET"`},
		{"missing token", fakeVerifier{}, `{"token":"  "}`, http.StatusBadRequest, "token is required"},
		{"bad json", fakeVerifier{}, `{"token":`, http.StatusBadRequest, "invalid body"},
		{"storage failure", fakeVerifier{err: errors.New("db")}, `{"token":"t"}`, http.StatusInternalServerError, "internal error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := echo.New()
			e.POST("/v1/tickets/verify", (&TicketHandler{Checkin: tc.verifier}).Verify)
			rec := serve(e, http.MethodPost, "/v1/tickets/verify", tc.body)
			assert.Equal(t, tc.code, rec.Code)
			assert.Contains(t, rec.Body.String(), tc.contains)
		})
	}
}
