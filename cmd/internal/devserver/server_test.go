package devserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	apiv1 "arcsync/shared/contracts/api/v1"
	rtv1 "arcsync/shared/contracts/realtime/v1"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.BcryptCost = bcrypt.MinCost
	return cfg
}

func newTestServer(t *testing.T, mutate func(*Config)) (*Server, *httptest.Server) {
	t.Helper()
	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, s.AddUser("u1", "ada@example.com", "correct horse"))
	require.NoError(t, s.AddUser("u2", "bob@example.com", "battery staple"))
	s.AddConversation("C1", "Ada & Bob", "u1", "u2")
	ts := httptest.NewServer(s)
	t.Cleanup(ts.Close)
	return s, ts
}

type reply struct {
	status int
	env    apiv1.Envelope
	header http.Header
}

func call(t *testing.T, ts *httptest.Server, method, path, bearer string, body any) reply {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, ts.URL+path, rd)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env apiv1.Envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return reply{status: resp.StatusCode, env: env, header: resp.Header}
}

func login(t *testing.T, ts *httptest.Server, email, password string) apiv1.TokenResponse {
	t.Helper()
	r := call(t, ts, http.MethodPost, apiv1.PathLogin, "", apiv1.LoginRequest{Email: email, Password: password})
	require.Equal(t, http.StatusOK, r.status)
	var tok apiv1.TokenResponse
	require.NoError(t, json.Unmarshal(r.env.Data, &tok))
	return tok
}

func TestLogin(t *testing.T) {
	_, ts := newTestServer(t, nil)

	tok := login(t, ts, "ADA@example.com", "correct horse")
	require.NotEmpty(t, tok.AccessToken)
	require.NotEmpty(t, tok.RefreshToken)
	require.Equal(t, int64(15*60), tok.ExpiresIn)

	r := call(t, ts, http.MethodPost, apiv1.PathLogin, "", apiv1.LoginRequest{Email: "ada@example.com", Password: "nope"})
	require.Equal(t, http.StatusUnauthorized, r.status)
	require.Equal(t, apiv1.CodeInvalidCredentials, r.env.Error.Code)

	r = call(t, ts, http.MethodPost, apiv1.PathLogin, "", apiv1.LoginRequest{})
	require.Equal(t, http.StatusUnprocessableEntity, r.status)
	require.Len(t, r.env.Error.Details, 2)
}

func TestRefresh_RotatesAndRejectsReuse(t *testing.T) {
	s, ts := newTestServer(t, nil)
	tok := login(t, ts, "ada@example.com", "correct horse")

	r := call(t, ts, http.MethodPost, apiv1.PathRefresh, "", apiv1.RefreshRequest{RefreshToken: tok.RefreshToken})
	require.Equal(t, http.StatusOK, r.status)
	var next apiv1.TokenResponse
	require.NoError(t, json.Unmarshal(r.env.Data, &next))
	require.NotEqual(t, tok.RefreshToken, next.RefreshToken)

	r = call(t, ts, http.MethodPost, apiv1.PathRefresh, "", apiv1.RefreshRequest{RefreshToken: tok.RefreshToken})
	require.Equal(t, http.StatusUnauthorized, r.status)
	require.Equal(t, apiv1.CodeInvalidRefreshToken, r.env.Error.Code)
	require.Equal(t, int64(2), s.RefreshCalls())
}

func TestAuth_ExpiredAndRevoked(t *testing.T) {
	s, ts := newTestServer(t, nil)
	tok := login(t, ts, "ada@example.com", "correct horse")

	r := call(t, ts, http.MethodGet, apiv1.PathConversations, tok.AccessToken, nil)
	require.Equal(t, http.StatusOK, r.status)

	s.ExpireAccessTokens()
	r = call(t, ts, http.MethodGet, apiv1.PathConversations, tok.AccessToken, nil)
	require.Equal(t, http.StatusUnauthorized, r.status)
	require.Equal(t, apiv1.CodeTokenExpired, r.env.Error.Code)

	fresh := login(t, ts, "ada@example.com", "correct horse")
	s.RevokeSessions("u1")
	r = call(t, ts, http.MethodGet, apiv1.PathConversations, fresh.AccessToken, nil)
	require.Equal(t, apiv1.CodeSessionRevoked, r.env.Error.Code)

	r = call(t, ts, http.MethodGet, apiv1.PathConversations, "garbage", nil)
	require.Equal(t, apiv1.CodeUnauthorized, r.env.Error.Code)
	r = call(t, ts, http.MethodGet, apiv1.PathConversations, "", nil)
	require.Equal(t, apiv1.CodeUnauthorized, r.env.Error.Code)
}

func TestAuth_ClockExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cfg := testConfig()
	cfg.AccessTTL = time.Minute
	s, err := New(cfg, WithNowFunc(func() time.Time { return now }))
	require.NoError(t, err)
	require.NoError(t, s.AddUser("u1", "ada@example.com", "pw"))
	ts := httptest.NewServer(s)
	defer ts.Close()

	tok := login(t, ts, "ada@example.com", "pw")
	now = now.Add(2 * time.Minute)

	r := call(t, ts, http.MethodGet, apiv1.PathConversations, tok.AccessToken, nil)
	require.Equal(t, http.StatusUnauthorized, r.status)
	require.Equal(t, apiv1.CodeTokenExpired, r.env.Error.Code)
}

func TestLogout_RevokesSessionAndRefresh(t *testing.T) {
	_, ts := newTestServer(t, nil)
	tok := login(t, ts, "ada@example.com", "correct horse")

	r := call(t, ts, http.MethodPost, apiv1.PathLogout, tok.AccessToken, nil)
	require.Equal(t, http.StatusOK, r.status)

	r = call(t, ts, http.MethodGet, apiv1.PathConversations, tok.AccessToken, nil)
	require.Equal(t, apiv1.CodeSessionRevoked, r.env.Error.Code)
	r = call(t, ts, http.MethodPost, apiv1.PathRefresh, "", apiv1.RefreshRequest{RefreshToken: tok.RefreshToken})
	require.Equal(t, apiv1.CodeInvalidRefreshToken, r.env.Error.Code)
}

func TestMessages_NewestFirstWithCursor(t *testing.T) {
	s, ts := newTestServer(t, func(c *Config) { c.PageSize = 2 })
	for i := 1; i <= 5; i++ {
		_, err := s.Post("C1", "u2", fmt.Sprintf("m%d", i))
		require.NoError(t, err)
	}
	tok := login(t, ts, "ada@example.com", "correct horse")

	var seqs []int64
	cursor := ""
	for range 5 {
		path := apiv1.MessagesPath("C1")
		if cursor != "" {
			path += "?cursor=" + cursor
		}
		r := call(t, ts, http.MethodGet, path, tok.AccessToken, nil)
		require.Equal(t, http.StatusOK, r.status)
		var page apiv1.Page[apiv1.Message]
		require.NoError(t, json.Unmarshal(r.env.Data, &page))
		for _, m := range page.Items {
			seqs = append(seqs, m.Sequence)
		}
		cursor = page.NextCursor
		if cursor == "" {
			break
		}
	}
	require.Equal(t, []int64{5, 4, 3, 2, 1}, seqs)
}

func TestSend_IdempotentAndUpdatesConversation(t *testing.T) {
	_, ts := newTestServer(t, nil)
	tok := login(t, ts, "ada@example.com", "correct horse")
	body := apiv1.SendMessageRequest{Content: "hello", ClientMsgID: "cm-1"}

	r := call(t, ts, http.MethodPost, apiv1.MessagesPath("C1"), tok.AccessToken, body)
	require.Equal(t, http.StatusCreated, r.status)
	var first apiv1.Message
	require.NoError(t, json.Unmarshal(r.env.Data, &first))
	require.Equal(t, int64(1), first.Sequence)

	r = call(t, ts, http.MethodPost, apiv1.MessagesPath("C1"), tok.AccessToken, body)
	require.Equal(t, http.StatusOK, r.status)
	var again apiv1.Message
	require.NoError(t, json.Unmarshal(r.env.Data, &again))
	require.Equal(t, first.ID, again.ID)

	r = call(t, ts, http.MethodGet, apiv1.PathConversations, tok.AccessToken, nil)
	var page apiv1.Page[apiv1.Conversation]
	require.NoError(t, json.Unmarshal(r.env.Data, &page))
	require.Len(t, page.Items, 1)
	require.Equal(t, "hello", page.Items[0].LastMessagePreview)
	require.Equal(t, 0, page.Items[0].UnreadCount)

	r = call(t, ts, http.MethodPost, apiv1.MessagesPath("C1"), tok.AccessToken, apiv1.SendMessageRequest{})
	require.Equal(t, http.StatusUnprocessableEntity, r.status)

	r = call(t, ts, http.MethodPost, apiv1.MessagesPath("nope"), tok.AccessToken, body)
	require.Equal(t, http.StatusNotFound, r.status)
}

func TestMarkRead(t *testing.T) {
	s, ts := newTestServer(t, nil)
	for i := range 42 {
		_, err := s.Post("C1", "u2", strconv.Itoa(i))
		require.NoError(t, err)
	}
	tok := login(t, ts, "ada@example.com", "correct horse")

	r := call(t, ts, http.MethodPost, apiv1.ReadPath("C1"), tok.AccessToken, apiv1.MarkReadRequest{LastReadSequence: 40})
	require.Equal(t, http.StatusOK, r.status)
	var res apiv1.MarkReadResponse
	require.NoError(t, json.Unmarshal(r.env.Data, &res))
	require.Equal(t, 2, res.UnreadCount)

	r = call(t, ts, http.MethodPost, apiv1.ReadPath("C1"), tok.AccessToken, apiv1.MarkReadRequest{LastReadSequence: 43})
	require.Equal(t, http.StatusUnprocessableEntity, r.status)
}

func TestRateLimitHeadersAndExhaustion(t *testing.T) {
	_, ts := newTestServer(t, func(c *Config) { c.RateLimit = 2 })

	r := call(t, ts, http.MethodPost, apiv1.PathLogin, "", apiv1.LoginRequest{})
	require.Equal(t, "2", r.header.Get(apiv1.HeaderRateLimitLimit))
	require.Equal(t, "1", r.header.Get(apiv1.HeaderRateLimitRemaining))
	require.NotEmpty(t, r.header.Get(apiv1.HeaderRateLimitReset))

	_ = call(t, ts, http.MethodPost, apiv1.PathLogin, "", apiv1.LoginRequest{})
	r = call(t, ts, http.MethodPost, apiv1.PathLogin, "", apiv1.LoginRequest{})
	require.Equal(t, http.StatusTooManyRequests, r.status)
	require.Equal(t, apiv1.CodeRateLimited, r.env.Error.Code)
	require.Equal(t, "0", r.header.Get(apiv1.HeaderRateLimitRemaining))
}

func TestFailNext(t *testing.T) {
	s, ts := newTestServer(t, nil)
	tok := login(t, ts, "ada@example.com", "correct horse")

	s.FailNext(Fault{Method: http.MethodGet, Path: apiv1.PathConversations, Status: 503, Code: apiv1.CodeInternal})
	r := call(t, ts, http.MethodGet, apiv1.PathConversations, tok.AccessToken, nil)
	require.Equal(t, 503, r.status)

	s.FailNext(Fault{Method: http.MethodGet, Path: apiv1.PathConversations, Drop: true})
	req, err := http.NewRequest(http.MethodGet, ts.URL+apiv1.PathConversations, nil)
	require.NoError(t, err)
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	_, err = io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.Error(t, err)

	r = call(t, ts, http.MethodGet, apiv1.PathConversations, tok.AccessToken, nil)
	require.Equal(t, http.StatusOK, r.status)
	require.Equal(t, 3, s.Calls(http.MethodGet, apiv1.PathConversations))
}

func TestWebsocket_FansOutEvents(t *testing.T) {
	s, ts := newTestServer(t, nil)
	bob := login(t, ts, "bob@example.com", "battery staple")
	ada := login(t, ts, "ada@example.com", "correct horse")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + ts.URL[len("http"):] + apiv1.PathRealtime
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		Subprotocols: []string{rtv1.Subprotocol},
		HTTPHeader:   http.Header{"Authorization": {"Bearer " + bob.AccessToken}},
	})
	require.NoError(t, err)
	defer conn.CloseNow()

	read := func() rtv1.Envelope {
		_, data, err := conn.Read(ctx)
		require.NoError(t, err)
		var env rtv1.Envelope
		require.NoError(t, json.Unmarshal(data, &env))
		require.NoError(t, env.Validate())
		return env
	}
	require.Equal(t, rtv1.TypeHelloAck, read().Type)
	require.Eventually(t, func() bool { return s.Connected("u2") == 1 }, time.Second, 10*time.Millisecond)

	r := call(t, ts, http.MethodPost, apiv1.MessagesPath("C1"), ada.AccessToken,
		apiv1.SendMessageRequest{Content: "hi bob", ClientMsgID: "cm-ws"})
	require.Equal(t, http.StatusCreated, r.status)

	env := read()
	require.Equal(t, rtv1.TypeMessageNew, env.Type)
	require.Equal(t, "C1", env.ConvID)
	var p rtv1.MessageNewPayload
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	require.Equal(t, "hi bob", p.Text)
}

func TestWebsocket_RequiresBearer(t *testing.T) {
	_, ts := newTestServer(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + ts.URL[len("http"):] + apiv1.PathRealtime
	_, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{Subprotocols: []string{rtv1.Subprotocol}})
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestConfigValidate(t *testing.T) {
	cfg := testConfig()
	require.NoError(t, cfg.Validate())
	cfg.PageSize = 0
	require.ErrorIs(t, cfg.Validate(), ErrConfig)
}
