package web

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/manav-chan/tic-tac-toe/internal/app"
	"github.com/manav-chan/tic-tac-toe/internal/domain"
)

func newTestServer(t *testing.T) (*app.Service, http.Handler) {
	t.Helper()
	s := app.NewService()
	h := NewServer(s, Options{})
	return s, h
}

// newOwnedGame creates a game owned by a fresh player id.
func newOwnedGame(t *testing.T, svc *app.Service) (*app.GameState, *http.Cookie) {
	t.Helper()
	pid := uuid.NewString()
	gs, err := svc.CreateGame(pid)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return gs, &http.Cookie{Name: "player_id", Value: pid}
}

func postForm(t *testing.T, h http.Handler, path string, form url.Values, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("POST %s: expected 200, got %d", path, rr.Code)
	}
	return rr
}

func TestIndexPage(t *testing.T) {
	_, h := newTestServer(t)
	req := httptest.NewRequest("GET", "/", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "<form") || !strings.Contains(body, "action=\"/game\"") {
		t.Fatalf("index should contain create form; got body: %q", body)
	}
}

func TestHealthz(t *testing.T) {
	_, h := newTestServer(t)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/healthz", nil))
	if rr.Code != http.StatusOK || rr.Body.String() != "ok" {
		t.Fatalf("unexpected health response %d %q", rr.Code, rr.Body.String())
	}
}

func TestCreateRedirectsAndOwnsGame(t *testing.T) {
	svc, h := newTestServer(t)
	req := httptest.NewRequest("POST", "/game", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("expected redirect, got %d", rr.Code)
	}
	loc := rr.Result().Header.Get("Location")
	if !strings.HasPrefix(loc, "/game/") {
		t.Fatalf("expected redirect to /game/{id}, got %q", loc)
	}
	var playerID string
	for _, c := range rr.Result().Cookies() {
		if c.Name == "player_id" {
			playerID = c.Value
		}
	}
	if playerID == "" {
		t.Fatalf("expected player_id cookie to be set")
	}
	gs, ok := svc.Get(strings.TrimPrefix(loc, "/game/"))
	if !ok || gs.Owner != playerID {
		t.Fatalf("expected game owned by cookie player")
	}
}

func TestGamePage(t *testing.T) {
	svc, h := newTestServer(t)
	gs, cookie := newOwnedGame(t, svc)

	req := httptest.NewRequest("GET", "/game/"+url.PathEscape(gs.ID), nil)
	req.AddCookie(cookie)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "hx-ext=\"sse\"") || !strings.Contains(body, "/game/"+gs.ID+"/events") {
		t.Fatalf("expected SSE wiring in page; got body: %q", body)
	}
	if strings.Count(body, "class=\"cell") != 9 {
		t.Fatalf("expected 9 cells in page")
	}
	if !strings.Contains(body, "Enable unbeatable AI") {
		t.Fatalf("expected difficulty toggle in page")
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/game/missing", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown game, got %d", rr.Code)
	}
}

func TestPlayEndpointAppliesBothMoves(t *testing.T) {
	svc, h := newTestServer(t)
	gs, cookie := newOwnedGame(t, svc)

	rr := postForm(t, h, "/game/"+gs.ID+"/play", url.Values{"cell": {"4"}}, cookie)
	if !strings.Contains(rr.Body.String(), "id=\"board\"") {
		t.Fatalf("expected board fragment, got %q", rr.Body.String())
	}
	latest, _ := svc.Get(gs.ID)
	if latest.Board[4] != domain.Human || latest.Board.Marks() != 2 {
		t.Fatalf("expected human and computer marks, board=%v", latest.Board)
	}
}

func TestPlayErrorsRenderMessages(t *testing.T) {
	svc, h := newTestServer(t)
	gs, cookie := newOwnedGame(t, svc)

	rr := postForm(t, h, "/game/"+gs.ID+"/play", url.Values{"cell": {"4"}}, &http.Cookie{Name: "player_id", Value: uuid.NewString()})
	if !strings.Contains(rr.Body.String(), "You are a spectator") {
		t.Fatalf("expected spectator message, got %q", rr.Body.String())
	}
	rr = postForm(t, h, "/game/"+gs.ID+"/play", url.Values{"cell": {"x"}}, cookie)
	if !strings.Contains(rr.Body.String(), "Invalid move") {
		t.Fatalf("expected invalid move message, got %q", rr.Body.String())
	}
	if latest, _ := svc.Get(gs.ID); latest.Board.Marks() != 0 {
		t.Fatalf("rejected moves changed the board")
	}
}

func TestPlayToCompletionShowsResult(t *testing.T) {
	svc, h := newTestServer(t)
	gs, cookie := newOwnedGame(t, svc)

	var body string
	for i := 0; i < 5; i++ {
		latest, _ := svc.Get(gs.ID)
		if latest.Phase == app.Terminal {
			break
		}
		cell := latest.Board.EmptyCells()[0]
		body = postForm(t, h, "/game/"+gs.ID+"/play", url.Values{"cell": {strconv.Itoa(cell)}}, cookie).Body.String()
	}
	latest, _ := svc.Get(gs.ID)
	if latest.Phase != app.Terminal {
		t.Fatalf("expected finished game after five human moves")
	}
	if !strings.Contains(body, "You win") && !strings.Contains(body, "You lose") && !strings.Contains(body, "Tie Game!") {
		t.Fatalf("expected result message, got %q", body)
	}
	if !strings.Contains(body, "/retry") {
		t.Fatalf("expected replay control")
	}
	sc := latest.Score
	if sc.Human+sc.Computer+sc.Ties != 1 {
		t.Fatalf("expected exactly one tallied game, got %+v", sc)
	}

	postForm(t, h, "/game/"+gs.ID+"/retry", nil, cookie)
	latest, _ = svc.Get(gs.ID)
	if latest.Board != (domain.Board{}) || latest.Score != sc {
		t.Fatalf("retry should clear board and keep score")
	}
	postForm(t, h, "/game/"+gs.ID+"/score/reset", nil, cookie)
	if latest, _ = svc.Get(gs.ID); latest.Score != (app.Score{}) {
		t.Fatalf("expected zero score after reset, got %+v", latest.Score)
	}
}

func TestDifficultyToggle(t *testing.T) {
	svc, h := newTestServer(t)
	gs, cookie := newOwnedGame(t, svc)

	rr := postForm(t, h, "/game/"+gs.ID+"/difficulty", url.Values{"mode": {"optimal"}}, cookie)
	if !strings.Contains(rr.Body.String(), "Disable unbeatable AI") {
		t.Fatalf("expected disable label after enabling, got %q", rr.Body.String())
	}
	if latest, _ := svc.Get(gs.ID); latest.Mode != domain.Optimal {
		t.Fatalf("expected optimal mode, got %v", latest.Mode)
	}
	rr = postForm(t, h, "/game/"+gs.ID+"/difficulty", url.Values{"mode": {"nightmare"}}, cookie)
	if !strings.Contains(rr.Body.String(), "Unknown difficulty") {
		t.Fatalf("expected unknown difficulty message, got %q", rr.Body.String())
	}
}

func TestEventsEndpointSSEHeaders(t *testing.T) {
	svc, h := newTestServer(t)
	gs, _ := newOwnedGame(t, svc)
	req := httptest.NewRequest("GET", "/game/"+gs.ID+"/events", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	ct := rr.Result().Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "text/event-stream") {
		io.Copy(io.Discard, rr.Result().Body)
		t.Fatalf("expected text/event-stream, got %q", ct)
	}
}

func TestWriteEventPrefixesEveryLine(t *testing.T) {
	var buf bytes.Buffer
	writeEvent(&buf, "board", []byte("\n<div>\n  x\n</div>\n"))
	want := "event: board\ndata: <div>\ndata:   x\ndata: </div>\n\n"
	if buf.String() != want {
		t.Fatalf("unexpected event:\n%q\nwant\n%q", buf.String(), want)
	}
}
