package web

import (
	"bytes"
	"html/template"
	"net/http"

	"github.com/google/uuid"
	"github.com/manav-chan/tic-tac-toe/internal/app"
	"github.com/manav-chan/tic-tac-toe/internal/domain"
)

type templates struct {
	base  *template.Template
	game  *template.Template
	board *template.Template
	index *template.Template
}

func funcs() template.FuncMap {
	return template.FuncMap{
		"iter": func(n int) []int {
			a := make([]int, n)
			for i := range a {
				a[i] = i
			}
			return a
		},
		"add": func(a, b int) int { return a + b },
		"mul": func(a, b int) int { return a * b },
	}
}

func loadTemplates() *templates {
	base := template.Must(template.New("base").Funcs(funcs()).Parse(`<!doctype html><html><head>
<meta charset="utf-8"/>
<title>Tic Tac Toe</title>
<script src="https://unpkg.com/htmx.org@1.9.12"></script>
<script src="https://unpkg.com/htmx.org@1.9.12/dist/ext/sse.js"></script>
<style>
.cell{width:4em;height:4em;font-size:1.5em}
.cell.win-human{background-color:green}
.cell.win-computer{background-color:red}
.cell.tie{background-color:aqua}
</style>
</head><body>{{template "content" .}}</body></html>`))
	// Define the board template within the same set so game can include it
	template.Must(base.New("board").Funcs(funcs()).Parse(boardTemplate))
	index := template.Must(template.Must(base.Clone()).New("content").Parse(`<h1>Tic Tac Toe</h1><form action="/game" method="post"><button>Play against the computer</button></form>`))
	game := template.Must(template.Must(base.Clone()).New("content").Parse(`
<div hx-ext="sse" sse-connect="/game/{{.ID}}/events">
  <div id="board-stream" sse-swap="board" hx-swap="innerHTML">{{template "board" .Board}}</div>
</div>`))
	// Standalone board template used for fragment rendering
	board := template.Must(template.New("board_only").Funcs(funcs()).Parse(boardTemplate))
	return &templates{base: base, game: game, board: board, index: index}
}

func renderTemplate(t *template.Template, name string, data any) []byte {
	var buf bytes.Buffer
	if name == "" {
		_ = t.Execute(&buf, data)
	} else {
		_ = t.ExecuteTemplate(&buf, name, data)
	}
	return buf.Bytes()
}

const boardTemplate = `
<div id="board" class="{{.Phase}}">
  {{if .Error}}
  <div class="alert">{{.Error}}</div>
  {{end}}
  <div class="score">
    You <span class="hu">{{.Score.Human}}</span>
    Computer <span class="ai">{{.Score.Computer}}</span>
    Ties <span class="ties">{{.Score.Ties}}</span>
  </div>
  {{/* 3x3 grid */}}
  {{range $r := iter 3}}
  <div class="row">
    {{range $c := iter 3}}
      {{with index $.Cells (add (mul $r 3) $c)}}
      <form hx-post="/game/{{$.ID}}/play" hx-target="#board" hx-swap="outerHTML" method="post">
        <input type="hidden" name="cell" value="{{.Index}}">
        <button type="submit" id="{{.Index}}" class="cell {{.Class}}"{{if not .Playable}} disabled{{end}}>{{.Symbol}}</button>
      </form>
      {{end}}
    {{end}}
  </div>
  {{end}}
  {{if .Message}}
  <div class="msg">
    <span class="text">{{.Message}}</span>
    <form hx-post="/game/{{.ID}}/retry" hx-target="#board" hx-swap="outerHTML" method="post"><button>Replay</button></form>
  </div>
  {{end}}
  <form hx-post="/game/{{.ID}}/difficulty" hx-target="#board" hx-swap="outerHTML" method="post">
    <input type="hidden" name="mode" value="{{.NextMode}}">
    <button id="aibtn">{{.Toggle}}</button>
  </form>
  <form hx-post="/game/{{.ID}}/score/reset" hx-target="#board" hx-swap="outerHTML" method="post"><button>Reset score</button></form>
</div>
`

type cellView struct {
	Index    int
	Symbol   string
	Class    string
	Playable bool
}

type boardView struct {
	ID       string
	Phase    string
	Cells    []cellView
	Score    app.Score
	Message  string
	Toggle   string
	NextMode string
	Error    string
}

func newBoardView(gs app.GameState, errMsg string) boardView {
	v := boardView{ID: gs.ID, Phase: gs.Phase.String(), Score: gs.Score, Error: errMsg}
	winning := map[int]bool{}
	for _, idx := range gs.Result.Cells() {
		winning[idx] = true
	}
	for i, c := range gs.Board {
		cv := cellView{Index: i, Symbol: c.String(), Playable: gs.Phase == app.AwaitingHuman && c == domain.Empty}
		switch {
		case winning[i] && gs.Result.Winner == domain.Human:
			cv.Class = "win-human"
		case winning[i]:
			cv.Class = "win-computer"
		case gs.Result.Outcome == domain.Tied:
			cv.Class = "tie"
		}
		v.Cells = append(v.Cells, cv)
	}
	switch {
	case gs.Result.Outcome == domain.Tied:
		v.Message = "Tie Game!"
	case gs.Result.Outcome == domain.Won && gs.Result.Winner == domain.Human:
		v.Message = "You win"
	case gs.Result.Outcome == domain.Won:
		v.Message = "You lose"
	}
	if gs.Mode == domain.Optimal {
		v.Toggle, v.NextMode = "Disable unbeatable AI", domain.Random.String()
	} else {
		v.Toggle, v.NextMode = "Enable unbeatable AI", domain.Optimal.String()
	}
	return v
}

const playerCookie = "player_id"

// playerID returns the cookie identity, or "" when missing or malformed.
func playerID(r *http.Request) string {
	if c, err := r.Cookie(playerCookie); err == nil && app.ValidID(c.Value) {
		return c.Value
	}
	return ""
}

// Helper to set cookie
func ensurePlayerCookie(w http.ResponseWriter, r *http.Request) string {
	if id := playerID(r); id != "" {
		return id
	}
	v := uuid.NewString()
	http.SetCookie(w, &http.Cookie{Name: playerCookie, Value: v, Path: "/", HttpOnly: true, SameSite: http.SameSiteLaxMode})
	return v
}
