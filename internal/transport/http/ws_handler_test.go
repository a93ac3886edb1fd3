package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ascendly-scoring/internal/app"
	"ascendly-scoring/internal/domain"
	"ascendly-scoring/internal/infra/memory"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*httptest.Server, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	store.PutAccount(domain.Account{ID: "a1", Role: domain.RoleStudent, Classes: []string{"algebra"}})
	quizRepo := memory.NewQuizRepository(memory.NewStaticQuizLoader(sampleQuiz()), time.Minute)
	service := app.NewQuizService(store, quizRepo, app.WithLeaderboard(memory.NewLeaderboard()))

	mux := http.NewServeMux()
	Routes(mux, service, quizRepo, nil, 10)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, store
}

func dial(t *testing.T, server *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	u := "ws" + server.URL[len("http"):] + "/ws?" + query
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestWebSocketAnswerFlow(t *testing.T) {
	server, store := newTestServer(t)
	conn := dial(t, server, "accountId=a1&class=algebra&unit=unit-1")

	_, payload := readNext(t, conn, "started")
	var started startedPayload
	require.NoError(t, json.Unmarshal(payload, &started))
	assert.Equal(t, domain.StateInProgress, started.Progress.State)
	require.Len(t, started.Questions, 2)
	assert.Equal(t, "q1", started.Questions[0].ID)
	assert.NotContains(t, string(payload), `"correct":`)

	sendAnswer(t, conn, "q1", "o2")
	_, payload = readNext(t, conn, "answerResult")
	var result answerResult
	require.NoError(t, json.Unmarshal(payload, &result))
	assert.True(t, result.Correct)
	assert.Equal(t, 1, result.Ordinal)
	assert.Equal(t, 12, result.Points.FinalPoints)
	assert.Equal(t, 12, result.SessionPoints)

	sendAnswer(t, conn, "q2", "o1")
	readNext(t, conn, "answerResult")
	_, payload = readNext(t, conn, "completed")
	var summary app.CommitSummary
	require.NoError(t, json.Unmarshal(payload, &summary))
	assert.Equal(t, domain.StateCompleted, summary.State)
	assert.Positive(t, summary.ClassScore)

	_, payload = readNext(t, conn, "leaderboard")
	var board domain.Leaderboard
	require.NoError(t, json.Unmarshal(payload, &board))
	require.Len(t, board.Entries, 1)
	assert.Equal(t, "a1", board.Entries[0].AccountID)
	assert.Equal(t, summary.ClassScore, board.Entries[0].Score)

	acct, err := store.GetAccount(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, summary.ClassScore, acct.Scores["algebra"])
}

func TestWebSocketSaveForLater(t *testing.T) {
	server, _ := newTestServer(t)
	conn := dial(t, server, "accountId=a1&class=algebra&unit=unit-1")
	readNext(t, conn, "started")

	sendAnswer(t, conn, "q1", "o2")
	readNext(t, conn, "answerResult")

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "save"}))
	_, payload := readNext(t, conn, "saved")
	var summary app.CommitSummary
	require.NoError(t, json.Unmarshal(payload, &summary))
	assert.Equal(t, domain.StateSavedForLater, summary.State)

	// answering a saved unit is refused until it is resumed
	sendAnswer(t, conn, "q2", "o1")
	readNext(t, conn, "error")

	resumed := dial(t, server, "accountId=a1&class=algebra&unit=unit-1")
	_, payload = readNext(t, resumed, "started")
	var started startedPayload
	require.NoError(t, json.Unmarshal(payload, &started))
	assert.Equal(t, domain.StateInProgress, started.Progress.State)
	assert.Equal(t, []int{0}, started.Progress.Answered())
	assert.Zero(t, started.Progress.PointsEarned)
}

func TestWebSocketRejectsUnenrolled(t *testing.T) {
	server, _ := newTestServer(t)
	conn := dial(t, server, "accountId=a1&class=biology&unit=unit-1")
	_, payload := readNext(t, conn, "error")
	assert.Contains(t, string(payload), domain.ErrNotEnrolled.Error())
}

func TestWebSocketRequiresParams(t *testing.T) {
	server, _ := newTestServer(t)
	resp, err := http.Get(server.URL + "/ws?accountId=a1")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLeaderboardEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/leaderboard")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(server.URL + "/leaderboard?class=algebra&limit=5")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var board domain.Leaderboard
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&board))
	assert.Equal(t, "algebra", board.Class)
	assert.Empty(t, board.Entries)
}

func sendAnswer(t *testing.T, conn *websocket.Conn, questionID, optionID string) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(map[string]any{
		"type": "answer",
		"payload": map[string]any{
			"questionId":     questionID,
			"optionId":       optionID,
			"elapsedSeconds": 0,
		},
	}))
}

func readNext(t *testing.T, conn *websocket.Conn, expect string) (string, json.RawMessage) {
	t.Helper()
	var msg struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if expect != "" && msg.Type != expect {
		t.Fatalf("expected type %s, got %s (%s)", expect, msg.Type, msg.Payload)
	}
	return msg.Type, msg.Payload
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		Class: "algebra",
		Unit:  "unit-1",
		Questions: []domain.Question{
			{
				ID:     "q1",
				Prompt: "What is 2 + 2?",
				Options: []domain.Option{
					{ID: "o1", Text: "3"},
					{ID: "o2", Text: "4", Correct: true},
					{ID: "o3", Text: "5"},
				},
			},
			{
				ID:     "q2",
				Prompt: "What is 3 * 3?",
				Options: []domain.Option{
					{ID: "o1", Text: "9", Correct: true},
					{ID: "o2", Text: "6"},
				},
			},
		},
	}
}
