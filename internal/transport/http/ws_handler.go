package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"ascendly-scoring/internal/app"
	"ascendly-scoring/internal/domain"
	"ascendly-scoring/internal/scoring"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type WSHandler struct {
	service   *app.QuizService
	quizzes   app.QuizRepository
	log       *zap.Logger
	boardSize int
	upgrader  websocket.Upgrader
}

func NewWSHandler(service *app.QuizService, quizzes app.QuizRepository, log *zap.Logger, boardSize int) *WSHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &WSHandler{
		service:   service,
		quizzes:   quizzes,
		log:       log,
		boardSize: boardSize,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	QuestionID     string  `json:"questionId"`
	OptionID       string  `json:"optionId"`
	ElapsedSeconds float64 `json:"elapsedSeconds"`
}

// optionView and questionView hide which option is correct.
type optionView struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type questionView struct {
	ID      string       `json:"id"`
	Prompt  string       `json:"prompt"`
	Options []optionView `json:"options"`
}

type startedPayload struct {
	Progress  domain.QuizProgress `json:"progress"`
	Questions []questionView      `json:"questions"`
}

type answerResult struct {
	QuestionID    string                 `json:"questionId"`
	Correct       bool                   `json:"correct"`
	Ordinal       int                    `json:"attemptOrdinal"`
	Points        scoring.QuestionPoints `json:"points"`
	SessionPoints int                    `json:"sessionPoints"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades to a websocket, starts or resumes the unit and relays answers to the service.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	accountID, class, unit := q.Get("accountId"), q.Get("class"), q.Get("unit")
	if accountID == "" || class == "" || unit == "" {
		http.Error(w, "missing accountId, class, or unit", http.StatusBadRequest)
		return
	}
	fresh, _ := strconv.ParseBool(q.Get("fresh"))
	log := h.log.With(zap.String("account_id", accountID), zap.String("class", class), zap.String("unit", unit))

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx := r.Context()
	progress, err := h.service.StartQuiz(ctx, accountID, class, unit, fresh)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	quiz, err := h.quizzes.GetQuiz(ctx, domain.QuizID(class, unit))
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}

	send := make(chan outboundMessage[any], 16)
	writerDone := make(chan struct{})

	// single writer; gorilla connections do not allow concurrent writes
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Debug("ws write error", zap.Error(err))
				return
			}
		}
	}()

	sendErr := func(err error) {
		send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
	}
	sendBoard := func() {
		board, err := h.service.Leaderboard(ctx, class, h.boardSize)
		if err != nil {
			sendErr(err)
			return
		}
		send <- outboundMessage[any]{Type: "leaderboard", Payload: board}
	}

	send <- outboundMessage[any]{Type: "started", Payload: startedPayload{Progress: progress, Questions: viewQuestions(quiz)}}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid answer payload"}}
				continue
			}
			out, err := h.service.SubmitAnswer(ctx, accountID, class, unit, domain.AnswerSubmission{
				QuestionID:     payload.QuestionID,
				OptionID:       payload.OptionID,
				ElapsedSeconds: payload.ElapsedSeconds,
			})
			if err != nil {
				sendErr(err)
				continue
			}
			send <- outboundMessage[any]{Type: "answerResult", Payload: answerResult{
				QuestionID:    out.QuestionID,
				Correct:       out.Correct,
				Ordinal:       out.Ordinal,
				Points:        out.Points,
				SessionPoints: out.Progress.PointsEarned,
			}}
			if out.Completed != nil {
				send <- outboundMessage[any]{Type: "completed", Payload: out.Completed}
				sendBoard()
			}
		case "save":
			summary, err := h.service.SaveForLater(ctx, accountID, class, unit)
			if err != nil {
				sendErr(err)
				continue
			}
			send <- outboundMessage[any]{Type: "saved", Payload: summary}
		case "abandon":
			if err := h.service.AbandonQuiz(ctx, accountID, class, unit); err != nil {
				sendErr(err)
				continue
			}
			send <- outboundMessage[any]{Type: "abandoned", Payload: struct{}{}}
		case "leaderboard":
			sendBoard()
		default:
			send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
		}
	}

	close(send)
	<-writerDone
}

func viewQuestions(quiz domain.Quiz) []questionView {
	out := make([]questionView, len(quiz.Questions))
	for i, q := range quiz.Questions {
		opts := make([]optionView, len(q.Options))
		for j, o := range q.Options {
			opts[j] = optionView{ID: o.ID, Text: o.Text}
		}
		out[i] = questionView{ID: q.ID, Prompt: q.Prompt, Options: opts}
	}
	return out
}
