package web

import (
	"errors"
	"strings"

	"finassist/chat"
	"finassist/config"
	"finassist/model"
	"finassist/storage"
	"finassist/tools"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const userHeader = "X-User-ID"

// requestUser reads the caller's identity from the header or the query.
// Bodies may carry it as userId too; handlers pass that as fallback.
func requestUser(c *fiber.Ctx, fallback string) string {
	if id := strings.TrimSpace(c.Get(userHeader)); id != "" {
		return id
	}
	if id := strings.TrimSpace(c.Query("userId")); id != "" {
		return id
	}
	return strings.TrimSpace(fallback)
}

func parseBody(c *fiber.Ctx, v any) error {
	if len(c.Body()) == 0 {
		return nil
	}
	if err := c.BodyParser(v); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	return nil
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":       "ok",
		"model":        s.orchestrator.Model(),
		"toolsEnabled": s.orchestrator.ToolsEnabled(),
		"speech":       s.recognizer != nil,
	})
}

type chatRequest struct {
	Messages []model.Message `json:"messages"`
	UserID   string          `json:"userId"`
}

// handleChat is the stateless round trip: the client owns the history and
// executes requested tools through /api/functions/execute.
func (s *Server) handleChat(c *fiber.Ctx) error {
	var req chatRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if requestUser(c, req.UserID) == "" {
		return chat.ErrUnauthenticated
	}
	if len(req.Messages) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "messages are required")
	}

	history := pairToolMessages(req.Messages)
	reply, err := s.orchestrator.Converse(c.UserContext(), history)
	if err != nil {
		return err
	}

	// A tool requested once the turn has used its rounds is answered as final.
	if reply.NeedsToolCall() && chat.ToolRoundsSinceUser(history) < s.maxToolRounds {
		return c.JSON(chatResponse{
			Message:           viewMessage(reply.Message),
			NeedsFunctionCall: true,
			FunctionCall:      viewCall(reply.ToolCall),
		})
	}
	return c.JSON(chatResponse{Message: viewMessage(reply.Final())})
}

// pairToolMessages fills in call IDs that stateless clients leave out so
// every tool result is linked to the call before it.
func pairToolMessages(messages []model.Message) []model.Message {
	history := make([]model.Message, len(messages))
	var last *model.ToolCall
	for i, msg := range messages {
		if msg.ToolCall != nil {
			call := *msg.ToolCall
			if call.ID == "" {
				call.ID = "call_" + uuid.New().String()
			}
			msg.ToolCall = &call
			last = &call
		}
		if msg.Role == model.RoleTool && last != nil {
			if msg.ToolCallID == "" {
				msg.ToolCallID = last.ID
			}
			if msg.ToolName == "" {
				msg.ToolName = last.Name
			}
		}
		history[i] = msg
	}
	return history
}

type executeRequest struct {
	UserID    string         `json:"userId"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
	CallID    string         `json:"callId"`
}

func (s *Server) handleExecute(c *fiber.Ctx) error {
	var req executeRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	call := model.ToolCall{ID: req.CallID, Name: req.Name, Arguments: req.Arguments}
	result := s.executor.Execute(c.UserContext(), call, tools.Scope{UserID: requestUser(c, req.UserID)})
	if errors.Is(result.Err(), tools.ErrUnauthenticated) {
		return c.Status(fiber.StatusUnauthorized).JSON(result)
	}
	return c.JSON(result)
}

func (s *Server) handleListTools(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"tools": s.executor.Registry().List()})
}

type sessionRequest struct {
	UserID  string `json:"userId"`
	Content string `json:"content"`
}

func (s *Server) handleCreateSession(c *fiber.Ctx) error {
	var req sessionRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	session, err := s.sessions.Create(requestUser(c, req.UserID))
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(session.Info())
}

func (s *Server) handleListSessions(c *fiber.Ctx) error {
	userID := requestUser(c, "")
	if userID == "" {
		return chat.ErrUnauthenticated
	}
	return c.JSON(fiber.Map{"sessions": s.sessions.List(userID)})
}

// session resolves :id for the calling user.
func (s *Server) session(c *fiber.Ctx, bodyUser string) (*chat.Session, error) {
	userID := requestUser(c, bodyUser)
	if userID == "" {
		return nil, chat.ErrUnauthenticated
	}
	return s.sessions.Get(userID, c.Params("id"))
}

func (s *Server) handleSessionMessages(c *fiber.Ctx) error {
	session, err := s.session(c, "")
	if err != nil {
		return err
	}
	info := session.Info()
	return c.JSON(sessionView{
		ID:           info.ID,
		State:        info.State,
		Interrupted:  info.Interrupted,
		CreatedAt:    info.CreatedAt,
		LastActive:   info.LastActive,
		Messages:     viewMessages(session.Messages()),
		MessageCount: info.MessageCount,
	})
}

func (s *Server) handleSubmit(c *fiber.Ctx) error {
	var req sessionRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	session, err := s.session(c, req.UserID)
	if err != nil {
		return err
	}

	turn, err := session.Submit(c.UserContext(), req.Content)
	if err != nil {
		return err
	}
	return c.JSON(viewTurn(turn))
}

func (s *Server) handleResume(c *fiber.Ctx) error {
	var req sessionRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	session, err := s.session(c, req.UserID)
	if err != nil {
		return err
	}

	turn, err := session.Resume(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(viewTurn(turn))
}

func (s *Server) handleCloseSession(c *fiber.Ctx) error {
	userID := requestUser(c, "")
	if userID == "" {
		return chat.ErrUnauthenticated
	}
	if err := s.sessions.Close(userID, c.Params("id")); err != nil {
		if errors.Is(err, chat.ErrSessionNotFound) {
			return err
		}
		// The session is gone either way; only archiving failed.
		config.Debugf("[Web] Closing session %s: %v", c.Params("id"), err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func viewTurn(turn *chat.Turn) turnView {
	v := turnView{
		Reply:    viewMessage(turn.Reply),
		ToolCall: viewCall(turn.ToolCall),
		Messages: viewMessages(turn.Messages),
	}
	if turn.ToolResult != nil {
		v.ToolResult = turn.ToolResult
	}
	return v
}

func (s *Server) handleListConversations(c *fiber.Ctx) error {
	userID := requestUser(c, "")
	if userID == "" {
		return chat.ErrUnauthenticated
	}
	if s.archive == nil {
		return c.JSON(fiber.Map{"conversations": []any{}})
	}

	if q := strings.TrimSpace(c.Query("q")); q != "" {
		matches, err := s.archive.Search(userID, q)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"matches": matches})
	}

	convs, err := s.archive.List(userID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"conversations": convs})
}

func (s *Server) handleGetConversation(c *fiber.Ctx) error {
	userID := requestUser(c, "")
	if userID == "" {
		return chat.ErrUnauthenticated
	}
	if s.archive == nil {
		return fiber.ErrNotFound
	}
	conv, err := s.archive.Load(userID, c.Params("id"))
	if errors.Is(err, storage.ErrConversationNotFound) {
		return fiber.ErrNotFound
	}
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"id":        conv.ID,
		"title":     conv.Title,
		"model":     conv.Model,
		"createdAt": conv.CreatedAt,
		"updatedAt": conv.UpdatedAt,
		"messages":  viewMessages(conv.Messages),
	})
}

func (s *Server) handleDeleteConversation(c *fiber.Ctx) error {
	userID := requestUser(c, "")
	if userID == "" {
		return chat.ErrUnauthenticated
	}
	if s.archive == nil {
		return fiber.ErrNotFound
	}
	if err := s.archive.Delete(userID, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ledger resolves the caller's ledger for the goal endpoints.
func (s *Server) ledger(c *fiber.Ctx, bodyUser string) (storage.Ledger, error) {
	if s.ledgers == nil {
		return nil, fiber.ErrNotFound
	}
	userID := requestUser(c, bodyUser)
	if userID == "" {
		return nil, chat.ErrUnauthenticated
	}
	return s.ledgers.ForUser(userID)
}

func (s *Server) handleListGoals(c *fiber.Ctx) error {
	ledger, err := s.ledger(c, "")
	if err != nil {
		return err
	}
	goals, err := ledger.ListGoals(c.UserContext(), c.QueryBool("completed", true))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"goals": goals, "count": len(goals)})
}

type goalRequest struct {
	UserID        string  `json:"userId"`
	Name          string  `json:"name"`
	TargetAmount  float64 `json:"targetAmount"`
	CurrentAmount float64 `json:"currentAmount"`
	Deadline      string  `json:"deadline"`
}

func (s *Server) handleCreateGoal(c *fiber.Ctx) error {
	var req goalRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	ledger, err := s.ledger(c, req.UserID)
	if err != nil {
		return err
	}

	goal, err := ledger.CreateGoal(c.UserContext(), storage.SavingsGoal{
		Name:          req.Name,
		TargetAmount:  req.TargetAmount,
		CurrentAmount: req.CurrentAmount,
		Deadline:      req.Deadline,
		Completed:     req.TargetAmount > 0 && req.CurrentAmount >= req.TargetAmount,
	})
	if err != nil {
		return err
	}
	config.Debugf("[Web] Created savings goal %s for %s", goal.ID, ledger.UserID())
	return c.Status(fiber.StatusCreated).JSON(goal)
}
