// Package web exposes the assistant over HTTP and a speech websocket.
package web

import (
	"context"
	"time"

	"finassist/chat"
	"finassist/config"
	"finassist/orchestrator"
	"finassist/speech"
	"finassist/storage"
	"finassist/tools"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
)

// Options wires the server to the rest of the application.
type Options struct {
	Orchestrator *orchestrator.Orchestrator
	Executor     *tools.Executor
	Sessions     *chat.Manager
	// Archive is optional; without it the conversation endpoints return empty lists.
	Archive *storage.Archive
	// Ledgers backs the savings goal endpoints. Nil disables them.
	Ledgers tools.LedgerSource
	// Recognizer builds a speech backend per websocket connection. Nil disables speech.
	Recognizer func() speech.Recognizer

	AllowedOrigins string
	MaxToolRounds  int
}

type Server struct {
	app           *fiber.App
	orchestrator  *orchestrator.Orchestrator
	executor      *tools.Executor
	sessions      *chat.Manager
	archive       *storage.Archive
	ledgers       tools.LedgerSource
	recognizer    func() speech.Recognizer
	maxToolRounds int
}

func NewServer(opts Options) *Server {
	s := &Server{
		orchestrator:  opts.Orchestrator,
		executor:      opts.Executor,
		sessions:      opts.Sessions,
		archive:       opts.Archive,
		ledgers:       opts.Ledgers,
		recognizer:    opts.Recognizer,
		maxToolRounds: opts.MaxToolRounds,
	}

	app := fiber.New(fiber.Config{
		AppName:               "finassist",
		DisableStartupMessage: true,
		ReadTimeout:           2 * time.Minute,
		ErrorHandler:          errorHandler,
	})

	app.Use(recover.New())
	origins := opts.AllowedOrigins
	if origins == "" {
		origins = "*"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowHeaders: "Origin, Content-Type, Accept, " + userHeader,
	}))

	api := app.Group("/api")
	api.Get("/health", s.handleHealth)
	api.Post("/chat", s.handleChat)
	api.Post("/functions/execute", s.handleExecute)
	api.Get("/tools", s.handleListTools)

	api.Get("/sessions", s.handleListSessions)
	api.Post("/sessions", s.handleCreateSession)
	api.Get("/sessions/:id/messages", s.handleSessionMessages)
	api.Post("/sessions/:id/messages", s.handleSubmit)
	api.Post("/sessions/:id/resume", s.handleResume)
	api.Delete("/sessions/:id", s.handleCloseSession)

	api.Get("/conversations", s.handleListConversations)
	api.Get("/conversations/:id", s.handleGetConversation)
	api.Delete("/conversations/:id", s.handleDeleteConversation)

	api.Get("/goals", s.handleListGoals)
	api.Post("/goals", s.handleCreateGoal)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/speech", websocket.New(s.handleSpeechWS))

	s.app = app
	return s
}

// App returns the underlying fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Listen(addr string) error {
	config.Debugf("[Web] Listening on %s", addr)
	return s.app.Listen(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
