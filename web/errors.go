package web

import (
	"errors"

	"finassist/chat"
	"finassist/config"
	"finassist/orchestrator"
	"finassist/storage"

	"github.com/gofiber/fiber/v2"
)

// errorResponse is the body of every non-2xx API answer.
type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Retryable bool   `json:"retryable"`
}

// apiError classifies err into a status code and a user-facing body.
func apiError(err error) (int, errorResponse) {
	var unavailable *orchestrator.UnavailableError
	switch {
	case errors.Is(err, chat.ErrUnauthenticated):
		return fiber.StatusUnauthorized, errorResponse{Error: "Se requiere identificar al usuario.", Code: "Unauthenticated"}
	case errors.As(err, &unavailable):
		return fiber.StatusBadGateway, errorResponse{
			Error:     "El asistente no está disponible en este momento. Inténtalo de nuevo.",
			Code:      "ModelUnavailable",
			Retryable: unavailable.Retryable(),
		}
	case errors.Is(err, orchestrator.ErrModelUnavailable):
		return fiber.StatusBadGateway, errorResponse{Error: "El asistente no está disponible en este momento. Inténtalo de nuevo.", Code: "ModelUnavailable", Retryable: true}
	case errors.Is(err, orchestrator.ErrModelProtocol):
		return fiber.StatusBadGateway, errorResponse{Error: "El asistente devolvió una respuesta no válida.", Code: "ModelProtocolError", Retryable: true}
	case errors.Is(err, chat.ErrBusy):
		return fiber.StatusConflict, errorResponse{Error: "Espera a que termine la respuesta anterior.", Code: "Busy", Retryable: true}
	case errors.Is(err, chat.ErrSessionNotFound):
		return fiber.StatusNotFound, errorResponse{Error: "Conversación no encontrada.", Code: "NotFound"}
	case errors.Is(err, chat.ErrClosed):
		return fiber.StatusGone, errorResponse{Error: "La conversación ha terminado.", Code: "Closed"}
	case errors.Is(err, chat.ErrEmptyMessage):
		return fiber.StatusBadRequest, errorResponse{Error: "El mensaje está vacío.", Code: "EmptyMessage"}
	case errors.Is(err, storage.ErrInvalidGoal):
		return fiber.StatusBadRequest, errorResponse{Error: "La meta de ahorro necesita un nombre y un objetivo positivo.", Code: "InvalidGoal"}
	case errors.Is(err, storage.ErrConversationNotFound):
		return fiber.StatusNotFound, errorResponse{Error: "Conversación no encontrada.", Code: "NotFound"}
	case errors.Is(err, chat.ErrNothingToResume):
		return fiber.StatusConflict, errorResponse{Error: "No hay ninguna respuesta pendiente.", Code: "NothingToResume"}
	}

	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code, errorResponse{Error: fe.Message, Code: "BadRequest"}
	}
	return fiber.StatusInternalServerError, errorResponse{Error: "Error interno.", Code: "Internal"}
}

func errorHandler(c *fiber.Ctx, err error) error {
	status, body := apiError(err)
	if status >= fiber.StatusInternalServerError {
		config.Debugf("[Web] %s %s: %v", c.Method(), c.Path(), err)
	}
	return c.Status(status).JSON(body)
}
