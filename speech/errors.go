package speech

import (
	"errors"
	"fmt"
)

// Recognition error codes, named after the browser speech API's.
const (
	CodeNotAllowed   = "not-allowed"
	CodeAudioCapture = "audio-capture"
	CodeNoSpeech     = "no-speech"
	CodeNetwork      = "network"
	CodeAborted      = "aborted"
)

// RecognitionError is a failure reported by a recognizer.
type RecognitionError struct {
	Code    string
	Message string
}

func (e *RecognitionError) Error() string {
	if e.Message == "" {
		return "speech recognition error: " + e.Code
	}
	return fmt.Sprintf("speech recognition error (%s): %s", e.Code, e.Message)
}

var messages = map[string]string{
	CodeNotAllowed:   "No hay permiso para usar el micrófono.",
	CodeAudioCapture: "No se ha encontrado ningún micrófono.",
	CodeNoSpeech:     "No se ha detectado voz. Inténtalo de nuevo.",
	CodeNetwork:      "Error de red en el reconocimiento de voz.",
	CodeAborted:      "El reconocimiento de voz se ha interrumpido.",
}

// Describe returns the message shown to the user for err.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrUnsupported) {
		return ErrUnsupported.Error()
	}
	var recErr *RecognitionError
	if errors.As(err, &recErr) {
		if msg, ok := messages[recErr.Code]; ok {
			return msg
		}
		if recErr.Message != "" {
			return "Error en el reconocimiento de voz: " + recErr.Message
		}
	}
	return "Error en el reconocimiento de voz."
}
