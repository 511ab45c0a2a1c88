// Package cli is a terminal front end for a conversation session.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"finassist/chat"
	"finassist/orchestrator"

	markdown "github.com/MichaelMure/go-term-markdown"
	gomarkdown "github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/parser"
)

const (
	cmdExit  = "/salir"
	cmdRetry = "/reintentar"
	cmdHelp  = "/ayuda"
)

// Turner is the part of a chat session the REPL drives.
type Turner interface {
	Submit(ctx context.Context, text string) (*chat.Turn, error)
	Resume(ctx context.Context) (*chat.Turn, error)
	Interrupted() bool
}

type REPL struct {
	session Turner
	in      io.Reader
	out     io.Writer
	width   int

	// lastFailed holds a message whose first round failed and was rolled back.
	lastFailed string
}

func NewREPL(session Turner, in io.Reader, out io.Writer, width int) *REPL {
	if width <= 0 {
		width = 80
	}
	return &REPL{session: session, in: in, out: out, width: width}
}

// Run reads lines until EOF, /salir or ctx is done.
func (r *REPL) Run(ctx context.Context) error {
	fmt.Fprintf(r.out, "Escribe tu pregunta. %s para ver los comandos.\n", cmdHelp)
	scanner := bufio.NewScanner(r.in)

	for {
		fmt.Fprint(r.out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(r.out)
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case cmdExit:
			return nil
		case cmdHelp:
			r.printHelp()
		case cmdRetry:
			r.retry(ctx)
		default:
			r.submit(ctx, line)
		}
	}
}

func (r *REPL) printHelp() {
	fmt.Fprintf(r.out, "  %-12s reintenta la última respuesta fallida\n", cmdRetry)
	fmt.Fprintf(r.out, "  %-12s termina la conversación\n", cmdExit)
}

func (r *REPL) submit(ctx context.Context, text string) {
	turn, err := r.session.Submit(ctx, text)
	if err != nil {
		if !r.session.Interrupted() {
			r.lastFailed = text
		}
		r.printError(err)
		return
	}
	r.lastFailed = ""
	r.printTurn(turn)
}

func (r *REPL) retry(ctx context.Context) {
	if r.session.Interrupted() {
		turn, err := r.session.Resume(ctx)
		if err != nil {
			r.printError(err)
			return
		}
		r.printTurn(turn)
		return
	}
	if r.lastFailed == "" {
		fmt.Fprintln(r.out, "No hay nada que reintentar.")
		return
	}
	r.submit(ctx, r.lastFailed)
}

func (r *REPL) printTurn(turn *chat.Turn) {
	if turn.ToolCall != nil {
		status := "ok"
		if turn.ToolResult != nil && !turn.ToolResult.Success {
			status = "error"
		}
		fmt.Fprintf(r.out, "  · %s (%s)\n", turn.ToolCall.Name, status)
	}
	fmt.Fprint(r.out, Render(turn.Reply.Content, r.width))
}

func (r *REPL) printError(err error) {
	var unavailable *orchestrator.UnavailableError
	switch {
	case errors.As(err, &unavailable) && !unavailable.Retryable():
		fmt.Fprintf(r.out, "El asistente rechazó la petición: %v\n", unavailable.Err)
	case errors.Is(err, orchestrator.ErrModelUnavailable):
		fmt.Fprintf(r.out, "El asistente no está disponible. Escribe %s para intentarlo de nuevo.\n", cmdRetry)
	case errors.Is(err, chat.ErrEmptyMessage):
	default:
		fmt.Fprintf(r.out, "Error: %v\n", err)
	}
}

// Render formats assistant markdown for a terminal of the given width.
// Autolinking is off so terminals can detect URLs themselves.
func Render(content string, width int) string {
	ext := markdown.Extensions() &^ parser.Autolink
	p := parser.NewWithExtensions(ext)
	doc := p.Parse([]byte(content))
	return string(gomarkdown.Render(doc, markdown.NewRenderer(width-4, 2)))
}
