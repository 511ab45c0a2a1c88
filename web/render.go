package web

import (
	"time"

	"finassist/model"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

// messageView is a message as the API returns it. Assistant text also
// comes rendered as HTML.
type messageView struct {
	model.Message
	HTML string `json:"html,omitempty"`
}

func viewMessage(msg model.Message) messageView {
	v := messageView{Message: msg}
	if msg.Role == model.RoleAssistant && msg.Content != "" {
		v.HTML = renderHTML(msg.Content)
	}
	return v
}

// renderHTML converts assistant markdown to HTML. Raw HTML in the model's
// output is escaped.
func renderHTML(content string) string {
	p := parser.NewWithExtensions(parser.CommonExtensions)
	doc := p.Parse([]byte(content))
	r := html.NewRenderer(html.RendererOptions{
		Flags: html.CommonFlags | html.SkipHTML | html.HrefTargetBlank,
	})
	return string(markdown.Render(doc, r))
}

func viewMessages(msgs []model.Message) []messageView {
	views := make([]messageView, len(msgs))
	for i, m := range msgs {
		views[i] = viewMessage(m)
	}
	return views
}

type functionCallView struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

type chatResponse struct {
	Message           messageView       `json:"message"`
	NeedsFunctionCall bool              `json:"needsFunctionCall"`
	FunctionCall      *functionCallView `json:"functionCall,omitempty"`
}

type turnView struct {
	Reply      messageView       `json:"reply"`
	ToolCall   *functionCallView `json:"toolCall,omitempty"`
	ToolResult any               `json:"toolResult,omitempty"`
	Messages   []messageView     `json:"messages"`
}

func viewCall(call *model.ToolCall) *functionCallView {
	if call == nil {
		return nil
	}
	return &functionCallView{ID: call.ID, Name: call.Name, Arguments: call.Arguments}
}

type sessionView struct {
	ID           string        `json:"id"`
	State        string        `json:"state"`
	Interrupted  bool          `json:"interrupted"`
	CreatedAt    time.Time     `json:"createdAt"`
	LastActive   time.Time     `json:"lastActive"`
	Messages     []messageView `json:"messages,omitempty"`
	MessageCount int           `json:"messageCount"`
}
