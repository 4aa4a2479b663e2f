package commands

import (
	"fmt"
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/fatih/color"

	"github.com/valuin/radikari-chat-widget/internal/event"
)

// Renderer prints conversation progress to the terminal. It is a pure
// consumer of the controller's event bus; the lifecycle core never knows
// it exists.
type Renderer struct {
	markdown  bool
	verbose   bool
	md        *glamour.TermRenderer
	streaming bool

	prompt    *color.Color
	assistant *color.Color
	errc      *color.Color
	dim       *color.Color
}

// NewRenderer creates a renderer. With markdown enabled, assistant turns
// are buffered and rendered as markdown on completion instead of being
// streamed raw.
func NewRenderer(markdown, verbose, noColor bool) *Renderer {
	color.NoColor = noColor

	r := &Renderer{
		markdown:  markdown,
		verbose:   verbose,
		prompt:    color.New(color.FgCyan, color.Bold),
		assistant: color.New(color.FgGreen, color.Bold),
		errc:      color.New(color.FgRed),
		dim:       color.New(color.FgHiBlack),
	}
	if markdown {
		md, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
		if err == nil {
			r.md = md
		}
	}
	return r
}

// Attach subscribes the renderer to a controller bus and returns an
// unsubscribe function.
func (r *Renderer) Attach(bus *event.Bus) func() {
	unsubs := []func(){
		bus.Subscribe(event.MessageDelta, r.onDelta),
		bus.Subscribe(event.MessageCompleted, r.onCompleted),
		bus.Subscribe(event.ChatError, r.onError),
		bus.Subscribe(event.ThreadCreated, r.onThread),
		bus.Subscribe(event.ThreadExpired, r.onThreadExpired),
		bus.Subscribe(event.ThreadRecovered, r.onThreadRecovered),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// onDelta streams fragments raw. Delta events arrive synchronously and
// in order, so the prefix is printed with the first fragment.
func (r *Renderer) onDelta(e event.Event) {
	if r.markdown {
		return
	}
	data, ok := e.Data.(event.DeltaData)
	if !ok {
		return
	}
	if !r.streaming {
		r.streaming = true
		fmt.Printf("%s ", r.assistant.Sprint("assistant ›"))
	}
	fmt.Print(data.Delta)
}

func (r *Renderer) onCompleted(e event.Event) {
	data, ok := e.Data.(event.MessageData)
	if !ok {
		return
	}
	if !r.markdown {
		if r.streaming {
			r.streaming = false
			fmt.Println()
		}
		return
	}

	fmt.Printf("%s\n", r.assistant.Sprint("assistant ›"))
	if r.md != nil {
		if out, err := r.md.Render(data.Content); err == nil {
			fmt.Print(out)
			return
		}
	}
	fmt.Println(data.Content)
}

func (r *Renderer) onError(e event.Event) {
	if r.streaming {
		r.streaming = false
		fmt.Println()
	}
	if data, ok := e.Data.(event.ErrorData); ok {
		fmt.Fprintln(os.Stderr, r.errc.Sprintf("error: %s", data.Message))
	}
}

func (r *Renderer) onThread(e event.Event) {
	if !r.verbose {
		return
	}
	if data, ok := e.Data.(event.ThreadData); ok {
		fmt.Fprintln(os.Stderr, r.dim.Sprintf("[thread %s]", data.ThreadID))
	}
}

func (r *Renderer) onThreadExpired(event.Event) {
	if r.verbose {
		fmt.Fprintln(os.Stderr, r.dim.Sprint("[thread expired, recovering]"))
	}
}

func (r *Renderer) onThreadRecovered(event.Event) {
	if r.verbose {
		fmt.Fprintln(os.Stderr, r.dim.Sprint("[recovered on a fresh thread]"))
	}
}

// Banner prints the connection banner.
func (r *Renderer) Banner(url, tenant string) {
	fmt.Fprintln(os.Stderr, r.dim.Sprintf("Connected to %s as tenant %q. /help for commands.", url, tenant))
}

// UserPrompt returns the colored input prompt.
func (r *Renderer) UserPrompt() string {
	return r.prompt.Sprint("you › ")
}

// Help prints REPL help text.
func (r *Renderer) Help() {
	fmt.Println(`Commands:
  /help    show this help
  /reset   forget the current thread (a fresh one is created on next send)
  /exit    leave the chat`)
}

// Notice prints a dim informational line.
func (r *Renderer) Notice(text string) {
	fmt.Fprintln(os.Stderr, r.dim.Sprint(text))
}
