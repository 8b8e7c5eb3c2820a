package narrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"bus-tracker/internal/model"
)

// FallbackNotice is shown to passengers when no summary can be generated.
const FallbackNotice = "Houve um imprevisto na linha. Recomendamos acompanhar o mapa para atualizações em tempo real."

// ErrEmptySummary is returned when the generator answers with blank text.
var ErrEmptySummary = errors.New("narrator: empty summary")

// ErrNoGenerator is returned when no text generator is configured.
var ErrNoGenerator = errors.New("narrator: no generator configured")

// Generator produces free text from a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Narrator turns a driver's structured incident into a passenger notice.
type Narrator struct {
	gen Generator
}

// New returns a Narrator. A nil generator makes every call fail so the
// caller's fallback applies.
func New(gen Generator) *Narrator {
	return &Narrator{gen: gen}
}

// Summarize returns the generated notice, trimmed.
func (n *Narrator) Summarize(ctx context.Context, kind model.IncidentType, description string) (string, error) {
	if n == nil || n.gen == nil {
		return "", ErrNoGenerator
	}
	text, err := n.gen.Generate(ctx, Prompt(kind, description))
	if err != nil {
		return "", fmt.Errorf("generate incident summary: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptySummary
	}
	return text, nil
}

// Prompt embeds the incident into the passenger-notice instruction.
func Prompt(kind model.IncidentType, description string) string {
	var b strings.Builder
	b.WriteString("O motorista relatou o seguinte incidente em uma linha de ônibus:\n")
	fmt.Fprintf(&b, "Tipo: %s\n", kind)
	fmt.Fprintf(&b, "Descrição: %s\n\n", strings.TrimSpace(description))
	b.WriteString("Por favor, gere uma mensagem curta, educada e informativa para os passageiros que estão esperando no ponto, ")
	b.WriteString("sugerindo o que eles devem fazer ou quanto tempo aproximado isso pode impactar. ")
	b.WriteString("Responda em Português do Brasil de forma concisa.")
	return b.String()
}
