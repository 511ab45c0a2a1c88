package orchestrator

import (
	"fmt"
	"strings"
	"time"
)

const defaultPersona = `Eres un asistente de finanzas personales. Ayudas al usuario a registrar gastos e ingresos, revisar su presupuesto, seguir sus metas de ahorro y entender en qué gasta su dinero.

Reglas:
- No tienes acceso directo a los datos del usuario. Para consultar o registrar información usa SIEMPRE las herramientas disponibles.
- Nunca inventes cifras, transacciones ni metas. Si una herramienta devuelve un error, explícalo con claridad y sugiere cómo seguir.
- Llama como máximo a una herramienta por turno.
- Responde en español, de forma breve y concreta. Puedes usar markdown sencillo (listas, negritas).`

const toolsUnavailableNote = `Ahora mismo no puedes usar herramientas: responde con lo que sepas de la conversación y, si hace falta consultar datos, indícalo.`

// buildSystemPrompt adds the date and currency context to the persona.
func buildSystemPrompt(persona, currency string, now time.Time, toolsEnabled bool) string {
	if strings.TrimSpace(persona) == "" {
		persona = defaultPersona
	}

	var b strings.Builder
	b.WriteString(persona)
	fmt.Fprintf(&b, "\n\nFecha de hoy: %s (%s). Moneda: %s.", now.Format("2006-01-02"), spanishWeekday(now.Weekday()), currency)
	if !toolsEnabled {
		b.WriteString("\n\n")
		b.WriteString(toolsUnavailableNote)
	}
	return b.String()
}

func spanishWeekday(d time.Weekday) string {
	return [...]string{"domingo", "lunes", "martes", "miércoles", "jueves", "viernes", "sábado"}[d]
}
