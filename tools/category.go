package tools

import (
	"strings"
	"unicode"

	"github.com/sahilm/fuzzy"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// categoryAliases maps everyday words to the default category names.
// An alias only applies when its target is one of the configured categories.
var categoryAliases = map[string]string{
	"comida":       "Alimentación",
	"supermercado": "Alimentación",
	"restaurante":  "Alimentación",
	"cafe":         "Alimentación",
	"gasolina":     "Transporte",
	"taxi":         "Transporte",
	"metro":        "Transporte",
	"tren":         "Transporte",
	"autobus":      "Transporte",
	"avion":        "Transporte",
	"alquiler":     "Vivienda",
	"hipoteca":     "Vivienda",
	"luz":          "Servicios",
	"agua":         "Servicios",
	"internet":     "Servicios",
	"telefono":     "Servicios",
	"farmacia":     "Salud",
	"medico":       "Salud",
	"cine":         "Entretenimiento",
	"ocio":         "Entretenimiento",
	"libros":       "Educación",
	"curso":        "Educación",
	"nomina":       "Salario",
	"sueldo":       "Salario",
}

// foldCategory lowercases s and strips accents: "Alimentación" -> "alimentacion".
func foldCategory(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(strings.TrimSpace(folded))
}

// NormalizeCategory maps a model-supplied category onto the configured list.
// It tries an accent-insensitive exact match, the alias table, then a fuzzy
// match anchored at the start of a category ("transp" -> Transporte, but not
// "tren" -> Entretenimiento); anything else is kept, title-cased.
func NormalizeCategory(input string, categories []string) string {
	input = strings.TrimSpace(input)
	if input == "" || len(categories) == 0 {
		return input
	}

	folded := foldCategory(input)
	foldedCategories := make([]string, len(categories))
	for i, c := range categories {
		foldedCategories[i] = foldCategory(c)
		if foldedCategories[i] == folded {
			return c
		}
	}

	if target, ok := categoryAliases[folded]; ok {
		for _, c := range categories {
			if c == target {
				return c
			}
		}
	}

	if len([]rune(folded)) >= 3 {
		for _, m := range fuzzy.Find(folded, foldedCategories) {
			if len(m.MatchedIndexes) > 0 && m.MatchedIndexes[0] == 0 {
				return categories[m.Index]
			}
		}
	}

	return cases.Title(language.Spanish).String(input)
}
