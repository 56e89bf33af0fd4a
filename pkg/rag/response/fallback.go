package response

import (
	"strings"
	"unicode"

	"safebot-be/pkg/rag/lexicon"
	"safebot-be/pkg/store"
)

const helpline = "900 20 20 10"

var openingByRole = map[store.Role]string{
	store.RoleVictim:    "Siento mucho que estés pasando por esto, y no es culpa tuya.",
	store.RoleProtector: "Gracias por dar la cara por otra persona, eso es muy valiente.",
	store.RoleHelper:    "Gracias por contármelo con sinceridad; todavía puedes cambiar cómo actúas.",
	store.RoleBystander: "Gracias por hablar de ello en vez de quedarte callado.",
	store.RoleObserver:  "Gracias por fijarte en lo que pasa, tu papel puede ayudar mucho.",
	store.RoleAggressor: "Gracias por contármelo; hablar de ello ya es un primer paso.",
	store.RoleOther:     "Me alegra que me escribas.",
}

// Fallback composes a deterministic reply that passes Check for req.
func Fallback(req Request) string {
	anchor := strings.Join(anchorWords(req.Message, 3), ", ")

	var parts []string
	if req.Profile.Risk == store.RiskImminent {
		parts = append(parts, "Tu seguridad es lo primero: llama ahora al 112 o avisa ya a un adulto de confianza que esté cerca.")
		if numbers := extraNumbers(req.Context); len(numbers) > 0 {
			parts = append(parts, "También puedes llamar al "+strings.Join(numbers, " o al ")+".")
		}
		if anchor != "" {
			parts = append(parts, "Lo que cuentas («"+anchor+"») es serio y mereces ayuda ahora mismo.")
		}
		return strings.Join(parts, " ")
	}

	opening, ok := openingByRole[req.Profile.Role]
	if !ok {
		opening = openingByRole[store.RoleOther]
	}
	parts = append(parts, opening)

	switch req.Context.Status {
	case store.ContextPassages:
		if step := passageWords(req.Context.Passages[0].Text, 3); len(step) > 0 {
			parts = append(parts, "Un primer paso que recogen los protocolos para casos así tiene que ver con esto: "+strings.Join(step, ", ")+".")
		}
		parts = append(parts, "Hay pasos pensados para situaciones así y podemos verlos juntos poco a poco.")
	case store.ContextNoRelevant:
		parts = append(parts, "No he encontrado información específica sobre esto en los protocolos.")
		if !req.FirstTurn {
			parts = append(parts, "Te sugiero hablar con un adulto de confianza o con tu tutor.")
		}
	case store.ContextUnavailable:
		parts = append(parts, "Ahora mismo no puedo consultar los protocolos, pero podemos seguir hablando.")
	}

	if anchor != "" {
		parts = append(parts, "¿Quieres contarme un poco más sobre esto («"+anchor+"»)?")
	} else {
		parts = append(parts, "¿Qué te gustaría contarme?")
	}
	return strings.Join(parts, " ")
}

// SupportMessage is returned when the model cannot produce a reply at all.
func SupportMessage(risk store.RiskLevel) string {
	if risk == store.RiskImminent {
		return "Tu seguridad es lo primero. Llama ahora al 112 o avisa ya a un adulto de confianza que esté cerca. " +
			"También puedes llamar gratis al Teléfono ANAR: " + helpline + "."
	}
	return "Ahora mismo no puedo responderte bien, pero no estás solo. " +
		"El Teléfono ANAR (" + helpline + ") atiende gratis y de forma confidencial. " +
		"¿Quieres volver a contarme qué ha pasado?"
}

// SafetyReply answers a turn whose message could not be classified.
func SafetyReply() string {
	return "No he podido entender bien tu mensaje. Si estás pasando por algo difícil, habla con un adulto de confianza " +
		"o llama gratis al Teléfono ANAR (" + helpline + "). ¿Puedes contármelo con otras palabras?"
}

// anchorWords returns up to n content words of message as the user wrote them, lowercased.
func anchorWords(message string, n int) []string {
	out := wordsOf(message, n, func(string) bool { return true })
	if len(out) == 0 {
		words := lexicon.ContentWords(message)
		if len(words) > n {
			words = words[:n]
		}
		return words
	}
	return out
}

// passageWords picks up to n content words of a passage that name neither a
// person nor an authority, so the step reads as advice and not as a hand-off.
func passageWords(text string, n int) []string {
	return wordsOf(text, n, func(folded string) bool {
		if _, ok := referralTokens[folded]; ok {
			return false
		}
		return lexicon.HasLetters(folded)
	})
}

var referralTokens = func() map[string]struct{} {
	out := make(map[string]struct{})
	for _, term := range ReferralTerms {
		for _, tok := range lexicon.Tokens(term) {
			out[tok] = struct{}{}
		}
	}
	return out
}()

func extraNumbers(rc store.RetrievedContext) []string {
	var out []string
	for _, n := range ContactNumbers(rc) {
		if onlyDigits(n) != "112" {
			out = append(out, n)
		}
	}
	return out
}

func wordsOf(text string, n int, keep func(folded string) bool) []string {
	content := make(map[string]struct{})
	for _, w := range lexicon.ContentWords(text) {
		content[w] = struct{}{}
	}

	seen := make(map[string]struct{})
	var out []string
	for _, field := range strings.Fields(text) {
		word := strings.ToLower(strings.TrimFunc(field, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		}))
		folded := lexicon.Fold(word)
		if _, ok := content[folded]; !ok || !keep(folded) {
			continue
		}
		if _, dup := seen[folded]; dup {
			continue
		}
		seen[folded] = struct{}{}
		out = append(out, word)
		if len(out) == n {
			break
		}
	}
	return out
}
