package generation

const basePrompt = `You are a professional customer service representative responding to customer reviews.
Your responses should be helpful, empathetic, and maintain a positive brand image.
Keep responses concise (2-3 sentences) and always thank the customer for their feedback.`

const (
	DefaultLanguage = "en"
	DefaultTone     = "professional"
)

var languageDirectives = map[string]string{
	"en": "Respond in English.",
	"ro": "Respond in Romanian (Română).",
	"es": "Respond in Spanish (Español).",
	"fr": "Respond in French (Français).",
	"de": "Respond in German (Deutsch).",
	"it": "Respond in Italian (Italiano).",
}

var toneDirectives = map[string]string{
	"professional": "Maintain a formal, business-like tone while being warm and appreciative.",
	"friendly":     "Use a warm, conversational tone that feels personal and genuine.",
	"apologetic":   "Express sincere apology and commitment to improvement. Acknowledge any issues mentioned.",
	"grateful":     "Express deep appreciation and highlight how much the customer's feedback means.",
}

// Prompt is the system and user message pair sent to the provider.
type Prompt struct {
	System string
	User   string
}

// NormalizeLanguage maps unknown codes to English.
func NormalizeLanguage(lang string) string {
	if _, ok := languageDirectives[lang]; ok {
		return lang
	}
	return DefaultLanguage
}

// NormalizeTone maps unknown tones to professional.
func NormalizeTone(tone string) string {
	if _, ok := toneDirectives[tone]; ok {
		return tone
	}
	return DefaultTone
}

func BuildPrompt(reviewText, language, tone string) Prompt {
	lang := languageDirectives[NormalizeLanguage(language)]
	toneLine := toneDirectives[NormalizeTone(tone)]

	return Prompt{
		System: basePrompt + "\n\n" + lang + "\n" + toneLine,
		User:   "Please write a professional response to this customer review:\n\n\"" + reviewText + "\"",
	}
}
