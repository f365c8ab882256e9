package language

// Language describes one supported call language.
type Language struct {
	// Code is the short ISO-style identifier ("en", "de", ...).
	Code string `json:"code"`

	// Name is the native display name.
	Name string `json:"name"`

	// ServiceName is how the translation service refers to the language
	// in its system instruction ("German", "Mandarin Chinese", ...).
	ServiceName string `json:"geminiName"`

	// Greeting is a romanized sample greeting, used for log output.
	Greeting string `json:"greeting"`
}

// Supported lists every language a call party may select.
var Supported = []Language{
	{Code: "pt", Name: "Português", ServiceName: "Portuguese", Greeting: "Olá"},
	{Code: "zh", Name: "中文", ServiceName: "Mandarin Chinese", Greeting: "Ni Hao"},
	{Code: "uk", Name: "Українська", ServiceName: "Ukrainian", Greeting: "Dobriy den"},
	{Code: "en", Name: "English", ServiceName: "English", Greeting: "Hello"},
	{Code: "de", Name: "Deutsch", ServiceName: "German", Greeting: "Guten Tag"},
	{Code: "fr", Name: "Français", ServiceName: "French", Greeting: "Bonjour"},
	{Code: "it", Name: "Italiano", ServiceName: "Italian", Greeting: "Buongiorno"},
	{Code: "es", Name: "Español", ServiceName: "Spanish", Greeting: "Hola"},
	{Code: "tr", Name: "Türkçe", ServiceName: "Turkish", Greeting: "Merhaba"},
	{Code: "ar", Name: "العربية", ServiceName: "Arabic", Greeting: "As-salamu alaykum"},
}

// Voices are the prebuilt synthesized voices offered by the service.
var Voices = []string{"Puck", "Charon", "Kore", "Fenrir", "Zephyr"}

const (
	// DefaultAgentCode is the fallback language for the agent side.
	DefaultAgentCode = "en"

	// DefaultCustomerCode is the fallback language for the customer side.
	DefaultCustomerCode = "de"
)

// ByCode looks up a supported language by its code.
func ByCode(code string) (Language, bool) {
	for _, l := range Supported {
		if l.Code == code {
			return l, true
		}
	}
	return Language{}, false
}

// DefaultAgent returns the default agent-side language.
func DefaultAgent() Language {
	l, _ := ByCode(DefaultAgentCode)
	return l
}

// DefaultCustomer returns the default customer-side language.
func DefaultCustomer() Language {
	l, _ := ByCode(DefaultCustomerCode)
	return l
}
