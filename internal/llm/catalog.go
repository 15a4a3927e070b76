package llm

const (
	openRouterBaseURL = "https://openrouter.ai/api/v1"
	yandexBaseURL     = "https://llm.api.cloud.yandex.net/foundationModels/v1"
	gigaChatBaseURL   = "https://gigachat.devices.sberbank.ru/api/v1"
	gigaChatAuthURL   = "https://ngw.devices.sberbank.ru:9443/api/v2/oauth"
	geminiBaseURL     = "https://generativelanguage.googleapis.com/v1beta/models"
	openRouterKeyPool = 16

	// DefaultModel is selected when the caller does not name one.
	DefaultModel = "DeepSeek Chat"
)

// DefaultCatalog lists the models available without a configuration file.
func DefaultCatalog() []ModelSpec {
	openRouter := func(name, model string) ModelSpec {
		return ModelSpec{
			Name:        name,
			Provider:    ProviderOpenAI,
			Model:       model,
			BaseURL:     openRouterBaseURL,
			APIKeyEnv:   "OPENROUTER_API_KEY",
			KeyPoolSize: openRouterKeyPool,
		}
	}
	yandex := func(name, model string) ModelSpec {
		return ModelSpec{
			Name:        name,
			Provider:    ProviderYandex,
			Model:       model,
			BaseURL:     yandexBaseURL,
			APIKeyEnv:   "YANDEX_API_KEY",
			FolderIDEnv: "YANDEX_FOLDER_ID",
		}
	}

	return []ModelSpec{
		yandex("YandexGPT Pro", "yandexgpt"),
		yandex("YandexGPT Lite", "yandexgpt-lite"),
		{
			Name:      "GigaChat",
			Provider:  ProviderGigaChat,
			Model:     "GigaChat",
			BaseURL:   gigaChatBaseURL,
			AuthURL:   gigaChatAuthURL,
			APIKeyEnv: "GIGACHAT_CREDENTIALS",
			ScopeEnv:  "GIGACHAT_API_PERS",
		},
		openRouter("DeepSeek R1", "deepseek/deepseek-r1:free"),
		openRouter("DeepSeek Chat", "deepseek/deepseek-chat-v3-0324:free"),
		openRouter("Gemini 2.0 Flash", "google/gemini-2.0-flash-exp:free"),
		openRouter("Gemini 2.5 Pro", "google/gemini-2.5-pro-exp-03-25:free"),
		openRouter("Llama 3.3 70B Instruct", "meta-llama/llama-3.3-70b-instruct:free"),
		openRouter("Qwen 32B", "qwen/qwq-32b:free"),
		openRouter("Gemma 3 27B", "google/gemma-3-27b-it:free"),
		openRouter("Qwen 2.5 72B", "qwen/qwen2.5-vl-72b-instruct:free"),
		openRouter("Mistral Small 24B", "mistralai/mistral-small-24b-instruct-2501:free"),
		openRouter("Reka Flash 3", "rekaai/reka-flash-3:free"),
		{
			Name:      "Gemini Direct",
			Provider:  ProviderGemini,
			Model:     "gemini-2.0-flash",
			BaseURL:   geminiBaseURL,
			APIKeyEnv: "GEMINI_API_KEY",
		},
	}
}
