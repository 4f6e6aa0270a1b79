package connect

// ProviderTemplate is a built-in provider configuration template.
type ProviderTemplate struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Kind         string   `json:"kind"`
	AuthorizeURL string   `json:"authorize_url"`
	TokenURL     string   `json:"token_url"`
	Scopes       []string `json:"scopes"`
	UsePKCE      bool     `json:"use_pkce"`
	NeedsSecret  bool     `json:"needs_secret"`
	SetupURL     string   `json:"setup_url"`
	HelpText     string   `json:"help_text"`
}

var templates = map[string]ProviderTemplate{
	"gmail": {
		ID:           "gmail",
		Name:         "Gmail",
		Kind:         "gmail",
		AuthorizeURL: "https://accounts.google.com/o/oauth2/v2/auth",
		TokenURL:     "https://oauth2.googleapis.com/token",
		Scopes:       []string{"openid", "email", "https://www.googleapis.com/auth/gmail.readonly", "https://www.googleapis.com/auth/gmail.send"},
		UsePKCE:      true,
		NeedsSecret:  true,
		SetupURL:     "https://console.cloud.google.com/apis/credentials",
		HelpText:     "Create OAuth 2.0 credentials in Google Cloud Console and enable the Gmail API",
	},
	"calendar": {
		ID:           "calendar",
		Name:         "Google Calendar",
		Kind:         "calendar",
		AuthorizeURL: "https://accounts.google.com/o/oauth2/v2/auth",
		TokenURL:     "https://oauth2.googleapis.com/token",
		Scopes:       []string{"openid", "email", "https://www.googleapis.com/auth/calendar"},
		UsePKCE:      true,
		NeedsSecret:  true,
		SetupURL:     "https://console.cloud.google.com/apis/credentials",
		HelpText:     "Create OAuth 2.0 credentials in Google Cloud Console and enable the Calendar API",
	},
	"drive": {
		ID:           "drive",
		Name:         "Google Drive",
		Kind:         "drive",
		AuthorizeURL: "https://accounts.google.com/o/oauth2/v2/auth",
		TokenURL:     "https://oauth2.googleapis.com/token",
		Scopes:       []string{"openid", "email", "https://www.googleapis.com/auth/drive.file"},
		UsePKCE:      true,
		NeedsSecret:  true,
		SetupURL:     "https://console.cloud.google.com/apis/credentials",
		HelpText:     "Create OAuth 2.0 credentials in Google Cloud Console and enable the Drive API",
	},
	"generic": {
		ID:           "generic",
		Name:         "Generic OIDC",
		Kind:         "generic",
		AuthorizeURL: "",
		TokenURL:     "",
		Scopes:       []string{"openid", "email", "profile"},
		UsePKCE:      true,
		NeedsSecret:  true,
		SetupURL:     "",
		HelpText:     "Supply the authorize and token URLs from your identity provider",
	},
}

// ListTemplates returns all built-in provider templates.
func ListTemplates() []ProviderTemplate {
	out := make([]ProviderTemplate, 0, len(templates))
	for _, t := range templates {
		out = append(out, t)
	}
	return out
}

// GetTemplate returns a template by ID. The second return reports
// whether the ID names a built-in template.
func GetTemplate(id string) (ProviderTemplate, bool) {
	t, ok := templates[id]
	return t, ok
}
