package widget

import (
	"bytes"
	"errors"
	"html/template"
	"regexp"
	"strings"
)

const DefaultBrandColor = "#2563eb"

var brandColorRe = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

type EmbedConfig struct {
	ScriptURL    string
	ContractorID string
	BrandColor   string
	// Services restricts the widget to these service types; empty shows all.
	Services []string
}

var embedTemplate = template.Must(template.New("embed").Parse(
	`<div class="hs-booking-widget" data-contractor-id="{{.ContractorID}}" data-brand-color="{{.BrandColor}}"{{if .Services}} data-services="{{.Services}}"{{end}}></div>
<script src="{{.ScriptURL}}" async></script>
`))

// Snippet renders the HTML a contractor pastes into their site to load the booking widget.
func Snippet(cfg EmbedConfig) (string, error) {
	contractorID := strings.TrimSpace(cfg.ContractorID)
	if contractorID == "" {
		return "", errors.New("contractor id is required")
	}
	if strings.TrimSpace(cfg.ScriptURL) == "" {
		return "", errors.New("widget script url is required")
	}
	color := strings.TrimSpace(cfg.BrandColor)
	if color == "" {
		color = DefaultBrandColor
	}
	if !brandColorRe.MatchString(color) {
		return "", errors.New("brand color must be #RRGGBB")
	}

	var services []string
	for _, s := range cfg.Services {
		if s = strings.TrimSpace(s); s != "" {
			services = append(services, s)
		}
	}

	var buf bytes.Buffer
	err := embedTemplate.Execute(&buf, struct {
		ScriptURL    string
		ContractorID string
		BrandColor   string
		Services     string
	}{
		ScriptURL:    cfg.ScriptURL,
		ContractorID: contractorID,
		BrandColor:   color,
		Services:     strings.Join(services, ","),
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}
