package stealth

import (
	"context"
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/flightscout/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

//go:embed evasions.js
var evasionsScript string

// Persona defines the browser characteristics to emulate.
type Persona struct {
	UserAgent string   `json:"userAgent"`
	Platform  string   `json:"platform"`
	Languages []string `json:"languages"`
	Timezone  string   `json:"-"`
	Locale    string   `json:"-"`
}

// DefaultPersona matches the desktop Chrome profile the site is normally visited with.
var DefaultPersona = Persona{
	UserAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/137.0.0.0 Safari/537.36",
	Platform:  "MacIntel",
	Languages: []string{"en-GB", "en"},
	Timezone:  "Europe/London",
	Locale:    "en-GB",
}

// PersonaFromConfig fills the persona from browser settings, keeping defaults for blanks.
func PersonaFromConfig(cfg config.BrowserConfig) Persona {
	p := DefaultPersona
	if cfg.UserAgent != "" {
		p.UserAgent = cfg.UserAgent
	}
	if cfg.Platform != "" {
		p.Platform = cfg.Platform
	}
	if len(cfg.Languages) > 0 {
		p.Languages = append([]string(nil), cfg.Languages...)
	}
	if cfg.Timezone != "" {
		p.Timezone = cfg.Timezone
	}
	if cfg.Locale != "" {
		p.Locale = cfg.Locale
	}
	return p
}

// AcceptLanguage renders the languages as a weighted Accept-Language value.
func (p Persona) AcceptLanguage() string {
	parts := make([]string, 0, len(p.Languages))
	for i, lang := range p.Languages {
		if i == 0 {
			parts = append(parts, lang)
			continue
		}
		q := 1.0 - 0.1*float64(i)
		if q < 0.1 {
			q = 0.1
		}
		parts = append(parts, fmt.Sprintf("%s;q=%.1f", lang, q))
	}
	return strings.Join(parts, ",")
}

// Script is the evasion script prefixed with the persona it should report.
func (p Persona) Script() (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encoding persona: %w", err)
	}
	return fmt.Sprintf("window.__flightscoutPersona = %s;\n%s", data, evasionsScript), nil
}

// Headers merges configured extra headers with the persona's Accept-Language.
// Configured values win. Names are canonicalized since viper lowercases map keys.
func Headers(p Persona, extra map[string]string) network.Headers {
	h := network.Headers{}
	if len(p.Languages) > 0 {
		h["Accept-Language"] = p.AcceptLanguage()
	}
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		h[canonicalHeader(k)] = extra[k]
	}
	return h
}

func canonicalHeader(name string) string {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(name)), "-")
	for i, part := range parts {
		if part != "" {
			parts[i] = strings.ToUpper(part[:1]) + part[1:]
		}
	}
	return strings.Join(parts, "-")
}

// Apply constructs the CDP actions that make an automated tab look like a
// normal user-operated browser. Run it on a fresh target before navigating.
func Apply(p Persona, extraHeaders map[string]string, logger *zap.Logger) chromedp.Tasks {
	logger.Debug("Applying browser stealth persona",
		zap.String("userAgent", p.UserAgent),
		zap.String("platform", p.Platform),
		zap.Strings("languages", p.Languages),
	)

	ua := emulation.SetUserAgentOverride(p.UserAgent).WithPlatform(p.Platform)
	if len(p.Languages) > 0 {
		ua = ua.WithAcceptLanguage(p.AcceptLanguage())
	}

	tasks := chromedp.Tasks{
		ua,
		chromedp.ActionFunc(func(ctx context.Context) error {
			script, err := p.Script()
			if err != nil {
				return err
			}
			if _, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx); err != nil {
				return fmt.Errorf("failed to inject evasions script: %w", err)
			}
			return nil
		}),
	}
	if p.Timezone != "" {
		tasks = append(tasks, emulation.SetTimezoneOverride(p.Timezone))
	}
	if p.Locale != "" {
		tasks = append(tasks, emulation.SetLocaleOverride().WithLocale(p.Locale))
	}
	tasks = append(tasks,
		network.Enable(),
		network.SetExtraHTTPHeaders(Headers(p, extraHeaders)),
	)
	return tasks
}
