// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Database() DatabaseConfig
	Browser() BrowserConfig
	Pacing() PacingConfig
	Search() SearchConfig
	Site() SiteConfig
	Evidence() EvidenceConfig
	Output() OutputConfig

	SetBrowserHeadless(bool)
	SetSearchRequestTimeout(time.Duration)
	SetOutputLimit(int)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	DatabaseCfg DatabaseConfig `mapstructure:"database" yaml:"database"`
	BrowserCfg  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	PacingCfg   PacingConfig   `mapstructure:"pacing" yaml:"pacing"`
	SearchCfg   SearchConfig   `mapstructure:"search" yaml:"search"`
	SiteCfg     SiteConfig     `mapstructure:"site" yaml:"site"`
	EvidenceCfg EvidenceConfig `mapstructure:"evidence" yaml:"evidence"`
	OutputCfg   OutputConfig   `mapstructure:"output" yaml:"output"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig     { return c.LoggerCfg }
func (c *Config) Database() DatabaseConfig { return c.DatabaseCfg }
func (c *Config) Browser() BrowserConfig   { return c.BrowserCfg }
func (c *Config) Pacing() PacingConfig     { return c.PacingCfg }
func (c *Config) Search() SearchConfig     { return c.SearchCfg }
func (c *Config) Site() SiteConfig         { return c.SiteCfg }
func (c *Config) Evidence() EvidenceConfig { return c.EvidenceCfg }
func (c *Config) Output() OutputConfig     { return c.OutputCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetBrowserHeadless(b bool)                { c.BrowserCfg.Headless = b }
func (c *Config) SetSearchRequestTimeout(d time.Duration) { c.SearchCfg.RequestTimeout = d }
func (c *Config) SetOutputLimit(n int)                     { c.OutputCfg.Limit = n }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// DatabaseConfig holds the database connection details.
// An empty URL disables persistence.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"-"`
}

// ProxyConfig defines an outbound proxy for the browser.
type ProxyConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Address string `mapstructure:"address" yaml:"address"`
}

// BrowserConfig holds settings for the Chrome instance driving the search.
type BrowserConfig struct {
	Headless        bool              `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors bool              `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	Args            []string          `mapstructure:"args" yaml:"args"`
	Viewport        map[string]int    `mapstructure:"viewport" yaml:"viewport"`
	UserAgent       string            `mapstructure:"user_agent" yaml:"user_agent"`
	Platform        string            `mapstructure:"platform" yaml:"platform"`
	Languages       []string          `mapstructure:"languages" yaml:"languages"`
	Timezone        string            `mapstructure:"timezone" yaml:"timezone"`
	Locale          string            `mapstructure:"locale" yaml:"locale"`
	Headers         map[string]string `mapstructure:"headers" yaml:"headers"`
	Stealth         bool              `mapstructure:"stealth" yaml:"stealth"`
	Proxy           ProxyConfig       `mapstructure:"proxy" yaml:"proxy"`
	LaunchTimeout   time.Duration     `mapstructure:"launch_timeout" yaml:"launch_timeout"`
}

// WindowConfig is an inclusive post-action delay range in milliseconds.
type WindowConfig struct {
	MinMs int `mapstructure:"min_ms" yaml:"min_ms"`
	MaxMs int `mapstructure:"max_ms" yaml:"max_ms"`
}

// PacingConfig tunes the delays inserted after each browser action.
type PacingConfig struct {
	Enabled             bool         `mapstructure:"enabled" yaml:"enabled"`
	Fill                WindowConfig `mapstructure:"fill" yaml:"fill"`
	Click               WindowConfig `mapstructure:"click" yaml:"click"`
	WaitFor             WindowConfig `mapstructure:"wait_for" yaml:"wait_for"`
	Read                WindowConfig `mapstructure:"read" yaml:"read"`
	Popup               WindowConfig `mapstructure:"popup" yaml:"popup"`
	MaxActionsPerSecond float64      `mapstructure:"max_actions_per_second" yaml:"max_actions_per_second"`
}

// SearchConfig bounds the form-filling protocols and the request as a whole.
type SearchConfig struct {
	RequestTimeout   time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	WaitTimeout      time.Duration `mapstructure:"wait_timeout" yaml:"wait_timeout"`
	ResultsTimeout   time.Duration `mapstructure:"results_timeout" yaml:"results_timeout"`
	MaxMonthAdvances int           `mapstructure:"max_month_advances" yaml:"max_month_advances"`
	ConvergenceSlack int           `mapstructure:"convergence_slack" yaml:"convergence_slack"`
}

// SiteConfig describes the target booking page. Selectors are opaque strings
// handed to the browser as-is; templates use {day} and {category} placeholders.
type SiteConfig struct {
	URL         string            `mapstructure:"url" yaml:"url"`
	Selectors   Selectors         `mapstructure:"selectors" yaml:"selectors"`
	CabinLabels map[string]string `mapstructure:"cabin_labels" yaml:"cabin_labels"`
}

// Selectors is the full selector set used by the form filler and extractor.
type Selectors struct {
	ConsentAccept   string `mapstructure:"consent_accept" yaml:"consent_accept"`
	OneWay          string `mapstructure:"one_way" yaml:"one_way"`
	RoundTrip       string `mapstructure:"round_trip" yaml:"round_trip"`
	Origin          string `mapstructure:"origin" yaml:"origin"`
	Destination     string `mapstructure:"destination" yaml:"destination"`
	FocusSink       string `mapstructure:"focus_sink" yaml:"focus_sink"`
	DateInput       string `mapstructure:"date_input" yaml:"date_input"`
	DateModal       string `mapstructure:"date_modal" yaml:"date_modal"`
	DateCaption     string `mapstructure:"date_caption" yaml:"date_caption"`
	NextMonth       string `mapstructure:"next_month" yaml:"next_month"`
	DayButton       string `mapstructure:"day_button" yaml:"day_button"`
	PassengerField  string `mapstructure:"passenger_field" yaml:"passenger_field"`
	PassengerPopup  string `mapstructure:"passenger_popup" yaml:"passenger_popup"`
	PassengerClose  string `mapstructure:"passenger_close" yaml:"passenger_close"`
	PassengerRow    string `mapstructure:"passenger_row" yaml:"passenger_row"`
	PassengerLabel  string `mapstructure:"passenger_label" yaml:"passenger_label"`
	CounterValue    string `mapstructure:"counter_value" yaml:"counter_value"`
	CounterPlus     string `mapstructure:"counter_plus" yaml:"counter_plus"`
	CounterMinus    string `mapstructure:"counter_minus" yaml:"counter_minus"`
	Cabin           string `mapstructure:"cabin" yaml:"cabin"`
	Submit          string `mapstructure:"submit" yaml:"submit"`
	ResultCard      string `mapstructure:"result_card" yaml:"result_card"`
	ResultPrice     string `mapstructure:"result_price" yaml:"result_price"`
	ResultAirline   string `mapstructure:"result_airline" yaml:"result_airline"`
	ResultDeparture string `mapstructure:"result_departure" yaml:"result_departure"`
	ResultArrival   string `mapstructure:"result_arrival" yaml:"result_arrival"`
	ResultDuration  string `mapstructure:"result_duration" yaml:"result_duration"`
	ResultStops     string `mapstructure:"result_stops" yaml:"result_stops"`
}

// Day renders the day-cell selector for an ISO date key.
func (s Selectors) Day(key string) string {
	return strings.ReplaceAll(s.DayButton, "{day}", key)
}

// Row renders the passenger-row selector for a category label.
func (s Selectors) Row(category string) string {
	return strings.ReplaceAll(s.PassengerRow, "{category}", category)
}

// EvidenceConfig controls what is captured when a session fails.
type EvidenceConfig struct {
	Enabled    bool          `mapstructure:"enabled" yaml:"enabled"`
	Dir        string        `mapstructure:"dir" yaml:"dir"`
	CaptureDOM bool          `mapstructure:"capture_dom" yaml:"capture_dom"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// OutputConfig describes where search results are written.
type OutputConfig struct {
	Format string `mapstructure:"format" yaml:"format"`
	Path   string `mapstructure:"path" yaml:"path"`
	Limit  int    `mapstructure:"limit" yaml:"limit"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "flightscout")
	v.SetDefault("logger.log_file", "flightscout.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.viewport", map[string]int{"width": 1920, "height": 1080})
	v.SetDefault("browser.user_agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/137.0.0.0 Safari/537.36")
	v.SetDefault("browser.platform", "MacIntel")
	v.SetDefault("browser.languages", []string{"en-GB", "en"})
	v.SetDefault("browser.timezone", "Europe/London")
	v.SetDefault("browser.locale", "en-GB")
	// Header names are lowercase, as viper yields them from config files;
	// stealth canonicalizes them before they reach the browser.
	v.SetDefault("browser.headers", map[string]string{
		"accept-language": "en-GB,en;q=0.9",
		"accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
	})
	v.SetDefault("browser.stealth", true)
	v.SetDefault("browser.proxy.enabled", false)
	v.SetDefault("browser.launch_timeout", "60s")

	// -- Pacing --
	v.SetDefault("pacing.enabled", true)
	v.SetDefault("pacing.fill.min_ms", 300)
	v.SetDefault("pacing.fill.max_ms", 900)
	v.SetDefault("pacing.click.min_ms", 300)
	v.SetDefault("pacing.click.max_ms", 800)
	v.SetDefault("pacing.wait_for.min_ms", 100)
	v.SetDefault("pacing.wait_for.max_ms", 500)
	v.SetDefault("pacing.read.min_ms", 100)
	v.SetDefault("pacing.read.max_ms", 200)
	v.SetDefault("pacing.popup.min_ms", 1000)
	v.SetDefault("pacing.popup.max_ms", 2000)
	v.SetDefault("pacing.max_actions_per_second", 0)

	// -- Search --
	v.SetDefault("search.request_timeout", "3m")
	v.SetDefault("search.wait_timeout", "60s")
	v.SetDefault("search.results_timeout", "60s")
	v.SetDefault("search.max_month_advances", 24)
	v.SetDefault("search.convergence_slack", 16)

	// -- Site --
	v.SetDefault("site.url", "https://www.united.com/en/gb")
	v.SetDefault("site.selectors.consent_accept", "")
	v.SetDefault("site.selectors.one_way", "#radiofield-item-id-flightType-1")
	v.SetDefault("site.selectors.round_trip", "#radiofield-item-id-flightType-0")
	v.SetDefault("site.selectors.origin", "#bookFlightOriginInput")
	v.SetDefault("site.selectors.destination", "#bookFlightDestinationInput")
	v.SetDefault("site.selectors.focus_sink", "body")
	v.SetDefault("site.selectors.date_input", `button.atm-c-datepicker__icon[aria-haspopup="dialog"]`)
	v.SetDefault("site.selectors.date_modal", `div.atm-c-datepicker__modal-container[role="application"]`)
	v.SetDefault("site.selectors.date_caption", "div.rdp-month_caption .rdp-caption_label")
	v.SetDefault("site.selectors.next_month", "button.atm-c-datepicker__navigation.atm-c-datepicker-next")
	v.SetDefault("site.selectors.day_button", `td.rdp-day[data-day="{day}"] button.rdp-day_button`)
	v.SetDefault("site.selectors.passenger_field", `input.atm-c-textfield__input.atm-c-text-input--hover[type="button"]`)
	v.SetDefault("site.selectors.passenger_popup", "div.atm-c-popupmodal_modal")
	v.SetDefault("site.selectors.passenger_close", "")
	v.SetDefault("site.selectors.passenger_row", `div[class*="PassengerSelector-passengers__passengerRow"]`)
	v.SetDefault("site.selectors.passenger_label", "span")
	v.SetDefault("site.selectors.counter_value", "input.atm-c-counter__input")
	v.SetDefault("site.selectors.counter_plus", `button[aria-label^="Add"]`)
	v.SetDefault("site.selectors.counter_minus", `button[aria-label^="Subtract"]`)
	v.SetDefault("site.selectors.cabin", "select#cabinType")
	v.SetDefault("site.selectors.submit", `button[type="submit"][aria-label*="Find flights"]`)
	v.SetDefault("site.selectors.result_card", "div.app-components-Shopping-FlightCard")
	v.SetDefault("site.selectors.result_price", "div.app-components-Shopping-FlightCard__priceTotal")
	v.SetDefault("site.selectors.result_airline", "div.app-components-Shopping-FlightCard__leg")
	v.SetDefault("site.selectors.result_departure", "div.app-components-Shopping-FlightSegment__times span:first-child")
	v.SetDefault("site.selectors.result_arrival", "div.app-components-Shopping-FlightSegment__times span:last-child")
	v.SetDefault("site.selectors.result_duration", "div.app-components-Shopping-FlightSegment__details span:first-child")
	v.SetDefault("site.selectors.result_stops", "div.app-components-Shopping-FlightSegment__details span:last-child")
	// business and first intentionally keep the labels the booking form was
	// observed to use; they are likely off by one tier. See DESIGN.md.
	v.SetDefault("site.cabin_labels", map[string]string{
		"economy":  "Economy",
		"business": "Premium Economy",
		"first":    "Business or First",
	})

	// -- Evidence --
	v.SetDefault("evidence.enabled", true)
	v.SetDefault("evidence.dir", "~/.flightscout/evidence")
	v.SetDefault("evidence.capture_dom", true)
	v.SetDefault("evidence.timeout", "20s")

	// -- Output --
	v.SetDefault("output.format", "json")
	v.SetDefault("output.path", "")
	v.SetDefault("output.limit", 0)
}

// NewConfigFromViper unmarshals and validates the configuration held by v.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	_ = v.BindEnv("database.url", "FLIGHTSCOUT_DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for values the search cannot run with.
func (c *Config) Validate() error {
	if c.SearchCfg.MaxMonthAdvances <= 0 {
		return fmt.Errorf("search.max_month_advances must be a positive integer")
	}
	if c.SearchCfg.ConvergenceSlack <= 0 {
		return fmt.Errorf("search.convergence_slack must be a positive integer")
	}
	if c.SearchCfg.RequestTimeout < 0 {
		return fmt.Errorf("search.request_timeout must not be negative")
	}
	if err := c.PacingCfg.Validate(); err != nil {
		return fmt.Errorf("pacing configuration invalid: %w", err)
	}
	if c.BrowserCfg.Proxy.Enabled && c.BrowserCfg.Proxy.Address == "" {
		return fmt.Errorf("browser.proxy.address is required when the proxy is enabled")
	}
	if err := c.SiteCfg.Validate(); err != nil {
		return fmt.Errorf("site configuration invalid: %w", err)
	}
	switch c.OutputCfg.Format {
	case "json", "jsonl":
	default:
		return fmt.Errorf("output.format %q is not supported (use json or jsonl)", c.OutputCfg.Format)
	}
	if c.OutputCfg.Limit < 0 {
		return fmt.Errorf("output.limit must not be negative")
	}
	return nil
}

// Validate rejects negative or inverted delay windows.
func (p *PacingConfig) Validate() error {
	windows := map[string]WindowConfig{
		"fill":     p.Fill,
		"click":    p.Click,
		"wait_for": p.WaitFor,
		"read":     p.Read,
		"popup":    p.Popup,
	}
	for name, w := range windows {
		if w.MinMs < 0 || w.MaxMs < 0 {
			return fmt.Errorf("%s window must not be negative", name)
		}
		if w.MinMs > w.MaxMs {
			return fmt.Errorf("%s window min_ms (%d) exceeds max_ms (%d)", name, w.MinMs, w.MaxMs)
		}
	}
	if p.MaxActionsPerSecond < 0 {
		return fmt.Errorf("max_actions_per_second must not be negative")
	}
	return nil
}

// Validate ensures every selector the form filler cannot run without is present.
func (s *SiteConfig) Validate() error {
	required := map[string]string{
		"origin":          s.Selectors.Origin,
		"destination":     s.Selectors.Destination,
		"date_input":      s.Selectors.DateInput,
		"date_modal":      s.Selectors.DateModal,
		"date_caption":    s.Selectors.DateCaption,
		"next_month":      s.Selectors.NextMonth,
		"day_button":      s.Selectors.DayButton,
		"passenger_field": s.Selectors.PassengerField,
		"passenger_popup": s.Selectors.PassengerPopup,
		"passenger_row":   s.Selectors.PassengerRow,
		"counter_value":   s.Selectors.CounterValue,
		"counter_plus":    s.Selectors.CounterPlus,
		"counter_minus":   s.Selectors.CounterMinus,
		"cabin":           s.Selectors.Cabin,
		"submit":          s.Selectors.Submit,
		"result_card":     s.Selectors.ResultCard,
	}
	for name, sel := range required {
		if strings.TrimSpace(sel) == "" {
			return fmt.Errorf("selectors.%s is required", name)
		}
	}
	if !strings.Contains(s.Selectors.DayButton, "{day}") {
		return fmt.Errorf("selectors.day_button must contain the {day} placeholder")
	}
	return nil
}
