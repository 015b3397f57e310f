package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// SiteProfile describes how to drive the carrier tracking website.
type SiteProfile struct {
	BaseURL          string       `yaml:"base_url"`
	ResultPathMarker string       `yaml:"result_path_marker"`
	Selectors        Selectors    `yaml:"selectors"`
	Timeouts         StepTimeouts `yaml:"timeouts"`
	Pauses           Pauses       `yaml:"pauses"`
}

// Selectors are CSS selectors for the elements the scraper interacts with.
type Selectors struct {
	NFInput        string `yaml:"nf_input"`
	CNPJInput      string `yaml:"cnpj_input"`
	Submit         string `yaml:"submit"`
	HistoryButton  string `yaml:"history_button"`
	HistoryContent string `yaml:"history_content"`
}

// StepTimeouts bound each wait in the scrape flow. Click bounds every button
// press, including the wait for the button to become visible.
type StepTimeouts struct {
	Click          time.Duration `yaml:"click"`
	NFInput        time.Duration `yaml:"nf_input"`
	CNPJInput      time.Duration `yaml:"cnpj_input"`
	ResultURL      time.Duration `yaml:"result_url"`
	HistoryContent time.Duration `yaml:"history_content"`
}

// Pauses are fixed settle delays the site needs between steps.
type Pauses struct {
	AfterLoad     time.Duration `yaml:"after_load"`
	AfterNFSubmit time.Duration `yaml:"after_nf_submit"`
	AfterResult   time.Duration `yaml:"after_result"`
	AfterHistory  time.Duration `yaml:"after_history"`
}

// DefaultSiteProfile returns the profile for www.jamef.com.br.
func DefaultSiteProfile() SiteProfile {
	return SiteProfile{
		BaseURL:          "https://www.jamef.com.br/",
		ResultPathMarker: "/rastrear/",
		Selectors: Selectors{
			NFInput:        `input[placeholder*="nota"]`,
			CNPJInput:      `input[placeholder*="CPF"]`,
			Submit:         `button[type="submit"]`,
			HistoryButton:  `button.button.bg-red`,
			HistoryContent: `.popup-content .content`,
		},
		Timeouts: StepTimeouts{
			Click:          10 * time.Second,
			NFInput:        10 * time.Second,
			CNPJInput:      10 * time.Second,
			ResultURL:      15 * time.Second,
			HistoryContent: 8 * time.Second,
		},
		Pauses: Pauses{
			AfterLoad:     2 * time.Second,
			AfterNFSubmit: 3 * time.Second,
			AfterResult:   2 * time.Second,
			AfterHistory:  1 * time.Second,
		},
	}
}

// LoadSiteProfile returns the default profile, overridden by the YAML file
// at path when path is non-empty. Keys missing from the file keep their
// defaults.
func LoadSiteProfile(path string) (SiteProfile, error) {
	profile := DefaultSiteProfile()
	if strings.TrimSpace(path) == "" {
		return profile, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return SiteProfile{}, fmt.Errorf("failed to read site profile: %w", err)
	}
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return SiteProfile{}, fmt.Errorf("failed to parse site profile: %w", err)
	}
	if err := profile.Validate(); err != nil {
		return SiteProfile{}, fmt.Errorf("site profile %s: %w", path, err)
	}
	return profile, nil
}

// Validate ensures no selector or URL was blanked out.
func (p SiteProfile) Validate() error {
	required := map[string]string{
		"base_url":                  p.BaseURL,
		"result_path_marker":        p.ResultPathMarker,
		"selectors.nf_input":        p.Selectors.NFInput,
		"selectors.cnpj_input":      p.Selectors.CNPJInput,
		"selectors.submit":          p.Selectors.Submit,
		"selectors.history_button":  p.Selectors.HistoryButton,
		"selectors.history_content": p.Selectors.HistoryContent,
	}
	for name, value := range required {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("%s is required", name)
		}
	}
	if p.Timeouts.Click <= 0 || p.Timeouts.NFInput <= 0 || p.Timeouts.CNPJInput <= 0 ||
		p.Timeouts.ResultURL <= 0 || p.Timeouts.HistoryContent <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	return nil
}
