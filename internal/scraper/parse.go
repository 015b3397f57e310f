package scraper

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/R3E-Network/jamef_tracker/internal/tracking"
)

const previsaoLabel = "Previsão de Entrega:"

// Summary holds the fields read from the tracking result page.
type Summary struct {
	PrevisaoEntrega *string
	Origem          *string
	Destino         *string
}

// historyFields maps the bold labels of the history popup to event fields.
var historyFields = map[string]func(*tracking.Event, string){
	"Data":              func(e *tracking.Event, v string) { e.Data = &v },
	"Status":            func(e *tracking.Event, v string) { e.Status = &v },
	"Estado origem":     func(e *tracking.Event, v string) { e.EstadoOrigem = &v },
	"Município origem":  func(e *tracking.Event, v string) { e.MunicipioOrigem = &v },
	"Estado destino":    func(e *tracking.Event, v string) { e.EstadoDestino = &v },
	"Município destino": func(e *tracking.Event, v string) { e.MunicipioDestino = &v },
}

// ParseSummary extracts the delivery forecast, origin and destination from
// the result page HTML.
func ParseSummary(html string) (Summary, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Summary{}, fmt.Errorf("parse result page: %w", err)
	}

	var out Summary

	doc.Find("*").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if s.Children().Length() != 1 || !strings.Contains(s.Text(), previsaoLabel) {
			return true
		}
		span := s.Find("span").First()
		if span.Length() == 0 {
			return true
		}
		out.PrevisaoEntrega = tracking.StringPtr(strings.TrimSpace(span.Text()))
		return false
	})

	doc.Find("h3, h4, strong, b").Each(func(_ int, s *goquery.Selection) {
		switch strings.TrimSpace(s.Text()) {
		case "Origem":
			out.Origem = nextSiblingText(s)
		case "Destino":
			out.Destino = nextSiblingText(s)
		}
	})

	return out, nil
}

func nextSiblingText(s *goquery.Selection) *string {
	next := s.Next()
	if next.Length() == 0 {
		return nil
	}
	return tracking.StringPtr(strings.TrimSpace(next.Text()))
}

// ParseHistory extracts the history entries from the popup content HTML.
// Each "Data" label starts a new entry; labels without a known field are
// skipped.
func ParseHistory(html string) ([]tracking.Event, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse history popup: %w", err)
	}

	entries := []tracking.Event{}
	var current tracking.Event
	fields := 0

	doc.Find("p").Each(func(_ int, p *goquery.Selection) {
		bold := p.Find("b").First()
		if bold.Length() == 0 {
			return
		}
		boldText := bold.Text()
		rawKey := strings.TrimSpace(strings.Replace(boldText, ":", "", 1))
		value := strings.TrimSpace(strings.Replace(p.Text(), boldText, "", 1))

		if rawKey == "Data" {
			if fields > 0 {
				entries = append(entries, current)
			}
			current = tracking.Event{}
			fields = 0
		}
		if set, ok := historyFields[rawKey]; ok {
			set(&current, value)
			fields++
		}
	})
	if fields > 0 {
		entries = append(entries, current)
	}

	return entries, nil
}
