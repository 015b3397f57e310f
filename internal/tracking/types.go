// Package tracking implements shipment lookups against the carrier website.
package tracking

import (
	"strings"
	"unicode"

	svcerrors "github.com/R3E-Network/jamef_tracker/internal/errors"
)

// Event is one entry of the shipment history popup.
type Event struct {
	Data             *string `json:"data"`
	Status           *string `json:"status"`
	EstadoOrigem     *string `json:"estado_origem"`
	MunicipioOrigem  *string `json:"municipio_origem"`
	EstadoDestino    *string `json:"estado_destino"`
	MunicipioDestino *string `json:"municipio_destino"`
}

// Result is the tracking response for a nota fiscal.
type Result struct {
	NF              string  `json:"nf"`
	Origem          *string `json:"origem"`
	Destino         *string `json:"destino"`
	PrevisaoEntrega *string `json:"previsao_entrega"`
	StatusAtual     *string `json:"status_atual"`
	Historico       []Event `json:"historico"`
}

// Query identifies a shipment: the invoice number and the sender document.
type Query struct {
	NF   string
	CNPJ string
}

// CacheKey returns the key results are cached under.
func (q Query) CacheKey() string {
	return "rastreio:" + q.NF + ":" + q.CNPJ
}

// NormalizeQuery trims the inputs, strips document punctuation and applies
// the default CNPJ when none was given.
func NormalizeQuery(nf, cnpj, defaultCNPJ string) (Query, error) {
	nf = strings.TrimSpace(nf)
	if nf == "" {
		return Query{}, svcerrors.InvalidInput("numero_nf", "is required")
	}

	cnpj = stripDocument(cnpj)
	if cnpj == "" {
		cnpj = stripDocument(defaultCNPJ)
	}
	if cnpj == "" {
		return Query{}, svcerrors.InvalidInput("cnpj", "is required")
	}
	for _, r := range cnpj {
		if !unicode.IsDigit(r) {
			return Query{}, svcerrors.InvalidInput("cnpj", "must contain only digits")
		}
	}

	return Query{NF: nf, CNPJ: cnpj}, nil
}

func stripDocument(doc string) string {
	doc = strings.TrimSpace(doc)
	return strings.NewReplacer(".", "", "/", "", "-", "", " ", "").Replace(doc)
}

// Finalize derives status_atual from the newest history entry and makes
// sure the history serializes as an array.
func (r *Result) Finalize() {
	if r.Historico == nil {
		r.Historico = []Event{}
	}
	r.StatusAtual = nil
	if len(r.Historico) > 0 && r.Historico[0].Status != nil {
		status := *r.Historico[0].Status
		r.StatusAtual = &status
	}
}

// Clone returns a deep copy so cached results are never shared.
func (r *Result) Clone() *Result {
	if r == nil {
		return nil
	}
	out := &Result{
		NF:              r.NF,
		Origem:          cloneString(r.Origem),
		Destino:         cloneString(r.Destino),
		PrevisaoEntrega: cloneString(r.PrevisaoEntrega),
		StatusAtual:     cloneString(r.StatusAtual),
		Historico:       make([]Event, len(r.Historico)),
	}
	for i, ev := range r.Historico {
		out.Historico[i] = Event{
			Data:             cloneString(ev.Data),
			Status:           cloneString(ev.Status),
			EstadoOrigem:     cloneString(ev.EstadoOrigem),
			MunicipioOrigem:  cloneString(ev.MunicipioOrigem),
			EstadoDestino:    cloneString(ev.EstadoDestino),
			MunicipioDestino: cloneString(ev.MunicipioDestino),
		}
	}
	return out
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}
