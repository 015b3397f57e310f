package tracking

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	svcerrors "github.com/R3E-Network/jamef_tracker/internal/errors"
)

func TestNormalizeQuery(t *testing.T) {
	tests := []struct {
		name     string
		nf, cnpj string
		want     Query
		wantErr  bool
	}{
		{name: "default cnpj", nf: "12345", want: Query{NF: "12345", CNPJ: "48775191000190"}},
		{name: "trimmed nf", nf: "  777 ", cnpj: "1", want: Query{NF: "777", CNPJ: "1"}},
		{name: "formatted cnpj", nf: "1", cnpj: "11.222.333/0001-81", want: Query{NF: "1", CNPJ: "11222333000181"}},
		{name: "formatted cpf", nf: "1", cnpj: "123.456.789-09", want: Query{NF: "1", CNPJ: "12345678909"}},
		{name: "blank cnpj uses default", nf: "1", cnpj: "   ", want: Query{NF: "1", CNPJ: "48775191000190"}},
		{name: "empty nf", nf: " ", wantErr: true},
		{name: "letters in cnpj", nf: "1", cnpj: "abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeQuery(tt.nf, tt.cnpj, "48.775.191/0001-90")
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, svcerrors.IsCode(err, svcerrors.CodeInvalidInput))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestQueryCacheKey(t *testing.T) {
	assert.Equal(t, "rastreio:1:2", Query{NF: "1", CNPJ: "2"}.CacheKey())
}

func TestResultJSONShape(t *testing.T) {
	r := &Result{NF: "1"}
	r.Finalize()

	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, `{"nf":"1","origem":null,"destino":null,"previsao_entrega":null,"status_atual":null,"historico":[]}`, string(data))
}

func TestFinalize_StatusFromNewestEvent(t *testing.T) {
	r := &Result{
		NF:          "1",
		StatusAtual: StringPtr("stale"),
		Historico: []Event{
			{Status: StringPtr("ENTREGUE")},
			{Status: StringPtr("EM ROTA")},
		},
	}
	r.Finalize()
	require.NotNil(t, r.StatusAtual)
	assert.Equal(t, "ENTREGUE", *r.StatusAtual)

	r.Historico[0].Status = nil
	r.Finalize()
	assert.Nil(t, r.StatusAtual)
}

func TestClone_IsDeep(t *testing.T) {
	r := &Result{NF: "1", Origem: StringPtr("SP"), Historico: []Event{{Status: StringPtr("A")}}}
	c := r.Clone()

	*c.Origem = "RJ"
	*c.Historico[0].Status = "B"
	assert.Equal(t, "SP", *r.Origem)
	assert.Equal(t, "A", *r.Historico[0].Status)

	var nilResult *Result
	assert.Nil(t, nilResult.Clone())
}
