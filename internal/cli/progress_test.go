package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestStepPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := NewStepPrinter().SetWriter(&buf)

	p.Step(1, 7, "Acessando https://www.jamef.com.br/")
	p.Step(2, 7, "Preenchendo NF 12345")

	out := buf.String()
	if !strings.Contains(out, "[1/7] Acessando https://www.jamef.com.br/...\n") {
		t.Errorf("output = %q", out)
	}
	if !strings.Contains(out, "[2/7] Preenchendo NF 12345...\n") {
		t.Errorf("output = %q", out)
	}
	if strings.Contains(out, "\033[") {
		t.Error("output should not be colorized when writing to a buffer")
	}
	if p.LastStep() != 2 {
		t.Errorf("LastStep = %d, want 2", p.LastStep())
	}

	p.Finish()
	if !strings.Contains(buf.String(), "Concluído em") {
		t.Errorf("missing finish line: %q", buf.String())
	}
}

func TestStatusLines(t *testing.T) {
	var buf bytes.Buffer
	Success(&buf, "Consulta concluída")
	Warning(&buf, "atenção")
	Info(&buf, "usando API")
	Error(&buf, "falhou")

	want := "✓ Consulta concluída\n⚠ atenção\nℹ usando API\n✗ falhou\n"
	if buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}
}

func TestSpinnerStartStop(t *testing.T) {
	var buf bytes.Buffer
	s := NewSpinner("Consultando API")
	s.writer = &buf
	s.colorize = false

	s.Start()
	s.Start()
	time.Sleep(150 * time.Millisecond)
	s.Stop()
	s.Stop()

	if !strings.Contains(buf.String(), "Consultando API") {
		t.Errorf("spinner output = %q", buf.String())
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{500 * time.Millisecond, "< 1s"},
		{42 * time.Second, "42s"},
		{95 * time.Second, "1m35s"},
		{2*time.Hour + 5*time.Minute, "2h5m"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
