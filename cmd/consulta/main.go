// Package main is an interactive command that looks up one nota fiscal,
// either by driving a local browser or by calling a running tracker API.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/R3E-Network/jamef_tracker/internal/cli"
	"github.com/R3E-Network/jamef_tracker/internal/config"
	"github.com/R3E-Network/jamef_tracker/internal/httputil"
	"github.com/R3E-Network/jamef_tracker/internal/logging"
	"github.com/R3E-Network/jamef_tracker/internal/scraper"
	"github.com/R3E-Network/jamef_tracker/internal/tracking"
)

type options struct {
	nf          string
	cnpj        string
	headful     bool
	wait        bool
	apiURL      string
	jsonOnly    bool
	timeout     time.Duration
	profilePath string
	chromePath  string
	// defaultCNPJ is used when -cnpj is empty.
	defaultCNPJ string
}

func parseFlags(args []string) (options, error) {
	var opts options
	fs := flag.NewFlagSet("consulta", flag.ContinueOnError)
	fs.StringVar(&opts.nf, "nf", "", "nota fiscal number (prompted when empty)")
	fs.StringVar(&opts.cnpj, "cnpj", "", "sender CPF/CNPJ (default $DEFAULT_CNPJ or "+config.DefaultCNPJ+")")
	fs.BoolVar(&opts.headful, "headful", false, "show the browser window")
	fs.BoolVar(&opts.wait, "wait", false, "with -headful, keep the browser open until ENTER")
	fs.StringVar(&opts.apiURL, "api", "", "query a running tracker API at this base URL instead of a local browser")
	fs.BoolVar(&opts.jsonOnly, "json", false, "print only the result JSON")
	fs.DurationVar(&opts.timeout, "timeout", 2*time.Minute, "overall lookup timeout")
	fs.StringVar(&opts.profilePath, "profile", os.Getenv("SITE_PROFILE"), "YAML site profile overriding selectors and timeouts")
	fs.StringVar(&opts.chromePath, "chrome", os.Getenv("CHROME_PATH"), "Chromium executable")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	opts.defaultCNPJ = strings.TrimSpace(os.Getenv("DEFAULT_CNPJ"))
	return opts, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, os.Stdin, os.Stdout); err != nil {
		cli.Error(os.Stderr, "[ERRO] "+err.Error())
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, stdin io.Reader, stdout io.Writer) error {
	in := bufio.NewReader(stdin)

	if strings.TrimSpace(opts.nf) == "" {
		fmt.Fprint(stdout, "Digite o número da Nota Fiscal: ")
		line, err := in.ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("read nota fiscal: %w", err)
		}
		opts.nf = line
	}

	defaultCNPJ := opts.defaultCNPJ
	if defaultCNPJ == "" {
		defaultCNPJ = config.DefaultCNPJ
	}
	q, err := tracking.NormalizeQuery(opts.nf, opts.cnpj, defaultCNPJ)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	if !opts.jsonOnly {
		printBanner(stdout, "Consultando NF: "+q.NF)
		if opts.wait && !opts.headful {
			cli.Warning(stdout, "-wait só tem efeito com -headful")
		}
	}

	var result *tracking.Result
	if opts.apiURL != "" {
		result, err = lookupRemote(ctx, opts, q, stdout)
	} else {
		result, err = lookupLocal(ctx, opts, q, in, stdout)
	}
	if err != nil {
		return err
	}

	if err := printResult(stdout, result, opts.jsonOnly); err != nil {
		return err
	}
	if !opts.jsonOnly {
		cli.Success(stdout, "Consulta concluída")
	}
	return nil
}

func lookupRemote(ctx context.Context, opts options, q tracking.Query, stdout io.Writer) (*tracking.Result, error) {
	client := httputil.NewClient(httputil.ClientConfig{BaseURL: opts.apiURL, Timeout: opts.timeout})

	if opts.jsonOnly {
		return client.Track(ctx, q.NF, q.CNPJ)
	}

	cli.Info(stdout, "Usando a API em "+opts.apiURL)
	spinner := cli.NewSpinner("Consultando " + opts.apiURL)
	spinner.Start()
	result, err := client.Track(ctx, q.NF, q.CNPJ)
	spinner.Stop()
	return result, err
}

func lookupLocal(ctx context.Context, opts options, q tracking.Query, in *bufio.Reader, stdout io.Writer) (*tracking.Result, error) {
	profile, err := config.LoadSiteProfile(opts.profilePath)
	if err != nil {
		return nil, err
	}

	cfg := scraper.Config{
		Profile:    profile,
		ChromePath: opts.chromePath,
		Headless:   !opts.headful,
		Logger:     logging.NewWithWriter("consulta", "warn", "text", os.Stderr),
	}
	var steps *cli.StepPrinter
	if !opts.jsonOnly {
		steps = cli.NewStepPrinter().SetWriter(stdout)
		cfg.OnStep = steps.Step
	}
	if opts.headful && opts.wait {
		cfg.BeforeClose = func() {
			fmt.Fprint(stdout, "\nPressione ENTER para fechar o navegador...")
			_, _ = in.ReadString('\n')
		}
	}

	result, err := scraper.New(cfg).Scrape(ctx, q)
	if err != nil {
		if steps != nil && steps.LastStep() > 0 {
			return nil, fmt.Errorf("etapa %d/%d: %w", steps.LastStep(), scraper.TotalSteps, err)
		}
		return nil, err
	}
	if steps != nil {
		steps.Finish()
	}
	return result, nil
}

func printBanner(w io.Writer, title string) {
	line := strings.Repeat("=", 60)
	fmt.Fprintf(w, "\n%s\n  %s\n%s\n\n", line, title, line)
}

func printResult(w io.Writer, result *tracking.Result, jsonOnly bool) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")

	if jsonOnly {
		return enc.Encode(result)
	}

	previsao := "N/A"
	if result.PrevisaoEntrega != nil {
		previsao = *result.PrevisaoEntrega
	}

	line := strings.Repeat("=", 60)
	fmt.Fprintf(w, "\n%s\n  RESULTADO - NF %s\n%s\n", line, result.NF, line)
	fmt.Fprintf(w, "  Previsão de Entrega: %s\n", previsao)
	if result.StatusAtual != nil {
		fmt.Fprintf(w, "  Status atual: %s\n", *result.StatusAtual)
	}
	fmt.Fprintf(w, "\n  Histórico completo (%d registros):\n", len(result.Historico))
	if err := enc.Encode(result.Historico); err != nil {
		return err
	}
	fmt.Fprintf(w, "%s\n\n", line)
	return nil
}
