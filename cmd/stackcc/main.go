package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"stackcc/pkg/asm"
	"stackcc/pkg/compiler"
	"stackcc/pkg/config"
	"stackcc/pkg/cpu"
	"stackcc/pkg/diag"
	"stackcc/pkg/telemetry"
)

var version = "dev"

const (
	exitOK    = 0
	exitFail  = 1
	exitUsage = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr, os.Getenv))
}

type options struct {
	file       string
	out        string
	configPath string
	check      string
	color      string
	entry      string
	comments   bool
	tokens     bool
	ast        bool
	execute    bool
	verbose    bool
	version    bool
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer, getenv func(string) string) int {
	logger := log.New(stderr, "stackcc: ", 0)

	var opts options
	fs := flag.NewFlagSet("stackcc", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.file, "f", "", "Read the program from `path` (- for stdin)")
	fs.StringVar(&opts.out, "o", "", "Write the assembly to `path` instead of stdout")
	fs.StringVar(&opts.configPath, "config", "", "Settings file (.toml, .yaml or .yml)")
	fs.StringVar(&opts.check, "check", "", "Compare the assembly with a golden `file` and exit 1 on mismatch")
	fs.StringVar(&opts.color, "color", "", "Colour mode: auto, always or never")
	fs.StringVar(&opts.entry, "entry", "", "Name of the global entry label")
	fs.BoolVar(&opts.comments, "comments", false, "Annotate each statement with its canonical form")
	fs.BoolVar(&opts.tokens, "tokens", false, "Print the token stream")
	fs.BoolVar(&opts.ast, "ast", false, "Print the syntax tree of each statement")
	fs.BoolVar(&opts.execute, "run", false, "Assemble and execute the program, printing the last value")
	fs.BoolVar(&opts.verbose, "v", false, "Report which settings file was used")
	fs.BoolVar(&opts.version, "version", false, "Show stackcc version")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "usage: stackcc [flags] 'program' | -f path\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	if opts.version {
		fmt.Fprintf(stdout, "stackcc %s\n", version)
		return exitOK
	}

	wd, err := os.Getwd()
	if err != nil {
		logger.Printf("working directory: %v", err)
		return exitFail
	}
	settings, handle, err := config.Load(wd, opts.configPath)
	if err != nil {
		logger.Print(err)
		return exitFail
	}
	if opts.verbose {
		if handle.Path == "" {
			logger.Print("settings: built-in defaults")
		} else {
			logger.Printf("settings: %s (%s)", handle.Path, handle.Format)
		}
	}
	settings, err = applyFlags(fs, opts, settings)
	if err != nil {
		logger.Print(err)
		return exitUsage
	}

	name, src, err := readSource(fs.Args(), opts.file, stdin)
	if err != nil {
		logger.Print(err)
		fs.Usage()
		return exitUsage
	}

	telemetryCfg := telemetryConfig(settings, getenv)
	telemetryCfg.Version = version
	provider, err := telemetry.New(telemetryCfg)
	if err != nil {
		logger.Printf("telemetry: %v", err)
		return exitFail
	}
	defer func() {
		if err := provider.Shutdown(context.Background()); err != nil {
			logger.Printf("telemetry shutdown: %v", err)
		}
	}()

	c := compiler.New(
		compiler.WithEntry(settings.Entry),
		compiler.WithComments(settings.Comments),
		compiler.WithTracer(provider.Tracer()),
	)
	res, err := c.Compile(context.Background(), src)
	if err != nil {
		diag.NewPrinter(stderr, settings.Color).Error(name, src, err)
		return exitFail
	}

	if opts.tokens {
		fmt.Fprintf(stdout, "Tokens (%d)\n", len(res.Tokens))
		for _, tok := range res.Tokens {
			fmt.Fprintln(stdout, " ", tok)
		}
		fmt.Fprintln(stdout)
	}
	if opts.ast {
		fmt.Fprintln(stdout, "AST")
		for _, s := range res.Stmts {
			fmt.Fprintln(stdout, " ", s.Dump())
		}
		fmt.Fprintln(stdout)
	}

	text := strings.Join(res.Lines, "\n") + "\n"

	if opts.check != "" {
		golden, err := os.ReadFile(opts.check)
		if err != nil {
			logger.Printf("read golden: %v", err)
			return exitFail
		}
		if d := diag.Diff(opts.check, string(golden), text); d != "" {
			fmt.Fprint(stderr, d)
			return exitFail
		}
	}

	switch {
	case opts.out != "":
		if err := os.WriteFile(opts.out, []byte(text), 0o644); err != nil {
			logger.Printf("write output: %v", err)
			return exitFail
		}
	case !opts.execute:
		if err := diag.NewPrinter(stdout, settings.Color).Assembly(res.Lines); err != nil {
			logger.Printf("write output: %v", err)
			return exitFail
		}
	}

	if opts.execute {
		val, err := execute(res.Lines, settings)
		if err != nil {
			diag.NewPrinter(stderr, settings.Color).Error(name, src, fmt.Errorf("runtime error: %w", err))
			return exitFail
		}
		fmt.Fprintln(stdout, val)
	}
	return exitOK
}

// applyFlags lets explicitly set flags override the settings file.
func applyFlags(fs *flag.FlagSet, opts options, settings config.Settings) (config.Settings, error) {
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "entry":
			settings.Entry = opts.entry
		case "comments":
			settings.Comments = opts.comments
		case "color":
			settings.Color = opts.color
		}
	})
	return config.Normalise(settings)
}

func readSource(args []string, file string, stdin io.Reader) (name, src string, err error) {
	switch {
	case file != "" && len(args) > 0:
		return "", "", fmt.Errorf("give the program either as an argument or with -f, not both")
	case file == "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", "", fmt.Errorf("read stdin: %w", err)
		}
		return "<stdin>", string(data), nil
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return "", "", fmt.Errorf("read source: %w", err)
		}
		return file, string(data), nil
	case len(args) == 1:
		return "<arg>", args[0], nil
	case len(args) > 1:
		return "", "", fmt.Errorf("expected one program argument, got %d", len(args))
	}
	return "", "", fmt.Errorf("no program given")
}

// telemetryConfig layers the environment over the settings file.
func telemetryConfig(settings config.Settings, getenv func(string) string) telemetry.Config {
	env := telemetry.ConfigFromEnv(getenv)
	cfg := telemetry.Config{
		Endpoint:    settings.Telemetry.Endpoint,
		Insecure:    settings.Telemetry.Insecure,
		ServiceName: settings.Telemetry.ServiceName,
		DialTimeout: env.DialTimeout,
	}
	if env.Endpoint != "" {
		cfg.Endpoint = env.Endpoint
		cfg.Insecure = env.Insecure
	}
	if cfg.ServiceName == "" || getenv("STACKCC_OTEL_SERVICE") != "" {
		cfg.ServiceName = env.ServiceName
	}
	return cfg
}

func execute(lines []string, settings config.Settings) (int64, error) {
	prog, err := asm.AssembleLines(lines)
	if err != nil {
		return 0, fmt.Errorf("assemble: %w", err)
	}
	return cpu.Execute(prog, settings.Entry, settings.Run.StackSize, settings.Run.MaxSteps)
}
