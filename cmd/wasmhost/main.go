package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/wasm-host/loader"
	"github.com/wippyai/wasm-host/world"
)

type options struct {
	manifest    string
	dir         string
	cacheDir    string
	funcName    string
	interpreter bool
	list        bool
	interactive bool
	verbose     bool
}

func main() {
	var opts options
	flag.StringVar(&opts.manifest, "manifest", "", "Path to the world manifest (TOML)")
	flag.StringVar(&opts.dir, "dir", "", "Directory with <module>.wasm files (overrides the manifest)")
	flag.StringVar(&opts.cacheDir, "cache", "", "Directory for the compilation cache")
	flag.StringVar(&opts.funcName, "func", "", "Export to call (optional with a single export)")
	flag.BoolVar(&opts.interpreter, "interp", false, "Use the interpreter instead of the compiler")
	flag.BoolVar(&opts.list, "list", false, "List declared exports and exit")
	flag.BoolVar(&opts.interactive, "i", false, "Interactive mode with TUI")
	flag.BoolVar(&opts.verbose, "v", false, "Verbose logging")
	flag.Parse()

	if opts.manifest == "" {
		fmt.Fprintln(os.Stderr, "Usage: wasmhost -manifest <world.toml> [-func name] [args...]")
		fmt.Fprintln(os.Stderr, "       wasmhost -manifest <world.toml> -list")
		fmt.Fprintln(os.Stderr, "       wasmhost -manifest <world.toml> -i  (interactive mode)")
		os.Exit(1)
	}

	log, err := newLogger(opts.verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(context.Background(), opts, flag.Args(), log); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return cfg.Build()
}

// session is a loaded manifest and the engine it runs on.
type session struct {
	manifest *Manifest
	engine   *world.Engine
	decl     world.Declaration
}

func openSession(ctx context.Context, opts options, log *zap.Logger) (*session, error) {
	m, err := LoadManifest(opts.manifest)
	if err != nil {
		return nil, fmt.Errorf("load manifest: %w", err)
	}
	decl, err := m.Declaration(log)
	if err != nil {
		return nil, fmt.Errorf("manifest: %w", err)
	}
	dir := m.Dir
	if opts.dir != "" {
		dir = opts.dir
	}
	eng, err := world.NewEngine(ctx, world.Config{
		Logger:           log,
		CacheDir:         opts.cacheDir,
		MemoryLimitPages: m.MemoryLimitPages,
		Interpreter:      opts.interpreter,
	}, loader.DirSource(dir))
	if err != nil {
		return nil, fmt.Errorf("create engine: %w", err)
	}
	return &session{manifest: m, engine: eng, decl: decl}, nil
}

func run(ctx context.Context, opts options, args []string, log *zap.Logger) error {
	if opts.interactive {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			return fmt.Errorf("interactive mode needs a terminal")
		}
		return runInteractive(opts, log)
	}

	s, err := openSession(ctx, opts, log)
	if err != nil {
		return err
	}
	defer s.engine.Close(ctx)

	if opts.list {
		printExports(s.manifest)
		return nil
	}

	funcName := opts.funcName
	if funcName == "" {
		if len(s.decl.Exports) != 1 {
			printExports(s.manifest)
			return fmt.Errorf("use -func to choose one of %d exports", len(s.decl.Exports))
		}
		funcName = s.decl.Exports[0].Name
	}

	w, err := s.engine.Instantiate(ctx, s.decl)
	if err != nil {
		return fmt.Errorf("instantiate: %w", err)
	}
	defer w.Close(ctx)

	fn, ok := w.Func(funcName)
	if !ok {
		return fmt.Errorf("no export %q", funcName)
	}
	callArgs, err := parseArgs(fn.Signature().Params, args)
	if err != nil {
		return fmt.Errorf("call %s: %w", funcName, err)
	}
	result, err := fn.Call(ctx, callArgs...)
	if err != nil {
		return fmt.Errorf("call %s: %w", funcName, err)
	}
	fmt.Println(formatValue(result))
	return nil
}

func printExports(m *Manifest) {
	fmt.Printf("Modules: %v\n", m.Modules)
	fmt.Printf("\nExports:\n")
	exports := append([]ExportDecl(nil), m.Exports...)
	sort.Slice(exports, func(i, j int) bool { return exports[i].Name < exports[j].Name })
	for _, e := range exports {
		fmt.Printf("  %s\n", describeExport(e))
	}
}

func describeExport(e ExportDecl) string {
	out := e.Name + "("
	for i, name := range e.paramNames() {
		if i > 0 {
			out += ", "
		}
		out += name + ": " + e.Params[i].Type
	}
	out += ")"
	if e.Result != "" {
		out += " -> " + e.Result
	}
	return out
}
