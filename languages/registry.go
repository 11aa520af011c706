package languages

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/isdmx/codebox/config"
)

// ErrNotSupported is returned for language ids without a registry entry
var ErrNotSupported = errors.New("language not supported")

// ID identifies a supported language
type ID string

// Supported languages
const (
	C          ID = "c"
	CPP        ID = "cpp"
	CSharp     ID = "csharp"
	Go         ID = "go"
	Java       ID = "java"
	JavaScript ID = "javascript"
	PHP        ID = "php"
	Python     ID = "python"
	Ruby       ID = "ruby"
	Rust       ID = "rust"
	SQL        ID = "sql"
)

// All returns every supported language id in a stable order
func All() []ID {
	return []ID{C, CPP, CSharp, Go, Java, JavaScript, PHP, Python, Ruby, Rust, SQL}
}

// StdinMode describes how a program receives its standard input
type StdinMode int

const (
	// StdinFromFile means the run command reads /app/input.txt itself.
	StdinFromFile StdinMode = iota
	// StdinStream means stdin is written to the run exec's stdin channel.
	StdinStream
	// StdinNone means the program takes no input.
	StdinNone
)

// Sandbox-side paths shared by every language
const (
	MountPath     = "/app"
	InputFileName = "input.txt"
	InputPath     = MountPath + "/" + InputFileName
)

// Language holds everything needed to build and run one language
type Language struct {
	ID         ID
	Name       string
	Image      string
	SourceFile string
	// CompileCmd is empty for interpreted languages.
	CompileCmd []string
	RunCmd     []string
	// RunWithInputCmd replaces RunCmd when the request has stdin.
	RunWithInputCmd []string
	Stdin           StdinMode
	// ExtraFiles are written next to the source file.
	ExtraFiles  map[string]string
	Environment map[string]string
	Transform   func(code string) string
}

// HasCompileStep reports whether the language is compiled before running
func (l Language) HasCompileStep() bool {
	return len(l.CompileCmd) > 0
}

// RunCommand returns the argv of the run step
func (l Language) RunCommand(hasStdin bool) []string {
	if hasStdin && len(l.RunWithInputCmd) > 0 {
		return l.RunWithInputCmd
	}
	return l.RunCmd
}

// PrepareSource applies the language's source rewriting rule
func (l Language) PrepareSource(code string) string {
	if l.Transform == nil {
		return code
	}
	return l.Transform(code)
}

// Env returns the environment as KEY=VALUE pairs sorted by key
func (l Language) Env() []string {
	env := make([]string, 0, len(l.Environment))
	for k, v := range l.Environment {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)
	return env
}

// Registry is the read-only language table. It is safe for concurrent use
// because nothing mutates it after NewRegistry returns.
type Registry struct {
	languages map[ID]Language
}

// NewRegistry builds the registry from the built-in table and applies
// image and environment overrides from configuration
func NewRegistry(overrides map[string]config.Language) (*Registry, error) {
	table := builtin()
	for key, override := range overrides {
		id := ID(strings.ToLower(key))
		lang, ok := table[id]
		if !ok {
			return nil, fmt.Errorf("languages.%s: %w", key, ErrNotSupported)
		}
		if override.Image != "" {
			lang.Image = override.Image
		}
		if len(override.Environment) > 0 {
			env := make(map[string]string, len(lang.Environment)+len(override.Environment))
			for k, v := range lang.Environment {
				env[k] = v
			}
			// viper lowercases map keys; environment names are conventionally upper case.
			for k, v := range override.Environment {
				env[strings.ToUpper(k)] = v
			}
			lang.Environment = env
		}
		table[id] = lang
	}
	return &Registry{languages: table}, nil
}

// NewRegistryFromConfig builds the registry from the languages section
func NewRegistryFromConfig(cfg *config.Config) (*Registry, error) {
	return NewRegistry(cfg.Languages)
}

// Lookup returns the language registered under id
func (r *Registry) Lookup(id string) (Language, error) {
	lang, ok := r.languages[ID(id)]
	if !ok {
		return Language{}, fmt.Errorf("%w: %s", ErrNotSupported, id)
	}
	return lang, nil
}

// List returns all registered languages ordered by id
func (r *Registry) List() []Language {
	langs := make([]Language, 0, len(r.languages))
	for _, id := range All() {
		if lang, ok := r.languages[id]; ok {
			langs = append(langs, lang)
		}
	}
	return langs
}

// IDs returns the registered language ids as strings
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.languages))
	for _, lang := range r.List() {
		ids = append(ids, string(lang.ID))
	}
	return ids
}

func pipeInput(binary string) []string {
	return []string{"sh", "-c", "cat " + InputPath + " | " + binary}
}

func builtin() map[ID]Language {
	return map[ID]Language{
		C: {
			ID:         C,
			Name:       "C",
			Image:      "gcc:13",
			SourceFile: "code.c",
			CompileCmd: []string{"gcc", "-o", "/app/code.out", "/app/code.c"},
			RunCmd:     pipeInput("/app/code.out"),
		},
		CPP: {
			ID:         CPP,
			Name:       "C++",
			Image:      "gcc:13",
			SourceFile: "code.cpp",
			CompileCmd: []string{"g++", "-o", "/app/code.out", "/app/code.cpp"},
			RunCmd:     pipeInput("/app/code.out"),
		},
		CSharp: {
			ID:         CSharp,
			Name:       "C#",
			Image:      "mcr.microsoft.com/dotnet/sdk:8.0",
			SourceFile: "code.cs",
			CompileCmd: []string{"dotnet", "build", "/app/project.csproj", "-c", "Release", "-o", "/app/out"},
			RunCmd:     pipeInput("/app/out/project"),
			ExtraFiles: map[string]string{"project.csproj": csharpProject},
			Environment: map[string]string{
				"DOTNET_CLI_HOME":             "/tmp",
				"DOTNET_NOLOGO":               "1",
				"DOTNET_CLI_TELEMETRY_OPTOUT": "1",
				// keep msbuild and the compiler server in-process under pids_limit
				"MSBUILDDISABLENODEREUSE": "1",
				"UseSharedCompilation":    "false",
			},
			Transform: wrapCSharp,
		},
		Go: {
			ID:         Go,
			Name:       "Go",
			Image:      "golang:1.23-alpine",
			SourceFile: "code.go",
			CompileCmd: []string{"go", "build", "-o", "/app/code.out", "/app/code.go"},
			RunCmd:     pipeInput("/app/code.out"),
			Environment: map[string]string{
				"GOCACHE": "/tmp/.gocache",
				"GOFLAGS": "-p=2",
				"HOME":    "/tmp",
			},
		},
		Java: {
			ID:              Java,
			Name:            "Java",
			Image:           "eclipse-temurin:21-jdk",
			SourceFile:      "Main.java",
			CompileCmd:      []string{"sh", "-c", "cd /app && javac Main.java"},
			RunCmd:          []string{"sh", "-c", "cd /app && java Main"},
			RunWithInputCmd: []string{"sh", "-c", "cd /app && java Main < " + InputPath},
			Transform:       renameJavaClass,
		},
		JavaScript: {
			ID:         JavaScript,
			Name:       "JavaScript",
			Image:      "node:20-alpine",
			SourceFile: "code.js",
			RunCmd:     []string{"node", "/app/code.js"},
			Stdin:      StdinStream,
			Transform:  injectReadlinePrelude,
		},
		PHP: {
			ID:         PHP,
			Name:       "PHP",
			Image:      "php:8.3-cli",
			SourceFile: "code.php",
			RunCmd:     pipeInput("php /app/code.php"),
		},
		Python: {
			ID:         Python,
			Name:       "Python",
			Image:      "python:3.11-slim",
			SourceFile: "code.py",
			RunCmd:     pipeInput("python -u /app/code.py"),
			Environment: map[string]string{
				"PYTHONDONTWRITEBYTECODE": "1",
			},
		},
		Ruby: {
			ID:         Ruby,
			Name:       "Ruby",
			Image:      "ruby:3.3-slim",
			SourceFile: "code.rb",
			RunCmd:     pipeInput("ruby /app/code.rb"),
		},
		Rust: {
			ID:         Rust,
			Name:       "Rust",
			Image:      "rust:1.80-slim",
			SourceFile: "code.rs",
			CompileCmd: []string{"rustc", "/app/code.rs", "-o", "/app/code.out"},
			RunCmd:     pipeInput("/app/code.out"),
		},
		SQL: {
			ID:         SQL,
			Name:       "SQL (SQLite)",
			Image:      "keinos/sqlite3:latest",
			SourceFile: "code.sql",
			RunCmd:     []string{"sh", "-c", "sqlite3 :memory: < /app/code.sql"},
			Stdin:      StdinNone,
			Transform:  singleQuoteSQL,
		},
	}
}
