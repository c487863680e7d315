package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

const (
	colorRed     = 31
	colorGreen   = 32
	colorYellow  = 33
	colorMagenta = 35

	colorBold = 1
)

func colorize(s interface{}, c int) string {
	return fmt.Sprintf("\x1b[%dm%v\x1b[0m", c, s)
}

// Options controls logger construction.
type Options struct {
	// Env selects the output format: "development", "dev" or "" give a
	// colored console writer, anything else gives JSON.
	Env string
	// Level is a zerolog level name ("debug", "info", ...). Empty means info.
	Level string
	// Out defaults to os.Stderr.
	Out io.Writer
}

// New creates a logger based on the given options
func New(opts Options) zerolog.Logger {
	out := opts.Out
	if out == nil {
		out = os.Stderr
	}

	var l zerolog.Logger
	if IsDevelopment(opts.Env) {
		l = NewDevelopment(out)
	} else {
		l = NewProduction(out)
	}
	return l.Level(ParseLevel(opts.Level))
}

// IsDevelopment reports whether env names a development environment.
func IsDevelopment(env string) bool {
	return env == "development" || env == "dev" || env == ""
}

// ParseLevel maps a level name to a zerolog level, falling back to info.
func ParseLevel(level string) zerolog.Level {
	if strings.TrimSpace(level) == "" {
		return zerolog.InfoLevel
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// NewDevelopment creates a development logger with console output and colors
func NewDevelopment(out io.Writer) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: "2006-01-02 15:04:05",
		FormatLevel: func(i interface{}) string {
			ll, ok := i.(string)
			if !ok {
				return strings.ToUpper(fmt.Sprintf("%s", i))
			}
			switch ll {
			case "trace":
				return colorize("TRC", colorMagenta)
			case "debug":
				return colorize("DBG", colorYellow)
			case "info":
				return colorize("INF", colorGreen)
			case "warn":
				return colorize("WRN", colorRed)
			case "error":
				return colorize("ERR", colorRed)
			case "fatal":
				return colorize("FTL", colorRed)
			case "panic":
				return colorize("PNC", colorRed)
			}
			if len(ll) >= 3 {
				return colorize(strings.ToUpper(ll)[0:3], colorBold)
			}
			return colorize(strings.ToUpper(ll), colorBold)
		},
	}
	return zerolog.New(output).With().Timestamp().Logger()
}

// NewProduction creates a production logger with JSON output and UNIX timestamps
func NewProduction(out io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	return zerolog.New(out).With().Timestamp().Logger()
}

// Nop returns a disabled logger, handy as a default for optional loggers.
func Nop() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

// previewMask replaces tokens too short to preview without revealing them.
const previewMask = "******"

// Preview shortens a bearer token for logs: first and last six characters.
// Tokens of 24 characters or fewer are masked entirely.
func Preview(token string) string {
	switch {
	case token == "":
		return ""
	case len(token) <= 24:
		return previewMask
	}
	return token[:6] + "…" + token[len(token)-6:]
}
