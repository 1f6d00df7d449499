// Package logx provides leveled, agent-tagged logging with domain-filtered debug output.
package logx

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

const timestampFormat = "2006-01-02T15:04:05.000Z"

// Logger writes lines of the form "[timestamp] [agentID] LEVEL: message".
type Logger struct {
	agentID string
}

// DebugConfig controls debug logging behavior.
type DebugConfig struct {
	Enabled bool
	Domains map[string]bool // nil = all domains
}

type agentIDKey struct{}

var (
	debugConfig = &DebugConfig{}
	debugMutex  sync.RWMutex

	// logWriter overrides stderr when non-nil.
	logWriter     io.Writer
	logWriterLock sync.Mutex
)

func init() { //nolint:gochecknoinits // env driven debug switches
	initDebugFromEnv()
}

// initDebugFromEnv reads DEBUG and DEBUG_DOMAINS.
func initDebugFromEnv() {
	debugMutex.Lock()
	defer debugMutex.Unlock()

	if debug := os.Getenv("DEBUG"); debug == "1" || strings.EqualFold(debug, "true") {
		debugConfig.Enabled = true
	}

	// DEBUG_DOMAINS=shell,toolloop,approval
	if domains := os.Getenv("DEBUG_DOMAINS"); domains != "" {
		debugConfig.Domains = make(map[string]bool)
		for _, domain := range strings.Split(domains, ",") {
			debugConfig.Domains[strings.TrimSpace(domain)] = true
		}
	}
}

func NewLogger(agentID string) *Logger {
	return &Logger{agentID: agentID}
}

// SetOutput redirects all log output. Passing nil restores stderr.
func SetOutput(w io.Writer) {
	logWriterLock.Lock()
	defer logWriterLock.Unlock()
	logWriter = w
}

// SetDebug enables or disables debug output globally.
func SetDebug(enabled bool) {
	debugMutex.Lock()
	defer debugMutex.Unlock()
	debugConfig.Enabled = enabled
}

// SetDebugDomains restricts debug output to the given domains. An empty list enables all.
func SetDebugDomains(domains []string) {
	debugMutex.Lock()
	defer debugMutex.Unlock()

	if len(domains) == 0 {
		debugConfig.Domains = nil
		return
	}
	debugConfig.Domains = make(map[string]bool)
	for _, domain := range domains {
		debugConfig.Domains[strings.TrimSpace(domain)] = true
	}
}

// IsDebugEnabled returns whether debug logging is enabled.
func IsDebugEnabled() bool {
	debugMutex.RLock()
	defer debugMutex.RUnlock()
	return debugConfig.Enabled
}

// IsDebugEnabledForDomain returns whether debug logging is enabled for a specific domain.
func IsDebugEnabledForDomain(domain string) bool {
	debugMutex.RLock()
	defer debugMutex.RUnlock()

	if !debugConfig.Enabled {
		return false
	}
	if debugConfig.Domains == nil {
		return true
	}
	return debugConfig.Domains[domain]
}

// WithAgentID attaches an agent ID to ctx for the package-level Debug helper.
func WithAgentID(ctx context.Context, agentID string) context.Context {
	return context.WithValue(ctx, agentIDKey{}, agentID)
}

// AgentIDFrom returns the agent ID stored in ctx, or "unknown".
func AgentIDFrom(ctx context.Context) string {
	if ctx != nil {
		if id, ok := ctx.Value(agentIDKey{}).(string); ok && id != "" {
			return id
		}
	}
	return "unknown"
}

func writeLine(line string) {
	logWriterLock.Lock()
	defer logWriterLock.Unlock()

	var w io.Writer = os.Stderr
	if logWriter != nil {
		w = logWriter
	}
	_, _ = fmt.Fprintln(w, line)
}

func format(agentID string, level Level, msg string) string {
	timestamp := time.Now().UTC().Format(timestampFormat)
	return fmt.Sprintf("[%s] [%s] %s: %s", timestamp, agentID, level, msg)
}

func (l *Logger) log(level Level, msgFormat string, args ...any) {
	writeLine(format(l.agentID, level, fmt.Sprintf(msgFormat, args...)))
}

func (l *Logger) Debug(msgFormat string, args ...any) {
	if !IsDebugEnabled() {
		return
	}
	l.log(LevelDebug, msgFormat, args...)
}

func (l *Logger) Info(msgFormat string, args ...any) {
	l.log(LevelInfo, msgFormat, args...)
}

func (l *Logger) Warn(msgFormat string, args ...any) {
	l.log(LevelWarn, msgFormat, args...)
}

func (l *Logger) Error(msgFormat string, args ...any) {
	l.log(LevelError, msgFormat, args...)
}

func (l *Logger) GetAgentID() string {
	return l.agentID
}

func (l *Logger) WithAgentID(agentID string) *Logger {
	return &Logger{agentID: agentID}
}

// Debug logs a domain-tagged debug message when that domain is enabled.
//
//	DEBUG=1                              # all domains
//	DEBUG=1 DEBUG_DOMAINS=shell          # only the shell session
//	DEBUG=1 DEBUG_DOMAINS=toolloop,mcp   # several domains
func Debug(ctx context.Context, domain, msgFormat string, args ...any) {
	if !IsDebugEnabledForDomain(domain) {
		return
	}
	msg := fmt.Sprintf("[%s] %s", domain, fmt.Sprintf(msgFormat, args...))
	writeLine(format(AgentIDFrom(ctx), LevelDebug, msg))
}

var defaultLogger = NewLogger("system")

func Infof(msgFormat string, args ...any) {
	defaultLogger.Info(msgFormat, args...)
}

func Warnf(msgFormat string, args ...any) {
	defaultLogger.Warn(msgFormat, args...)
}

// Errorf logs and returns the formatted error.
//
//	err := logx.Errorf("setup failed: %w", err)
func Errorf(msgFormat string, args ...any) error {
	err := fmt.Errorf(msgFormat, args...)
	defaultLogger.Error("%s", err.Error())
	return err
}

// Wrap logs msg + ": " + err.Error() and returns fmt.Errorf("%s: %w", msg, err).
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	wrappedErr := fmt.Errorf("%s: %w", msg, err)
	defaultLogger.Error("%s", wrappedErr.Error())
	return wrappedErr
}
