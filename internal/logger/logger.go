package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
)

// Logger represents the application logger
type Logger struct {
	*logrus.Logger
	config LogConfig
}

// LogConfig contains logger configuration
type LogConfig struct {
	Level       string
	Format      string // "json", "text" or "custom"
	LogToFile   bool
	LogFilePath string
	TradeLogDir string
	SentryDSN   string
	SentryLevel string
}

// NewLogger creates a new logger instance
func NewLogger(config LogConfig) (*Logger, error) {
	log := logrus.New()

	level, err := logrus.ParseLevel(config.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %s: %w", config.Level, err)
	}
	log.SetLevel(level)

	switch strings.ToLower(config.Format) {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	case "text":
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05.000",
			DisableQuote:    true,
		})
	default:
		log.SetFormatter(&CustomFormatter{})
	}

	var out io.Writer = os.Stdout
	if config.LogToFile && config.LogFilePath != "" {
		logDir := filepath.Dir(config.LogFilePath)
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory %s: %w", logDir, err)
		}
		f, err := os.OpenFile(config.LogFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", config.LogFilePath, err)
		}
		out = io.MultiWriter(os.Stdout, f)
	}
	log.SetOutput(out)

	if config.SentryDSN != "" {
		hook, err := NewSentryHook(config.SentryDSN, config.SentryLevel)
		if err != nil {
			return nil, err
		}
		log.AddHook(hook)
	}

	return &Logger{
		Logger: log,
		config: config,
	}, nil
}

// Discard returns a logger that drops everything. Used by tests and by
// components constructed without a logger.
func Discard() *Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return &Logger{Logger: log}
}

// CustomFormatter provides a clean, timestamped format for console output
type CustomFormatter struct{}

var levelColors = map[logrus.Level]*color.Color{
	logrus.DebugLevel: color.New(color.FgCyan),
	logrus.InfoLevel:  color.New(color.FgGreen),
	logrus.WarnLevel:  color.New(color.FgYellow),
	logrus.ErrorLevel: color.New(color.FgRed),
	logrus.FatalLevel: color.New(color.FgRed, color.Bold),
	logrus.PanicLevel: color.New(color.FgRed, color.Bold),
}

func (f *CustomFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	timestamp := entry.Time.Format("2006-01-02 15:04:05.000")
	level := strings.ToUpper(entry.Level.String())
	if c, ok := levelColors[entry.Level]; ok {
		level = c.Sprint(level)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s] %s", timestamp, level, entry.Message)

	if len(entry.Data) > 0 {
		keys := make([]string, 0, len(entry.Data))
		for k := range entry.Data {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		b.WriteString(" |")
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, entry.Data[k])
		}
	}

	b.WriteByte('\n')
	return []byte(b.String()), nil
}

// WithComponent returns a logger with component context
func (l *Logger) WithComponent(component string) *logrus.Entry {
	return l.WithField("component", component)
}

// WithToken returns a logger with token context
func (l *Logger) WithToken(mint string) *logrus.Entry {
	return l.WithField("mint", mint)
}

// WithTransaction returns a logger with transaction context
func (l *Logger) WithTransaction(signature string) *logrus.Entry {
	return l.WithField("transaction", signature)
}

// LogCandidateReceived logs a new token address entering the pipeline
func (l *Logger) LogCandidateReceived(mint, source string) {
	l.WithFields(logrus.Fields{
		"event":     "candidate_received",
		"mint":      mint,
		"source":    source,
		"timestamp": time.Now().Format(time.RFC3339),
	}).Info("🔍 New token candidate")
}

// LogCandidateDuplicate logs a candidate dropped because it is already in flight
func (l *Logger) LogCandidateDuplicate(mint, source string) {
	l.WithFields(logrus.Fields{
		"event":  "candidate_duplicate",
		"mint":   mint,
		"source": source,
	}).Debug("⏭️ Candidate already in flight")
}

// LogTradeAttempt logs when a trade attempt is made
func (l *Logger) LogTradeAttempt(tradeType, mint string, amount uint64) {
	l.WithFields(logrus.Fields{
		"event":     "trade_attempt",
		"type":      tradeType,
		"mint":      mint,
		"amount":    amount,
		"timestamp": time.Now().Format(time.RFC3339),
	}).Info("💰 Trade attempt initiated")
}

// LogTradeSuccess logs when a trade is confirmed
func (l *Logger) LogTradeSuccess(tradeType, mint string, amount uint64, signature string) {
	l.WithFields(logrus.Fields{
		"event":     "trade_success",
		"type":      tradeType,
		"mint":      mint,
		"amount":    amount,
		"signature": signature,
		"timestamp": time.Now().Format(time.RFC3339),
	}).Info("✅ Trade confirmed")
}

// LogTradeError logs when a trade fails
func (l *Logger) LogTradeError(tradeType, mint string, amount uint64, err error) {
	l.WithFields(logrus.Fields{
		"event":     "trade_error",
		"type":      tradeType,
		"mint":      mint,
		"amount":    amount,
		"timestamp": time.Now().Format(time.RFC3339),
	}).WithError(err).Error("❌ Trade failed")
}

// LogExitTriggered logs the exit condition that ended a holding period
func (l *Logger) LogExitTriggered(mint, reason string, price, changePct float64) {
	l.WithFields(logrus.Fields{
		"event":      "exit_triggered",
		"mint":       mint,
		"reason":     reason,
		"price":      price,
		"change_pct": changePct,
		"timestamp":  time.Now().Format(time.RFC3339),
	}).Info("🎯 Exit condition met")
}

// LogStateChange logs a position lifecycle transition
func (l *Logger) LogStateChange(mint, from, to string) {
	l.WithFields(logrus.Fields{
		"event": "state_change",
		"mint":  mint,
		"from":  from,
		"to":    to,
	}).Debug("🔁 Position state changed")
}

// LogError logs general errors with context
func (l *Logger) LogError(component, operation string, err error, fields logrus.Fields) {
	logFields := logrus.Fields{
		"event":     "error",
		"component": component,
		"operation": operation,
		"timestamp": time.Now().Format(time.RFC3339),
	}
	for k, v := range fields {
		logFields[k] = v
	}

	l.WithFields(logFields).WithError(err).Error("💥 Component error")
}

// LogStartup logs application startup information
func (l *Logger) LogStartup(binary, network, rpcUrl, wallet string) {
	l.WithFields(logrus.Fields{
		"event":     "startup",
		"binary":    binary,
		"network":   network,
		"rpc_url":   rpcUrl,
		"wallet":    wallet,
		"timestamp": time.Now().Format(time.RFC3339),
	}).Info("🚀 Starting up")
}

// LogShutdown logs application shutdown information
func (l *Logger) LogShutdown(reason string) {
	l.WithFields(logrus.Fields{
		"event":     "shutdown",
		"reason":    reason,
		"timestamp": time.Now().Format(time.RFC3339),
	}).Info("🛑 Shutting down")
}

// LogConnection logs connection status
func (l *Logger) LogConnection(service, status string, details interface{}) {
	l.WithFields(logrus.Fields{
		"event":   "connection",
		"service": service,
		"status":  status,
		"details": details,
	}).Info("🔗 Connection status")
}

// LogBalance logs wallet balance information
func (l *Logger) LogBalance(balanceSOL float64, balanceLamports uint64) {
	l.WithFields(logrus.Fields{
		"event":            "balance_check",
		"balance_sol":      balanceSOL,
		"balance_lamports": balanceLamports,
	}).Info("💰 Wallet balance")
}
