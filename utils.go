package main

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"time"
)

// AppLogger provides logging utilities for the application
// Used by both the server and tests
type AppLogger struct {
	outputDir      string
	logRequests    bool
	logDB          bool
	logWS          bool
	debug          bool
	requestLog     *os.File
	dbLog          *os.File
	wsLog          *os.File
	mu             sync.Mutex
	requestCount   int
	wsMessageCount int

	// debugf receives debug output; nil means the standard logger.
	debugf func(format string, args ...any)
}

// Global application logger (used by server)
var appLogger *AppLogger

// LogConfig holds logging configuration
type LogConfig struct {
	OutputDir   string
	LogRequests bool
	LogDB       bool
	LogWS       bool
	Debug       bool
}

// NewAppLogger creates a new application logger
func NewAppLogger(config LogConfig) (*AppLogger, error) {
	al := &AppLogger{
		outputDir:   config.OutputDir,
		logRequests: config.LogRequests,
		logDB:       config.LogDB,
		logWS:       config.LogWS,
		debug:       config.Debug,
	}

	if al.outputDir == "" {
		return al, nil
	}

	var err error
	if al.logRequests {
		al.requestLog, err = openLogFile(al.outputDir, "requests.log")
		if err != nil {
			return nil, fmt.Errorf("failed to open request log: %w", err)
		}
	}
	if al.logDB {
		al.dbLog, err = openLogFile(al.outputDir, "database.log")
		if err != nil {
			return nil, fmt.Errorf("failed to open database log: %w", err)
		}
	}
	if al.logWS {
		al.wsLog, err = openLogFile(al.outputDir, "websocket.log")
		if err != nil {
			return nil, fmt.Errorf("failed to open WebSocket log: %w", err)
		}
	}

	return al, nil
}

func openLogFile(dir, name string) (*os.File, error) {
	return os.OpenFile(fmt.Sprintf("%s/%s", dir, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
}

// Close closes all open log files
func (al *AppLogger) Close() {
	if al.requestLog != nil {
		al.requestLog.Close()
	}
	if al.dbLog != nil {
		al.dbLog.Close()
	}
	if al.wsLog != nil {
		al.wsLog.Close()
	}
}

// LogRequest logs an HTTP request and response
func (al *AppLogger) LogRequest(method, url string, reqBody []byte, resp *http.Response, respBody []byte) {
	if !al.logRequests || al.requestLog == nil {
		return
	}

	al.mu.Lock()
	defer al.mu.Unlock()

	al.requestCount++
	timestamp := time.Now().Format("15:04:05.000")

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "\n========== REQUEST #%d [%s] ==========\n", al.requestCount, timestamp)
	fmt.Fprintf(&buf, "%s %s\n", method, url)

	if len(reqBody) > 0 {
		fmt.Fprintf(&buf, "\n--- Request Body ---\n")
		buf.Write(reqBody)
		buf.WriteString("\n")
	}

	if resp != nil {
		fmt.Fprintf(&buf, "\n--- Response [%d %s] ---\n", resp.StatusCode, resp.Status)
		for k, v := range resp.Header {
			fmt.Fprintf(&buf, "%s: %s\n", k, strings.Join(v, ", "))
		}
	}

	if len(respBody) > 0 {
		fmt.Fprintf(&buf, "\n--- Response Body ---\n")
		if len(respBody) > 5000 {
			buf.Write(respBody[:5000])
			fmt.Fprintf(&buf, "\n... (truncated, %d bytes total)\n", len(respBody))
		} else {
			buf.Write(respBody)
		}
		buf.WriteString("\n")
	}

	al.requestLog.Write(buf.Bytes())
}

// LogWebSocket logs a WebSocket message
func (al *AppLogger) LogWebSocket(direction, who, message string) {
	if !al.logWS || al.wsLog == nil {
		return
	}

	al.mu.Lock()
	defer al.mu.Unlock()

	al.wsMessageCount++
	timestamp := time.Now().Format("15:04:05.000")

	fmt.Fprintf(al.wsLog, "[%s] #%d %s [%s]: %s\n",
		timestamp, al.wsMessageCount, direction, who, message)
}

// LogDB dumps the current database state
func (al *AppLogger) LogDB(context string) {
	if !al.logDB || al.dbLog == nil || db == nil {
		return
	}

	al.mu.Lock()
	defer al.mu.Unlock()

	timestamp := time.Now().Format("15:04:05.000")

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "\n========== DATABASE DUMP [%s] ==========\n", timestamp)
	fmt.Fprintf(&buf, "Context: %s\n\n", context)

	var tables []string
	if err := db.Select(&tables, "SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%' ORDER BY name"); err != nil {
		fmt.Fprintf(&buf, "Error getting tables: %v\n", err)
		al.dbLog.Write(buf.Bytes())
		return
	}

	for _, table := range tables {
		fmt.Fprintf(&buf, "--- Table: %s ---\n", table)
		dumpTable(&buf, table)
		buf.WriteString("\n")
	}

	al.dbLog.Write(buf.Bytes())
}

func dumpTable(buf *bytes.Buffer, table string) {
	rows, err := db.Query("SELECT * FROM " + table)
	if err != nil {
		fmt.Fprintf(buf, "Error: %v\n", err)
		return
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		fmt.Fprintf(buf, "Error getting columns: %v\n", err)
		return
	}
	fmt.Fprintf(buf, "Columns: %s\n", strings.Join(cols, " | "))

	rowCount := 0
	values := make([]any, len(cols))
	valuePtrs := make([]any, len(cols))
	for i := range values {
		valuePtrs[i] = &values[i]
	}

	for rows.Next() {
		rowCount++
		if err := rows.Scan(valuePtrs...); err != nil {
			fmt.Fprintf(buf, "Error scanning row: %v\n", err)
			continue
		}

		var rowStr []string
		for _, v := range values {
			switch val := v.(type) {
			case nil:
				rowStr = append(rowStr, "NULL")
			case []byte:
				rowStr = append(rowStr, string(val))
			default:
				rowStr = append(rowStr, fmt.Sprintf("%v", val))
			}
		}
		fmt.Fprintf(buf, "Row %d: %s\n", rowCount, strings.Join(rowStr, " | "))
	}

	if rowCount == 0 {
		fmt.Fprintf(buf, "(empty)\n")
	}
}

// Debug logs a debug message if debug mode is enabled
func (al *AppLogger) Debug(format string, args ...any) {
	if !al.debug {
		return
	}
	if al.debugf != nil {
		al.debugf("[DEBUG] "+format, args...)
		return
	}
	log.Printf("[DEBUG] "+format, args...)
}

// IsEnabled returns true if any logging is enabled
func (al *AppLogger) IsEnabled() bool {
	return al.logRequests || al.logDB || al.logWS || al.debug
}

// ============================================================================
// HTTP Middleware
// ============================================================================

// LoggingRoundTripper wraps http.RoundTripper to log requests
type LoggingRoundTripper struct {
	Transport http.RoundTripper
	Logger    *AppLogger
}

func (l *LoggingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	var reqBody []byte
	if req.Body != nil {
		reqBody, _ = io.ReadAll(req.Body)
		req.Body = io.NopCloser(bytes.NewBuffer(reqBody))
	}

	resp, err := l.Transport.RoundTrip(req)
	if err != nil {
		l.Logger.LogRequest(req.Method, req.URL.String(), reqBody, nil, nil)
		return resp, err
	}

	var respBody []byte
	if resp.Body != nil {
		respBody, _ = io.ReadAll(resp.Body)
		resp.Body = io.NopCloser(bytes.NewBuffer(respBody))
	}

	l.Logger.LogRequest(req.Method, req.URL.String(), reqBody, resp, respBody)
	return resp, err
}

// LoggingHandler wraps http.Handler to log requests/responses.
// WebSocket upgrades and metrics scrapes pass through unrecorded.
type LoggingHandler struct {
	Handler http.Handler
	Logger  *AppLogger
}

func (l *LoggingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// WebSocket upgrades need http.Hijacker, so pass them through directly
	if r.URL.Path == "/ws" {
		l.Logger.LogRequest(r.Method, r.URL.String(), nil, nil, []byte("[WebSocket upgrade]"))
		l.Handler.ServeHTTP(w, r)
		return
	}
	if r.URL.Path == "/metrics" {
		l.Handler.ServeHTTP(w, r)
		return
	}

	var reqBody []byte
	if r.Body != nil {
		reqBody, _ = io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewBuffer(reqBody))
	}

	rec := httptest.NewRecorder()
	l.Handler.ServeHTTP(rec, r)

	for k, v := range rec.Header() {
		w.Header()[k] = v
	}
	w.WriteHeader(rec.Code)
	respBody := rec.Body.Bytes()
	w.Write(respBody)

	l.Logger.LogRequest(r.Method, r.URL.String(), reqBody, &http.Response{
		StatusCode: rec.Code,
		Status:     http.StatusText(rec.Code),
		Header:     rec.Header(),
	}, respBody)
}

// requestLogging wraps next in a LoggingHandler when request logging is on.
func requestLogging(next http.Handler) http.Handler {
	if appLogger == nil || !appLogger.logRequests {
		return next
	}
	return &LoggingHandler{Handler: next, Logger: appLogger}
}

// ============================================================================
// Global helper functions
// ============================================================================

// LogWSMessage logs a WebSocket message using the global logger
func LogWSMessage(direction, who, message string) {
	if appLogger != nil {
		appLogger.LogWebSocket(direction, who, message)
	}
}

// LogDBState logs the database state using the global logger
func LogDBState(context string) {
	if appLogger != nil {
		appLogger.LogDB(context)
	}
}

// DebugLog logs a debug message tagged with the calling context
func DebugLog(context, format string, args ...any) {
	if appLogger != nil {
		appLogger.Debug("["+context+"] "+format, args...)
	}
}

// CloseAppLogger closes the global application logger
func CloseAppLogger() {
	if appLogger != nil {
		appLogger.Close()
	}
}

// logError logs an unexpected error with context and dumps the database in dev mode
func logError(context string, err error) {
	log.Printf("ERROR [%s]: %v", context, err)
	if devMode {
		LogDBState("error: " + context)
	}
}

// logConfigError logs broken role tables; these are never the player's fault.
func logConfigError(context string, err error) {
	log.Printf("CONFIG [%s]: %v", context, err)
}
