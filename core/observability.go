package core

import (
	"context"
	"sort"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// ResolveLogger follows provider > logger > nop precedence and names the result.
func ResolveLogger(name string, provider LoggerProvider, logger Logger) Logger {
	_, resolved := glog.Resolve(name, provider, logger)
	return glog.Ensure(resolved)
}

func LogInfo(ctx context.Context, logger Logger, message string, fields map[string]any) {
	logWithLevel(ctx, logger, "info", message, fields)
}

func LogWarn(ctx context.Context, logger Logger, message string, fields map[string]any) {
	logWithLevel(ctx, logger, "warn", message, fields)
}

func LogError(ctx context.Context, logger Logger, message string, fields map[string]any) {
	logWithLevel(ctx, logger, "error", message, fields)
}

func LogDebug(ctx context.Context, logger Logger, message string, fields map[string]any) {
	logWithLevel(ctx, logger, "debug", message, fields)
}

func logWithLevel(ctx context.Context, logger Logger, level string, message string, fields map[string]any) {
	if logger == nil {
		return
	}
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	args := flattenFields(fields)
	if fieldsLogger, ok := logger.(FieldsLogger); ok {
		logger = fieldsLogger.WithFields(cloneFields(fields))
		args = nil
	}
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "error":
		logger.Error(message, args...)
	case "warn":
		logger.Warn(message, args...)
	case "debug":
		logger.Debug(message, args...)
	default:
		logger.Info(message, args...)
	}
}

func cloneFields(fields map[string]any) map[string]any {
	if len(fields) == 0 {
		return map[string]any{}
	}
	copied := make(map[string]any, len(fields))
	for key, value := range fields {
		copied[key] = value
	}
	return copied
}

func flattenFields(fields map[string]any) []any {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	args := make([]any, 0, len(keys)*2)
	for _, key := range keys {
		args = append(args, key, fields[key])
	}
	return args
}

// ErrorFields adds the error envelope identifiers to a log field set.
func ErrorFields(fields map[string]any, err error) map[string]any {
	out := cloneFields(fields)
	if err == nil {
		return out
	}
	out["error"] = err.Error()
	if mapped := MapError(err); mapped != nil {
		out["error_code"] = mapped.TextCode
		out["error_category"] = string(mapped.Category)
	}
	return out
}

func (s *Service) observeOperation(
	ctx context.Context,
	startedAt time.Time,
	operation string,
	err error,
	fields map[string]any,
) {
	if s == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	elapsed := time.Since(startedAt).Milliseconds()
	contextFields := cloneFields(fields)
	contextFields["operation"] = operation
	contextFields["status"] = status
	contextFields["duration_ms"] = elapsed

	tags := map[string]string{"operation": operation, "status": status}
	s.Metrics().IncCounter(ctx, "maid."+operation+".total", 1, tags)
	s.Metrics().ObserveHistogram(ctx, "maid."+operation+".duration_ms", float64(elapsed), tags)

	if err != nil {
		LogError(ctx, s.logger, operation+" failed", ErrorFields(contextFields, err))
		return
	}
	LogInfo(ctx, s.logger, operation+" succeeded", contextFields)
}
