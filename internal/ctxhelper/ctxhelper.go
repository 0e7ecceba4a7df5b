// Package ctxhelper provides helper functions for working with the context
package ctxhelper

import (
	"github.com/derWhity/medstock/internal/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/context"
)

var (
	// KeySession is the context key for storing the session associated with the current call
	KeySession = ctxKey("session")
	// KeyLogger is the context key for storing the logger in the context
	KeyLogger = ctxKey("logger")
	// KeyRequestID is the context key for storing the ID of the current HTTP request
	KeyRequestID = ctxKey("requestID")
)

// internal context key
type ctxKey string

// WithSession returns a copy of the context carrying the given session
func WithSession(ctx context.Context, sess models.Session) context.Context {
	return context.WithValue(ctx, KeySession, sess)
}

// Session returns the session from the current context, if available
func Session(ctx context.Context) *models.Session {
	if sess, ok := ctx.Value(KeySession).(models.Session); ok {
		return &sess
	}
	return nil
}

// WithLogger returns a copy of the context carrying the given logger
func WithLogger(ctx context.Context, logger *logrus.Entry) context.Context {
	return context.WithValue(ctx, KeyLogger, logger)
}

// Logger returns the logger from the current context. If no logger is available, it panics
func Logger(ctx context.Context) *logrus.Entry {
	logger, ok := ctx.Value(KeyLogger).(*logrus.Entry)
	if ok {
		return logger
	}
	panic("No logger in context")
}

// RequestID returns the ID of the current HTTP request or an empty string
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(KeyRequestID).(string)
	return id
}
