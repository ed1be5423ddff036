package sync

import (
	"context"

	"github.com/thantzin/stockcount/backend/internal/errors"
	"github.com/thantzin/stockcount/backend/internal/logging"
	"github.com/thantzin/stockcount/backend/internal/models"
)

// The write path: every mutation first tries the server, and on offline,
// transport, or policy failure is captured into the queue with a best-effort
// optimistic cache write so counting can continue.

// RecordCountLine records one count observation. The returned line is the
// locally cached copy; a validation fault returns nil plus the error and
// writes nothing anywhere.
func (e *Engine) RecordCountLine(ctx context.Context, raw map[string]interface{}) (*models.CachedCountLine, *errors.AppError) {
	line, vErr := models.NormalizeCountLine(raw)
	if vErr != nil {
		return nil, vErr
	}
	if err := line.Validate(); err != nil {
		return nil, err
	}

	if e.monitor.EffectiveOnline() {
		if _, err := e.client.SubmitCountLine(ctx, raw); err == nil {
			e.cache.CacheCountLine(line)
			return line, nil
		} else if !e.shouldCapture(err) {
			return nil, asAppError(err)
		}
	}

	if _, qErr := e.queue.Add(models.MutationCountLine, raw); qErr != nil {
		return nil, qErr
	}
	e.cache.CacheCountLine(line)

	return line, nil
}

// StartSession creates a counting session. Offline, the session gets a
// generated temp id that the server will replace at replay time.
func (e *Engine) StartSession(ctx context.Context, raw map[string]interface{}) (*models.CachedSession, *errors.AppError) {
	if e.monitor.EffectiveOnline() {
		if echo, err := e.client.CreateSession(ctx, raw); err == nil {
			// Cache the server's echo: it carries the authoritative id.
			session := e.cache.CacheSession(echo)
			return session, nil
		} else if !e.shouldCapture(err) {
			return nil, asAppError(err)
		}
	}

	session := e.cache.CacheSession(raw)
	if err := session.Validate(); err != nil {
		return nil, err
	}

	// Queue the normalized shape so the replay carries the temp id the
	// cache and its count lines already reference.
	if _, qErr := e.queue.Add(models.MutationSession, session); qErr != nil {
		return nil, qErr
	}

	return session, nil
}

// ReportUnknownItem flags a scanned barcode the local catalog cannot
// resolve. Nothing is cached for unknown items; the report just has to
// reach the server eventually.
func (e *Engine) ReportUnknownItem(ctx context.Context, raw map[string]interface{}) *errors.AppError {
	if e.monitor.EffectiveOnline() {
		if _, err := e.client.ReportUnknownItem(ctx, raw); err == nil {
			return nil
		} else if !e.shouldCapture(err) {
			return asAppError(err)
		}
	}

	_, qErr := e.queue.Add(models.MutationUnknownItem, raw)
	return qErr
}

// shouldCapture decides whether a failed remote write belongs in the queue.
// Transport faults and policy rejections are capture-worthy; a server-side
// validation verdict is final and must reach the caller instead.
func (e *Engine) shouldCapture(err error) bool {
	if errors.Is(err, errors.ErrNetworkRestricted) {
		e.monitor.MarkRestricted()
		logging.Info("sync: capturing mutation under restricted mode")
		return true
	}
	if errors.Is(err, errors.ErrNetworkUnavailable) {
		logging.Info("sync: capturing mutation while offline",
			map[string]interface{}{"error": err.Error()})
		return true
	}
	return false
}

// asAppError converts any error into a typed AppError for the UI shell.
func asAppError(err error) *errors.AppError {
	if appErr, ok := err.(*errors.AppError); ok {
		return appErr
	}
	return errors.Wrap(errors.ErrInternal, "unexpected failure", err)
}
