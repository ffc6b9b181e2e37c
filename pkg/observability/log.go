package observability

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
)

// LogHooks writes every event to a logger at debug level. It implements
// [EditHooks], [CacheHooks] and [HTTPHooks].
type LogHooks struct {
	logger *log.Logger
}

// NewLogHooks returns hooks that log through l.
func NewLogHooks(l *log.Logger) *LogHooks {
	return &LogHooks{logger: l.WithPrefix("trace")}
}

// Install registers h for all hook kinds.
func (h *LogHooks) Install() {
	SetEditHooks(h)
	SetCacheHooks(h)
	SetHTTPHooks(h)
}

func (h *LogHooks) OnEditStart(_ context.Context, kind, session string) {
	h.logger.Debug("edit", "kind", kind, "session", short(session))
}

func (h *LogHooks) OnEditComplete(_ context.Context, kind, session string, d time.Duration, err error) {
	if err != nil {
		h.logger.Debug("edit failed", "kind", kind, "session", short(session), "took", d, "err", err)
		return
	}
	h.logger.Debug("edit done", "kind", kind, "session", short(session), "took", d)
}

func (h *LogHooks) OnRender(_ context.Context, panels int, d time.Duration, err error) {
	h.logger.Debug("render", "panels", panels, "took", d, "err", err)
}

func (h *LogHooks) OnCacheHit(_ context.Context, keyType string) {
	h.logger.Debug("cache hit", "type", keyType)
}

func (h *LogHooks) OnCacheMiss(_ context.Context, keyType string) {
	h.logger.Debug("cache miss", "type", keyType)
}

func (h *LogHooks) OnCacheSet(_ context.Context, keyType string, size int) {
	h.logger.Debug("cache set", "type", keyType, "bytes", size)
}

func (h *LogHooks) OnRequest(_ context.Context, method, host, path string) {
	h.logger.Debug("request", "method", method, "host", host, "path", path)
}

func (h *LogHooks) OnResponse(_ context.Context, method, host, path string, status int, d time.Duration) {
	h.logger.Debug("response", "method", method, "path", path, "status", status, "took", d)
}

func (h *LogHooks) OnError(_ context.Context, method, host, path string, err error) {
	h.logger.Debug("request failed", "method", method, "host", host, "path", path, "err", err)
}

// short keeps log lines readable; session ids are uuids.
func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
