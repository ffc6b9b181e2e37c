package observability

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
)

func TestLogHooks(t *testing.T) {
	defer Reset()
	var buf bytes.Buffer
	NewLogHooks(log.NewWithOptions(&buf, log.Options{Level: log.DebugLevel})).Install()

	ctx := context.Background()
	Edit().OnEditStart(ctx, "split", "0123456789abcdef")
	Edit().OnEditComplete(ctx, "delete", "0123456789abcdef", time.Millisecond, errors.New("boom"))
	Cache().OnCacheMiss(ctx, "artifact")
	HTTP().OnResponse(ctx, "POST", "localhost", "/edit/split", 200, time.Millisecond)

	out := buf.String()
	for _, want := range []string{"trace", "split", "01234567", "edit failed", "boom", "cache miss", "/edit/split"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "0123456789abcdef") {
		t.Error("session ids should be shortened")
	}
}

func TestLogHooksQuietAboveDebug(t *testing.T) {
	defer Reset()
	var buf bytes.Buffer
	NewLogHooks(log.NewWithOptions(&buf, log.Options{Level: log.InfoLevel})).Install()
	Edit().OnRender(context.Background(), 3, time.Millisecond, nil)
	if buf.Len() != 0 {
		t.Errorf("debug events logged at info level: %q", buf.String())
	}
}
