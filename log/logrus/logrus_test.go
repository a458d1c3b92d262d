package logrus

import (
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/unkn0wn-root/querycache"
)

func TestLoggerWritesFields(t *testing.T) {
	base, hook := test.NewNullLogger()
	base.SetLevel(logrus.DebugLevel)
	l := New(base)

	l.Info("invalidated entries", querycache.Fields{"prefix": `["posts"]`, "count": 2})
	e := hook.LastEntry()
	if e == nil || e.Message != "invalidated entries" || e.Data["count"] != 2 || e.Data["component"] != "querycache" {
		t.Fatalf("entry: %+v", e)
	}

	boom := errors.New("boom")
	l.Error("fetch failed", querycache.Fields{"key": `["todos"]`, "err": boom})
	e = hook.LastEntry()
	if e.Level != logrus.ErrorLevel || e.Data[logrus.ErrorKey] != boom || e.Data["key"] != `["todos"]` {
		t.Fatalf("error entry: %+v", e.Data)
	}
	if len(hook.AllEntries()) != 2 {
		t.Fatalf("entries=%d", len(hook.AllEntries()))
	}
}
