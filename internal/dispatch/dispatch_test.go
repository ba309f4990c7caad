// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.astrophena.name/starhost/internal/audit"
	"go.astrophena.name/starhost/internal/logger"
	"go.astrophena.name/starhost/internal/registry"
	"go.astrophena.name/starhost/internal/sandbox"
	"go.astrophena.name/starhost/internal/scriptcache"
	"go.astrophena.name/starhost/internal/store"
	"go.astrophena.name/starhost/internal/syncx"
	"go.astrophena.name/starhost/internal/testutil"
	"go.astrophena.name/starhost/internal/update"

	"golang.org/x/tools/txtar"
)

var updateGolden = flag.Bool("update", false, "update golden files in testdata")

const tgToken = "123456:ABC-DEF1234ghIkl-zyx57W2v1u123ew11"

var testBot = registry.Bot{
	ID:       "bot1",
	Token:    tgToken,
	Username: "test_bot",
	Secret:   "s3cr3t",
}

type fakeRegistry struct {
	mu      sync.Mutex
	bots    map[string]registry.Bot
	scripts map[string]string
	err     error
}

func (r *fakeRegistry) LookupToken(ctx context.Context, token string) (registry.Bot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return registry.Bot{}, r.err
	}
	b, ok := r.bots[token]
	if !ok {
		return registry.Bot{}, registry.ErrNotFound
	}
	return b, nil
}

func (r *fakeRegistry) Script(ctx context.Context, botID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.scripts[botID]
	if !ok {
		return "", registry.ErrNotFound
	}
	return s, nil
}

type fakeAudit struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (a *fakeAudit) Record(ctx context.Context, e audit.Entry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
	return nil
}

func (a *fakeAudit) Close() error { return nil }

type call struct {
	method string
	args   string
}

type testEnv struct {
	d        *Dispatcher
	registry *fakeRegistry
	audit    *fakeAudit

	tg *testutil.FakeTelegram
}

func newTestEnv(t *testing.T, script string, fail ...string) *testEnv {
	env := &testEnv{
		registry: &fakeRegistry{
			bots:    map[string]registry.Bot{testBot.Token: testBot},
			scripts: map[string]string{testBot.ID: script},
		},
		audit: &fakeAudit{},
		tg:    testutil.NewFakeTelegram(t, tgToken),
	}
	env.tg.Result = map[string]any{"message_id": 100}
	for _, method := range fail {
		env.tg.Fail(method, "Bad Request: chat not found")
	}

	env.d = New(Opts{
		Registry: env.registry,
		Scripts:  scriptcache.New(env.registry, scriptcache.Options{Logger: logger.Discard()}),
		Sandbox: &sandbox.Sandbox{
			Timeout: 500 * time.Millisecond,
			Logger:  logger.Discard(),
		},
		Store:      store.NewMemStore(),
		Audit:      env.audit,
		HTTPClient: env.tg.Client(),
		Logger:     logger.Discard(),
	})
	return env
}

// recorded returns the Bot API calls with arguments re-encoded as JSON,
// which sorts their keys.
func (env *testEnv) recorded(t *testing.T) []call {
	var calls []call
	for _, c := range env.tg.Calls() {
		args, err := json.Marshal(c.Args)
		if err != nil {
			t.Fatal(err)
		}
		calls = append(calls, call{method: c.Method, args: string(args)})
	}
	return calls
}

func TestDispatchGolden(t *testing.T) {
	testutil.RunGolden(t, "testdata/*.txtar", func(t *testing.T, match string) []byte {
		ar, err := txtar.ParseFile(match)
		if err != nil {
			t.Fatal(err)
		}
		files := make(map[string]string)
		for _, f := range ar.Files {
			files[f.Name] = string(f.Data)
		}

		env := newTestEnv(t, files["bot.star"], strings.Fields(files["fail"])...)
		rep, err := env.d.Dispatch(t.Context(), testBot, []byte(files["update.json"]))
		if err != nil {
			t.Fatal(err)
		}

		var buf strings.Builder
		if rep.Dropped {
			buf.WriteString("dropped\n")
		} else {
			fmt.Fprintf(&buf, "status: %s\n", rep.Outcome.Status)
			if rep.Outcome.Cause != nil {
				fmt.Fprintf(&buf, "cause: %s\n", rep.Outcome.Cause)
			}
			if rep.Outcome.Status == sandbox.Faulted {
				fmt.Fprintf(&buf, "reported: %t\n", rep.Reported)
			}
		}
		for _, c := range env.recorded(t) {
			fmt.Fprintf(&buf, "%s %s\n", c.method, c.args)
		}
		return []byte(buf.String())
	}, *updateGolden)
}

const messageUpdate = `{"update_id": 1, "message": {"message_id": 10, "date": 1700000000, "text": "hello", "chat": {"id": 42, "type": "private"}, "from": {"id": 7, "first_name": "Ann"}}}`

func TestAuditedOncePerDelivery(t *testing.T) {
	env := newTestEnv(t, `x = 1 // 0`)

	updates := []string{
		messageUpdate,
		`{"update_id": 2, "edited_message": {"message_id": 1}}`,
		`not json`,
	}
	var ids []string
	for _, u := range updates {
		rep, err := env.d.Dispatch(t.Context(), testBot, []byte(u))
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, rep.ID)
	}

	testutil.AssertEqual(t, len(env.audit.entries), len(updates))
	for i, e := range env.audit.entries {
		testutil.AssertEqual(t, e.ID, ids[i])
		testutil.AssertEqual(t, e.BotID, testBot.ID)
		testutil.AssertEqual(t, string(e.Update), updates[i])
	}
}

func TestDroppedUpdatesHaveNoEffects(t *testing.T) {
	env := newTestEnv(t, `bot.send_message(1, "must not run")`)
	for _, u := range []string{
		`{"update_id": 2, "edited_message": {"message_id": 1}}`,
		`{}`,
		`[]`,
		`not json`,
	} {
		rep, err := env.d.Dispatch(t.Context(), testBot, []byte(u))
		if err != nil {
			t.Fatal(err)
		}
		if !rep.Dropped || rep.Kind != update.KindUnknown {
			t.Fatalf("%s: want dropped, got %+v", u, rep)
		}
	}
	testutil.AssertEqual(t, len(env.recorded(t)), 0)
}

func TestMissingScript(t *testing.T) {
	env := newTestEnv(t, "")
	delete(env.registry.scripts, testBot.ID)
	_, err := env.d.Dispatch(t.Context(), testBot, []byte(messageUpdate))
	if !errors.Is(err, registry.ErrNotFound) {
		t.Fatalf("want registry.ErrNotFound, got %v", err)
	}
	testutil.AssertEqual(t, len(env.recorded(t)), 0)
}

func TestHandleWebhook(t *testing.T) {
	cases := map[string]struct {
		token      string
		secret     string
		body       string
		registry   error
		wantStatus int
		wantCalls  int
	}{
		"ok": {
			token:      tgToken,
			secret:     "s3cr3t",
			body:       messageUpdate,
			wantStatus: http.StatusOK,
			wantCalls:  1,
		},
		"unclassifiable update": {
			token:      tgToken,
			secret:     "s3cr3t",
			body:       `{"update_id": 5, "poll": {}}`,
			wantStatus: http.StatusOK,
		},
		"unknown token": {
			token:      "000:unknown",
			secret:     "s3cr3t",
			body:       messageUpdate,
			wantStatus: http.StatusNotFound,
		},
		"wrong secret": {
			token:      tgToken,
			secret:     "wrong",
			body:       messageUpdate,
			wantStatus: http.StatusNotFound,
		},
		"missing secret": {
			token:      tgToken,
			body:       messageUpdate,
			wantStatus: http.StatusNotFound,
		},
		"registry failure": {
			token:      tgToken,
			secret:     "s3cr3t",
			body:       messageUpdate,
			registry:   errors.New("connection refused for " + tgToken),
			wantStatus: http.StatusInternalServerError,
		},
		"too large": {
			token:      tgToken,
			secret:     "s3cr3t",
			body:       `{"pad": "` + strings.Repeat("a", MaxUpdateSize) + `"}`,
			wantStatus: http.StatusRequestEntityTooLarge,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			env := newTestEnv(t, `x = 1`)
			env.registry.err = tc.registry

			mux := http.NewServeMux()
			mux.HandleFunc("POST /webhook/{token}", env.d.HandleWebhook)

			r := httptest.NewRequest(http.MethodPost, "/webhook/"+tc.token, strings.NewReader(tc.body))
			if tc.secret != "" {
				r.Header.Set("X-Telegram-Bot-Api-Secret-Token", tc.secret)
			}
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, r)

			testutil.AssertEqual(t, w.Code, tc.wantStatus)
			testutil.AssertEqual(t, len(env.recorded(t)), tc.wantCalls)
			if strings.Contains(w.Body.String(), tgToken) {
				t.Fatalf("token leaked into response: %s", w.Body.String())
			}
			if tc.wantStatus == http.StatusOK {
				testutil.AssertEqual(t, testutil.UnmarshalJSON[map[string]bool](t, w.Body.Bytes()), map[string]bool{"ok": true})
			}
		})
	}
}

func TestFaultReportScrubsToken(t *testing.T) {
	env := newTestEnv(t, "")
	ev := update.Parse([]byte(messageUpdate))
	reported := env.d.reportFault(t.Context(), testBot, ev, errors.New("request to https://api.telegram.org/bot"+tgToken+" failed"), logger.Discard())
	if !reported {
		t.Fatal("report was not delivered")
	}
	calls := env.recorded(t)
	testutil.AssertEqual(t, len(calls), 1)
	if strings.Contains(calls[0].args, tgToken) {
		t.Fatalf("token leaked into report: %s", calls[0].args)
	}
	if !strings.Contains(calls[0].args, "[EXPUNGED]") {
		t.Fatalf("token was not replaced: %s", calls[0].args)
	}
}

func TestTruncate(t *testing.T) {
	testutil.AssertEqual(t, truncate("hello", 10), "hello")
	testutil.AssertEqual(t, truncate("hello", 2), "he")
	testutil.AssertEqual(t, truncate("❌❌❌", 2), "❌❌")
}

func TestConcurrentDispatch(t *testing.T) {
	env := newTestEnv(t, `
def on_message(message):
    bot.send_message(message.chat.id, "hi")
`)
	const n = 20
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rep, err := env.d.Dispatch(context.Background(), testBot, []byte(messageUpdate))
			if err != nil {
				t.Error(err)
				return
			}
			if rep.Outcome.Status != sandbox.Completed {
				t.Errorf("want completed, got %v", rep.Outcome)
			}
		}()
	}
	wg.Wait()
	env.d.Wait()
	testutil.AssertEqual(t, len(env.recorded(t)), n)
}

func TestDispatchGivesUpWaitingForSlot(t *testing.T) {
	env := newTestEnv(t, `
def on_message(message):
    bot.send_message(message.chat.id, "hi")
`)
	env.d.running = syncx.NewLimiter(1)
	if err := env.d.running.Acquire(t.Context()); err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, env.d.Running(), 1)

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	if _, err := env.d.Dispatch(ctx, testBot, []byte(messageUpdate)); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Dispatch() = %v, want %v", err, context.DeadlineExceeded)
	}
	testutil.AssertEqual(t, len(env.recorded(t)), 0)

	env.d.running.Release()
	if _, err := env.d.Dispatch(t.Context(), testBot, []byte(messageUpdate)); err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, len(env.recorded(t)), 1)
	testutil.AssertEqual(t, env.d.Running(), 0)
}

// stalledAudit blocks every Record until its context is done.
type stalledAudit struct{}

func (stalledAudit) Record(ctx context.Context, e audit.Entry) error {
	<-ctx.Done()
	return ctx.Err()
}

func (stalledAudit) Close() error { return nil }

// stalledSource blocks every script load until its context is done.
type stalledSource struct{}

func (stalledSource) Script(ctx context.Context, botID string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestStalledAuditDoesNotHoldSlot(t *testing.T) {
	env := newTestEnv(t, `
def on_message(message):
    bot.send_message(message.chat.id, "hi")
`)
	env.d.audit = stalledAudit{}
	env.d.auditTimeout = 20 * time.Millisecond

	done := make(chan error, 1)
	go func() {
		rep, err := env.d.Dispatch(context.WithoutCancel(t.Context()), testBot, []byte(messageUpdate))
		if err == nil && rep.Outcome.Status != sandbox.Completed {
			err = fmt.Errorf("want completed, got %v", rep.Outcome)
		}
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Dispatch did not return while the audit sink was stalled")
	}
	testutil.AssertEqual(t, len(env.recorded(t)), 1)
	testutil.AssertEqual(t, env.d.Running(), 0)
}

func TestStalledScriptLoadDoesNotHoldSlot(t *testing.T) {
	env := newTestEnv(t, "")
	env.d.scripts = scriptcache.New(stalledSource{}, scriptcache.Options{Logger: logger.Discard()})
	env.d.loadTimeout = 20 * time.Millisecond

	done := make(chan error, 1)
	go func() {
		_, err := env.d.Dispatch(context.WithoutCancel(t.Context()), testBot, []byte(messageUpdate))
		done <- err
	}()
	select {
	case err := <-done:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("Dispatch() = %v, want %v", err, context.DeadlineExceeded)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Dispatch did not return while the script source was stalled")
	}
	testutil.AssertEqual(t, len(env.audit.entries), 1)
	testutil.AssertEqual(t, env.d.Running(), 0)
}
