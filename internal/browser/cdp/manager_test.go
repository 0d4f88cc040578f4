// internal/browser/cdp/manager_test.go
package cdp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/flightscout/internal/browser"
	"github.com/xkilldash9x/flightscout/internal/config"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestAllocatorFlags(t *testing.T) {
	base := config.NewDefaultConfig().Browser()

	t.Run("headed defaults on linux", func(t *testing.T) {
		flags := allocatorFlags(base, "linux")
		assert.Equal(t, false, flags["headless"])
		assert.Equal(t, false, flags["enable-automation"])
		assert.Equal(t, "AutomationControlled", flags["disable-blink-features"])
		assert.Equal(t, "1920,1080", flags["window-size"])
		assert.Equal(t, true, flags["no-sandbox"])
		assert.NotContains(t, flags, "disable-gpu")
		assert.NotContains(t, flags, "proxy-server")
	})

	t.Run("headless with proxy and extra args", func(t *testing.T) {
		cfg := base
		cfg.Headless = true
		cfg.Proxy = config.ProxyConfig{Enabled: true, Address: "http://127.0.0.1:8080"}
		cfg.Args = []string{"--lang=en-GB", "--mute-audio", "--"}

		flags := allocatorFlags(cfg, "darwin")
		assert.Equal(t, true, flags["headless"])
		assert.Equal(t, true, flags["disable-gpu"])
		assert.Equal(t, "http://127.0.0.1:8080", flags["proxy-server"])
		assert.Equal(t, "en-GB", flags["lang"])
		assert.Equal(t, true, flags["mute-audio"])
		assert.NotContains(t, flags, "no-sandbox")
		assert.NotContains(t, flags, "")
	})

	t.Run("disabled proxy and partial viewport are ignored", func(t *testing.T) {
		cfg := base
		cfg.Proxy = config.ProxyConfig{Address: "http://127.0.0.1:8080"}
		cfg.Viewport = map[string]int{"width": 1280}

		flags := allocatorFlags(cfg, "linux")
		assert.NotContains(t, flags, "proxy-server")
		assert.NotContains(t, flags, "window-size")
	})
}

func TestBuildAllocatorOptions(t *testing.T) {
	m := NewManager(config.NewDefaultConfig().Browser(), zap.NewNop())
	opts := m.buildAllocatorOptions()
	flags := allocatorFlags(m.cfg, "linux")
	// Defaults, then one per flag at most, then the user agent.
	assert.Greater(t, len(opts), len(flags))
}

func TestManagerShutdownWithoutLaunch(t *testing.T) {
	m := NewManager(config.NewDefaultConfig().Browser(), zaptest.NewLogger(t))
	require.NoError(t, m.Shutdown(context.Background()))
	require.NoError(t, m.Shutdown(context.Background()))

	_, err := m.NewPage(context.Background())
	assert.ErrorIs(t, err, ErrShutdown)

	_, _, err = m.Launcher().Launch(context.Background())
	assert.ErrorIs(t, err, ErrShutdown)
}

func TestRunContext(t *testing.T) {
	tabCtx, tabCancel := context.WithCancel(context.Background())
	defer tabCancel()
	p := newPage(tabCtx, tabCancel, zap.NewNop(), nil)

	t.Run("caller cancellation stops the run but not the tab", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		runCtx, stop := p.runContext(ctx)
		defer stop()

		cancel()
		select {
		case <-runCtx.Done():
		case <-time.After(time.Second):
			t.Fatal("run context not cancelled")
		}
		assert.NoError(t, tabCtx.Err())
	})

	t.Run("caller deadline is inherited", func(t *testing.T) {
		deadline := time.Now().Add(time.Hour)
		ctx, cancel := context.WithDeadline(context.Background(), deadline)
		defer cancel()

		runCtx, stop := p.runContext(ctx)
		defer stop()
		got, ok := runCtx.Deadline()
		require.True(t, ok)
		assert.True(t, got.Equal(deadline))
	})

	t.Run("wait honors cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.ErrorIs(t, p.Wait(ctx, time.Hour), context.Canceled)
		assert.NoError(t, p.Wait(context.Background(), time.Millisecond))
	})
}

func TestFirstRun(t *testing.T) {
	t.Run("success runs on the target itself and leaves it alive", func(t *testing.T) {
		target, cancelTarget := context.WithCancel(context.Background())
		defer cancelTarget()

		var got context.Context
		err := firstRun(context.Background(), target, cancelTarget, time.Second, func(runCtx context.Context) error {
			got = runCtx
			return nil
		})
		require.NoError(t, err)
		assert.True(t, got == target, "run must receive the target context, not a derivative")
		assert.NoError(t, target.Err())
	})

	t.Run("caller deadline does not reach the target after success", func(t *testing.T) {
		target, cancelTarget := context.WithCancel(context.Background())
		defer cancelTarget()

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		require.NoError(t, firstRun(ctx, target, cancelTarget, time.Second, func(context.Context) error { return nil }))
		cancel()
		<-ctx.Done()
		assert.NoError(t, target.Err())
	})

	t.Run("run error is returned unchanged", func(t *testing.T) {
		target, cancelTarget := context.WithCancel(context.Background())
		defer cancelTarget()

		boom := errors.New("boom")
		err := firstRun(context.Background(), target, cancelTarget, time.Second, func(context.Context) error { return boom })
		assert.ErrorIs(t, err, boom)
	})

	t.Run("timeout cancels the target", func(t *testing.T) {
		target, cancelTarget := context.WithCancel(context.Background())
		defer cancelTarget()

		err := firstRun(context.Background(), target, cancelTarget, 20*time.Millisecond, func(runCtx context.Context) error {
			<-runCtx.Done()
			return runCtx.Err()
		})
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.ErrorIs(t, target.Err(), context.Canceled)
	})

	t.Run("caller cancellation cancels the target", func(t *testing.T) {
		target, cancelTarget := context.WithCancel(context.Background())
		defer cancelTarget()

		ctx, cancel := context.WithCancel(context.Background())
		started := make(chan struct{})
		go func() {
			<-started
			cancel()
		}()
		err := firstRun(ctx, target, cancelTarget, time.Hour, func(runCtx context.Context) error {
			close(started)
			<-runCtx.Done()
			return runCtx.Err()
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Error(t, target.Err())
	})

	t.Run("cancelled caller never runs", func(t *testing.T) {
		target, cancelTarget := context.WithCancel(context.Background())
		defer cancelTarget()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		called := false
		err := firstRun(ctx, target, cancelTarget, time.Second, func(context.Context) error {
			called = true
			return nil
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.False(t, called)
		assert.NoError(t, target.Err())
	})
}

func TestIsFormControl(t *testing.T) {
	assert.True(t, isFormControl(&cdp.Node{NodeName: "INPUT"}))
	assert.True(t, isFormControl(&cdp.Node{NodeName: "select"}))
	assert.False(t, isFormControl(&cdp.Node{NodeName: "SPAN"}))
}

// TestPageAgainstChrome drives a real browser. It needs Chrome installed and
// FLIGHTSCOUT_CHROME_TESTS=1.
func TestPageAgainstChrome(t *testing.T) {
	if os.Getenv("FLIGHTSCOUT_CHROME_TESTS") != "1" {
		t.Skip("set FLIGHTSCOUT_CHROME_TESTS=1 to run browser tests")
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>
			<input id="origin" type="text">
			<select id="cabin"><option>Economy</option><option>Business or First</option></select>
			<input id="oneway" type="radio" name="trip">
			<div class="row"><span>Adults</span><input class="count" value="1"></div>
			<h1 id="title">Find flights</h1>
		</body></html>`)
	}))
	defer server.Close()

	cfg := config.NewDefaultConfig().Browser()
	cfg.Headless = true
	m := NewManager(cfg, zaptest.NewLogger(t))
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		assert.NoError(t, m.Shutdown(ctx))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	page, err := m.NewPage(ctx)
	require.NoError(t, err)
	defer page.Close(context.Background())

	require.NoError(t, page.Navigate(ctx, server.URL))
	require.NoError(t, page.WaitFor(ctx, "#title"))

	text, err := page.ReadText(ctx, "#title")
	require.NoError(t, err)
	assert.Equal(t, "Find flights", text)

	require.NoError(t, page.Fill(ctx, "#origin", "LHR"))
	require.NoError(t, page.SelectOption(ctx, "#cabin", "Business or First"))
	assert.ErrorIs(t, page.SelectOption(ctx, "#cabin", "Coach"), ErrNoSuchOption)
	require.NoError(t, page.Check(ctx, "#oneway"))

	_, err = page.QueryOne(ctx, "#missing")
	assert.ErrorIs(t, err, browser.ErrNoSuchElement)

	rows, err := page.QueryAll(ctx, "div.row")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	counter, err := rows[0].Query(ctx, "input.count")
	require.NoError(t, err)
	value, ok, err := counter.Attribute(ctx, "value")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1", value)

	shot, err := page.Screenshot(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, shot)

	html, err := page.HTML(ctx)
	require.NoError(t, err)
	assert.Contains(t, html, "Find flights")
}

// TestBrowserOutlivesLaunchContext checks that Chrome and its tabs keep
// working after the contexts that launched them are done.
func TestBrowserOutlivesLaunchContext(t *testing.T) {
	if os.Getenv("FLIGHTSCOUT_CHROME_TESTS") != "1" {
		t.Skip("set FLIGHTSCOUT_CHROME_TESTS=1 to run browser tests")
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><h1 id="title">Find flights</h1></body></html>`)
	}))
	defer server.Close()

	cfg := config.NewDefaultConfig().Browser()
	cfg.Headless = true
	m := NewManager(cfg, zaptest.NewLogger(t))
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		assert.NoError(t, m.Shutdown(ctx))
	}()

	launchCtx, cancelLaunch := context.WithTimeout(context.Background(), 60*time.Second)
	first, err := m.NewPage(launchCtx)
	cancelLaunch()
	require.NoError(t, err)
	defer first.Close(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	require.NoError(t, first.Navigate(ctx, server.URL))
	text, err := first.ReadText(ctx, "#title")
	require.NoError(t, err)
	assert.Equal(t, "Find flights", text)

	second, err := m.NewPage(ctx)
	require.NoError(t, err)
	defer second.Close(context.Background())
	require.NoError(t, second.Navigate(ctx, server.URL))
}
