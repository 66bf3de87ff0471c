package chain

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestValidator_Check(t *testing.T) {
	c := openTestChain(t)
	appendN(t, c, 3)

	v := NewValidator(c, time.Hour)
	if !v.Last().CheckedAt.IsZero() {
		t.Error("Last() before first pass should be zero")
	}

	res := v.Check()
	if !res.Valid || res.Blocks != 3 || res.Err != nil {
		t.Errorf("Check() = %+v, want valid with 3 blocks", res)
	}
	if v.Last().Blocks != 3 {
		t.Errorf("Last().Blocks = %d, want 3", v.Last().Blocks)
	}
}

func TestValidator_CheckTampered(t *testing.T) {
	c := openTestChain(t)
	appendN(t, c, 3)
	rewriteLines(t, c.Path(), func(lines []string) []string {
		lines[0] = strings.Replace(lines[0], `"user":"User0"`, `"user":"X"`, 1)
		return lines
	})

	v := NewValidator(c, time.Hour)
	res := v.Check()
	if res.Valid {
		t.Fatal("Check() reported valid for tampered chain")
	}
	if !errors.Is(res.Err, ErrTampered) {
		t.Errorf("Err = %v, want ErrTampered", res.Err)
	}
	if res.Error == "" {
		t.Error("Error string should be set")
	}
}

func TestValidator_NeverMutatesLog(t *testing.T) {
	c := openTestChain(t)
	appendN(t, c, 2)
	rewriteLines(t, c.Path(), func(lines []string) []string {
		return append(lines, "junk")
	})

	v := NewValidator(c, time.Hour)
	v.Check()
	v.Check()

	n, err := c.Validate()
	if !errors.Is(err, ErrMalformed) || n != 2 {
		t.Errorf("Validate() = (%d, %v), want (2, ErrMalformed)", n, err)
	}
}

func TestValidator_StartStop(t *testing.T) {
	c := openTestChain(t)
	appendN(t, c, 1)

	v := NewValidator(c, 10*time.Millisecond)

	var (
		mu    sync.Mutex
		calls int
	)
	got := make(chan Result, 1)
	v.OnResult(func(r Result) {
		mu.Lock()
		calls++
		mu.Unlock()
		select {
		case got <- r:
		default:
		}
	})

	v.Start(context.Background())

	select {
	case r := <-got:
		if !r.Valid {
			t.Errorf("periodic result = %+v, want valid", r)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("validator did not run")
	}

	v.Stop()
	v.Stop() // second call must not panic

	mu.Lock()
	after := calls
	mu.Unlock()
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if calls != after {
		t.Errorf("validator ran %d more times after Stop()", calls-after)
	}
}

func TestValidator_StopsOnContextCancel(t *testing.T) {
	c := openTestChain(t)
	v := NewValidator(c, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	v.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		v.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop() did not return after context cancel")
	}
}

func TestNewValidator_DefaultInterval(t *testing.T) {
	v := NewValidator(openTestChain(t), 0)
	if v.interval != DefaultValidateInterval {
		t.Errorf("interval = %v, want %v", v.interval, DefaultValidateInterval)
	}
}
