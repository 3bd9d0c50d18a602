package wait

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	corev1 "k8s.io/api/core/v1"

	"github.com/monitoring-qa/promtest/framework/client"
)

func readyClient(t *testing.T, handler http.HandlerFunc) *client.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := client.New(&client.Config{BaseURL: srv.URL, Timeout: time.Second})
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestForTargetReady_ImmediateSuccess(t *testing.T) {
	c := readyClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	err := ForTargetReady(context.Background(), c, time.Second, 10*time.Millisecond, slog.Default())
	if err != nil {
		t.Fatalf("expected ready, got %v", err)
	}
}

func TestForTargetReady_BecomesReady(t *testing.T) {
	var calls atomic.Int32
	c := readyClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	err := ForTargetReady(context.Background(), c, 5*time.Second, 10*time.Millisecond, slog.Default())
	if err != nil {
		t.Fatalf("expected eventual readiness, got %v", err)
	}
}

func TestForTargetReady_Timeout(t *testing.T) {
	c := readyClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	err := ForTargetReady(context.Background(), c, 50*time.Millisecond, 10*time.Millisecond, slog.Default())
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !client.IsResponse(err) {
		t.Fatalf("expected wrapped probe failure, got %v", err)
	}
}

func TestForTargetReady_ContextCancelled(t *testing.T) {
	c := readyClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := ForTargetReady(ctx, c, 10*time.Second, 10*time.Millisecond, slog.Default())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestIsPodReady(t *testing.T) {
	ready := &corev1.Pod{
		Status: corev1.PodStatus{
			Phase: corev1.PodRunning,
			Conditions: []corev1.PodCondition{
				{Type: corev1.PodReady, Status: corev1.ConditionTrue},
			},
		},
	}
	if !IsPodReady(ready) {
		t.Error("expected running pod with Ready=True to be ready")
	}

	pending := &corev1.Pod{Status: corev1.PodStatus{Phase: corev1.PodPending}}
	if IsPodReady(pending) {
		t.Error("expected pending pod to not be ready")
	}

	notReady := &corev1.Pod{
		Status: corev1.PodStatus{
			Phase: corev1.PodRunning,
			Conditions: []corev1.PodCondition{
				{Type: corev1.PodReady, Status: corev1.ConditionFalse},
			},
		},
	}
	if IsPodReady(notReady) {
		t.Error("expected pod with Ready=False to not be ready")
	}
}
