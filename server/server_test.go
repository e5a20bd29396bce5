package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/duskvault/duskvault/server/health"
)

func TestListenAndServe(t *testing.T) {
	td := new(testDriver)
	s := New(http.NotFoundHandler(), &Options{Driver: td})
	err := s.ListenAndServe(":8080")
	if err != nil {
		t.Fatal(err)
	}
	if !td.listenAndServeCalled {
		t.Error("ListenAndServe was not called from the supplied driver")
	}
	if td.handler == nil {
		t.Error("testDriver must set handler, got nil")
	}
}

func TestReadinessReflectsHealthChecks(t *testing.T) {
	td := new(testDriver)
	s := New(http.NotFoundHandler(), &Options{
		Driver: td,
		HealthChecks: map[string]health.Checker{
			"index": health.CheckerFunc(func() error { return errors.New("down") }),
		},
	})
	if err := s.ListenAndServe(":8080"); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodGet, "/healthz/readiness", nil)
	rr := httptest.NewRecorder()
	td.handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Errorf("readiness status = %d, want %d", rr.Code, http.StatusInternalServerError)
	}
}

func TestLivenessAlwaysOK(t *testing.T) {
	td := new(testDriver)
	s := New(http.NotFoundHandler(), &Options{Driver: td})
	if err := s.ListenAndServe(":8080"); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodGet, "/healthz/liveness", nil)
	rr := httptest.NewRecorder()
	td.handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("liveness status = %d, want %d", rr.Code, http.StatusOK)
	}
}

type testDriver struct {
	listenAndServeCalled bool
	handler              http.Handler
}

func (td *testDriver) ListenAndServe(addr string, h http.Handler) error {
	td.listenAndServeCalled = true
	td.handler = h
	return nil
}

func (td *testDriver) Shutdown(ctx context.Context) error {
	return errors.New("this is a method for satisfying the interface")
}
