package main

import (
	"testing"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/transport/http"
)

func TestNewApp(t *testing.T) {
	app := newApp(log.DefaultLogger, http.NewServer())
	if app.Name() != Name {
		t.Errorf("Name() = %q, want %q", app.Name(), Name)
	}
	if app.ID() != id {
		t.Errorf("ID() = %q, want %q", app.ID(), id)
	}
	if app.Version() != Version {
		t.Errorf("Version() = %q, want %q", app.Version(), Version)
	}
}
