package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"listify/internal/imageedit"
	"listify/internal/infra"
	"listify/internal/textgen"
	"listify/internal/workflow"
)

const maxBodyBytes = 25 << 20

// ImageEditor is satisfied by *imageedit.Client.
type ImageEditor interface {
	EditImage(ctx context.Context, req imageedit.EditRequest) (*imageedit.EditResult, error)
}

// Completer is satisfied by *textgen.Client.
type Completer interface {
	Complete(ctx context.Context, req textgen.Request) (string, error)
}

// WorkflowFactory builds the controller for one run.
type WorkflowFactory func() (*workflow.Controller, error)

type App struct {
	Images    ImageEditor
	Workflows WorkflowFactory
	Text      Completer
	Logger    *infra.Logger
	// Info is reported by the health endpoint.
	Info map[string]string
}

type errorCode struct {
	Code string `json:"code"`
}

type errorResponse struct {
	Success bool      `json:"success"`
	Message string    `json:"message"`
	Error   errorCode `json:"error"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, errorResponse{Message: message, Error: errorCode{Code: code}})
}

func (a *App) logger() *zerolog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	nop := zerolog.Nop()
	return &nop
}

// decode reads a JSON body. An empty body is an error.
func (a *App) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errors.New("request body is too large")
		}
		return err
	}
	return nil
}
