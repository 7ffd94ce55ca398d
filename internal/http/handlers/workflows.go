package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"listify/internal/workflow"
)

type workflowResponse struct {
	*workflow.Result
	Message string `json:"message"`
}

// RunWorkflow handles POST /v1/workflows.
func (a *App) RunWorkflow(w http.ResponseWriter, r *http.Request) {
	var req workflow.Request
	if err := a.decode(w, r, &req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload: "+err.Error())
		return
	}
	ctrl, err := a.Workflows()
	if err != nil {
		a.logger().Error().Err(err).Msg("build workflow controller")
		a.error(w, http.StatusInternalServerError, "internal", "workflow unavailable")
		return
	}

	res := ctrl.RunFullWorkflow(r.Context(), req)
	if !res.Success {
		a.json(w, http.StatusUnprocessableEntity, workflowResponse{Result: res, Message: res.Error})
		return
	}
	msg := "workflow completed"
	if len(res.Warnings) > 0 {
		msg = "workflow completed with warnings"
	}
	a.json(w, http.StatusOK, workflowResponse{Result: res, Message: msg})
}

type stepRequest struct {
	Input   map[string]any       `json:"input"`
	Options workflow.StepOptions `json:"options"`
}

type stepResponse struct {
	Success    bool                `json:"success"`
	WorkflowID string              `json:"workflowId"`
	Message    string              `json:"message"`
	Result     workflow.StepResult `json:"result"`
}

// RunStep handles POST /v1/workflows/steps/{step} on a fresh controller.
func (a *App) RunStep(w http.ResponseWriter, r *http.Request) {
	step, err := workflow.ParseStep(chi.URLParam(r, "step"))
	if err != nil {
		a.error(w, http.StatusNotFound, "unknown_step", err.Error())
		return
	}
	var req stepRequest
	if err := a.decode(w, r, &req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload: "+err.Error())
		return
	}
	ctrl, err := a.Workflows()
	if err != nil {
		a.logger().Error().Err(err).Msg("build workflow controller")
		a.error(w, http.StatusInternalServerError, "internal", "workflow unavailable")
		return
	}

	res := ctrl.RunStep(r.Context(), step, req.Input, req.Options)
	body := stepResponse{Success: res.Success, WorkflowID: ctrl.ID(), Result: res}
	switch {
	case res.Success:
		body.Message = string(step) + " completed"
		a.json(w, http.StatusOK, body)
	case !res.Attempted:
		body.Message = res.Error
		a.json(w, http.StatusBadRequest, body)
	default:
		body.Message = res.Error
		a.json(w, http.StatusBadGateway, body)
	}
}
