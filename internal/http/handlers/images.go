package handlers

import (
	"errors"
	"net/http"
	"strings"

	"listify/internal/domain"
	"listify/internal/imageedit"
	"listify/internal/middleware"
	"listify/internal/providers/genai"
)

type generationOptions struct {
	Temperature     *float64 `json:"temperature"`
	TopP            *float64 `json:"topP"`
	TopK            *int     `json:"topK"`
	MaxOutputTokens int      `json:"maxOutputTokens"`
	Seed            *int64   `json:"seed"`
}

type editImageRequest struct {
	Image             string                   `json:"image"`
	Prompt            string                   `json:"prompt"`
	Category          string                   `json:"category"`
	Platform          string                   `json:"platform"`
	FeatureKey        string                   `json:"featureKey"`
	GenerationOptions *generationOptions       `json:"generationOptions,omitempty"`
	Output            *imageedit.OutputOptions `json:"output,omitempty"`
}

type editImageResult struct {
	Image        string `json:"image"`
	MIMEType     string `json:"mimeType"`
	ResponseText string `json:"responseText,omitempty"`
}

type editImageResponse struct {
	Success        bool             `json:"success"`
	Result         *editImageResult `json:"result,omitempty"`
	Message        string           `json:"message"`
	PromptEnhanced bool             `json:"promptEnhanced"`
	EnhancedPrompt string           `json:"enhancedPrompt,omitempty"`
	Cached         bool             `json:"cached"`
	Variant        string           `json:"variant,omitempty"`
	Degraded       bool             `json:"degraded,omitempty"`
	Attempts       int              `json:"attempts,omitempty"`
	Error          *errorCode       `json:"error,omitempty"`
}

// EditImage handles POST /edit-image.
func (a *App) EditImage(w http.ResponseWriter, r *http.Request) {
	var req editImageRequest
	if err := a.decode(w, r, &req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload: "+err.Error())
		return
	}

	edit := imageedit.EditRequest{
		Image:      req.Image,
		Prompt:     req.Prompt,
		Category:   strings.TrimSpace(req.Category),
		Platform:   strings.TrimSpace(req.Platform),
		FeatureKey: strings.TrimSpace(req.FeatureKey),
		RequestID:  middleware.RequestIDFromContext(r.Context()),
		Output:     req.Output,
	}
	if g := req.GenerationOptions; g != nil {
		edit.Generation = genai.GenerationOptions{
			Temperature:     g.Temperature,
			TopP:            g.TopP,
			TopK:            g.TopK,
			MaxOutputTokens: g.MaxOutputTokens,
			Seed:            g.Seed,
		}
	}

	res, err := a.Images.EditImage(r.Context(), edit)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			a.error(w, http.StatusBadRequest, "invalid_input", err.Error())
			return
		}
		a.logger().Error().Err(err).Str("request_id", edit.RequestID).Msg("edit image failed")
		a.error(w, http.StatusInternalServerError, "internal", "image edit failed")
		return
	}

	body := editImageResponse{
		Success:        res.Success,
		Message:        res.Message,
		PromptEnhanced: res.PromptEnhanced,
		EnhancedPrompt: res.EnhancedPrompt,
		Cached:         res.Cached,
		Variant:        res.Variant,
		Degraded:       res.Degraded,
		Attempts:       res.Attempts,
	}
	if !res.Success {
		body.Error = &errorCode{Code: string(res.ErrorKind)}
		a.json(w, http.StatusBadGateway, body)
		return
	}
	body.Result = &editImageResult{
		Image:        imageedit.EncodeDataURL(res.Image, res.MIMEType),
		MIMEType:     res.MIMEType,
		ResponseText: res.ResponseText,
	}
	a.json(w, http.StatusOK, body)
}
