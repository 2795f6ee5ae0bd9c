package api

import (
	"github.com/samcharles93/captioner/internal/caption"
	"github.com/samcharles93/captioner/internal/checkpoint"
)

// CaptionRequest is the body of POST /v1/captions. Unset optional fields
// fall back to the checkpoint's defaults.
type CaptionRequest struct {
	Model             string    `json:"model,omitempty"`
	ImageID           string    `json:"image_id,omitempty" validate:"omitempty,max=256"`
	Features          []float32 `json:"features" validate:"required,min=1"`
	BeamSize          *int      `json:"beam_size,omitempty" validate:"omitempty,min=1,max=64"`
	MaxLen            *int      `json:"max_len,omitempty" validate:"omitempty,min=0,max=256"`
	Probabilistic     bool      `json:"probabilistic,omitempty"`
	Seed              *int64    `json:"seed,omitempty"`
	CandidatesPerStep *int      `json:"candidates_per_step,omitempty" validate:"omitempty,min=0"`
	Temperature       *float64  `json:"temperature,omitempty" validate:"omitempty,gte=0"`
	Renormalize       bool      `json:"renormalize,omitempty"`
}

type CaptionResponse struct {
	ID        string            `json:"id"`
	Object    string            `json:"object"`
	CreatedAt int64             `json:"created_at"`
	Model     string            `json:"model"`
	ImageID   string            `json:"image_id,omitempty"`
	Mode      string            `json:"mode"`
	BeamSize  int               `json:"beam_size"`
	MaxLen    int               `json:"max_len"`
	Captions  []caption.Caption `json:"captions"`
}

type DeleteCaptionResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Deleted bool   `json:"deleted"`
}

type ModelsResponse struct {
	Object string            `json:"object"`
	Data   []checkpoint.Info `json:"data"`
}

type ResponseError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Param   string `json:"param,omitempty"`
}
