package civitai

import (
	"fmt"
)

// ModelType is a Civitai model category used to filter searches.
type ModelType string

const (
	ModelTypeCheckpoint        ModelType = "Checkpoint"
	ModelTypeTextualInversion  ModelType = "TextualInversion"
	ModelTypeHypernetwork      ModelType = "Hypernetwork"
	ModelTypeAestheticGradient ModelType = "AestheticGradient"
	ModelTypeLORA              ModelType = "LORA"
	ModelTypeLyCORIS           ModelType = "LyCORIS"
	ModelTypeControlnet        ModelType = "Controlnet"
	ModelTypePose              ModelType = "Pose"
	ModelTypeUpscaler          ModelType = "Upscaler"
	ModelTypeMotionModule      ModelType = "MotionModule"
	ModelTypeVAE               ModelType = "VAE"
	ModelTypeOther             ModelType = "Other"
)

// SearchRequest mirrors the query parameters of GET /models.
// Searches with a Query paginate with Cursor; searches without one paginate with Page.
type SearchRequest struct {
	Query    string      `json:"query,omitempty"`
	Types    []ModelType `json:"types,omitempty" validate:"dive,oneof=Checkpoint TextualInversion Hypernetwork AestheticGradient LORA LyCORIS Controlnet Pose Upscaler MotionModule VAE Other"`
	Sort     string      `json:"sort,omitempty"`
	Period   string      `json:"period,omitempty"`
	NSFW     *bool       `json:"nsfw,omitempty"`
	Limit    int         `json:"limit" validate:"gte=1,lte=100"`
	Page     int         `json:"page" validate:"gte=1"`
	Cursor   string      `json:"cursor,omitempty"`
	APIToken string      `json:"api_token,omitempty"`
}

// DefaultSearchRequest returns the request used for fields a caller leaves out.
func DefaultSearchRequest() SearchRequest {
	return SearchRequest{Sort: "Most Downloaded", Period: "AllTime", Limit: 20, Page: 1}
}

// ModelFile is one downloadable file of a model version.
type ModelFile struct {
	ID          int     `json:"id"`
	Name        string  `json:"name"`
	Type        string  `json:"type"`
	SizeKB      float64 `json:"sizeKB"`
	DownloadURL string  `json:"downloadUrl"`
}

// ModelVersion holds the fields of a model version this service reads itself. Responses are otherwise passed through
// untouched.
type ModelVersion struct {
	ID        int         `json:"id"`
	ModelID   int         `json:"modelId"`
	Name      string      `json:"name"`
	BaseModel string      `json:"baseModel"`
	Files     []ModelFile `json:"files"`
}

// APIError is returned when Civitai answers with a non-2xx status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("civitai returned status %d: %s", e.StatusCode, e.Body)
}
