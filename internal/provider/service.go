package provider

// Operation names used for metrics, errors and usage records.
const (
	OpSummarize  = "summarize"
	OpParaphrase = "paraphrase"
	OpImage      = "image_to_text"
)

// DefaultVisionModel is the model used for image analysis when none is configured.
const DefaultVisionModel = "meta-llama/llama-4-scout-17b-16e-instruct"

// Service runs the AI tools against a chat completions backend.
type Service struct {
	client      Completer
	textModel   string
	visionModel string
}

// NewService creates the AI tool service.
func NewService(client Completer, textModel, visionModel string) *Service {
	if visionModel == "" {
		visionModel = DefaultVisionModel
	}
	return &Service{client: client, textModel: textModel, visionModel: visionModel}
}
