package ml

// Factor is one model explanation ranked by impact.
type Factor struct {
	Feature   string  `json:"feature"`
	Value     float64 `json:"value"`
	Impact    float64 `json:"impact"`
	Direction string  `json:"direction"`
}

// Prediction is the ML layer's verdict for one order. Score is on the
// same 0-100 scale as the other layers. Fallback marks a neutral
// result produced without a model call.
type Prediction struct {
	Score        float64  `json:"score"`
	Probability  float64  `json:"probability"`
	Confidence   float64  `json:"confidence"`
	ModelVersion string   `json:"model_version"`
	TopFactors   []Factor `json:"top_factors,omitempty"`
	Fallback     bool     `json:"fallback"`
}

type predictRequest struct {
	Features map[string]float64 `json:"features"`
}

type predictResponse struct {
	RTOProbability   float64  `json:"rto_probability"`
	Confidence       float64  `json:"confidence"`
	ModelVersion     string   `json:"model_version"`
	PredictionTimeMs float64  `json:"prediction_time_ms"`
	TopFactors       []Factor `json:"top_factors"`
}
