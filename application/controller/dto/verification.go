package dto

type VerifyFrontRequest struct {
	Image string `json:"image" validate:"required"`
}

type VerifyBackRequest struct {
	CorrelationID string `json:"correlationID" validate:"required,digits9"`
	Image         string `json:"image" validate:"required"`
}

type VerifyLivenessRequest struct {
	CorrelationID    string `json:"correlationID" validate:"required,digits9"`
	ClosedMouthImage string `json:"closedMouthImage" validate:"required"`
	OpenMouthImage   string `json:"openMouthImage" validate:"required"`
}

type FaceComparisonRequest struct {
	Image1    string   `json:"image1" validate:"required"`
	Image2    string   `json:"image2" validate:"required"`
	Tolerance *float64 `json:"tolerance,omitempty" validate:"omitempty,gt=0,lte=1"`
}
