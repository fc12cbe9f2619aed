package controller

import (
	"net/http"
	"os"
	"path/filepath"

	apperrors "veridoc.io/application/appErrors"
	"veridoc.io/application/constants"
	"veridoc.io/application/controller/dto"
	"veridoc.io/application/interfaces"
	"veridoc.io/application/pipeline"
	"veridoc.io/application/services/verification"
	"veridoc.io/application/utils"
	"veridoc.io/infrastructure/logger"
	server_response "veridoc.io/infrastructure/serverResponse"
	"veridoc.io/infrastructure/validator"
	"veridoc.io/infrastructure/vision"
)

// VerifyFront runs the first verification stage on a front document
// image and opens the session on success.
func VerifyFront(ctx *interfaces.ApplicationContext[dto.VerifyFrontRequest]) {
	validationErr := validator.ValidatorInstance.ValidateStruct(ctx.Body)
	if validationErr != nil {
		apperrors.ValidationFailedError(ctx.Ctx, validationErr)
		return
	}

	imagePath, cleanUp, err := spillImage(ctx.Body.Image)
	if err != nil {
		apperrors.ClientError(ctx.Ctx, "invalid image format", nil, nil)
		return
	}
	defer cleanUp()

	result, err := verification.Service().SubmitFront(ctx.Ctx.Request.Context(), imagePath)
	if err != nil {
		respondVerificationError(ctx.Ctx, err)
		return
	}

	server_response.Responder.Respond(ctx.Ctx, http.StatusOK, "front document verified", map[string]any{
		"correlationID": result.CompareID,
		"primaryID":     result.PrimaryID,
		"faceReady":     result.FaceReady,
	}, nil, nil)
}

// VerifyBack runs the second stage: back marker validation, field
// extraction, identifier cross check and the durable identity commit.
func VerifyBack(ctx *interfaces.ApplicationContext[dto.VerifyBackRequest]) {
	validationErr := validator.ValidatorInstance.ValidateStruct(ctx.Body)
	if validationErr != nil {
		apperrors.ValidationFailedError(ctx.Ctx, validationErr)
		return
	}

	imagePath, cleanUp, err := spillImage(ctx.Body.Image)
	if err != nil {
		apperrors.ClientError(ctx.Ctx, "invalid image format", nil, nil)
		return
	}
	defer cleanUp()

	result, err := verification.Service().SubmitBack(ctx.Ctx.Request.Context(), ctx.Body.CorrelationID, imagePath)
	if err != nil {
		respondVerificationError(ctx.Ctx, err)
		return
	}

	server_response.Responder.Respond(ctx.Ctx, http.StatusOK, "back document verified", map[string]any{
		"correlationID": ctx.Body.CorrelationID,
		"lastName":      result.LastName,
		"firstName":     result.FirstName,
	}, nil, nil)
}

// VerifyLivenessAndMatch runs the final stage: the two-shot mouth
// challenge followed by the face match against the stored document face.
func VerifyLivenessAndMatch(ctx *interfaces.ApplicationContext[dto.VerifyLivenessRequest]) {
	validationErr := validator.ValidatorInstance.ValidateStruct(ctx.Body)
	if validationErr != nil {
		apperrors.ValidationFailedError(ctx.Ctx, validationErr)
		return
	}

	closedPath, cleanUpClosed, err := spillImage(ctx.Body.ClosedMouthImage)
	if err != nil {
		apperrors.ClientError(ctx.Ctx, "invalid closed mouth image format", nil, nil)
		return
	}
	defer cleanUpClosed()

	openPath, cleanUpOpen, err := spillImage(ctx.Body.OpenMouthImage)
	if err != nil {
		apperrors.ClientError(ctx.Ctx, "invalid open mouth image format", nil, nil)
		return
	}
	defer cleanUpOpen()

	verdict, err := verification.Service().SubmitLivenessAndMatch(ctx.Ctx.Request.Context(), ctx.Body.CorrelationID, closedPath, openPath)
	if err != nil {
		respondVerificationError(ctx.Ctx, err)
		return
	}

	server_response.Responder.Respond(ctx.Ctx, http.StatusOK, "identity verified", map[string]any{
		"match":     verdict.Match,
		"distance":  verdict.Distance,
		"tolerance": verdict.Tolerance,
	}, nil, nil)
}

// CompareFaces compares two standalone face images without touching any
// verification session.
func CompareFaces(ctx *interfaces.ApplicationContext[dto.FaceComparisonRequest]) {
	validationErr := validator.ValidatorInstance.ValidateStruct(ctx.Body)
	if validationErr != nil {
		apperrors.ValidationFailedError(ctx.Ctx, validationErr)
		return
	}

	path1, cleanUp1, err := spillImage(ctx.Body.Image1)
	if err != nil {
		apperrors.ClientError(ctx.Ctx, "invalid image format", nil, nil)
		return
	}
	defer cleanUp1()

	path2, cleanUp2, err := spillImage(ctx.Body.Image2)
	if err != nil {
		apperrors.ClientError(ctx.Ctx, "invalid image format", nil, nil)
		return
	}
	defer cleanUp2()

	requestCtx := ctx.Ctx.Request.Context()
	embeddings1, err := vision.EncoderService.Encode(requestCtx, path1)
	if err != nil {
		apperrors.UnknownError(ctx.Ctx, err, nil)
		return
	}
	embeddings2, err := vision.EncoderService.Encode(requestCtx, path2)
	if err != nil {
		apperrors.UnknownError(ctx.Ctx, err, nil)
		return
	}
	if len(embeddings1) == 0 || len(embeddings2) == 0 {
		apperrors.ClientError(ctx.Ctx, "no face found in one of the submitted images", nil, utils.GetUIntPointer(constants.FRONT_NO_FACE_FOUND))
		return
	}

	tolerance := pipeline.DefaultMatchTolerance
	if ctx.Body.Tolerance != nil {
		tolerance = *ctx.Body.Tolerance
	}
	distance := pipeline.EmbeddingDistance(embeddings1[0], embeddings2[0])

	server_response.Responder.Respond(ctx.Ctx, http.StatusOK, "face comparison completed", map[string]any{
		"match":     distance <= tolerance,
		"distance":  distance,
		"tolerance": tolerance,
	}, nil, nil)
}

// spillImage decodes a base64 image payload to a temp file and returns
// the path with its clean up.
func spillImage(payload string) (string, func(), error) {
	data, err := utils.DecodeBase64Image(payload)
	if err != nil {
		return "", nil, err
	}
	path := filepath.Join(os.TempDir(), "veridoc-upload-"+utils.GenerateUULDString()+".jpg")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", nil, err
	}
	return path, func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.Warning("failed to remove uploaded image", logger.LoggerOptions{
				Key:  "error",
				Data: err,
			})
		}
	}, nil
}

// respondVerificationError maps pipeline failures onto the response
// surface. Rejections carry their 4 digit response code and the
// stop_capture hint, transient failures are retryable 503s.
func respondVerificationError(ctx interface{}, err error) {
	if rejection, ok := pipeline.AsRejection(err); ok {
		server_response.Responder.Respond(ctx, http.StatusBadRequest, rejection.Message, map[string]any{
			"reason":       string(rejection.Reason),
			"stop_capture": rejection.StopCapture,
		}, nil, rejection.ResponseCode())
		return
	}
	if pipeline.IsTransient(err) {
		logger.Warning("transient verification failure", logger.LoggerOptions{
			Key:  "error",
			Data: err,
		})
		server_response.Responder.Respond(ctx, http.StatusServiceUnavailable,
			"verification could not complete in time. Please try again.", nil, nil,
			utils.GetUIntPointer(constants.INFERENCE_TIMEOUT))
		return
	}
	apperrors.FatalServerError(ctx, err)
}
