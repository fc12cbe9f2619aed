package routev1

import (
	apperrors "veridoc.io/application/appErrors"
	"veridoc.io/application/controller"
	"veridoc.io/application/controller/dto"
	"veridoc.io/application/interfaces"
	"github.com/gin-gonic/gin"
)

func VerificationRouter(router *gin.RouterGroup) {
	verificationRouter := router.Group("/verify")
	{
		verificationRouter.POST("/front", func(ctx *gin.Context) {
			var body dto.VerifyFrontRequest
			if err := ctx.ShouldBindJSON(&body); err != nil {
				apperrors.ErrorProcessingPayload(ctx)
				return
			}
			controller.VerifyFront(&interfaces.ApplicationContext[dto.VerifyFrontRequest]{
				Ctx:    ctx,
				Body:   &body,
				Header: ctx.Request.Header,
			})
		})

		verificationRouter.POST("/back", func(ctx *gin.Context) {
			var body dto.VerifyBackRequest
			if err := ctx.ShouldBindJSON(&body); err != nil {
				apperrors.ErrorProcessingPayload(ctx)
				return
			}
			controller.VerifyBack(&interfaces.ApplicationContext[dto.VerifyBackRequest]{
				Ctx:    ctx,
				Body:   &body,
				Header: ctx.Request.Header,
			})
		})

		verificationRouter.POST("/liveness-and-match", func(ctx *gin.Context) {
			var body dto.VerifyLivenessRequest
			if err := ctx.ShouldBindJSON(&body); err != nil {
				apperrors.ErrorProcessingPayload(ctx)
				return
			}
			controller.VerifyLivenessAndMatch(&interfaces.ApplicationContext[dto.VerifyLivenessRequest]{
				Ctx:    ctx,
				Body:   &body,
				Header: ctx.Request.Header,
			})
		})
	}
}
