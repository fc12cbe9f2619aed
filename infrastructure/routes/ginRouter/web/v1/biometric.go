package routev1

import (
	apperrors "veridoc.io/application/appErrors"
	"veridoc.io/application/controller"
	"veridoc.io/application/controller/dto"
	"veridoc.io/application/interfaces"
	"github.com/gin-gonic/gin"
)

func BiometricRouter(router *gin.RouterGroup) {
	biometricRouter := router.Group("/biometric")
	{
		biometricRouter.POST("/compare-faces", func(ctx *gin.Context) {
			var body dto.FaceComparisonRequest
			if err := ctx.ShouldBindJSON(&body); err != nil {
				apperrors.ErrorProcessingPayload(ctx)
				return
			}
			controller.CompareFaces(&interfaces.ApplicationContext[dto.FaceComparisonRequest]{
				Ctx:    ctx,
				Body:   &body,
				Header: ctx.Request.Header,
			})
		})
	}
}
