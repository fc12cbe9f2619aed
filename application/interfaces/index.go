package interfaces

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ApplicationContext carries a parsed request body and request metadata
// from the router layer into controllers.
type ApplicationContext[T interface{}] struct {
	Ctx       *gin.Context
	Body      *T
	Header    http.Header
	Keys      map[string]any
	RequestID string
}

func (ac *ApplicationContext[T]) GetHeader(key string) string {
	return ac.Header.Get(key)
}
