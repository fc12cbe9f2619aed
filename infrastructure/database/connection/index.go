package connection

import (
	"veridoc.io/infrastructure/database/connection/cache"
	"veridoc.io/infrastructure/database/connection/datastore"
)

func ConnectToDatabase() {
	datastore.ConnectToDatabase()
	cache.ConnectToCache()
}
