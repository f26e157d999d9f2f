package model

import (
	"github.com/elastic/go-elasticsearch/v9/typedapi/types"
)

// Document is implemented by everything the search archive stores.
type Document interface {
	*DeathDoc
	GetID() string
	GetIndex() string
	GetTypeMapping() *types.TypeMapping
}
