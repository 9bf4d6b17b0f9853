package steps

import (
	"github.com/pkg/errors"
)

var ErrMissingClientSettings = errors.New("missing client settings")

var ErrMissingClientAPIKey = errors.New("missing client settings api key")

var ErrMissingEngine = errors.New("no chat engine specified")

var ErrMissingProviderSettings = errors.New("missing provider settings")
