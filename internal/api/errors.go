package api

import "errors"

var (
	errInvalidTemplateID    = errors.New("invalid template_id")
	errInvalidMappingConfig = errors.New("invalid mapping_config")
)
