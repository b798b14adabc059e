// Package validation validates configuration structs using validator/v10
// struct tags.
//
// Field names in messages come from the mapstructure tag, so they match the
// keys users write in config files and environment variables.
//
//	type Config struct {
//	    PageURL string `mapstructure:"page_url" validate:"required,url"`
//	}
//	err := validation.Validate(cfg)
package validation
