package auth

import (
	"errors"

	"github.com/hitoshi/blogclient/internal/model"
)

func asAPIError(err error, target **model.APIError) bool {
	return errors.As(err, target)
}
