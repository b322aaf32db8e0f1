package util

import (
	"github.com/hetiansu5/urlquery"
	"github.com/pkg/errors"
)

// QueryString encodes a struct or map into a URL query string.
func QueryString(query interface{}) (string, error) {
	bytes, err := urlquery.Marshal(query)
	if err != nil {
		return "", errors.Wrap(err, "encode query")
	}
	return string(bytes), nil
}
