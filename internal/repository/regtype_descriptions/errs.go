package regtype_descriptions

import "fmt"

var _ error = DescriptionNotFoundError{}

type DescriptionNotFoundError struct {
	RegType string
}

func (err DescriptionNotFoundError) Error() string {
	return fmt.Sprintf("no description for %s", err.RegType)
}
