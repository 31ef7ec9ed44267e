package ir

import "fmt"

func fmtWrap(err error) error {
	return fmt.Errorf("apply: %w", err)
}
