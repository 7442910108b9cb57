package repository

import (
	"errors"
	"fmt"

	"github.com/okian/civicflow/internal/domain/model"
)

// Sentinel kinds for store errors.
var (
	ErrNotFound        = fmt.Errorf("record %w", model.ErrNotFound)
	ErrConditionFailed = errors.New("conditional update did not match")
	ErrDuplicate       = errors.New("duplicate id")
)
