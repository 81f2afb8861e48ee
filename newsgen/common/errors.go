package common

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// Configuration errors are raised before any processing starts.
var (
	ErrPathEmpty          = errors.New("path cannot be empty")
	ErrDatasetNotFound    = errors.New("dataset directory does not exist")
	ErrCheckpointNotFound = errors.New("checkpoint file does not exist")
	ErrNotADirectory      = errors.New("path is not a directory")
	ErrNotAFile           = errors.New("path is not a regular file")
)

// ValidationUtils provides the precondition checks run before a job starts
type ValidationUtils struct{}

// NewValidationUtils creates a new ValidationUtils instance
func NewValidationUtils() *ValidationUtils {
	return &ValidationUtils{}
}

// ValidateRequiredString validates that a string is not empty
func (vu *ValidationUtils) ValidateRequiredString(value, fieldName string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s cannot be empty", fieldName)
	}
	return nil
}

// ValidateFileExists validates that path is an existing regular file.
// notExist is returned (wrapped) when nothing is found at path.
func (vu *ValidationUtils) ValidateFileExists(path string, notExist error) error {
	if strings.TrimSpace(path) == "" {
		return ErrPathEmpty
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", notExist, path)
		}
		return fmt.Errorf("failed to access file %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s", ErrNotAFile, path)
	}
	return nil
}

// ValidateDirectoryExists validates that path is an existing directory
func (vu *ValidationUtils) ValidateDirectoryExists(path string, notExist error) error {
	if strings.TrimSpace(path) == "" {
		return ErrPathEmpty
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", notExist, path)
		}
		return fmt.Errorf("failed to access directory %s: %w", path, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrNotADirectory, path)
	}
	return nil
}

// WrapError wraps an error with additional context
func WrapError(err error, message string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(message, args...), err)
}
