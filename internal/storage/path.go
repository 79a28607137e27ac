package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

const datasetObjectName = "data.parquet"

// BuildDatasetPath returns the object key of a dataset's parquet file.
func BuildDatasetPath(userID, targetID string) (string, error) {
	if err := validatePathComponent(userID, "user id"); err != nil {
		return "", err
	}
	if err := ValidateTargetID(targetID); err != nil {
		return "", err
	}
	return path.Join(userID, targetID, datasetObjectName), nil
}

// ParseDatasetPath splits a key built by BuildDatasetPath into its user and
// target ids.
func ParseDatasetPath(key string) (userID, targetID string, err error) {
	parts := strings.Split(key, "/")
	if len(parts) != 3 || parts[2] != datasetObjectName {
		return "", "", fmt.Errorf("invalid dataset path: %q", key)
	}
	if err := validatePathComponent(parts[0], "user id"); err != nil {
		return "", "", err
	}
	if err := ValidateTargetID(parts[1]); err != nil {
		return "", "", err
	}
	return parts[0], parts[1], nil
}

func ValidateTargetID(targetID string) error {
	return validatePathComponent(targetID, "target id")
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
