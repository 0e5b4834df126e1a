package utils

import "strings"

// ToStringSlice filters a loosely typed slice down to its string members.
func ToStringSlice(slice []any) []string {
	stringSlice := make([]string, 0)
	for _, v := range slice {
		if s, ok := v.(string); ok {
			stringSlice = append(stringSlice, s)
		}
	}
	return stringSlice
}

// SplitScopes splits a space separated OAuth2 scope string, dropping empties.
func SplitScopes(scope string) []string {
	fields := strings.Fields(scope)
	if len(fields) == 0 {
		return nil
	}
	return fields
}

// JoinScopes renders a scope list as the wire-format space separated string.
func JoinScopes(scopes []string) string {
	return strings.Join(scopes, " ")
}
