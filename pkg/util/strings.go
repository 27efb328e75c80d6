package util

import "strings"

func RemoveDuplicateStrings(values []string, ignoreList []string) []string {
	presentStrings := make(map[string]bool)
	var list []string

	for _, ignoreString := range ignoreList {
		presentStrings[ignoreString] = true
	}

	for _, item := range values {
		if _, value := presentStrings[item]; !value && item != "" {
			presentStrings[item] = true
			list = append(list, item)
		}
	}
	return list
}

// FirstNonEmpty returns the first value that is not blank, used to read
// attributes that exist under several spellings.
func FirstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}

	return ""
}

// SplitList splits a comma separated list, trimming blanks and dropping
// repeated items.
func SplitList(value string) []string {
	var list []string
	for _, item := range strings.Split(value, ",") {
		list = append(list, strings.TrimSpace(item))
	}

	return RemoveDuplicateStrings(list, nil)
}
