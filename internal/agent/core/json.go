package core

import "fmt"

// extractJSONObject pulls the first balanced JSON object out of a model
// response, tolerating prose before and after it.
func extractJSONObject(response string) (string, error) {
	start := -1
	depth := 0
	inString := false
	escaped := false
	for i, ch := range response {
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 && start != -1 {
					return response[start : i+1], nil
				}
			}
		}
	}
	return "", fmt.Errorf("no JSON object found in response")
}
