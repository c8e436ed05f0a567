package metrics

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"
)

var friendlyAliases = map[string]string{
	"*context.deadlineExceededError": "Context deadline exceeded",
	"context.deadlineExceededError":  "Context deadline exceeded",
}

// Untyped errors carry no information in their type, only in the message.
var messageOnlyTypes = map[string]bool{
	"*errors.errorString": true,
	"*fmt.wrapError":      true,
	"*fmt.wrapErrors":     true,
}

// ErrorLabel returns a short human-friendly label used to group failures.
// Sentinel errors are labelled by their message, typed errors by type name.
func ErrorLabel(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "Context deadline exceeded"
	case errors.Is(err, context.Canceled):
		return "Context canceled"
	}

	root := err
	for {
		next := errors.Unwrap(root)
		if next == nil {
			break
		}
		root = next
	}

	typeName := fmt.Sprintf("%T", root)
	if messageOnlyTypes[typeName] {
		return messageLabel(root.Error())
	}
	return FriendlyErrorName(typeName)
}

// messageLabel turns "worker: execution failed" into "Execution failed".
func messageLabel(msg string) string {
	if idx := strings.Index(msg, ": "); idx != -1 && !strings.Contains(msg[:idx], " ") {
		msg = msg[idx+2:]
	}
	if len(msg) > 40 {
		msg = msg[:40]
	}
	if msg == "" {
		return "Unknown error"
	}
	runes := []rune(msg)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

// FriendlyErrorName turns a %T type name into a label such as
// "Queue Full Error (pkg)". Types in package main drop the suffix.
func FriendlyErrorName(typeName string) string {
	name := strings.TrimSpace(typeName)
	if name == "" {
		return "Unknown error"
	}
	for _, key := range []string{name, strings.TrimPrefix(name, "*")} {
		if alias, ok := friendlyAliases[key]; ok {
			return alias
		}
	}

	name = strings.TrimPrefix(name, "*")
	name = name[strings.LastIndex(name, "/")+1:]
	pkg, typ, found := strings.Cut(name, ".")
	if !found {
		pkg, typ = "", name
	}

	words := splitCamel(typ)
	for i, w := range words {
		if !isAllUpper(w) {
			words[i] = capitalize(w)
		}
	}
	pretty := strings.Join(words, " ")
	if pretty == "" {
		pretty = typ
	}
	if pkg == "" || pkg == "main" {
		return pretty
	}
	return fmt.Sprintf("%s (%s)", pretty, pkg)
}

// splitCamel splits "HTTPTimeoutV2" into ["HTTP", "Timeout", "V", "2"].
func splitCamel(name string) []string {
	runes := []rune(name)
	var words []string
	start := 0
	for i := 1; i < len(runes); i++ {
		prev, r := runes[i-1], runes[i]
		acronymEnd := unicode.IsUpper(prev) && i+1 < len(runes) && unicode.IsLower(runes[i+1])
		if (unicode.IsUpper(r) && (unicode.IsLower(prev) || acronymEnd)) ||
			(unicode.IsDigit(r) && !unicode.IsDigit(prev)) {
			words = append(words, string(runes[start:i]))
			start = i
		}
	}
	if start < len(runes) {
		words = append(words, string(runes[start:]))
	}
	return words
}

func isAllUpper(s string) bool {
	hasLetter := false
	for _, r := range s {
		if !unicode.IsLetter(r) {
			continue
		}
		if !unicode.IsUpper(r) {
			return false
		}
		hasLetter = true
	}
	return hasLetter
}

func capitalize(s string) string {
	runes := []rune(strings.ToLower(s))
	if len(runes) == 0 {
		return ""
	}
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
