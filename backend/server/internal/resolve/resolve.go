// Package resolve expands relative date placeholders in an upstream request
// template. A template may contain {today} and {Ndaysago} tokens which are
// replaced with absolute calendar dates in the configured timezone.
package resolve

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const dateFormat = "2006-01-02"

var placeholderRe = regexp.MustCompile(`\{([^{}]*)\}`)
var daysAgoRe = regexp.MustCompile(`^(\d+)daysago$`)

// TemplateError reports a malformed placeholder. It aborts a fetch attempt
// before any network call is made.
type TemplateError struct {
	Token string
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("malformed date placeholder %#v", e.Token)
}

// Resolver expands placeholders using calendar-day arithmetic in a fixed
// timezone. Resolving the same template at any time during the same calendar
// day yields identical output.
type Resolver struct {
	location *time.Location
}

func NewResolver(location *time.Location) *Resolver {
	if location == nil {
		location = time.UTC
	}
	return &Resolver{location: location}
}

// Resolve replaces every placeholder in template with the date it denotes
// relative to now. Returns a TemplateError if any {...} token is not a valid
// placeholder, or if the template contains a stray brace.
func (r *Resolver) Resolve(template string, now time.Time) (string, error) {
	today := now.In(r.location)
	var badToken *TemplateError
	resolved := placeholderRe.ReplaceAllStringFunc(template, func(match string) string {
		date, err := resolveToken(match, today)
		if err != nil {
			if badToken == nil {
				badToken = err
			}
			return match
		}
		return date
	})
	if badToken != nil {
		return "", badToken
	}
	if i := strings.IndexAny(resolved, "{}"); i != -1 {
		return "", &TemplateError{Token: string(resolved[i])}
	}
	return resolved, nil
}

func resolveToken(token string, today time.Time) (string, *TemplateError) {
	inner := strings.TrimSuffix(strings.TrimPrefix(token, "{"), "}")
	if inner == "today" {
		return today.Format(dateFormat), nil
	}
	if m := daysAgoRe.FindStringSubmatch(inner); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return "", &TemplateError{Token: token}
		}
		return today.AddDate(0, 0, -n).Format(dateFormat), nil
	}
	return "", &TemplateError{Token: token}
}

// ValidateTemplate checks that every placeholder in template is well formed
// without resolving it. Used at registration time so broken templates are
// rejected before they are ever scheduled.
func (r *Resolver) ValidateTemplate(template string) error {
	_, err := r.Resolve(template, time.Now())
	return err
}
