package core

import (
	"fmt"
	"regexp"
	"strconv"

	"scancore/pkg/domain"
)

// Validate evaluates every check registered for the classified scan type
// against the series attributes. Checks run independently with no
// short-circuit; each failing check contributes one finding carrying the
// check's configured severity. Unclassified series must not reach this
// function; they follow the unclassified violation path instead.
func (c *RuleCatalogue) Validate(scanTypeID int64, attrs domain.SeriesAttributes) domain.Result {
	var result domain.Result
	for _, check := range c.FindChecks(scanTypeID, attrs.Scope) {
		if check.Vacuous() {
			continue
		}
		value, present := attrs.HeaderValue(check.HeaderField)
		if finding, failed := evaluateCheck(check, value, present); failed {
			result.Findings = append(result.Findings, finding)
		}
	}
	return result
}

func evaluateCheck(check domain.ValidationCheck, value string, present bool) (domain.Finding, bool) {
	fail := func(message string) (domain.Finding, bool) {
		return domain.Finding{
			CheckID:       check.ID,
			HeaderField:   check.HeaderField,
			ObservedValue: value,
			Expected:      check.Expected(),
			Severity:      check.Severity,
			Message:       message,
		}, true
	}

	if !present {
		return fail(fmt.Sprintf("%s missing, expected %s", check.HeaderField, check.Expected()))
	}

	if check.ValidMin != nil || check.ValidMax != nil {
		num, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fail(fmt.Sprintf("%s value %q is not numeric", check.HeaderField, value))
		}
		if check.ValidMin != nil && num < *check.ValidMin {
			return fail(fmt.Sprintf("%s value %s below %g", check.HeaderField, value, *check.ValidMin))
		}
		if check.ValidMax != nil && num > *check.ValidMax {
			return fail(fmt.Sprintf("%s value %s above %g", check.HeaderField, value, *check.ValidMax))
		}
	}

	if check.ValidRegex != "" {
		matched, err := regexp.MatchString(check.ValidRegex, value)
		if err != nil || !matched {
			return fail(fmt.Sprintf("%s value %q does not match %s", check.HeaderField, value, check.ValidRegex))
		}
	}

	return domain.Finding{}, false
}
